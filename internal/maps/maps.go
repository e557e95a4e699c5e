// Package maps provides geocoding, nearby search and routing for the
// location tools. The bundled implementation uses OpenStreetMap
// services: Nominatim for places and OSRM for routes.
package maps

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Place is a geocoded location.
type Place struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Category  string  `json:"category,omitempty"`
	// DistanceMeters is set by nearby searches.
	DistanceMeters float64 `json:"distance_meters,omitempty"`
}

// Route is a computed route between two places.
type Route struct {
	From            Place    `json:"from"`
	To              Place    `json:"to"`
	Mode            string   `json:"mode"`
	DistanceMeters  float64  `json:"distance_meters"`
	DurationSeconds float64  `json:"duration_seconds"`
	Steps           []string `json:"steps,omitempty"`
}

// Travel modes accepted by [Provider.Route].
const (
	ModeDriving = "driving"
	ModeWalking = "walking"
	ModeCycling = "cycling"
)

// Provider is a map service.
type Provider interface {
	// Geocode resolves free text to candidate places.
	Geocode(ctx context.Context, query string, limit int) ([]Place, error)
	// Here returns the device's current position, reverse geocoded.
	Here(ctx context.Context) (Place, error)
	// Nearby finds places matching query within radiusMeters of center,
	// nearest first.
	Nearby(ctx context.Context, query string, center Place, radiusMeters float64, limit int) ([]Place, error)
	// Route computes a route between two places.
	Route(ctx context.Context, from, to Place, mode string) (Route, error)
}

// NormalizeMode maps user wording to a travel mode constant. Unknown
// modes fall back to driving.
func NormalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "walk", "walking", "foot", "步行":
		return ModeWalking
	case "bike", "bicycle", "cycling", "骑行":
		return ModeCycling
	}
	return ModeDriving
}

const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance between two places in
// meters.
func Distance(a, b Place) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// FormatDistance renders meters as "850 m" or "12.3 km".
func FormatDistance(m float64) string {
	if m < 1000 {
		return fmt.Sprintf("%.0f m", m)
	}
	return fmt.Sprintf("%.1f km", m/1000)
}

// FormatDuration renders seconds as "7 min" or "1 h 25 min".
func FormatDuration(sec float64) string {
	minutes := int(math.Round(sec / 60))
	if minutes < 60 {
		return fmt.Sprintf("%d min", max(minutes, 1))
	}
	return fmt.Sprintf("%d h %d min", minutes/60, minutes%60)
}
