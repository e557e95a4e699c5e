package maps

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nugget/lumen/internal/httpkit"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultOSRMURL      = "https://router.project-osrm.org"
)

// OSMConfig configures the OpenStreetMap provider.
type OSMConfig struct {
	NominatimURL string
	OSRMURL      string
	// Latitude and Longitude are the device position reported by Here.
	Latitude  float64
	Longitude float64
	// Language is sent as Accept-Language to localize place names.
	Language string
	Logger   *slog.Logger
}

// OSM implements [Provider] with Nominatim and OSRM.
type OSM struct {
	nominatim string
	osrm      string
	here      Place
	language  string
	getter    *httpkit.CachedGetter
	logger    *slog.Logger
}

// NewOSM creates an OpenStreetMap provider with a 4 MB response cache.
func NewOSM(cfg OSMConfig) *OSM {
	if cfg.NominatimURL == "" {
		cfg.NominatimURL = defaultNominatimURL
	}
	if cfg.OSRMURL == "" {
		cfg.OSRMURL = defaultOSRMURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := httpkit.NewClient(httpkit.WithTimeout(15 * time.Second))
	return &OSM{
		nominatim: strings.TrimRight(cfg.NominatimURL, "/"),
		osrm:      strings.TrimRight(cfg.OSRMURL, "/"),
		here:      Place{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
		language:  cfg.Language,
		getter:    httpkit.NewCachedGetter(client, 4<<20, 30*time.Minute),
		logger:    logger.With("component", "maps"),
	}
}

func (o *OSM) header() http.Header {
	h := http.Header{"Accept": {"application/json"}}
	if o.language != "" {
		h.Set("Accept-Language", o.language)
	}
	return h
}

// Geocode searches Nominatim for query.
func (o *OSM) Geocode(ctx context.Context, query string, limit int) ([]Place, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {strconv.Itoa(limit)},
	}
	body, err := o.getter.Get(ctx, o.nominatim+"/search?"+params.Encode(), o.header())
	if err != nil {
		return nil, fmt.Errorf("nominatim search: %w", err)
	}
	return parsePlaces(body), nil
}

// Here reverse geocodes the configured device position.
func (o *OSM) Here(ctx context.Context) (Place, error) {
	if o.here.Latitude == 0 && o.here.Longitude == 0 {
		return Place{}, fmt.Errorf("device location is not configured")
	}
	params := url.Values{
		"lat":    {strconv.FormatFloat(o.here.Latitude, 'f', 6, 64)},
		"lon":    {strconv.FormatFloat(o.here.Longitude, 'f', 6, 64)},
		"format": {"jsonv2"},
	}
	body, err := o.getter.Get(ctx, o.nominatim+"/reverse?"+params.Encode(), o.header())
	if err != nil {
		return Place{}, fmt.Errorf("nominatim reverse: %w", err)
	}
	p := parsePlace(gjson.ParseBytes(body))
	if p.Latitude == 0 && p.Longitude == 0 {
		p.Latitude, p.Longitude = o.here.Latitude, o.here.Longitude
	}
	return p, nil
}

// Nearby searches a bounding box around center and filters results to
// the radius.
func (o *OSM) Nearby(ctx context.Context, query string, center Place, radiusMeters float64, limit int) ([]Place, error) {
	if radiusMeters <= 0 {
		radiusMeters = 2000
	}
	if limit <= 0 {
		limit = 10
	}
	// One degree of latitude is ~111 km.
	d := radiusMeters / 111000
	viewbox := fmt.Sprintf("%f,%f,%f,%f",
		center.Longitude-d, center.Latitude+d, center.Longitude+d, center.Latitude-d)
	params := url.Values{
		"q":       {query},
		"format":  {"jsonv2"},
		"limit":   {strconv.Itoa(limit * 2)},
		"viewbox": {viewbox},
		"bounded": {"1"},
	}
	body, err := o.getter.Get(ctx, o.nominatim+"/search?"+params.Encode(), o.header())
	if err != nil {
		return nil, fmt.Errorf("nominatim nearby: %w", err)
	}

	var out []Place
	for _, p := range parsePlaces(body) {
		p.DistanceMeters = Distance(center, p)
		if p.DistanceMeters <= radiusMeters {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Route asks OSRM for the fastest route.
func (o *OSM) Route(ctx context.Context, from, to Place, mode string) (Route, error) {
	mode = NormalizeMode(mode)
	profile := map[string]string{
		ModeDriving: "driving",
		ModeWalking: "foot",
		ModeCycling: "bike",
	}[mode]

	u := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=false&steps=true",
		o.osrm, profile, from.Longitude, from.Latitude, to.Longitude, to.Latitude)
	body, err := o.getter.Get(ctx, u, o.header())
	if err != nil {
		return Route{}, fmt.Errorf("osrm route: %w", err)
	}

	res := gjson.ParseBytes(body)
	if code := res.Get("code").String(); code != "Ok" {
		return Route{}, fmt.Errorf("osrm route: %s %s", code, res.Get("message").String())
	}
	r := res.Get("routes.0")
	route := Route{
		From:            from,
		To:              to,
		Mode:            mode,
		DistanceMeters:  r.Get("distance").Float(),
		DurationSeconds: r.Get("duration").Float(),
	}
	r.Get("legs.0.steps").ForEach(func(_, s gjson.Result) bool {
		if step := describeStep(s); step != "" {
			route.Steps = append(route.Steps, step)
		}
		return true
	})

	o.logger.Debug("route computed",
		"mode", mode,
		"distance_m", route.DistanceMeters,
		"steps", len(route.Steps),
	)
	return route, nil
}

func describeStep(s gjson.Result) string {
	kind := s.Get("maneuver.type").String()
	modifier := s.Get("maneuver.modifier").String()
	name := s.Get("name").String()

	parts := []string{kind}
	if modifier != "" {
		parts = append(parts, modifier)
	}
	if name != "" {
		parts = append(parts, "onto "+name)
	}
	if d := s.Get("distance").Float(); d > 0 {
		parts = append(parts, "("+FormatDistance(d)+")")
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func parsePlaces(body []byte) []Place {
	var out []Place
	gjson.ParseBytes(body).ForEach(func(_, v gjson.Result) bool {
		out = append(out, parsePlace(v))
		return true
	})
	return out
}

func parsePlace(v gjson.Result) Place {
	p := Place{
		Name:      v.Get("name").String(),
		Address:   v.Get("display_name").String(),
		Latitude:  v.Get("lat").Float(),
		Longitude: v.Get("lon").Float(),
		Category:  v.Get("type").String(),
	}
	if p.Name == "" {
		p.Name, _, _ = strings.Cut(p.Address, ",")
	}
	return p
}
