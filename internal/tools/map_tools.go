package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/lumen/internal/maps"
)

// SetMaps backs the location tools.
func (r *Registry) SetMaps(p maps.Provider) {
	r.maps = p
}

func (r *Registry) registerMapTools() {
	r.Register(&Tool{
		Name:        "query_location",
		Description: "Find a place by name or address and show it on a map.",
		Parameters: schema(map[string]any{
			"query": prop("string", "Place name or address"),
		}, "query"),
		Status:  [2]string{"Finding Location", "正在查找位置"},
		Handler: r.handleQueryLocation,
	})

	r.Register(&Tool{
		Name:        "get_current_location",
		Description: "Get the user's current location.",
		Parameters:  schema(map[string]any{}),
		Status:      [2]string{"Getting Current Location", "正在获取当前位置"},
		Handler:     r.handleCurrentLocation,
	})

	r.Register(&Tool{
		Name:        "search_nearby_locations",
		Description: "Search for places of a kind (restaurants, pharmacies, ...) near the user or near a named place.",
		Parameters: schema(map[string]any{
			"query":  prop("string", "What to look for"),
			"near":   prop("string", "Optional place to search around; defaults to the user's location"),
			"radius": prop("integer", "Search radius in meters (default 2000)"),
		}, "query"),
		Status:  [2]string{"Searching Nearby", "正在搜索附近"},
		Handler: r.handleSearchNearby,
	})

	r.Register(&Tool{
		Name:        "get_route",
		Description: "Plan a route between two places. Omit origin to start from the user's location.",
		Parameters: schema(map[string]any{
			"origin":      prop("string", "Start place; empty for current location"),
			"destination": prop("string", "Destination place"),
			"mode":        map[string]any{"type": "string", "enum": []string{maps.ModeDriving, maps.ModeWalking, maps.ModeCycling}},
		}, "destination"),
		Status:  [2]string{"Planning Route", "正在规划路线"},
		Handler: r.handleGetRoute,
	})
}

func (r *Registry) handleQueryLocation(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.maps == nil {
		return Result{}, unavailable("query_location", "map")
	}
	places, err := r.maps.Geocode(ctx, args.String("query"), 3)
	if err != nil {
		return Result{}, err
	}
	if len(places) == 0 {
		return Text(env.Lang.Pick("No place found for: ", "没有找到地点：") + args.String("query")), nil
	}
	env.Payloads.Locations = append(env.Payloads.Locations, places...)
	return Result{
		Text:  formatPlaces(places),
		Front: env.Lang.Pick("Found ", "找到 ") + places[0].Name,
	}, nil
}

func (r *Registry) handleCurrentLocation(ctx context.Context, _ Args, env *Env) (Result, error) {
	if r.maps == nil {
		return Result{}, unavailable("get_current_location", "map")
	}
	here, err := r.maps.Here(ctx)
	if err != nil {
		return Result{}, err
	}
	env.Payloads.Locations = append(env.Payloads.Locations, here)
	return Result{
		Text:  env.Lang.Pick("Current location: ", "当前位置：") + formatPlace(here),
		Front: here.Name,
	}, nil
}

func (r *Registry) handleSearchNearby(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.maps == nil {
		return Result{}, unavailable("search_nearby_locations", "map")
	}
	center, err := r.resolvePlace(ctx, args.String("near"))
	if err != nil {
		return Result{}, err
	}
	places, err := r.maps.Nearby(ctx, args.String("query"), center, args.Float("radius", 2000), 10)
	if err != nil {
		return Result{}, err
	}
	if len(places) == 0 {
		return Text(env.Lang.Pick("Nothing found nearby.", "附近没有找到结果。")), nil
	}
	env.Payloads.Locations = append(env.Payloads.Locations, places...)
	return Result{
		Text:  formatPlaces(places),
		Front: env.Lang.Pick(fmt.Sprintf("Found %d places", len(places)), fmt.Sprintf("找到 %d 个地点", len(places))),
	}, nil
}

func (r *Registry) handleGetRoute(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.maps == nil {
		return Result{}, unavailable("get_route", "map")
	}
	from, err := r.resolvePlace(ctx, args.String("origin"))
	if err != nil {
		return Result{}, err
	}
	to, err := r.resolvePlace(ctx, args.String("destination"))
	if err != nil {
		return Result{}, err
	}
	route, err := r.maps.Route(ctx, from, to, maps.NormalizeMode(args.String("mode")))
	if err != nil {
		return Result{}, err
	}
	env.Payloads.Routes = append(env.Payloads.Routes, route)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s -> %s (%s): %s, %s", route.From.Name, route.To.Name, route.Mode,
		maps.FormatDistance(route.DistanceMeters), maps.FormatDuration(route.DurationSeconds))
	for i, s := range route.Steps {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, s)
	}
	return Result{
		Text:  sb.String(),
		Front: fmt.Sprintf("%s, %s", maps.FormatDistance(route.DistanceMeters), maps.FormatDuration(route.DurationSeconds)),
	}, nil
}

// resolvePlace geocodes name, or returns the current location when
// name is empty.
func (r *Registry) resolvePlace(ctx context.Context, name string) (maps.Place, error) {
	if name == "" {
		return r.maps.Here(ctx)
	}
	places, err := r.maps.Geocode(ctx, name, 1)
	if err != nil {
		return maps.Place{}, err
	}
	if len(places) == 0 {
		return maps.Place{}, fmt.Errorf("no place found for %q", name)
	}
	return places[0], nil
}

func formatPlace(p maps.Place) string {
	s := p.Name
	if p.Address != "" && p.Address != p.Name {
		s += ", " + p.Address
	}
	s += fmt.Sprintf(" (%.5f, %.5f)", p.Latitude, p.Longitude)
	if p.DistanceMeters > 0 {
		s += " " + maps.FormatDistance(p.DistanceMeters)
	}
	return s
}

func formatPlaces(places []maps.Place) string {
	lines := make([]string, len(places))
	for i, p := range places {
		lines[i] = fmt.Sprintf("%d. %s", i+1, formatPlace(p))
	}
	return strings.Join(lines, "\n")
}
