package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/lumen/internal/weather"
)

// SetWeather backs query_weather. units is metric or imperial.
func (r *Registry) SetWeather(p weather.Provider, units string) {
	r.weather = p
	r.units = units
}

func (r *Registry) registerWeatherTools() {
	r.Register(&Tool{
		Name:        "query_weather",
		Description: "Get current weather and a short forecast. Omit city to use the user's location.",
		Parameters: schema(map[string]any{
			"city": prop("string", "City name"),
			"days": prop("integer", "Forecast days, 0 for current conditions only (default 3)"),
		}),
		Status:  [2]string{"Checking Weather", "正在查询天气"},
		Handler: r.handleQueryWeather,
	})
}

func (r *Registry) handleQueryWeather(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.weather == nil {
		return Result{}, unavailable("query_weather", "weather")
	}

	loc := weather.Location{City: args.String("city")}
	if loc.City == "" && r.maps != nil {
		if here, err := r.maps.Here(ctx); err == nil {
			loc.Latitude, loc.Longitude = here.Latitude, here.Longitude
			loc.City = here.Name
		}
	}
	if loc.City == "" && loc.Latitude == 0 && loc.Longitude == 0 {
		return Text(env.Lang.Pick("Which city? The user's location is unknown.", "请问是哪个城市？当前位置未知。")), nil
	}

	cur, err := r.weather.Current(ctx, loc)
	if err != nil {
		return Result{}, err
	}
	sym := weather.UnitSymbol(r.units)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s, %.1f%s (feels like %.1f%s), humidity %d%%, wind %.1f",
		cur.Place, cur.Description, cur.Temperature, sym, cur.FeelsLike, sym, cur.Humidity, cur.WindSpeed)

	if days := args.Int("days", 3); days > 0 {
		forecast, err := r.weather.Forecast(ctx, loc, days)
		if err != nil {
			r.logger.Warn("forecast failed", "error", err)
		}
		for _, d := range forecast {
			fmt.Fprintf(&sb, "\n%s: %s, %.0f-%.0f%s", d.Date, d.Description, d.Min, d.Max, sym)
		}
	}
	return Result{
		Text:  sb.String(),
		Front: fmt.Sprintf("%s %.0f%s", cur.Description, cur.Temperature, sym),
	}, nil
}
