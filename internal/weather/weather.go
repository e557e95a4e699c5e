// Package weather reports current conditions and short forecasts for
// the query_weather tool, backed by the OpenWeather API.
package weather

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nugget/lumen/internal/httpkit"
)

// Location selects where to report weather. Coordinates win over City
// when both are set.
type Location struct {
	City      string
	Latitude  float64
	Longitude float64
}

func (l Location) hasCoords() bool { return l.Latitude != 0 || l.Longitude != 0 }

// Conditions is a current weather observation.
type Conditions struct {
	Place       string  `json:"place"`
	Description string  `json:"description"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Units       string  `json:"units"`
}

// Day is one day of forecast.
type Day struct {
	Date        string  `json:"date"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Description string  `json:"description"`
}

// Provider is a weather service.
type Provider interface {
	Current(ctx context.Context, loc Location) (Conditions, error)
	Forecast(ctx context.Context, loc Location, days int) ([]Day, error)
}

// Config configures the OpenWeather client.
type Config struct {
	APIKey  string
	BaseURL string
	Units   string // metric (default) or imperial
	Lang    string // e.g. "en", "zh_cn"
	Logger  *slog.Logger
}

// OpenWeather implements [Provider].
type OpenWeather struct {
	apiKey  string
	baseURL string
	units   string
	lang    string
	getter  *httpkit.CachedGetter
	logger  *slog.Logger
}

// NewOpenWeather creates a client whose responses are cached for ten
// minutes.
func NewOpenWeather(cfg Config) *OpenWeather {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openweathermap.org"
	}
	if cfg.Units == "" {
		cfg.Units = "metric"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := httpkit.NewClient(httpkit.WithTimeout(15 * time.Second))
	return &OpenWeather{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		units:   cfg.Units,
		lang:    cfg.Lang,
		getter:  httpkit.NewCachedGetter(client, 1<<20, 10*time.Minute),
		logger:  logger.With("component", "weather"),
	}
}

func (w *OpenWeather) query(loc Location) url.Values {
	v := url.Values{
		"appid": {w.apiKey},
		"units": {w.units},
	}
	if w.lang != "" {
		v.Set("lang", w.lang)
	}
	if loc.hasCoords() {
		v.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
		v.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	} else {
		v.Set("q", loc.City)
	}
	return v
}

func (w *OpenWeather) get(ctx context.Context, path string, loc Location) (gjson.Result, error) {
	if !loc.hasCoords() && strings.TrimSpace(loc.City) == "" {
		return gjson.Result{}, fmt.Errorf("no location given")
	}
	body, err := w.getter.Get(ctx, w.baseURL+path+"?"+w.query(loc).Encode(),
		http.Header{"Accept": {"application/json"}})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("openweather: %w", err)
	}
	return gjson.ParseBytes(body), nil
}

// Current returns current conditions.
func (w *OpenWeather) Current(ctx context.Context, loc Location) (Conditions, error) {
	res, err := w.get(ctx, "/data/2.5/weather", loc)
	if err != nil {
		return Conditions{}, err
	}
	return Conditions{
		Place:       res.Get("name").String(),
		Description: res.Get("weather.0.description").String(),
		Temperature: res.Get("main.temp").Float(),
		FeelsLike:   res.Get("main.feels_like").Float(),
		Humidity:    int(res.Get("main.humidity").Int()),
		WindSpeed:   res.Get("wind.speed").Float(),
		Units:       w.units,
	}, nil
}

// Forecast folds the 3-hourly forecast into per-day min/max. The
// description is taken from the entry closest to midday.
func (w *OpenWeather) Forecast(ctx context.Context, loc Location, days int) ([]Day, error) {
	if days <= 0 || days > 5 {
		days = 5
	}
	res, err := w.get(ctx, "/data/2.5/forecast", loc)
	if err != nil {
		return nil, err
	}
	offset := time.Duration(res.Get("city.timezone").Int()) * time.Second

	var out []Day
	index := map[string]int{}
	noonGap := map[string]time.Duration{}
	res.Get("list").ForEach(func(_, e gjson.Result) bool {
		at := time.Unix(e.Get("dt").Int(), 0).UTC().Add(offset)
		date := at.Format("2006-01-02")
		lo, hi := e.Get("main.temp_min").Float(), e.Get("main.temp_max").Float()
		gap := absDuration(time.Duration(at.Hour()-12) * time.Hour)

		i, ok := index[date]
		if !ok {
			if len(out) == days {
				return false
			}
			index[date] = len(out)
			noonGap[date] = gap
			out = append(out, Day{Date: date, Min: lo, Max: hi, Description: e.Get("weather.0.description").String()})
			return true
		}
		d := &out[i]
		d.Min = min(d.Min, lo)
		d.Max = max(d.Max, hi)
		if gap < noonGap[date] {
			noonGap[date] = gap
			d.Description = e.Get("weather.0.description").String()
		}
		return true
	})
	return out, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// UnitSymbol returns the temperature suffix for units.
func UnitSymbol(units string) string {
	if units == "imperial" {
		return "°F"
	}
	return "°C"
}
