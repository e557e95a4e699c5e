package weather

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/data/2.5/weather", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "k", q.Get("appid"))
		if q.Get("q") == "" && q.Get("lat") == "" {
			t.Error("no location in query")
		}
		io.WriteString(w, `{"name":"Paris","weather":[{"description":"light rain"}],
			"main":{"temp":12.5,"feels_like":10.1,"humidity":81},"wind":{"speed":4.2}}`)
	})
	mux.HandleFunc("/data/2.5/forecast", func(w http.ResponseWriter, r *http.Request) {
		// 2024-03-01 09:00, 12:00, 21:00 UTC and 2024-03-02 12:00 UTC.
		io.WriteString(w, `{"city":{"timezone":0},"list":[
			{"dt":1709283600,"main":{"temp_min":5,"temp_max":8},"weather":[{"description":"fog"}]},
			{"dt":1709294400,"main":{"temp_min":7,"temp_max":11},"weather":[{"description":"sunny"}]},
			{"dt":1709326800,"main":{"temp_min":3,"temp_max":6},"weather":[{"description":"clear"}]},
			{"dt":1709380800,"main":{"temp_min":4,"temp_max":9},"weather":[{"description":"cloudy"}]}
		]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCurrent(t *testing.T) {
	srv := newTestServer(t)
	w := NewOpenWeather(Config{APIKey: "k", BaseURL: srv.URL})

	c, err := w.Current(context.Background(), Location{City: "Paris"})
	require.NoError(t, err)
	assert.Equal(t, "Paris", c.Place)
	assert.Equal(t, "light rain", c.Description)
	assert.Equal(t, 81, c.Humidity)
	assert.Equal(t, "metric", c.Units)

	_, err = w.Current(context.Background(), Location{Latitude: 48.85, Longitude: 2.35})
	require.NoError(t, err)
}

func TestCurrentRequiresLocation(t *testing.T) {
	w := NewOpenWeather(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	_, err := w.Current(context.Background(), Location{})
	assert.Error(t, err)
}

func TestForecastFoldsDays(t *testing.T) {
	srv := newTestServer(t)
	w := NewOpenWeather(Config{APIKey: "k", BaseURL: srv.URL})

	days, err := w.Forecast(context.Background(), Location{City: "Paris"}, 3)
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, "2024-03-01", days[0].Date)
	assert.Equal(t, 3.0, days[0].Min)
	assert.Equal(t, 11.0, days[0].Max)
	assert.Equal(t, "sunny", days[0].Description)
	assert.Equal(t, "cloudy", days[1].Description)

	one, err := w.Forecast(context.Background(), Location{City: "Paris"}, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestUnitSymbol(t *testing.T) {
	assert.Equal(t, "°F", UnitSymbol("imperial"))
	assert.Equal(t, "°C", UnitSymbol("metric"))
}
