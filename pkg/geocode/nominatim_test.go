package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-maps/gedmap-cli/internal/resilience"
)

const londonJSON = `[{
	"place_id": 12345,
	"lat": "51.5073219",
	"lon": "-0.1276474",
	"display_name": "London, Greater London, England, United Kingdom",
	"class": "place",
	"type": "city",
	"importance": 0.9407,
	"boundingbox": ["51.2867601", "51.6918741", "-0.5103751", "0.3340155"],
	"address": {"country": "United Kingdom", "country_code": "gb"}
}]`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Nominatim {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewNominatim(
		WithBaseURL(srv.URL),
		WithInterval(time.Millisecond),
	)
}

func TestGeocodeMatch(t *testing.T) {
	var gotQuery, gotCountry, gotUA string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotCountry = r.URL.Query().Get("countrycodes")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(londonJSON))
	})

	result, err := client.Geocode(context.Background(), "London, United Kingdom", "GB")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "London, United Kingdom", gotQuery)
	assert.Equal(t, "gb", gotCountry)
	assert.Equal(t, "gedmap-cli", gotUA)

	assert.InDelta(t, 51.5073219, result.Latitude, 1e-6)
	assert.InDelta(t, -0.1276474, result.Longitude, 1e-6)
	assert.Equal(t, "United Kingdom", result.Address.Country)
	assert.Equal(t, "GB", result.Address.CountryCode)
	assert.Equal(t, "city", result.Type)
	assert.Equal(t, "12345", result.PlaceID)
	assert.NotEmpty(t, result.BoundingBox)
}

func TestGeocodeNoMatchIsNilNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	result, err := client.Geocode(context.Background(), "Atlantis", "")
	require.NoError(t, err)
	assert.Nil(t, result, "empty result array must be a definitive no-match")
}

func TestGeocodeServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.Geocode(context.Background(), "London", "")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err), "5xx must classify as transient")

	var te *resilience.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
}

func TestGeocodeClientErrorIsNotTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := client.Geocode(context.Background(), "London", "")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err), "4xx must not classify as transient")
}

func TestGeocodeOmitsCountryFilterForNone(t *testing.T) {
	var sawCountryParam bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		sawCountryParam = r.URL.Query().Has("countrycodes")
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.Geocode(context.Background(), "London", "none")
	require.NoError(t, err)
	assert.False(t, sawCountryParam)
}

func TestGeocodePacingBetweenRequests(t *testing.T) {
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		stamps = append(stamps, time.Now())
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	interval := 120 * time.Millisecond
	client := NewNominatim(WithBaseURL(srv.URL), WithInterval(interval))

	_, err := client.Geocode(context.Background(), "first", "")
	require.NoError(t, err)
	_, err = client.Geocode(context.Background(), "second", "")
	require.NoError(t, err)

	require.Len(t, stamps, 2)
	gap := stamps[1].Sub(stamps[0])
	assert.GreaterOrEqual(t, gap, interval-10*time.Millisecond,
		"second live call must wait out the pacing interval, gap was %v", gap)
}

func TestGeocodeContextCancelDuringWait(t *testing.T) {
	client := NewNominatim(WithInterval(time.Hour))
	// Consume the initial token.
	client.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Geocode(ctx, "London", "")
	require.Error(t, err)
}
