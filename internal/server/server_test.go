package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-maps/gedmap-cli/internal/gazetteer"
	"github.com/heritage-maps/gedmap-cli/internal/geocache"
	"github.com/heritage-maps/gedmap-cli/internal/model"
	"github.com/heritage-maps/gedmap-cli/internal/resolver"
	"github.com/heritage-maps/gedmap-cli/internal/store"
	"github.com/heritage-maps/gedmap-cli/pkg/geocode"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cache := geocache.Open(filepath.Join(t.TempDir(), "cache.csv"), "")
	cache.RecordSuccess("London, England", &model.Location{
		Address:     "London, England",
		Coord:       &model.Coordinate{Lat: 51.5073, Lon: -0.1276},
		CountryCode: "GB",
		CountryName: "United Kingdom",
		Continent:   "Europe",
	})
	cache.RecordNoResult("Atlantis")

	r := resolver.New(cache, gazetteer.New(gazetteer.Overrides{}), nil,
		resolver.Config{CacheOnly: true})

	runs, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { runs.Close() })
	require.NoError(t, runs.Migrate(context.Background()))

	return New(r, runs)
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := doGet(t, newTestServer(t), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestLookupFound(t *testing.T) {
	rec := doGet(t, newTestServer(t), "/api/v1/lookup?place=London%2C+England")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp lookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Found)
	assert.InDelta(t, 51.5073, resp.Latitude, 1e-6)
	assert.Equal(t, "GB", resp.CountryCode)
	assert.Equal(t, "Europe", resp.Continent)
}

func TestLookupNegative(t *testing.T) {
	rec := doGet(t, newTestServer(t), "/api/v1/lookup?place=Atlantis")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp lookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Found)
	assert.Zero(t, resp.Latitude)
}

func TestLookupMissingParam(t *testing.T) {
	rec := doGet(t, newTestServer(t), "/api/v1/lookup")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing place parameter")
}

func TestCacheStats(t *testing.T) {
	s := newTestServer(t)
	// One positive hit and one negative hit to move the counters.
	doGet(t, s, "/api/v1/lookup?place=London%2C+England")
	doGet(t, s, "/api/v1/lookup?place=Atlantis")

	rec := doGet(t, s, "/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp cacheStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Rows)
	assert.Equal(t, 1, resp.Positive)
	assert.Equal(t, 1, resp.Negative)
	assert.Equal(t, 1, resp.CacheHits)
	assert.Equal(t, 1, resp.CacheNegativeHits)
	assert.Zero(t, resp.LiveLookups)
}

func TestRunsEmpty(t *testing.T) {
	rec := doGet(t, newTestServer(t), "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRunsListedNewestFirst(t *testing.T) {
	s := newTestServer(t)
	_, err := s.runs.CreateRun(context.Background(), "family.csv", 5)
	require.NoError(t, err)

	rec := doGet(t, s, "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "family.csv", runs[0].Source)
}

func TestRunsInvalidLimit(t *testing.T) {
	rec := doGet(t, newTestServer(t), "/api/v1/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// countingProvider resolves every query to a fixed point, tracking calls
// behind its own lock so the test only observes server-side synchronization.
type countingProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Geocode(_ context.Context, query, _ string) (*geocode.Result, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return &geocode.Result{Latitude: 1, Longitude: 2, DisplayName: query}, nil
}

func TestConcurrentLookups(t *testing.T) {
	provider := &countingProvider{}
	cache := geocache.Open(filepath.Join(t.TempDir(), "cache.csv"), "")
	cache.RecordNoResult("Atlantis")
	r := resolver.New(cache, gazetteer.New(gazetteer.Overrides{}), provider,
		resolver.Config{BackoffBase: time.Millisecond})
	s := New(r, nil)
	router := s.Router()

	// Mix of fresh places (cache writes), repeats (cache reads), a cached
	// negative, and stats reads, all in flight at once.
	places := []string{
		"Alpha", "Beta", "Gamma", "Delta", "Alpha", "Beta", "Atlantis", "Atlantis",
	}
	var wg sync.WaitGroup
	codes := make([]int, 4*len(places)+8)
	for i := 0; i < 4; i++ {
		for j, place := range places {
			wg.Add(1)
			go func(slot int, place string) {
				defer wg.Done()
				req := httptest.NewRequest(http.MethodGet, "/api/v1/lookup?place="+url.QueryEscape(place), nil)
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, req)
				codes[slot] = rec.Code
			}(i*len(places)+j, place)
		}
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			codes[slot] = rec.Code
		}(4*len(places) + i)
	}
	wg.Wait()

	for i, code := range codes {
		require.Equalf(t, http.StatusOK, code, "request %d", i)
	}
	// Each distinct resolvable place hits the provider exactly once.
	assert.Equal(t, 4, provider.calls)
	assert.Equal(t, 5, cache.Len())
}

func TestRunsRouteAbsentWithoutStore(t *testing.T) {
	cache := geocache.Open(filepath.Join(t.TempDir(), "cache.csv"), "")
	r := resolver.New(cache, gazetteer.New(gazetteer.Overrides{}), nil,
		resolver.Config{CacheOnly: true})
	s := New(r, nil)

	rec := doGet(t, s, "/api/v1/runs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
