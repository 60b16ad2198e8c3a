package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/heritage-maps/gedmap-cli/internal/gazetteer"
	"github.com/heritage-maps/gedmap-cli/internal/geocache"
	"github.com/heritage-maps/gedmap-cli/internal/resolver"
	"github.com/heritage-maps/gedmap-cli/internal/store"
	"github.com/heritage-maps/gedmap-cli/pkg/geocode"
)

// resolverEnv holds the cache, gazetteer, and resolver shared by the
// resolve/lookup/serve commands.
type resolverEnv struct {
	Cache    *geocache.Cache
	Gaz      *gazetteer.Gazetteer
	Resolver *resolver.Resolver
}

// initResolver validates config for mode and wires the cache, overrides,
// provider, and resolver together.
func initResolver(mode string, opts ...resolver.Option) (*resolverEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	overrides, err := gazetteer.LoadOverrides(cfg.Geo.OverridesPath)
	if err != nil {
		return nil, eris.Wrap(err, "load geo overrides")
	}
	if cfg.Geo.DefaultCountry != "" {
		overrides.DefaultCountry = cfg.Geo.DefaultCountry
	}
	gaz := gazetteer.New(overrides)

	cacheOpts := []geocache.Option{
		geocache.WithRetryWindow(time.Duration(cfg.Cache.RetryDays) * 24 * time.Hour),
	}
	if cfg.Cache.AlwaysGeocode {
		cacheOpts = append(cacheOpts, geocache.WithAlwaysGeocode(true))
	}
	cache := geocache.Open(cfg.Cache.File, cfg.Cache.AltAddrFile, cacheOpts...)
	zap.L().Info("cache loaded",
		zap.String("file", cfg.Cache.File),
		zap.Int("rows", cache.Len()),
	)

	var provider geocode.Provider
	if !cfg.Cache.CacheOnly {
		provider = geocode.NewNominatim(
			geocode.WithBaseURL(cfg.Geocode.BaseURL),
			geocode.WithUserAgent(cfg.Geocode.UserAgent),
			geocode.WithEmail(cfg.Geocode.Email),
			geocode.WithInterval(time.Duration(cfg.Geocode.IntervalMS)*time.Millisecond),
			geocode.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Geocode.TimeoutSecs) * time.Second,
			}),
		)
	}

	res := resolver.New(cache, gaz, provider, resolver.Config{
		MaxRetries: cfg.Geocode.MaxRetries,
		CacheOnly:  cfg.Cache.CacheOnly,
		SaveEvery:  cfg.Cache.SaveEvery,
	}, opts...)

	return &resolverEnv{Cache: cache, Gaz: gaz, Resolver: res}, nil
}

// initStore opens and migrates the run-history database.
func initStore(ctx context.Context) (*store.RunStore, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
