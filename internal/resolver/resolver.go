// Package resolver is the policy layer that turns a place string into a
// resolved Location: cache first, then a paced live lookup with bounded
// retries and progressively less precise queries. No error escapes the
// resolver; an unresolvable place yields nil.
package resolver

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heritage-maps/gedmap-cli/internal/addrbook"
	"github.com/heritage-maps/gedmap-cli/internal/gazetteer"
	"github.com/heritage-maps/gedmap-cli/internal/geocache"
	"github.com/heritage-maps/gedmap-cli/internal/model"
	"github.com/heritage-maps/gedmap-cli/internal/resilience"
	"github.com/heritage-maps/gedmap-cli/pkg/geocode"
)

// Config controls live-lookup behavior.
type Config struct {
	// MaxRetries is the attempt budget per precision level. Default: 3.
	MaxRetries int

	// BackoffBase is the first retry delay; retries double it. Default: 500ms.
	BackoffBase time.Duration

	// MaxDepth bounds precision degradation: how many leading address
	// segments may be stripped before giving up. Default: 3.
	MaxDepth int

	// CacheOnly suppresses all live lookups.
	CacheOnly bool

	// SaveEvery flushes the cache after this many live-resolved addresses,
	// so an interrupted batch keeps its progress. Default: 100.
	SaveEvery int
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 3
	}
	if c.SaveEvery <= 0 {
		c.SaveEvery = 100
	}
	return c
}

// Counters is a snapshot of the resolver's observability counters.
type Counters struct {
	LiveLookups       int
	CacheHits         int
	CacheNegativeHits int
}

// ProgressFunc receives batch progress. Called synchronously.
type ProgressFunc func(message string, current, total int)

// Resolver owns the cache and address policy for one run.
type Resolver struct {
	cache    *geocache.Cache
	gaz      *gazetteer.Gazetteer
	provider geocode.Provider
	cfg      Config

	counters   Counters
	onProgress ProgressFunc
	sinceSave  int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithProgress installs a progress callback for ResolveAll.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Resolver) { r.onProgress = fn }
}

// New creates a Resolver over a cache, a gazetteer, and a live provider.
func New(cache *geocache.Cache, gaz *gazetteer.Gazetteer, provider geocode.Provider, cfg Config, opts ...Option) *Resolver {
	r := &Resolver{
		cache:    cache,
		gaz:      gaz,
		provider: provider,
		cfg:      cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Counters returns the current counter snapshot.
func (r *Resolver) Counters() Counters { return r.counters }

// Cache exposes the owned cache for saving and inspection.
func (r *Resolver) Cache() *geocache.Cache { return r.cache }

// Partition classifies every address in the book by cache state without
// mutating anything: rows with coordinates, rows without (fresh negatives
// and positionless positives), and addresses the cache has never seen.
// Expired negatives count as uncached so they get a fresh live attempt.
func (r *Resolver) Partition(book *addrbook.Book) (withGeo, withoutGeo, uncached *addrbook.Book) {
	withGeo = addrbook.New(false)
	withoutGeo = addrbook.New(false)
	uncached = addrbook.New(false)

	book.Each(func(address string, loc *model.Location) {
		entry := r.cache.Entry(r.cache.EffectiveAddress(address))
		switch {
		case entry == nil:
			uncached.Put(address, loc)
		case entry.NoResult && r.cache.Expired(entry):
			uncached.Put(address, loc)
		case entry.HasCoordinate():
			withGeo.Put(address, loc)
		default:
			withoutGeo.Put(address, loc)
		}
	})
	return withGeo, withoutGeo, uncached
}

// LookupLocation resolves one place string. The only side effects are cache
// growth and counter updates; all failures collapse to nil.
func (r *Resolver) LookupLocation(ctx context.Context, place string) *model.Location {
	if strings.TrimSpace(place) == "" {
		return nil
	}

	effective, entry := r.cache.Lookup(place)

	if entry != nil && entry.NoResult {
		r.counters.CacheNegativeHits++
		zap.L().Debug("resolver: fresh negative cache row, skipping", zap.String("place", place))
		return nil
	}

	placeWithCountry, countryCode, countryName, foundCountry := r.gaz.PlaceCountry(effective)

	if entry != nil && entry.HasCoordinate() {
		r.counters.CacheHits++
		loc := entry.Location()
		// Late-discovered country: the row predates the current
		// substitution table. Enrich both the result and the cache.
		if (!entry.FoundCountry || entry.CountryName == "") && foundCountry {
			loc.FoundCountry = true
			loc.CountryCode = strings.ToUpper(countryCode)
			loc.CountryName = countryName
			loc.Continent = r.gaz.ContinentFor(countryCode)
			r.cache.RecordSuccess(effective, loc)
		}
		return r.withContinent(loc)
	}

	if r.cfg.CacheOnly {
		zap.L().Debug("resolver: cache-only mode, not geocoding", zap.String("place", place))
		return nil
	}

	loc := r.geocodeAddress(ctx, placeWithCountry, countryCode, countryName, foundCountry, 0)
	if loc != nil {
		loc.Address = place
		r.cache.RecordSuccess(effective, loc)
		zap.L().Info("resolver: geocoded",
			zap.String("place", place),
			zap.Float64("lat", loc.Coord.Lat),
			zap.Float64("lon", loc.Coord.Lon),
		)
	} else {
		r.cache.RecordNoResult(effective)
		zap.L().Info("resolver: no result, cached negative", zap.String("place", place))
	}

	r.sinceSave++
	if r.sinceSave >= r.cfg.SaveEvery {
		r.sinceSave = 0
		if err := r.cache.Save(); err != nil {
			zap.L().Warn("resolver: periodic cache save failed", zap.Error(err))
		}
	}

	return r.withContinent(loc)
}

func (r *Resolver) withContinent(loc *model.Location) *model.Location {
	if loc == nil {
		return nil
	}
	if c := strings.TrimSpace(loc.Continent); c == "" || strings.EqualFold(c, "none") {
		loc.Continent = r.gaz.ContinentFor(loc.CountryCode)
	}
	return loc
}

// geocodeAddress performs the live lookup for one precision level. A nil
// provider result is a definitive no-match and is not retried; transient
// failures are retried with exponential backoff; any other error aborts the
// level. A failed level strips the left-most comma segment and recurses
// until MaxDepth.
func (r *Resolver) geocodeAddress(ctx context.Context, address, countryCode, countryName string, foundCountry bool, depth int) *model.Location {
	if address == "" {
		return nil
	}

	policy := resilience.Policy{
		MaxAttempts: r.cfg.MaxRetries,
		BaseDelay:   r.cfg.BackoffBase,
		Jitter:      200 * time.Millisecond,
		OnRetry:     resilience.LogRetries("geocode", address),
	}

	result, err := resilience.Retry(ctx, policy, func(ctx context.Context) (*geocode.Result, error) {
		r.counters.LiveLookups++
		return r.provider.Geocode(ctx, address, countryCode)
	})
	if err != nil {
		zap.L().Warn("resolver: live lookup failed",
			zap.String("address", address),
			zap.Int("depth", depth),
			zap.Error(err),
		)
	}

	if result != nil {
		if countryName == "" && result.Address.Country != "" {
			countryName = result.Address.Country
			if result.Address.CountryCode != "" {
				countryCode = result.Address.CountryCode
				foundCountry = true
			}
		}
		return &model.Location{
			Used:         1,
			Coord:        &model.Coordinate{Lat: result.Latitude, Lon: result.Longitude},
			CountryCode:  strings.ToUpper(countryCode),
			CountryName:  countryName,
			Continent:    r.gaz.ContinentFor(countryCode),
			FoundCountry: foundCountry,
			Address:      result.DisplayName,
			Type:         result.Type,
			Class:        result.Class,
			Icon:         result.Icon,
			PlaceID:      result.PlaceID,
			BoundingBox:  result.BoundingBox,
			Importance:   result.Importance,
		}
	}

	if depth < r.cfg.MaxDepth {
		if i := strings.Index(address, ","); i >= 0 {
			lessPrecise := strings.TrimSpace(address[i+1:])
			zap.L().Info("resolver: retrying with less precision",
				zap.String("address", address),
				zap.String("next", lessPrecise),
				zap.Int("depth", depth+1),
			)
			return r.geocodeAddress(ctx, lessPrecise, countryCode, countryName, foundCountry, depth+1)
		}
	}
	return nil
}

// ResolveAll resolves every address in the book, writing results back into
// it and persisting the cache at the end. Cancellation is polled between
// addresses; an in-flight retry loop finishes its address first.
func (r *Resolver) ResolveAll(ctx context.Context, book *addrbook.Book) error {
	keys := book.Keys()
	total := len(keys)

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			zap.L().Info("resolver: stop requested", zap.Int("resolved", i), zap.Int("total", total))
			if saveErr := r.cache.Save(); saveErr != nil {
				zap.L().Warn("resolver: cache save on stop failed", zap.Error(saveErr))
			}
			return err
		}
		if r.onProgress != nil {
			r.onProgress(key, i+1, total)
		}

		loc := r.LookupLocation(ctx, key)
		if loc == nil {
			continue
		}
		if existing := book.Get(key); existing != nil {
			merged := loc.Merge(existing)
			merged.Used = existing.Used
			loc = merged
		}
		book.Put(key, loc)
	}

	return r.cache.Save()
}
