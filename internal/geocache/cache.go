// Package geocache persists resolved and failed place lookups across runs so
// live geocoding is only spent on genuinely new places. The cache is a
// header-first CSV file; negative rows expire after a retry window, and a
// user-curated alternate-address file can override spellings and coordinates.
package geocache

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/heritage-maps/gedmap-cli/internal/model"
)

// DefaultRetryWindow is how long a negative row suppresses re-geocoding.
const DefaultRetryWindow = 7 * 24 * time.Hour

// header is the canonical column order of the cache file. Loading tolerates
// any column order and unknown extra columns.
var header = []string{
	"address", "alt_addr", "latitude", "longitude",
	"country_code", "country_name", "continent",
	"found_country", "no_result", "timestamp", "used",
}

// Entry is one cache row. Numeric and boolean fields default to zero values
// when the persisted form is absent or unparseable.
type Entry struct {
	Address      string
	AltAddress   string
	Lat          float64
	Lon          float64
	CountryCode  string
	CountryName  string
	Continent    string
	FoundCountry bool
	NoResult     bool
	Timestamp    int64
	Used         int
}

// HasCoordinate reports whether the row carries a real position.
func (e *Entry) HasCoordinate() bool {
	return e != nil && (e.Lat != 0 || e.Lon != 0)
}

// Location reconstructs a Location from the cached row.
func (e *Entry) Location() *model.Location {
	loc := &model.Location{
		Address:      e.Address,
		AltAddress:   e.AltAddress,
		CountryCode:  e.CountryCode,
		CountryName:  e.CountryName,
		Continent:    e.Continent,
		FoundCountry: e.FoundCountry,
		Used:         e.Used,
	}
	if e.HasCoordinate() {
		loc.Coord = &model.Coordinate{Lat: e.Lat, Lon: e.Lon}
	}
	return loc
}

// AltEntry is one row of the alternate-address override file.
type AltEntry struct {
	Address    string
	AltAddress string
	Lat        float64
	Lon        float64
	Count      int
}

// Cache is the durable address -> Entry table. Keys are lower-cased
// addresses. A Cache is owned by a single resolver; it is not safe for
// concurrent use.
type Cache struct {
	path    string
	entries map[string]*Entry
	alts    map[string]*AltEntry

	retryWindow time.Duration
	skipLoad    bool
	now         func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithRetryWindow sets how long negative rows stay fresh.
func WithRetryWindow(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.retryWindow = d
		}
	}
}

// WithAlwaysGeocode skips loading the persisted table, forcing every place
// through a live lookup.
func WithAlwaysGeocode(always bool) Option {
	return func(c *Cache) { c.skipLoad = always }
}

// WithClock overrides the time source. Tests use this to age rows.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Open loads the cache at path plus an optional alternate-address override
// file. A missing cache file is an empty cache; malformed fields are coerced
// to zero values rather than failing the load.
func Open(path, altPath string, opts ...Option) *Cache {
	c := &Cache{
		path:        path,
		entries:     make(map[string]*Entry),
		alts:        make(map[string]*AltEntry),
		retryWindow: DefaultRetryWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.skipLoad {
		zap.L().Info("geocache: configured to ignore persisted cache")
	} else {
		c.load()
	}
	if altPath != "" {
		c.loadAltFile(altPath)
		c.mergeAltEntries()
	}
	return c
}

func (c *Cache) load() {
	f, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			zap.L().Info("geocache: no cache file yet", zap.String("path", c.path))
		} else {
			zap.L().Warn("geocache: cannot open cache file", zap.String("path", c.path), zap.Error(err))
		}
		return
	}
	defer f.Close() //nolint:errcheck

	rows, err := readRows(f)
	if err != nil {
		zap.L().Warn("geocache: cache file unreadable", zap.String("path", c.path), zap.Error(err))
		return
	}
	for _, row := range rows {
		e := entryFromRow(row)
		if e.Address == "" {
			continue
		}
		c.entries[strings.ToLower(e.Address)] = e
	}
	zap.L().Info("geocache: loaded", zap.String("path", c.path), zap.Int("rows", len(c.entries)))
}

func (c *Cache) loadAltFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			zap.L().Info("geocache: no alternate-address file", zap.String("path", path))
		} else {
			zap.L().Warn("geocache: cannot open alternate-address file", zap.String("path", path), zap.Error(err))
		}
		return
	}
	defer f.Close() //nolint:errcheck

	rows, err := readRows(f)
	if err != nil {
		zap.L().Warn("geocache: alternate-address file unreadable", zap.String("path", path), zap.Error(err))
		return
	}
	for _, row := range rows {
		a := &AltEntry{
			Address:    row["address"],
			AltAddress: row["alt_addr"],
			Lat:        parseFloat(row["latitude"]),
			Lon:        parseFloat(row["longitude"]),
			Count:      parseInt(row["count"]),
		}
		if a.Address == "" {
			continue
		}
		c.alts[strings.ToLower(a.Address)] = a
	}
	zap.L().Info("geocache: loaded alternate addresses", zap.String("path", path), zap.Int("rows", len(c.alts)))
}

// mergeAltEntries inserts a synthetic positive row for every override whose
// effective name is not already cached, so a curated coordinate is served
// without a live lookup.
func (c *Cache) mergeAltEntries() {
	for _, alt := range c.alts {
		// Keyed by the effective name so a later save/load round-trip
		// lands on the same row a Lookup resolves to.
		name := alt.Address
		if alt.AltAddress != "" {
			name = alt.AltAddress
		}
		key := strings.ToLower(name)
		if _, ok := c.entries[key]; ok {
			continue
		}
		c.entries[key] = &Entry{
			Address:    name,
			AltAddress: alt.AltAddress,
			Lat:        alt.Lat,
			Lon:        alt.Lon,
			Timestamp:  c.now().Unix(),
			Used:       0,
		}
		zap.L().Debug("geocache: merged alternate address",
			zap.String("address", alt.Address),
			zap.String("alt_addr", alt.AltAddress),
		)
	}
}

// Lookup consults the overlay and the main table. The returned string is the
// effective address: the override's replacement name when one exists,
// otherwise the input. A fresh negative row is returned as-is; an expired
// negative row is evicted and reported as not found; a positive row with an
// override gets the override's label, and its coordinate when the override
// supplies one.
//
// The returned *Entry is the live table row, not a copy; callers must treat
// it as read-only and go through the Record methods to change cached state.
func (c *Cache) Lookup(address string) (string, *Entry) {
	alt := c.alts[strings.ToLower(address)]
	effective := address
	if alt != nil && alt.AltAddress != "" {
		effective = alt.AltAddress
	}

	key := strings.ToLower(effective)
	entry := c.entries[key]
	if entry == nil {
		return effective, nil
	}

	if entry.NoResult {
		if c.expired(entry) {
			zap.L().Info("geocache: negative row expired, retrying", zap.String("address", address))
			delete(c.entries, key)
			return effective, nil
		}
		return effective, entry
	}

	if alt != nil && alt.AltAddress != "" {
		// Overlay coordinates only replace cached ones when the override
		// actually supplies a position; the label always applies.
		entry.AltAddress = alt.AltAddress
		if alt.Lat != 0 || alt.Lon != 0 {
			entry.Lat = alt.Lat
			entry.Lon = alt.Lon
		}
	}
	return effective, entry
}

func (c *Cache) expired(e *Entry) bool {
	return c.now().Sub(time.Unix(e.Timestamp, 0)) > c.retryWindow
}

// RecordSuccess upserts a positive row for address from a resolved location.
func (c *Cache) RecordSuccess(address string, loc *model.Location) {
	e := &Entry{
		Address:      address,
		AltAddress:   loc.AltAddress,
		CountryCode:  loc.CountryCode,
		CountryName:  loc.CountryName,
		Continent:    loc.Continent,
		FoundCountry: loc.FoundCountry,
		Timestamp:    c.now().Unix(),
		Used:         1,
	}
	if loc.Coord != nil {
		e.Lat = loc.Coord.Lat
		e.Lon = loc.Coord.Lon
	}
	c.entries[strings.ToLower(address)] = e
}

// RecordNoResult upserts a negative row for address, suppressing further live
// lookups until the retry window elapses.
func (c *Cache) RecordNoResult(address string) {
	c.entries[strings.ToLower(address)] = &Entry{
		Address:   address,
		NoResult:  true,
		Timestamp: c.now().Unix(),
	}
}

// EffectiveAddress returns the override's replacement name for address when
// one exists, otherwise address itself. Unlike Lookup it never mutates the
// table.
func (c *Cache) EffectiveAddress(address string) string {
	if alt := c.alts[strings.ToLower(address)]; alt != nil && alt.AltAddress != "" {
		return alt.AltAddress
	}
	return address
}

// Expired reports whether a negative row has outlived the retry window.
func (c *Cache) Expired(e *Entry) bool {
	return e != nil && c.expired(e)
}

// Contains reports whether address has any row, positive or negative.
func (c *Cache) Contains(address string) bool {
	_, ok := c.entries[strings.ToLower(address)]
	return ok
}

// Entry returns the raw row for address without overlay processing. Like
// Lookup, it aliases the live table row; callers must not mutate it.
func (c *Cache) Entry(address string) *Entry {
	return c.entries[strings.ToLower(address)]
}

// Len returns the number of rows.
func (c *Cache) Len() int { return len(c.entries) }

// Each calls fn for every row in key order. fn must not mutate the cache.
func (c *Cache) Each(fn func(key string, e *Entry)) {
	for _, k := range sortedKeys(c.entries) {
		fn(k, c.entries[k])
	}
}

// Stats counts positive rows, fresh negatives, and expired negatives.
func (c *Cache) Stats() (positive, negative, expired int) {
	for _, e := range c.entries {
		switch {
		case !e.NoResult:
			positive++
		case c.expired(e):
			expired++
		default:
			negative++
		}
	}
	return positive, negative, expired
}

// Save rewrites the whole cache file. Saving an empty cache is a no-op so an
// aborted first run cannot truncate a previous file.
func (c *Cache) Save() error {
	if len(c.entries) == 0 {
		zap.L().Info("geocache: nothing to save")
		return nil
	}

	f, err := os.Create(c.path)
	if err != nil {
		return eris.Wrap(err, "geocache: create cache file")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "geocache: write header")
	}
	for _, key := range sortedKeys(c.entries) {
		if err := w.Write(c.entries[key].row()); err != nil {
			return eris.Wrap(err, "geocache: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "geocache: flush")
	}

	zap.L().Info("geocache: saved", zap.String("path", c.path), zap.Int("rows", len(c.entries)))
	return nil
}

func (e *Entry) row() []string {
	return []string{
		e.Address,
		e.AltAddress,
		formatFloat(e.Lat),
		formatFloat(e.Lon),
		e.CountryCode,
		e.CountryName,
		e.Continent,
		formatBool(e.FoundCountry),
		formatBool(e.NoResult),
		strconv.FormatInt(e.Timestamp, 10),
		strconv.Itoa(e.Used),
	}
}

// readRows parses a header-first CSV into one map per record.
func readRows(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	head, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "geocache: read header")
	}
	for i := range head {
		head[i] = strings.ToLower(strings.TrimSpace(head[i]))
	}

	var rows []map[string]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			zap.L().Warn("geocache: skipping unreadable row", zap.Error(err))
			continue
		}
		row := make(map[string]string, len(head))
		for i, col := range head {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func entryFromRow(row map[string]string) *Entry {
	return &Entry{
		Address:      row["address"],
		AltAddress:   row["alt_addr"],
		Lat:          parseFloat(row["latitude"]),
		Lon:          parseFloat(row["longitude"]),
		CountryCode:  row["country_code"],
		CountryName:  row["country_name"],
		Continent:    row["continent"],
		FoundCountry: parseBool(row["found_country"]),
		NoResult:     parseBool(row["no_result"]),
		Timestamp:    parseTimestamp(row["timestamp"]),
		Used:         parseInt(row["used"]),
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true
	default:
		return false
	}
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}

// parseTimestamp accepts both integer and float epoch seconds; older cache
// files wrote fractional seconds.
func parseTimestamp(s string) int64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(v)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func sortedKeys(m map[string]*Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Stable file output keeps diffs reviewable.
	sort.Strings(keys)
	return keys
}
