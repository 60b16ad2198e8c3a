// Package addrbook maintains the in-memory registry of place strings seen in
// a dataset, with similarity-tolerant lookup so near-duplicate spellings of
// the same place share one entry.
package addrbook

import (
	"sort"
	"strings"

	"github.com/xrash/smetrics"
	"go.uber.org/zap"

	"github.com/heritage-maps/gedmap-cli/internal/model"
)

// DefaultFuzzyThreshold is the minimum token-sort similarity (0-100) for two
// address strings to be treated as the same place.
const DefaultFuzzyThreshold = 90

// Book maps address strings to locations. The map is owned by the Book; all
// mutation goes through Add.
type Book struct {
	addresses map[string]*model.Location
	altIndex  map[string][]string
	fuzzy     bool
	threshold int

	hits   int
	misses int
}

// New creates an empty address book with the default similarity threshold.
// When fuzzy is true, Add routes new addresses through FuzzyLookup before
// inserting.
func New(fuzzy bool) *Book {
	return NewWithThreshold(fuzzy, DefaultFuzzyThreshold)
}

// NewWithThreshold is New with an explicit similarity threshold for fuzzy
// matching. Non-positive thresholds fall back to DefaultFuzzyThreshold.
func NewWithThreshold(fuzzy bool, threshold int) *Book {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	return &Book{
		addresses: make(map[string]*model.Location),
		altIndex:  make(map[string][]string),
		fuzzy:     fuzzy,
		threshold: threshold,
	}
}

// Add records an address. An exact (or, when enabled, fuzzy) match against an
// existing key merges the new location into the stored one and increments its
// usage count; otherwise a fresh entry is inserted.
func (b *Book) Add(address string, loc *model.Location) {
	var existingKey string
	var found bool
	if b.fuzzy {
		existingKey, found = b.FuzzyLookup(address, b.threshold)
	} else if b.addresses[address] != nil {
		existingKey, found = address, true
	}

	if found {
		existing := b.addresses[existingKey]
		if existingKey == address {
			merged := existing.Merge(loc)
			merged.Used = existing.Used + 1
			loc = merged
		} else if loc == nil {
			loc = existing.Clone()
		}
		b.put(existingKey, loc)
		return
	}

	if loc == nil {
		loc = model.NewLocation(address)
		loc.Used = 1
	}
	b.put(address, loc)
}

func (b *Book) put(key string, loc *model.Location) {
	if loc == nil {
		return
	}
	b.addresses[key] = loc
	if loc.HasAltAddress() {
		b.indexAlt(loc.AltAddress, key)
	}
}

func (b *Book) indexAlt(alt, address string) {
	for _, existing := range b.altIndex[alt] {
		if existing == address {
			return
		}
	}
	b.altIndex[alt] = append(b.altIndex[alt], address)
}

// Put replaces the entry under key without touching usage counters. The
// resolver uses it to write resolved locations back into the book.
func (b *Book) Put(key string, loc *model.Location) {
	b.put(key, loc)
}

// Get returns the location stored under the exact key, or nil.
func (b *Book) Get(address string) *model.Location {
	return b.addresses[address]
}

// FuzzyLookup finds the existing key best matching address. A verbatim key is
// returned directly and counted as a hit. Otherwise every key is scored with
// a token-order-insensitive ratio and the best match wins if it reaches
// threshold. The linear scan is fine at address-book scale (thousands of
// distinct places).
func (b *Book) FuzzyLookup(address string, threshold int) (string, bool) {
	if b.addresses[address] != nil {
		b.hits++
		return address, true
	}
	b.misses++

	best := ""
	bestScore := -1
	for key := range b.addresses {
		if s := TokenSortRatio(address, key); s > bestScore {
			best, bestScore = key, s
		}
	}
	if bestScore >= threshold && best != "" {
		zap.L().Debug("fuzzy address match",
			zap.String("address", address),
			zap.String("matched", best),
			zap.Int("score", bestScore),
		)
		return best, true
	}
	return "", false
}

// AddressesForAlt returns the address keys sharing an alternate-address label.
func (b *Book) AddressesForAlt(alt string) []string {
	return b.altIndex[alt]
}

// Keys returns the address keys in insertion-independent (sorted) order.
func (b *Book) Keys() []string {
	keys := make([]string, 0, len(b.addresses))
	for k := range b.addresses {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AltKeys returns the known alternate-address labels.
func (b *Book) AltKeys() []string {
	keys := make([]string, 0, len(b.altIndex))
	for k := range b.altIndex {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Each calls fn for every entry. fn must not mutate the book.
func (b *Book) Each(fn func(address string, loc *model.Location)) {
	for _, k := range b.Keys() {
		fn(k, b.addresses[k])
	}
}

// Len returns the number of distinct addresses.
func (b *Book) Len() int { return len(b.addresses) }

// Stats returns the fuzzy lookup hit/miss counters.
func (b *Book) Stats() (hits, misses int) { return b.hits, b.misses }

// TokenSortRatio scores two strings 0-100, insensitive to case and word
// order: both sides are lowercased, tokenized, sorted, and rejoined before
// computing an edit-distance ratio (substitutions cost 2, matching the usual
// sequence-matcher ratio).
func TokenSortRatio(a, b string) int {
	na, nb := sortTokens(a), sortTokens(b)
	if na == "" && nb == "" {
		return 100
	}
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}
	dist := smetrics.WagnerFischer(na, nb, 1, 1, 2)
	total := len(na) + len(nb)
	score := (total - dist) * 100 / total
	if score < 0 {
		score = 0
	}
	return score
}

func sortTokens(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	for i, f := range fields {
		fields[i] = strings.Trim(f, ",.;")
	}
	sort.Strings(fields)
	return strings.Join(fields, " ")
}
