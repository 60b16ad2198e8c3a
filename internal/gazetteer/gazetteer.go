// Package gazetteer infers a best-guess country from a free-text place
// string, so live geocoding can be narrowed with an ISO country filter. It
// combines a built-in ISO 3166 table (English names via x/text) with
// user-supplied substitutions for historical or colloquial spellings.
package gazetteer

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"gopkg.in/yaml.v3"
)

// Overrides is the user-curated geographic configuration: spellings that map
// to canonical country names, extra country names the ISO table lacks, and
// continent fallbacks.
type Overrides struct {
	// DefaultCountry is appended to places whose trailing segment names no
	// known country. Empty or "none" disables it.
	DefaultCountry string `yaml:"default_country"`

	// CountrySubstitutions maps non-canonical trailing segments to country
	// names, e.g. "england" -> "United Kingdom".
	CountrySubstitutions map[string]string `yaml:"country_substitutions"`

	// AdditionalCountries adds name -> alpha-2 pairs on top of the ISO
	// table, e.g. historical names.
	AdditionalCountries map[string]string `yaml:"additional_countries"`

	// FallbackContinentMap supplies continents for codes missing from the
	// built-in table.
	FallbackContinentMap map[string]string `yaml:"fallback_continent_map"`
}

// LoadOverrides reads an overrides YAML file. A missing file yields empty
// overrides, not an error.
func LoadOverrides(path string) (Overrides, error) {
	var o Overrides
	if path == "" {
		return o, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			zap.L().Info("gazetteer: no overrides file", zap.String("path", path))
			return o, nil
		}
		return o, eris.Wrap(err, "gazetteer: read overrides")
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, eris.Wrap(err, "gazetteer: parse overrides")
	}
	return o, nil
}

// Gazetteer answers country and continent questions about place strings.
// Construct once; all methods are read-only afterwards.
type Gazetteer struct {
	nameToCode     map[string]string // lower-cased country name -> alpha-2
	codeToName     map[string]string // alpha-2 -> canonical name
	substitutions  map[string]string // lower-cased spelling -> canonical name
	fallbackCont   map[string]string
	defaultCountry string
}

// New builds a Gazetteer from the built-in ISO table plus overrides.
// Canonical English country names come from the CLDR data in x/text.
func New(o Overrides) *Gazetteer {
	g := &Gazetteer{
		nameToCode:    make(map[string]string, len(continentByCode)),
		codeToName:    make(map[string]string, len(continentByCode)),
		substitutions: make(map[string]string, len(o.CountrySubstitutions)),
		fallbackCont:  o.FallbackContinentMap,
	}

	namer := display.English.Regions()
	for code := range continentByCode {
		region, err := language.ParseRegion(code)
		if err != nil {
			continue
		}
		name := namer.Name(region)
		if name == "" {
			continue
		}
		g.codeToName[code] = name
		g.nameToCode[strings.ToLower(name)] = code
	}

	for name, code := range o.AdditionalCountries {
		code = strings.ToUpper(code)
		g.nameToCode[strings.ToLower(name)] = code
		if _, ok := g.codeToName[code]; !ok {
			g.codeToName[code] = name
		}
	}
	for from, to := range o.CountrySubstitutions {
		g.substitutions[strings.ToLower(from)] = to
	}
	if dc := strings.TrimSpace(o.DefaultCountry); dc != "" && !strings.EqualFold(dc, "none") {
		g.defaultCountry = dc
	}
	return g
}

// CountryCode returns the alpha-2 code for a country name, or "".
func (g *Gazetteer) CountryCode(name string) string {
	return g.nameToCode[strings.ToLower(strings.TrimSpace(name))]
}

// CountryName returns the canonical name for an alpha-2 code, or "".
func (g *Gazetteer) CountryName(code string) string {
	return g.codeToName[strings.ToUpper(strings.TrimSpace(code))]
}

// CanonicalName resolves a country name to its canonical form.
func (g *Gazetteer) CanonicalName(name string) (string, bool) {
	code, ok := g.nameToCode[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	if canonical, ok := g.codeToName[code]; ok {
		return canonical, true
	}
	return name, true
}

// Substitute applies the user substitution table to a candidate country
// spelling.
func (g *Gazetteer) Substitute(name string) (string, bool) {
	if name == "" {
		return name, false
	}
	if sub, ok := g.substitutions[strings.ToLower(name)]; ok {
		return sub, true
	}
	return name, false
}

// ContinentFor returns the continent name for an alpha-2 code, consulting
// the fallback map for codes outside the built-in table. Returns "" when
// unknown.
func (g *Gazetteer) ContinentFor(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || strings.EqualFold(code, "none") {
		return ""
	}
	if cc, ok := continentByCode[code]; ok {
		return continentNames[cc]
	}
	return g.fallbackCont[code]
}

// PlaceCountry infers a country from a place string: the substitution table
// on the trailing comma segment first, then a literal country-name match,
// then the configured default country appended. Returns the possibly
// augmented place, the alpha-2 code (or ""), the country name, and whether a
// country was confidently found.
func (g *Gazetteer) PlaceCountry(place string) (placeWithCountry, code, name string, found bool) {
	placeWithCountry = place
	segments := strings.Split(place, ",")
	last := strings.TrimSpace(segments[len(segments)-1])

	if sub, ok := g.Substitute(last); ok {
		zap.L().Debug("gazetteer: substituted country",
			zap.String("from", last),
			zap.String("to", sub),
			zap.String("place", place),
		)
		name = sub
		found = true
		segments[len(segments)-1] = " " + sub
		placeWithCountry = strings.TrimSpace(strings.Join(segments, ","))
	} else if canonical, ok := g.CanonicalName(last); ok {
		name = canonical
		found = true
	}

	if !found && g.defaultCountry != "" {
		placeWithCountry = place + ", " + g.defaultCountry
		name = g.defaultCountry
	}

	if name != "" {
		code = g.CountryCode(name)
	}
	return placeWithCountry, code, name, found
}
