// Package model holds the core value types shared by the address book,
// the geocode cache, and the resolver.
package model

import (
	"strconv"
	"strings"
)

// Coordinate is an immutable latitude/longitude pair. The zero pair is the
// sentinel for "position unknown".
type Coordinate struct {
	Lat float64
	Lon float64
}

// Valid reports whether the coordinate carries a real position.
func (c Coordinate) Valid() bool {
	return c.Lat != 0 || c.Lon != 0
}

// Location is a resolved place record. Coord is nil until a position is known.
type Location struct {
	Coord        *Coordinate
	CountryCode  string
	CountryName  string
	Continent    string
	FoundCountry bool
	Address      string
	AltAddress   string
	Used         int

	// Provider metadata, kept verbatim from the geocoding response.
	Type        string
	Class       string
	Icon        string
	PlaceID     string
	BoundingBox string
	Importance  string
}

// NewLocation creates a Location for an address with no position yet.
func NewLocation(address string) *Location {
	return &Location{Address: address}
}

// Clone returns an independently mutable copy.
func (l *Location) Clone() *Location {
	if l == nil {
		return nil
	}
	out := *l
	if l.Coord != nil {
		c := *l.Coord
		out.Coord = &c
	}
	return &out
}

// Merge returns a new Location preferring l's non-empty fields and falling
// back to other. The coordinate is kept from l unless absent. Neither
// argument is modified.
func (l *Location) Merge(other *Location) *Location {
	merged := l.Clone()
	if merged == nil {
		return other.Clone()
	}
	if other == nil {
		return merged
	}

	if merged.Coord == nil && other.Coord != nil {
		c := *other.Coord
		merged.Coord = &c
	}
	mergeStr(&merged.CountryCode, other.CountryCode)
	mergeStr(&merged.CountryName, other.CountryName)
	mergeStr(&merged.Continent, other.Continent)
	mergeStr(&merged.Address, other.Address)
	mergeStr(&merged.AltAddress, other.AltAddress)
	mergeStr(&merged.Type, other.Type)
	mergeStr(&merged.Class, other.Class)
	mergeStr(&merged.Icon, other.Icon)
	mergeStr(&merged.PlaceID, other.PlaceID)
	mergeStr(&merged.BoundingBox, other.BoundingBox)
	mergeStr(&merged.Importance, other.Importance)
	if !merged.FoundCountry && other.FoundCountry {
		merged.FoundCountry = true
	}
	if merged.Used == 0 && other.Used != 0 {
		merged.Used = other.Used
	}
	return merged
}

func mergeStr(dst *string, src string) {
	if *dst == "" && src != "" {
		*dst = src
	}
}

// HasAltAddress reports whether the location carries a usable alternate
// address label. The literal "none" is treated as empty to tolerate rows
// written by older cache files.
func (l *Location) HasAltAddress() bool {
	return l != nil && l.AltAddress != "" && !strings.EqualFold(l.AltAddress, "none")
}

func (l *Location) String() string {
	if l == nil {
		return "Location(nil)"
	}
	if l.Coord == nil {
		return "Location(" + l.Address + ")"
	}
	return "Location(" + l.Address + " @ " + formatCoord(*l.Coord) + ")"
}

func formatCoord(c Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}
