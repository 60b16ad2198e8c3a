// Package geocode provides the client for OpenStreetMap-style forward
// geocoding endpoints (Nominatim and compatibles).
package geocode

import "context"

// Provider is a single geocoding backend.
type Provider interface {
	Name() string

	// Geocode resolves a free-text query, optionally filtered to an ISO
	// 3166 alpha-2 country code. A nil result with a nil error means the
	// provider found no match; that outcome is definitive and must not be
	// retried for the same query.
	Geocode(ctx context.Context, query, countryCode string) (*Result, error)
}

// Result is one geocoding match.
type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string

	// Provider metadata passed through verbatim.
	Class       string
	Type        string
	Icon        string
	PlaceID     string
	BoundingBox string
	Importance  string

	// Address is the structured breakdown; Country/CountryCode may be
	// empty even on a match.
	Address AddressDetails
}

// AddressDetails is the subset of the provider's address breakdown the
// resolver consumes.
type AddressDetails struct {
	Country     string
	CountryCode string
}
