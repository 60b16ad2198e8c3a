// Package export renders a resolved address book as GeoJSON or as an XLSX
// workbook.
package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/heritage-maps/gedmap-cli/internal/addrbook"
	"github.com/heritage-maps/gedmap-cli/internal/model"
)

// WriteGeoJSON writes every located address as a Point feature. Addresses
// without a coordinate are skipped; their count is returned alongside the
// feature count.
func WriteGeoJSON(w io.Writer, book *addrbook.Book) (features, skipped int, err error) {
	fc := &geojson.FeatureCollection{}

	book.Each(func(address string, loc *model.Location) {
		if loc == nil || loc.Coord == nil || !loc.Coord.Valid() {
			skipped++
			return
		}
		// GeoJSON positions are lon,lat order.
		pt := geom.NewPointFlat(geom.XY, []float64{loc.Coord.Lon, loc.Coord.Lat}).SetSRID(4326)
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   pt,
			Properties: featureProperties(address, loc),
		})
	})
	features = len(fc.Features)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fc); err != nil {
		return features, skipped, eris.Wrap(err, "export: encode geojson")
	}
	return features, skipped, nil
}

func featureProperties(address string, loc *model.Location) map[string]any {
	props := map[string]any{
		"name": address,
		"used": loc.Used,
	}
	if loc.CountryName != "" {
		props["country"] = loc.CountryName
	}
	if loc.CountryCode != "" {
		props["country_code"] = loc.CountryCode
	}
	if loc.Continent != "" {
		props["continent"] = loc.Continent
	}
	if loc.HasAltAddress() {
		props["alt_name"] = loc.AltAddress
	}
	if loc.Type != "" {
		props["type"] = loc.Type
	}
	if loc.Class != "" {
		props["class"] = loc.Class
	}
	return props
}
