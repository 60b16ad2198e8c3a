package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/heritage-maps/gedmap-cli/internal/addrbook"
	"github.com/heritage-maps/gedmap-cli/internal/model"
)

var workbookHeader = []string{
	"Place", "Alternate Name", "Latitude", "Longitude",
	"Country", "Country Code", "Continent", "Uses", "Resolved",
}

// WriteWorkbook writes the full address book, located or not, as a single
// Places sheet at path.
func WriteWorkbook(path string, book *addrbook.Book) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Places")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hdr := sheet.AddRow()
	for _, h := range workbookHeader {
		hdr.AddCell().SetString(h)
	}

	book.Each(func(address string, loc *model.Location) {
		row := sheet.AddRow()
		row.AddCell().SetString(address)

		if loc == nil {
			for range workbookHeader[1 : len(workbookHeader)-1] {
				row.AddCell()
			}
			row.AddCell().SetString("no")
			return
		}

		if loc.HasAltAddress() {
			row.AddCell().SetString(loc.AltAddress)
		} else {
			row.AddCell()
		}

		if loc.Coord != nil && loc.Coord.Valid() {
			row.AddCell().SetFloat(loc.Coord.Lat)
			row.AddCell().SetFloat(loc.Coord.Lon)
		} else {
			row.AddCell()
			row.AddCell()
		}

		row.AddCell().SetString(loc.CountryName)
		row.AddCell().SetString(loc.CountryCode)
		row.AddCell().SetString(loc.Continent)
		row.AddCell().SetInt(loc.Used)
		if loc.Coord != nil && loc.Coord.Valid() {
			row.AddCell().SetString("yes")
		} else {
			row.AddCell().SetString("no")
		}
	})

	return eris.Wrapf(f.Save(path), "export: save workbook %s", path)
}
