// Package report exports ranked recommendations to spreadsheets and reads
// venue lists back from them.
package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/siteselect/internal/model"
)

// DefaultSheet is the sheet name used when none is given.
const DefaultSheet = "Recommendations"

// Columns is the header row of an exported sheet.
var Columns = []string{
	"Rank", "Area", "Score", "Population Density", "Business Density",
	"Transport Score", "Apartment Count", "Longitude", "Latitude",
	"Nearest Area", "Distance (km)", "Category", "Reasons",
}

// WriteXLSX writes one sheet with a header row and one row per
// recommendation, in order.
func WriteXLSX(w io.Writer, sheetName string, recs []model.Recommendation) error {
	f, err := build(sheetName, recs)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}

// SaveXLSX writes the sheet to a file.
func SaveXLSX(path, sheetName string, recs []model.Recommendation) error {
	f, err := build(sheetName, recs)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func build(sheetName string, recs []model.Recommendation) (*xlsx.File, error) {
	if sheetName == "" {
		sheetName = DefaultSheet
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return nil, eris.Wrapf(err, "report: add sheet %q", sheetName)
	}

	header := sheet.AddRow()
	for _, c := range Columns {
		header.AddCell().SetString(c)
	}

	for i, r := range recs {
		row := sheet.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().SetString(r.Area)
		row.AddCell().SetFloat(r.Score)
		row.AddCell().SetInt(r.PopulationDensity)
		row.AddCell().SetInt(r.BusinessDensity)
		row.AddCell().SetFloat(r.TransportScore)
		if r.ApartmentCount != nil {
			row.AddCell().SetInt(*r.ApartmentCount)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetFloat(r.Coordinates[0])
		row.AddCell().SetFloat(r.Coordinates[1])
		row.AddCell().SetString(r.NearestArea)
		if r.DistanceKm != nil {
			row.AddCell().SetFloat(*r.DistanceKm)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(r.Category)
		row.AddCell().SetString(strings.Join(r.Reasons, "; "))
	}
	return f, nil
}

// ReadVenuesXLSX reads venues from the first sheet of a workbook. The first
// row is a header naming the columns; name, latitude and longitude are
// required, category and venue are optional. Rows with a blank name or
// unparseable coordinates are skipped.
func ReadVenuesXLSX(path string) ([]model.PointOfInterest, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "report: open xlsx")
	}
	if len(f.Sheets) == 0 || len(f.Sheets[0].Rows) == 0 {
		return nil, eris.New("report: workbook has no rows")
	}
	rows := f.Sheets[0].Rows

	col := make(map[string]int)
	for i, c := range rows[0].Cells {
		col[strings.ToLower(strings.TrimSpace(c.String()))] = i
	}
	for _, req := range []string{"name", "latitude", "longitude"} {
		if _, ok := col[req]; !ok {
			return nil, eris.Errorf("report: missing column %q", req)
		}
	}

	cell := func(r *xlsx.Row, name string) string {
		i, ok := col[name]
		if !ok || i >= len(r.Cells) {
			return ""
		}
		return strings.TrimSpace(r.Cells[i].String())
	}

	var out []model.PointOfInterest
	for _, r := range rows[1:] {
		name := cell(r, "name")
		if name == "" {
			continue
		}
		lat, err1 := strconv.ParseFloat(cell(r, "latitude"), 64)
		lon, err2 := strconv.ParseFloat(cell(r, "longitude"), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, model.PointOfInterest{
			Name:      name,
			Category:  cell(r, "category"),
			Venue:     cell(r, "venue"),
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return out, nil
}
