package region

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Region table columns. key is required; each row sets either line or
// lng+lat (radius optional).
const (
	colKey    = "key"
	colLine   = "line"
	colLng    = "lng"
	colLat    = "lat"
	colRadius = "radius"
)

// readCSV returns every record of a comma separated file.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "region: parse %s", path)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// readXLSX returns the rows of the first sheet of a workbook.
func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("region: %s has no sheets", path)
	}
	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// parseTable turns a header row plus records into specs.
func parseTable(path string, rows [][]string) ([]Spec, error) {
	if len(rows) == 0 {
		return nil, eris.Errorf("region: %s is empty", path)
	}
	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols[colKey]; !ok {
		return nil, eris.Errorf("region: %s has no %q column", path, colKey)
	}

	var specs []Spec
	for n, rec := range rows[1:] {
		line := n + 2 // 1-based, after the header
		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if strings.Join(rec, "") == "" {
			continue
		}

		s := Spec{Key: cell(colKey)}
		if v := cell(colLine); v != "" {
			coords, err := parseLineCell(v)
			if err != nil {
				return nil, eris.Wrapf(err, "region: %s row %d", path, line)
			}
			s.Line = coords
		}
		lng, lat := cell(colLng), cell(colLat)
		if lng != "" || lat != "" {
			x, errX := strconv.ParseFloat(lng, 64)
			y, errY := strconv.ParseFloat(lat, 64)
			if errX != nil || errY != nil {
				return nil, eris.Errorf("region: %s row %d: lng/lat must be numbers", path, line)
			}
			s.Point = &PointSpec{Lng: x, Lat: y}
		}
		if v := cell(colRadius); v != "" {
			r, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, eris.Errorf("region: %s row %d: radius must be a number", path, line)
			}
			s.Radius = r
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// parseLineCell parses "x y, x y, ..." or "x,y;x,y;...". A lone "x,y" is a
// single coordinate.
func parseLineCell(v string) ([][]float64, error) {
	var pairs []string
	switch {
	case strings.Contains(v, ";"):
		pairs = strings.Split(v, ";")
	case strings.Contains(strings.TrimSpace(v), " "):
		pairs = strings.Split(v, ",")
	default:
		pairs = []string{v}
	}

	var out [][]float64
	for _, pair := range pairs {
		fields := strings.FieldsFunc(pair, func(r rune) bool { return r == ',' || r == ' ' })
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, eris.Errorf("line coordinate %q needs two numbers", strings.TrimSpace(pair))
		}
		c := make([]float64, 2)
		for i, f := range fields {
			n, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, eris.Errorf("line coordinate %q is not numeric", strings.TrimSpace(pair))
			}
			c[i] = n
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, eris.New("line has no coordinates")
	}
	return out, nil
}
