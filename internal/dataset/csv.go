package dataset

import (
	"bufio"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	geopkg "github.com/urban-futures/plantable/internal/geo"
)

// pointRow is one parsed point record before projection.
type pointRow struct {
	pt    geopkg.Point
	attrs map[string]string
}

// geomRow is one parsed WKT geometry record before projection.
type geomRow struct {
	geom  geom.T
	attrs map[string]string
}

// findColumn returns the index of the first header column whose
// lowercased name contains any of the candidates, or -1.
func findColumn(header []string, candidates ...string) int {
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		for _, cand := range candidates {
			if strings.Contains(name, cand) {
				return i
			}
		}
	}
	return -1
}

// findLatLng sniffs latitude/longitude columns from a CSV header.
// Municipal exports disagree on naming, so matching is fuzzy.
func findLatLng(header []string) (latIdx, lngIdx int) {
	return findColumn(header, "lat"), findColumn(header, "lon", "lng", "long")
}

func newCSVReader(f io.Reader) *csv.Reader {
	r := csv.NewReader(decodeReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}

// decodeReader sniffs the input encoding. Municipal exports are mostly
// UTF-8 but Windows-1252 still shows up in street-name fields; a peek
// at the first chunk decides which decoder to use.
func decodeReader(f io.Reader) io.Reader {
	br := bufio.NewReader(f)
	chunk, _ := br.Peek(4096)
	// The peek may split a multibyte rune; trim the partial tail before
	// judging validity.
	for trim := 0; trim <= 3 && trim <= len(chunk); trim++ {
		if utf8.Valid(chunk[:len(chunk)-trim]) {
			return br
		}
	}
	return transform.NewReader(br, charmap.Windows1252.NewDecoder())
}

// validCoord rejects coordinates outside WGS84 bounds or non-finite.
func validCoord(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// rowAttrs extracts the named attribute columns from a record.
func rowAttrs(header []string, record []string, keep []string) map[string]string {
	if len(keep) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(keep))
	for _, want := range keep {
		idx := findColumn(header, want)
		if idx < 0 || idx >= len(record) {
			continue
		}
		val := strings.TrimSpace(record[idx])
		if val != "" {
			attrs[want] = val
		}
	}
	return attrs
}

// readPointCSV parses a point dataset with latitude/longitude columns.
// Malformed rows are skipped and tallied, never fatal.
func readPointCSV(path string, keep []string) (rows []pointRow, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer func() { _ = f.Close() }()

	r := newCSVReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, 0, eris.Wrapf(err, "dataset: read header %s", path)
	}
	latIdx, lngIdx := findLatLng(header)
	if latIdx < 0 || lngIdx < 0 {
		return nil, 0, eris.Errorf("dataset: no latitude/longitude columns in %s", path)
	}

	for {
		record, rerr := r.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			skipped++
			continue
		}
		if latIdx >= len(record) || lngIdx >= len(record) {
			skipped++
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(record[latIdx]), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(record[lngIdx]), 64)
		if errLat != nil || errLng != nil || !validCoord(lat, lng) {
			skipped++
			continue
		}
		rows = append(rows, pointRow{
			pt:    geopkg.Point{Lat: lat, Lng: lng},
			attrs: rowAttrs(header, record, keep),
		})
	}

	if skipped > 0 {
		zap.L().Debug("dataset: skipped malformed point rows",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return rows, skipped, nil
}

// readGeomCSV parses a dataset whose geometry lives in a WKT column
// (the_geom in NYC open-data exports).
func readGeomCSV(path string, keep []string) (rows []geomRow, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer func() { _ = f.Close() }()

	r := newCSVReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, 0, eris.Wrapf(err, "dataset: read header %s", path)
	}
	geomIdx := findColumn(header, "the_geom", "geometry", "wkt")
	if geomIdx < 0 {
		return nil, 0, eris.Errorf("dataset: no geometry column in %s", path)
	}

	for {
		record, rerr := r.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil || geomIdx >= len(record) {
			skipped++
			continue
		}
		g, perr := wkt.Unmarshal(strings.TrimSpace(record[geomIdx]))
		if perr != nil {
			skipped++
			continue
		}
		rows = append(rows, geomRow{
			geom:  g,
			attrs: rowAttrs(header, record, keep),
		})
	}

	if skipped > 0 {
		zap.L().Debug("dataset: skipped malformed geometry rows",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return rows, skipped, nil
}
