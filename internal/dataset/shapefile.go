package dataset

import (
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	geopkg "github.com/urban-futures/plantable/internal/geo"
)

// shpAttrs builds a lowercased field name → value map for the current
// record of the reader.
func shpAttrs(reader *shp.Reader, fields []shp.Field) map[string]string {
	attrs := make(map[string]string, len(fields))
	for i, f := range fields {
		name := strings.ToLower(strings.TrimRight(f.String(), "\x00"))
		val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		if val != "" {
			attrs[name] = val
		}
	}
	return attrs
}

// readPolylineShapefile reads a street-network shapefile. Each part of a
// multi-part polyline becomes its own polyline; zero-length parts are
// degenerate geometry and are skipped with a tally.
func readPolylineShapefile(path string) (lines [][]geopkg.Point, attrs []map[string]string, skipped int, err error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, 0, eris.Wrapf(err, "dataset: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	for reader.Next() {
		_, shape := reader.Shape()
		pl, ok := shape.(*shp.PolyLine)
		if !ok || pl == nil || pl.NumParts == 0 {
			skipped++
			continue
		}
		recAttrs := shpAttrs(reader, fields)
		for i := int32(0); i < pl.NumParts; i++ {
			start := pl.Parts[i]
			end := int32(len(pl.Points))
			if i+1 < pl.NumParts {
				end = pl.Parts[i+1]
			}
			if end-start < 2 {
				skipped++
				continue
			}
			line := make([]geopkg.Point, 0, end-start)
			for j := start; j < end; j++ {
				line = append(line, geopkg.Point{Lat: pl.Points[j].Y, Lng: pl.Points[j].X})
			}
			lines = append(lines, line)
			attrs = append(attrs, recAttrs)
		}
	}

	if skipped > 0 {
		zap.L().Debug("dataset: skipped degenerate shapefile polylines",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return lines, attrs, skipped, nil
}

// readPolygonShapefile reads a polygon shapefile (sidewalks, building
// footprints). Only the outer ring of each part is kept; rings with
// fewer than four vertices are degenerate and skipped.
func readPolygonShapefile(path string) (rings [][]geopkg.Point, attrs []map[string]string, skipped int, err error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, 0, eris.Wrapf(err, "dataset: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil || poly.NumParts == 0 {
			skipped++
			continue
		}
		recAttrs := shpAttrs(reader, fields)
		for i := int32(0); i < poly.NumParts; i++ {
			start := poly.Parts[i]
			end := int32(len(poly.Points))
			if i+1 < poly.NumParts {
				end = poly.Parts[i+1]
			}
			if end-start < 4 {
				skipped++
				continue
			}
			ring := make([]geopkg.Point, 0, end-start)
			for j := start; j < end; j++ {
				ring = append(ring, geopkg.Point{Lat: poly.Points[j].Y, Lng: poly.Points[j].X})
			}
			rings = append(rings, ring)
			attrs = append(attrs, recAttrs)
		}
	}

	if skipped > 0 {
		zap.L().Debug("dataset: skipped degenerate shapefile polygons",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return rings, attrs, skipped, nil
}
