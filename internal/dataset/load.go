package dataset

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	geopkg "github.com/urban-futures/plantable/internal/geo"
)

// Sources names the input files for one run. Trees and Streets are
// required; everything else is optional and degrades the matching
// constraints to UNVERIFIED when absent.
type Sources struct {
	Trees        string
	Streets      string
	Signs        string
	Hydrants     string
	BusStops     string
	StreetLights string
	CurbRamps    string
	Sidewalks    string
	Buildings    string
}

// Dataset names used in stats, manifests, and constraint coverage.
const (
	NameTrees        = "trees"
	NameStreets      = "streets"
	NameSigns        = "signs"
	NameHydrants     = "hydrants"
	NameBusStops     = "bus_stops"
	NameStreetLights = "street_lights"
	NameCurbRamps    = "curb_ramps"
	NameSidewalks    = "sidewalks"
	NameBuildings    = "buildings"
)

// Load reads every configured dataset, derives street intersections,
// and projects all coordinates into a shared local planar frame. The
// returned snapshot is immutable for the lifetime of the run.
func Load(src Sources) (*Snapshot, error) {
	log := zap.L().With(zap.String("component", "dataset"))

	snap := &Snapshot{
		Points: make(map[FeatureKind][]PointFeature),
		Stats:  make(map[string]Stats),
	}

	if src.Streets == "" {
		return nil, eris.Wrap(ErrMissingRequiredDataset, NameStreets)
	}
	if src.Trees == "" {
		return nil, eris.Wrap(ErrMissingRequiredDataset, NameTrees)
	}

	if err := loadStreets(snap, src.Streets); err != nil {
		return nil, err
	}
	if err := loadTrees(snap, src.Trees); err != nil {
		return nil, err
	}

	// Optional point datasets.
	if err := loadOptionalPoints(snap, NameSigns, src.Signs, classifySigns); err != nil {
		return nil, err
	}
	if err := loadOptionalPoints(snap, NameHydrants, src.Hydrants, pointsAs(KindHydrant)); err != nil {
		return nil, err
	}
	if err := loadOptionalPoints(snap, NameBusStops, src.BusStops, pointsAs(KindBusStop)); err != nil {
		return nil, err
	}
	if err := loadOptionalPoints(snap, NameStreetLights, src.StreetLights, pointsAs(KindStreetLight)); err != nil {
		return nil, err
	}
	if err := loadOptionalPoints(snap, NameCurbRamps, src.CurbRamps, pointsAs(KindCurbRamp)); err != nil {
		return nil, err
	}

	if err := loadSidewalks(snap, src.Sidewalks); err != nil {
		return nil, err
	}
	if err := loadBuildings(snap, src.Buildings); err != nil {
		return nil, err
	}

	project(snap)
	deriveIntersections(snap)

	for name, st := range snap.Stats {
		log.Info("dataset loaded",
			zap.String("dataset", name),
			zap.Bool("present", st.Present),
			zap.Int("parsed", st.Parsed),
			zap.Int("skipped", st.Skipped),
			zap.Int("filtered", st.Filtered),
		)
	}
	return snap, nil
}

// classifier converts raw point rows into kind-tagged features.
type classifier func(rows []pointRow) []PointFeature

// pointsAs tags every row with a single kind.
func pointsAs(kind FeatureKind) classifier {
	return func(rows []pointRow) []PointFeature {
		feats := make([]PointFeature, 0, len(rows))
		for i, row := range rows {
			feats = append(feats, PointFeature{
				ID:    fmt.Sprintf("%s-%d", kind, i),
				Kind:  kind,
				Pt:    row.pt,
				Attrs: row.attrs,
			})
		}
		return feats
	}
}

// classifySigns splits the sign dataset into stop signs and generic
// signs by keyword match on the free-text description. The match is
// explicitly approximate; the chosen rule is recorded on each feature
// so downstream consumers can see how the subtype was derived.
func classifySigns(rows []pointRow) []PointFeature {
	feats := make([]PointFeature, 0, len(rows))
	for i, row := range rows {
		kind := KindGenericSign
		desc := strings.ToLower(row.attrs["description"])
		if strings.Contains(desc, "stop") {
			kind = KindStopSign
		}
		attrs := row.attrs
		if attrs == nil {
			attrs = make(map[string]string, 1)
		}
		attrs["classification"] = "keyword"
		feats = append(feats, PointFeature{
			ID:    fmt.Sprintf("sign-%d", i),
			Kind:  kind,
			Pt:    row.pt,
			Attrs: attrs,
		})
	}
	return feats
}

func loadOptionalPoints(snap *Snapshot, name, path string, classify classifier) error {
	if path == "" {
		snap.Stats[name] = Stats{Name: name, Present: false}
		return nil
	}
	rows, skipped, err := readPointCSV(path, []string{"description", "subtype"})
	if err != nil {
		return err
	}
	for _, feat := range classify(rows) {
		snap.Points[feat.Kind] = append(snap.Points[feat.Kind], feat)
	}
	snap.Stats[name] = Stats{Name: name, Present: true, Parsed: len(rows), Skipped: skipped}
	return nil
}

func loadTrees(snap *Snapshot, path string) error {
	rows, skipped, err := readPointCSV(path, []string{"species", "dbh", "health", "status"})
	if err != nil {
		return eris.Wrap(err, "dataset: load trees")
	}
	var feats []PointFeature
	var filtered int
	for i, row := range rows {
		// Dead and stump records are not spacing obstacles.
		if status, ok := row.attrs["status"]; ok && !strings.EqualFold(status, "alive") {
			filtered++
			continue
		}
		feats = append(feats, PointFeature{
			ID:    fmt.Sprintf("tree-%d", i),
			Kind:  KindTree,
			Pt:    row.pt,
			Attrs: row.attrs,
		})
	}
	if len(feats) == 0 {
		return eris.Wrap(ErrMissingRequiredDataset, "trees: no usable records")
	}
	snap.Points[KindTree] = feats
	snap.Stats[NameTrees] = Stats{Name: NameTrees, Present: true, Parsed: len(feats), Skipped: skipped, Filtered: filtered}
	return nil
}

func loadStreets(snap *Snapshot, path string) error {
	var (
		lines   [][]geopkg.Point
		attrs   []map[string]string
		skipped int
		err     error
	)
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		lines, attrs, skipped, err = readPolylineShapefile(path)
	} else {
		lines, attrs, skipped, err = readPolylineCSV(path)
	}
	if err != nil {
		return eris.Wrap(err, "dataset: load streets")
	}
	if len(lines) == 0 {
		return eris.Wrap(ErrMissingRequiredDataset, "streets: no usable records")
	}

	segments := make([]StreetSegment, 0, len(lines))
	for i, line := range lines {
		seg := StreetSegment{
			ID:   fmt.Sprintf("seg-%d", i),
			Line: line,
		}
		if a := attrs[i]; a != nil {
			seg.Class = a["class"]
			if w, ok := a["width"]; ok {
				if f, perr := strconv.ParseFloat(w, 64); perr == nil && f > 0 {
					seg.WidthFt = f
				}
			}
		}
		segments = append(segments, seg)
	}
	snap.Segments = segments
	snap.Stats[NameStreets] = Stats{Name: NameStreets, Present: true, Parsed: len(segments), Skipped: skipped}
	return nil
}

// readPolylineCSV parses street centerlines from a WKT geometry CSV.
func readPolylineCSV(path string) (lines [][]geopkg.Point, attrs []map[string]string, skipped int, err error) {
	rows, skipped, err := readGeomCSV(path, []string{"class", "width"})
	if err != nil {
		return nil, nil, 0, err
	}
	for _, row := range rows {
		for _, line := range flattenLines(row.geom) {
			if len(line) < 2 {
				skipped++
				continue
			}
			lines = append(lines, line)
			attrs = append(attrs, row.attrs)
		}
	}
	return lines, attrs, skipped, nil
}

func loadSidewalks(snap *Snapshot, path string) error {
	if path == "" {
		snap.Stats[NameSidewalks] = Stats{Name: NameSidewalks, Present: false}
		return nil
	}
	rings, _, skipped, err := loadRings(path)
	if err != nil {
		return eris.Wrap(err, "dataset: load sidewalks")
	}
	walks := make([]SidewalkPolygon, 0, len(rings))
	for i, ring := range rings {
		walks = append(walks, SidewalkPolygon{
			ID:   fmt.Sprintf("sidewalk-%d", i),
			Ring: ring,
		})
	}
	snap.Sidewalks = walks
	snap.Stats[NameSidewalks] = Stats{Name: NameSidewalks, Present: true, Parsed: len(walks), Skipped: skipped}
	return nil
}

// loadBuildings accepts polygon footprints (shapefile or WKT CSV) or,
// as a fallback, a centroid point CSV. Centroid-only footprints carry
// the Approximate flag through to every verdict that uses them.
func loadBuildings(snap *Snapshot, path string) error {
	if path == "" {
		snap.Stats[NameBuildings] = Stats{Name: NameBuildings, Present: false}
		return nil
	}

	if rings, _, skipped, err := loadRings(path); err == nil && len(rings) > 0 {
		buildings := make([]BuildingFootprint, 0, len(rings))
		for i, ring := range rings {
			buildings = append(buildings, BuildingFootprint{
				ID:       fmt.Sprintf("bldg-%d", i),
				Ring:     ring,
				Centroid: ringCentroid(ring),
			})
		}
		snap.Buildings = buildings
		snap.Stats[NameBuildings] = Stats{Name: NameBuildings, Present: true, Parsed: len(buildings), Skipped: skipped}
		return nil
	}

	rows, skipped, err := readPointCSV(path, nil)
	if err != nil {
		return eris.Wrap(err, "dataset: load buildings")
	}
	buildings := make([]BuildingFootprint, 0, len(rows))
	for i, row := range rows {
		buildings = append(buildings, BuildingFootprint{
			ID:          fmt.Sprintf("bldg-%d", i),
			Centroid:    row.pt,
			Approximate: true,
		})
	}
	snap.Buildings = buildings
	snap.Stats[NameBuildings] = Stats{Name: NameBuildings, Present: true, Parsed: len(buildings), Skipped: skipped}
	return nil
}

// loadRings reads polygon rings from either a shapefile or a WKT CSV.
func loadRings(path string) (rings [][]geopkg.Point, attrs []map[string]string, skipped int, err error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return readPolygonShapefile(path)
	}
	rows, skipped, err := readGeomCSV(path, nil)
	if err != nil {
		return nil, nil, 0, err
	}
	for _, row := range rows {
		for _, ring := range flattenRings(row.geom) {
			if len(ring) < 4 {
				skipped++
				continue
			}
			rings = append(rings, ring)
			attrs = append(attrs, row.attrs)
		}
	}
	return rings, attrs, skipped, nil
}

// flattenLines extracts polylines from a parsed WKT geometry.
func flattenLines(g geom.T) [][]geopkg.Point {
	switch t := g.(type) {
	case *geom.LineString:
		return [][]geopkg.Point{coordsToPoints(t.Coords())}
	case *geom.MultiLineString:
		var lines [][]geopkg.Point
		for i := 0; i < t.NumLineStrings(); i++ {
			lines = append(lines, coordsToPoints(t.LineString(i).Coords()))
		}
		return lines
	default:
		return nil
	}
}

// flattenRings extracts outer rings from a parsed WKT geometry.
func flattenRings(g geom.T) [][]geopkg.Point {
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumLinearRings() == 0 {
			return nil
		}
		return [][]geopkg.Point{coordsToPoints(t.LinearRing(0).Coords())}
	case *geom.MultiPolygon:
		var rings [][]geopkg.Point
		for i := 0; i < t.NumPolygons(); i++ {
			p := t.Polygon(i)
			if p.NumLinearRings() > 0 {
				rings = append(rings, coordsToPoints(p.LinearRing(0).Coords()))
			}
		}
		return rings
	default:
		return nil
	}
}

func coordsToPoints(coords []geom.Coord) []geopkg.Point {
	pts := make([]geopkg.Point, 0, len(coords))
	for _, c := range coords {
		pts = append(pts, geopkg.Point{Lat: c.Y(), Lng: c.X()})
	}
	return pts
}

func ringCentroid(ring []geopkg.Point) geopkg.Point {
	if len(ring) == 0 {
		return geopkg.Point{}
	}
	var lat, lng float64
	for _, p := range ring {
		lat += p.Lat
		lng += p.Lng
	}
	n := float64(len(ring))
	return geopkg.Point{Lat: lat / n, Lng: lng / n}
}

// project fixes the local planar frame from the street network's
// centroid and fills every feature's projected coordinates.
func project(snap *Snapshot) {
	var lat, lng float64
	var n int
	for _, seg := range snap.Segments {
		for _, p := range seg.Line {
			lat += p.Lat
			lng += p.Lng
			n++
		}
	}
	if n == 0 {
		snap.Projector = geopkg.NewProjector(geopkg.Point{})
		return
	}
	snap.Projector = geopkg.NewProjector(geopkg.Point{Lat: lat / float64(n), Lng: lng / float64(n)})

	for i := range snap.Segments {
		seg := &snap.Segments[i]
		seg.XYs = make([]geopkg.XY, len(seg.Line))
		for j, p := range seg.Line {
			seg.XYs[j] = snap.Projector.Project(p)
		}
	}
	for kind, feats := range snap.Points {
		for i := range feats {
			feats[i].XY = snap.Projector.Project(feats[i].Pt)
		}
		snap.Points[kind] = feats
	}
	for i := range snap.Sidewalks {
		sw := &snap.Sidewalks[i]
		sw.XYs = make([]geopkg.XY, len(sw.Ring))
		for j, p := range sw.Ring {
			sw.XYs[j] = snap.Projector.Project(p)
		}
	}
	for i := range snap.Buildings {
		b := &snap.Buildings[i]
		b.CentroidXY = snap.Projector.Project(b.Centroid)
		if len(b.Ring) > 0 {
			b.XYs = make([]geopkg.XY, len(b.Ring))
			for j, p := range b.Ring {
				b.XYs[j] = snap.Projector.Project(p)
			}
		}
	}
}
