package plan

import (
	"github.com/urban-futures/plantable/internal/dataset"
	"github.com/urban-futures/plantable/internal/geo"
)

// curbSetbackFt is added beyond the curb line when a segment's
// curb-to-curb width is known: street trees sit in the planting strip
// just past the curb, not on it.
const curbSetbackFt = 3.0

// Generator resamples street centerlines into raw candidates offset
// toward the sidewalk on both sides. Offsetting matters: a centerline
// point is pavement, not a plantable location.
type Generator struct {
	// StepFt is the station spacing along each segment.
	StepFt float64

	// OffsetFt is the centerline-to-planting-strip offset used when a
	// segment carries no width attribute.
	OffsetFt float64

	// Projector converts offset stations back to WGS84 for output.
	Projector *geo.Projector
}

// Generate emits two raw candidates per station, one per side.
// Segments shorter than one step still produce their midpoint
// stations, and degenerate (zero-length) segments produce nothing.
func (g *Generator) Generate(segments []dataset.StreetSegment) []Candidate {
	var out []Candidate
	for _, seg := range segments {
		out = append(out, g.GenerateSegment(seg)...)
	}
	return out
}

// GenerateSegment resamples one segment.
func (g *Generator) GenerateSegment(seg dataset.StreetSegment) []Candidate {
	stations := geo.Stations(seg.XYs, geo.FeetToMeters(g.StepFt))
	if len(stations) == 0 {
		return nil
	}

	offsetM := geo.FeetToMeters(g.OffsetFt)
	if seg.WidthFt > 0 {
		offsetM = geo.FeetToMeters(seg.WidthFt/2 + curbSetbackFt)
	}

	out := make([]Candidate, 0, len(stations)*2)
	for i, st := range stations {
		perp := st.Tangent.Perp()
		for _, side := range []Side{SideLeft, SideRight} {
			across := perp
			if side == SideRight {
				across = perp.Scale(-1)
			}
			pos := st.Pos.Add(across.Scale(offsetM))
			out = append(out, Candidate{
				ID:       candidateID(seg.ID, i, side),
				Segment:  seg.ID,
				Station:  i,
				Side:     side,
				Pt:       g.Projector.Unproject(pos),
				XY:       pos,
				Across:   across,
				State:    StateGenerated,
				MarginFt: 0,
			})
		}
	}
	return out
}
