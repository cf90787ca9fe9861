// Package export serializes pipeline output: the candidate-locations
// artifact, the per-cell summary artifact, the run manifest, and an
// optional SQLite results database.
package export

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/urban-futures/plantable/internal/constraint"
	"github.com/urban-futures/plantable/internal/hexgrid"
	"github.com/urban-futures/plantable/internal/plan"
)

// CandidateRecord is one exported candidate location. UNVERIFIED
// results stay in constraint_results so consumers can tell "verified
// safe" from "assumed safe because data was missing".
type CandidateRecord struct {
	ID                string                       `json:"id"`
	Latitude          float64                      `json:"latitude"`
	Longitude         float64                      `json:"longitude"`
	Segment           string                       `json:"segment"`
	Station           int                          `json:"station"`
	Side              string                       `json:"side"`
	State             string                       `json:"state"`
	SupersededBy      string                       `json:"superseded_by,omitempty"`
	ConstraintResults map[string]constraint.Result `json:"constraint_results"`
}

// Record converts a candidate to its export form.
func Record(c *plan.Candidate) CandidateRecord {
	return CandidateRecord{
		ID:                c.ID,
		Latitude:          c.Pt.Lat,
		Longitude:         c.Pt.Lng,
		Segment:           c.Segment,
		Station:           c.Station,
		Side:              string(c.Side),
		State:             string(c.State),
		SupersededBy:      c.SupersededBy,
		ConstraintResults: c.Results,
	}
}

// WriteCandidates writes the ordered candidate artifact as JSON.
// Candidates arrive sorted by id from the runner; order is preserved.
func WriteCandidates(path string, candidates []plan.Candidate) error {
	records := make([]CandidateRecord, 0, len(candidates))
	for i := range candidates {
		records = append(records, Record(&candidates[i]))
	}
	return writeJSON(path, records)
}

// WriteCells writes the per-cell summary artifact keyed by cell id.
func WriteCells(path string, cells map[string]*hexgrid.Summary) error {
	return writeJSON(path, cells)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrapf(err, "export: encode %s", path)
	}
	return nil
}
