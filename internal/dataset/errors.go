package dataset

import "github.com/rotisserie/eris"

// Sentinel errors for the dataset-level failure taxonomy. Per-record
// failures (malformed rows, degenerate geometry) are tallied in Stats
// and never surface as errors.
var (
	// ErrMissingRequiredDataset aborts the run: the street network and
	// the existing-tree census are the minimum viable input.
	ErrMissingRequiredDataset = eris.New("dataset: required dataset missing")

	// ErrIndexQuery marks an invariant violation inside a spatial index
	// query, which indicates a corrupt shared index. Always fatal.
	ErrIndexQuery = eris.New("dataset: spatial index query invariant violated")
)
