package export

import (
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// OptionsEcho records the effective configuration a run used, so a
// manifest plus the same inputs is enough to reproduce the run.
type OptionsEcho struct {
	StationStepFt    float64            `yaml:"station_step_ft"`
	SidewalkOffsetFt float64            `yaml:"sidewalk_offset_ft"`
	DedupeEpsilonFt  float64            `yaml:"dedupe_epsilon_ft"`
	HexResolution    int                `yaml:"hex_resolution"`
	Shards           int                `yaml:"shards"`
	ClearancesFt     map[string]float64 `yaml:"clearances_ft"`
}

// DatasetStat is one input dataset's load outcome as it appears in the
// manifest.
type DatasetStat struct {
	Name     string `yaml:"name"`
	Present  bool   `yaml:"present"`
	Parsed   int    `yaml:"parsed"`
	Skipped  int    `yaml:"skipped"`
	Filtered int    `yaml:"filtered,omitempty"`
}

// Totals are the run's headline counts.
type Totals struct {
	Segments   int `yaml:"segments"`
	Generated  int `yaml:"generated"`
	Accepted   int `yaml:"accepted"`
	Rejected   int `yaml:"rejected"`
	Canonical  int `yaml:"canonical"`
	Superseded int `yaml:"superseded"`
	Cells      int `yaml:"cells"`
}

// Manifest is the YAML run record: what ran, over what data, with what
// configuration, and how well each constraint was verified.
type Manifest struct {
	RunID      string    `yaml:"run_id"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`

	Options  OptionsEcho   `yaml:"options"`
	Datasets []DatasetStat `yaml:"datasets"`

	// Coverage maps constraint name to verified, partial, or
	// unverified for this run's inputs.
	Coverage map[string]string `yaml:"constraint_coverage"`

	Totals Totals `yaml:"totals"`
}

// NewManifest allocates a manifest with a fresh run id and start time.
func NewManifest() *Manifest {
	return &Manifest{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
}

// SetDatasets records load stats sorted by dataset name for stable
// manifest diffs.
func (m *Manifest) SetDatasets(stats map[string]DatasetStat) {
	m.Datasets = m.Datasets[:0]
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m.Datasets = append(m.Datasets, stats[name])
	}
}

// Write finalizes the manifest and writes it as YAML.
func (m *Manifest) Write(path string) error {
	m.FinishedAt = time.Now().UTC()

	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "export: marshal manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write manifest %s", path)
	}
	return nil
}
