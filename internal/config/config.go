// Package config loads application configuration from file and
// environment and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/urban-futures/plantable/internal/constraint"
)

// Config holds the full application configuration.
type Config struct {
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Plan       PlanConfig       `yaml:"plan" mapstructure:"plan"`
	Clearances ClearancesConfig `yaml:"clearances" mapstructure:"clearances"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataConfig points at the input dataset files. Streets and trees are
// required; everything else is optional, and the constraints backed by
// an omitted file report UNVERIFIED instead of guessing.
type DataConfig struct {
	Streets      string `yaml:"streets" mapstructure:"streets"`
	Trees        string `yaml:"trees" mapstructure:"trees"`
	Signs        string `yaml:"signs" mapstructure:"signs"`
	Hydrants     string `yaml:"hydrants" mapstructure:"hydrants"`
	BusStops     string `yaml:"bus_stops" mapstructure:"bus_stops"`
	StreetLights string `yaml:"street_lights" mapstructure:"street_lights"`
	CurbRamps    string `yaml:"curb_ramps" mapstructure:"curb_ramps"`
	Sidewalks    string `yaml:"sidewalks" mapstructure:"sidewalks"`
	Buildings    string `yaml:"buildings" mapstructure:"buildings"`
}

// PlanConfig configures candidate generation and aggregation.
type PlanConfig struct {
	StationStepFt    float64 `yaml:"station_step_ft" mapstructure:"station_step_ft"`
	SidewalkOffsetFt float64 `yaml:"sidewalk_offset_ft" mapstructure:"sidewalk_offset_ft"`
	DedupeEpsilonFt  float64 `yaml:"dedupe_epsilon_ft" mapstructure:"dedupe_epsilon_ft"`
	HexResolution    int     `yaml:"hex_resolution" mapstructure:"hex_resolution"`
	Shards           int     `yaml:"shards" mapstructure:"shards"`
}

// ClearancesConfig holds every clearance threshold in feet.
type ClearancesConfig struct {
	TreeSpacingFt       float64 `yaml:"tree_spacing_ft" mapstructure:"tree_spacing_ft"`
	TreeOptimalMaxFt    float64 `yaml:"tree_optimal_max_ft" mapstructure:"tree_optimal_max_ft"`
	StopSignFt          float64 `yaml:"stop_sign_ft" mapstructure:"stop_sign_ft"`
	GenericSignFt       float64 `yaml:"generic_sign_ft" mapstructure:"generic_sign_ft"`
	HydrantFt           float64 `yaml:"hydrant_ft" mapstructure:"hydrant_ft"`
	BusStopFt           float64 `yaml:"bus_stop_ft" mapstructure:"bus_stop_ft"`
	IntersectionFt      float64 `yaml:"intersection_ft" mapstructure:"intersection_ft"`
	StreetLightFt       float64 `yaml:"street_light_ft" mapstructure:"street_light_ft"`
	CurbCutFt           float64 `yaml:"curb_cut_ft" mapstructure:"curb_cut_ft"`
	SidewalkMinWidthFt  float64 `yaml:"sidewalk_min_width_ft" mapstructure:"sidewalk_min_width_ft"`
	SidewalkToleranceFt float64 `yaml:"sidewalk_tolerance_ft" mapstructure:"sidewalk_tolerance_ft"`
	BuildingFt          float64 `yaml:"building_ft" mapstructure:"building_ft"`
}

// OutputConfig configures where run artifacts land.
type OutputConfig struct {
	CandidatesPath string `yaml:"candidates" mapstructure:"candidates"`
	CellsPath      string `yaml:"cells" mapstructure:"cells"`
	ManifestPath   string `yaml:"manifest" mapstructure:"manifest"`
	DatabasePath   string `yaml:"database" mapstructure:"database"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLANTABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only surfaces keys viper already knows about, and the
	// dataset paths deliberately have no defaults; bind them explicitly
	// so PLANTABLE_DATA_* overrides reach Unmarshal.
	for _, key := range []string{
		"data.streets", "data.trees", "data.signs", "data.hydrants",
		"data.bus_stops", "data.street_lights", "data.curb_ramps",
		"data.sidewalks", "data.buildings",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("plan.station_step_ft", 20.0)
	v.SetDefault("plan.sidewalk_offset_ft", 10.0)
	v.SetDefault("plan.dedupe_epsilon_ft", 5.0)
	v.SetDefault("plan.hex_resolution", 9)
	v.SetDefault("plan.shards", 0)
	v.SetDefault("clearances.tree_spacing_ft", 20.0)
	v.SetDefault("clearances.tree_optimal_max_ft", 30.0)
	v.SetDefault("clearances.stop_sign_ft", 30.0)
	v.SetDefault("clearances.generic_sign_ft", 6.0)
	v.SetDefault("clearances.hydrant_ft", 5.0)
	v.SetDefault("clearances.bus_stop_ft", 10.0)
	v.SetDefault("clearances.intersection_ft", 40.0)
	v.SetDefault("clearances.street_light_ft", 25.0)
	v.SetDefault("clearances.curb_cut_ft", 7.0)
	v.SetDefault("clearances.sidewalk_min_width_ft", 3.25)
	v.SetDefault("clearances.sidewalk_tolerance_ft", 1.0)
	v.SetDefault("clearances.building_ft", 5.0)
	v.SetDefault("output.candidates", "candidates.json")
	v.SetDefault("output.cells", "cells.json")
	v.SetDefault("output.manifest", "manifest.yaml")
	v.SetDefault("output.database", "plantable.db")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values a run cannot proceed without.
func (c *Config) Validate() error {
	if c.Data.Streets == "" {
		return eris.New("config: data.streets is required")
	}
	if c.Data.Trees == "" {
		return eris.New("config: data.trees is required")
	}
	if c.Plan.StationStepFt <= 0 {
		return eris.Errorf("config: plan.station_step_ft must be positive, got %v", c.Plan.StationStepFt)
	}
	if c.Plan.SidewalkOffsetFt <= 0 {
		return eris.Errorf("config: plan.sidewalk_offset_ft must be positive, got %v", c.Plan.SidewalkOffsetFt)
	}
	if c.Plan.DedupeEpsilonFt < 0 {
		return eris.Errorf("config: plan.dedupe_epsilon_ft must not be negative, got %v", c.Plan.DedupeEpsilonFt)
	}
	if c.Plan.HexResolution < 0 || c.Plan.HexResolution > 15 {
		return eris.Errorf("config: plan.hex_resolution must be 0-15, got %d", c.Plan.HexResolution)
	}
	return nil
}

// ClearanceValues converts the configured thresholds into the
// evaluator's value type.
func (c *Config) ClearanceValues() constraint.Clearances {
	return constraint.Clearances{
		TreeSpacingFt:       c.Clearances.TreeSpacingFt,
		TreeOptimalMaxFt:    c.Clearances.TreeOptimalMaxFt,
		StopSignFt:          c.Clearances.StopSignFt,
		GenericSignFt:       c.Clearances.GenericSignFt,
		HydrantFt:           c.Clearances.HydrantFt,
		BusStopFt:           c.Clearances.BusStopFt,
		IntersectionFt:      c.Clearances.IntersectionFt,
		StreetLightFt:       c.Clearances.StreetLightFt,
		CurbCutFt:           c.Clearances.CurbCutFt,
		SidewalkMinWidthFt:  c.Clearances.SidewalkMinWidthFt,
		SidewalkToleranceFt: c.Clearances.SidewalkToleranceFt,
		BuildingFt:          c.Clearances.BuildingFt,
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
