package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/spikesort/internal/cluster"
)

// TuningConfig is a partial override set for the engine configuration.
// Every field is a pointer so a JSON file can override any subset of the
// tuning knobs; omitted fields keep the engine defaults.
type TuningConfig struct {
	// Mixture and merge params
	MinSpikes           *float64 `json:"min_spikes,omitempty"`
	ResponsibilityFloor *float64 `json:"responsibility_floor,omitempty"`
	MergeGate           *float64 `json:"merge_gate,omitempty"`

	// Stability splitting params
	StabilityThreshold *float64 `json:"stability_threshold,omitempty"`
	MinRemaining       *int     `json:"min_remaining,omitempty"`
	MaxIterations      *int     `json:"max_iterations,omitempty"`

	// Feature extraction params
	PCADims           *int     `json:"pca_dims,omitempty"`
	UpsampleFactor    *int     `json:"upsample_factor,omitempty"`
	AlignHalfWidth    *int     `json:"align_half_width,omitempty"`
	SegmentStart      *int     `json:"segment_start,omitempty"`
	SegmentEnd        *int     `json:"segment_end,omitempty"`
	AmplitudeChannels *int     `json:"amplitude_channels,omitempty"`
	VarianceChannels  *int     `json:"variance_channels,omitempty"`
	AmplitudeFloor    *float64 `json:"amplitude_floor,omitempty"`

	// Triage params
	TriagePercentile *float64 `json:"triage_percentile,omitempty"`
	TriageNeighbors  *int     `json:"triage_neighbors,omitempty"`

	// Execution params
	Workers *int `json:"workers,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields
// omitted from the JSON keep their engine defaults, so partial configs
// are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the override values are usable.
func (c *TuningConfig) Validate() error {
	if c.ResponsibilityFloor != nil {
		if *c.ResponsibilityFloor < 0 || *c.ResponsibilityFloor >= 1 {
			return fmt.Errorf("responsibility_floor must be in [0,1), got %f", *c.ResponsibilityFloor)
		}
	}
	if c.MergeGate != nil && *c.MergeGate <= 0 {
		return fmt.Errorf("merge_gate must be positive, got %f", *c.MergeGate)
	}
	if c.StabilityThreshold != nil {
		if *c.StabilityThreshold <= 0 || *c.StabilityThreshold > 1 {
			return fmt.Errorf("stability_threshold must be in (0,1], got %f", *c.StabilityThreshold)
		}
	}
	if c.MaxIterations != nil && *c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", *c.MaxIterations)
	}
	if c.PCADims != nil && *c.PCADims < 1 {
		return fmt.Errorf("pca_dims must be at least 1, got %d", *c.PCADims)
	}
	if c.UpsampleFactor != nil && *c.UpsampleFactor < 1 {
		return fmt.Errorf("upsample_factor must be at least 1, got %d", *c.UpsampleFactor)
	}
	if c.AlignHalfWidth != nil && *c.AlignHalfWidth < 1 {
		return fmt.Errorf("align_half_width must be at least 1, got %d", *c.AlignHalfWidth)
	}
	if c.TriagePercentile != nil {
		if *c.TriagePercentile <= 0 || *c.TriagePercentile > 100 {
			return fmt.Errorf("triage_percentile must be in (0,100], got %f", *c.TriagePercentile)
		}
	}
	if c.TriageNeighbors != nil && *c.TriageNeighbors < 1 {
		return fmt.Errorf("triage_neighbors must be at least 1, got %d", *c.TriageNeighbors)
	}
	return nil
}

// ApplyTo overlays the set fields onto an engine configuration and
// returns the result.
func (c *TuningConfig) ApplyTo(base cluster.Config) cluster.Config {
	if c.MinSpikes != nil {
		base.MinSpikes = *c.MinSpikes
	}
	if c.ResponsibilityFloor != nil {
		base.ResponsibilityFloor = *c.ResponsibilityFloor
	}
	if c.MergeGate != nil {
		base.MergeGate = *c.MergeGate
	}
	if c.StabilityThreshold != nil {
		base.StabilityThreshold = *c.StabilityThreshold
	}
	if c.MinRemaining != nil {
		base.MinRemaining = *c.MinRemaining
	}
	if c.MaxIterations != nil {
		base.MaxIterations = *c.MaxIterations
	}
	if c.PCADims != nil {
		base.PCADims = *c.PCADims
	}
	if c.UpsampleFactor != nil {
		base.UpsampleFactor = *c.UpsampleFactor
	}
	if c.AlignHalfWidth != nil {
		base.AlignHalfWidth = *c.AlignHalfWidth
	}
	if c.SegmentStart != nil {
		base.SegmentStart = *c.SegmentStart
	}
	if c.SegmentEnd != nil {
		base.SegmentEnd = *c.SegmentEnd
	}
	if c.AmplitudeChannels != nil {
		base.AmplitudeChannels = *c.AmplitudeChannels
	}
	if c.VarianceChannels != nil {
		base.VarianceChannels = *c.VarianceChannels
	}
	if c.AmplitudeFloor != nil {
		base.AmplitudeFloor = *c.AmplitudeFloor
	}
	if c.TriagePercentile != nil {
		base.TriagePercentile = *c.TriagePercentile
	}
	if c.TriageNeighbors != nil {
		base.TriageNeighbors = *c.TriageNeighbors
	}
	if c.Workers != nil {
		base.Workers = *c.Workers
	}
	return base
}
