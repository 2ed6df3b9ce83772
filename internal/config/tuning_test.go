package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/spikesort/internal/cluster"
)

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "merge_gate": 10.5,
  "responsibility_floor": 0.2,
  "triage_neighbors": 15,
  "workers": 8
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if cfg.MergeGate == nil || *cfg.MergeGate != 10.5 {
		t.Errorf("Expected MergeGate 10.5, got %v", cfg.MergeGate)
	}
	if cfg.ResponsibilityFloor == nil || *cfg.ResponsibilityFloor != 0.2 {
		t.Errorf("Expected ResponsibilityFloor 0.2, got %v", cfg.ResponsibilityFloor)
	}
	if cfg.TriageNeighbors == nil || *cfg.TriageNeighbors != 15 {
		t.Errorf("Expected TriageNeighbors 15, got %v", cfg.TriageNeighbors)
	}
	// Unset fields stay nil so the engine defaults survive.
	if cfg.StabilityThreshold != nil {
		t.Errorf("Expected StabilityThreshold nil, got %v", *cfg.StabilityThreshold)
	}
}

func TestLoadTuningConfig_RejectsBadFiles(t *testing.T) {
	tmpDir := t.TempDir()

	yamlPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(yamlPath, []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := LoadTuningConfig(yamlPath); err == nil {
		t.Error("Expected error for non-json extension")
	}

	if _, err := LoadTuningConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	badPath := filepath.Join(tmpDir, "bad.json")
	if err := os.WriteFile(badPath, []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := LoadTuningConfig(badPath); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestTuningConfig_Validate(t *testing.T) {
	bad := 1.5
	cfg := &TuningConfig{ResponsibilityFloor: &bad}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for responsibility_floor above 1")
	}

	gate := -3.0
	cfg = &TuningConfig{MergeGate: &gate}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for negative merge_gate")
	}

	pct := 150.0
	cfg = &TuningConfig{TriagePercentile: &pct}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for triage_percentile above 100")
	}

	if err := (&TuningConfig{}).Validate(); err != nil {
		t.Errorf("Empty config should validate, got %v", err)
	}
}

func TestTuningConfig_ApplyTo(t *testing.T) {
	gate := 8.0
	workers := 4
	cfg := &TuningConfig{MergeGate: &gate, Workers: &workers}

	base := cluster.DefaultConfig(32)
	applied := cfg.ApplyTo(base)

	if applied.MergeGate != 8.0 {
		t.Errorf("MergeGate = %f, want 8.0", applied.MergeGate)
	}
	if applied.Workers != 4 {
		t.Errorf("Workers = %d, want 4", applied.Workers)
	}
	// Untouched fields keep the defaults.
	if applied.ResponsibilityFloor != cluster.DefaultResponsibilityFloor {
		t.Errorf("ResponsibilityFloor = %f, want default", applied.ResponsibilityFloor)
	}
	if applied.ChannelCount != 32 {
		t.Errorf("ChannelCount = %d, want 32", applied.ChannelCount)
	}
}
