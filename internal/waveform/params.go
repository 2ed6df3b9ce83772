package waveform

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Params is the companion parameter record of a standardized binary
// recording: how many channels are interleaved per frame, the sample
// rate, and the on-disk value encoding.
type Params struct {
	Channels   int    `yaml:"n_channels"`
	SampleRate int    `yaml:"sampling_rate"`
	DType      string `yaml:"dtype"`
	DataOrder  string `yaml:"data_order"`
}

// ReadParams loads and validates a yaml parameter record.
func ReadParams(path string) (Params, error) {
	var p Params
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read recording params: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse recording params: %w", err)
	}
	if p.DType == "" {
		p.DType = "float32"
	}
	if p.DataOrder == "" {
		p.DataOrder = "samples"
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks the record describes a recording this package can read.
func (p Params) Validate() error {
	if p.Channels <= 0 {
		return fmt.Errorf("recording params: n_channels must be positive, got %d", p.Channels)
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("recording params: sampling_rate must be positive, got %d", p.SampleRate)
	}
	if p.DType != "float32" {
		return fmt.Errorf("recording params: unsupported dtype %q", p.DType)
	}
	if p.DataOrder != "samples" {
		return fmt.Errorf("recording params: unsupported data order %q", p.DataOrder)
	}
	return nil
}
