package cluster

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ChannelAux carries the optional mask/group arrays for one channel's
// spikes, in the same order the orchestrator selects them (ascending
// position in the global arrays). A nil aux slice, or a nil entry, means
// location-feature mode: a synthetic all-ones mask and per-spike
// singleton groups.
type ChannelAux struct {
	Mask  []float64
	Group []int
}

// Orchestrator runs one mixture fit per channel, post-processes the
// responsibilities and folds surviving results into a global collection.
type Orchestrator struct {
	fitter Fitter
	cfg    Config
	log    *zap.Logger
}

// NewOrchestrator creates an orchestrator around a fitting collaborator.
func NewOrchestrator(fitter Fitter, cfg Config, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{fitter: fitter, cfg: cfg, log: log}
}

// Run clusters every channel and returns the aggregated collection.
// Channels with fewer than 2 spikes are skipped. Fits run on a bounded
// worker pool when cfg.Workers > 1; folds always happen sequentially in
// ascending channel order so global ids are reproducible.
func (o *Orchestrator) Run(features [][]float64, refs []SpikeRef, aux []ChannelAux) (*GlobalCollection, error) {
	if len(features) != len(refs) {
		return nil, fmt.Errorf("feature array length %d does not match spike reference length %d",
			len(features), len(refs))
	}
	if aux != nil && len(aux) != o.cfg.ChannelCount {
		return nil, fmt.Errorf("aux array length %d does not match channel count %d",
			len(aux), o.cfg.ChannelCount)
	}
	for i, r := range refs {
		if r.Channel < 0 || r.Channel >= o.cfg.ChannelCount {
			return nil, fmt.Errorf("spike %d references channel %d outside [0,%d)",
				i, r.Channel, o.cfg.ChannelCount)
		}
	}

	results := make([]*ChannelResult, o.cfg.ChannelCount)
	errs := make([]error, o.cfg.ChannelCount)

	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for channel := 0; channel < o.cfg.ChannelCount; channel++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(c int) {
			defer wg.Done()
			defer func() { <-sem }()
			var a *ChannelAux
			if aux != nil && (aux[c].Mask != nil || aux[c].Group != nil) {
				a = &aux[c]
			}
			results[c], errs[c] = o.fitChannel(c, features, refs, a)
		}(channel)
	}
	wg.Wait()

	global := &GlobalCollection{}
	for channel := 0; channel < o.cfg.ChannelCount; channel++ {
		if errs[channel] != nil {
			return nil, fmt.Errorf("channel %d: %w", channel, errs[channel])
		}
		res := results[channel]
		if res == nil {
			continue
		}
		if err := global.Fold(res); err != nil {
			return nil, err
		}
		o.log.Info("folded channel",
			zap.Int("channel", channel),
			zap.Int("components", res.State.NumComponents()),
			zap.Int("spikes", len(res.Spikes)))
	}
	return global, nil
}

// fitChannel runs one channel's fit and post-processing. It returns nil
// when the channel is skipped (under 2 spikes) or every component was
// pruned away.
func (o *Orchestrator) fitChannel(channel int, features [][]float64, refs []SpikeRef, aux *ChannelAux) (*ChannelResult, error) {
	var idx []int
	for i, r := range refs {
		if r.Channel == channel {
			idx = append(idx, i)
		}
	}
	if len(idx) < 2 {
		return nil, nil
	}

	chFeatures := make([][]float64, len(idx))
	chRefs := make([]SpikeRef, len(idx))
	for i, j := range idx {
		chFeatures[i] = features[j]
		chRefs[i] = refs[j]
	}

	mask, group := unitMaskSingletonGroups(len(idx))
	if aux != nil {
		if len(aux.Mask) != len(idx) || len(aux.Group) != len(idx) {
			return nil, fmt.Errorf("mask/group lengths (%d,%d) do not match %d channel spikes",
				len(aux.Mask), len(aux.Group), len(idx))
		}
		mask, group = aux.Mask, aux.Group
	}

	state, resp, err := o.fitter.Fit(chFeatures, mask, group)
	if err != nil {
		return nil, fmt.Errorf("mixture fit: %w", err)
	}
	if len(resp) != len(idx) {
		return nil, fmt.Errorf("fitter returned %d responsibility rows for %d spikes", len(resp), len(idx))
	}

	ThresholdResponsibilities(resp, o.cfg.ResponsibilityFloor)
	state, resp, remaining := PruneEmpty(state, resp, o.cfg.MinSpikes)
	if remaining == 0 {
		return nil, nil
	}

	return &ChannelResult{
		Channel:  channel,
		State:    state,
		Resp:     resp,
		Features: chFeatures,
		Spikes:   chRefs,
	}, nil
}

func unitMaskSingletonGroups(n int) ([]float64, []int) {
	mask := make([]float64, n)
	group := make([]int, n)
	for i := range mask {
		mask[i] = 1
		group[i] = i
	}
	return mask, group
}
