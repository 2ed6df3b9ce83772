package split

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/spikesort/internal/cluster"
)

// WaveformLoader supplies one waveform segment per spike time, shaped
// [spike][channel][sample]. Out-of-bounds reads are zero-padded by the
// loader, never an error.
type WaveformLoader interface {
	Load(ctx context.Context, times []int64) ([][][]float64, error)
}

// Pipeline is the stability-based splitting entry point. Instead of
// merging an over-clustered global state it iteratively extracts stable
// components per channel, re-aligning and re-projecting the remainder
// between rounds.
type Pipeline struct {
	fitter cluster.Fitter
	loader WaveformLoader
	cfg    cluster.Config
	log    *zap.Logger
}

// NewPipeline creates a splitting pipeline around its collaborators.
func NewPipeline(fitter cluster.Fitter, loader WaveformLoader, cfg cluster.Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{fitter: fitter, loader: loader, cfg: cfg, log: log}
}

// Run clusters every channel's spikes and returns the combined spike
// train, sorted by ascending time, with a process-wide incrementing
// cluster id per extracted group.
func (p *Pipeline) Run(ctx context.Context, refs []cluster.SpikeRef) ([]cluster.TrainRow, error) {
	for i, r := range refs {
		if r.Channel < 0 || r.Channel >= p.cfg.ChannelCount {
			return nil, fmt.Errorf("spike %d references channel %d outside [0,%d)",
				i, r.Channel, p.cfg.ChannelCount)
		}
	}

	var rows []cluster.TrainRow
	clusterID := 0
	for channel := 0; channel < p.cfg.ChannelCount; channel++ {
		var idx []int
		for i, r := range refs {
			if r.Channel == channel {
				idx = append(idx, i)
			}
		}
		if len(idx) < 2 {
			continue
		}

		times := make([]int64, len(idx))
		for i, j := range idx {
			times[i] = refs[j].Time
		}
		waveforms, err := p.loader.Load(ctx, times)
		if err != nil {
			return nil, fmt.Errorf("channel %d: load waveforms: %w", channel, err)
		}
		if len(waveforms) != len(idx) {
			return nil, fmt.Errorf("channel %d: loader returned %d waveforms for %d spikes",
				channel, len(waveforms), len(idx))
		}

		featChans := p.featureChannels(waveforms)
		if len(featChans) == 0 {
			p.log.Warn("no feature channels, skipping", zap.Int("channel", channel))
			continue
		}

		groups, err := p.extractClusters(waveforms, featChans)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", channel, err)
		}

		for _, group := range groups {
			for _, local := range group {
				rows = append(rows, cluster.TrainRow{
					Time:    refs[idx[local]].Time,
					Cluster: clusterID,
				})
			}
			clusterID++
		}
		p.log.Info("channel split complete",
			zap.Int("channel", channel),
			zap.Ints("featureChannels", featChans),
			zap.Int("clusters", len(groups)))
	}

	cluster.SortTrain(rows)
	return rows, nil
}

// featureChannels unions the top-K channels by peak-to-peak amplitude of
// the mean template with the top-K by median absolute deviation among
// channels whose amplitude clears the configured floor.
func (p *Pipeline) featureChannels(waveforms [][][]float64) []int {
	if len(waveforms) == 0 || len(waveforms[0]) == 0 {
		return nil
	}
	nChans := len(waveforms[0])
	length := len(waveforms[0][0])

	template := make([][]float64, nChans)
	for ch := 0; ch < nChans; ch++ {
		template[ch] = make([]float64, length)
	}
	for _, wf := range waveforms {
		for ch := 0; ch < nChans; ch++ {
			for t := 0; t < length; t++ {
				template[ch][t] += wf[ch][t]
			}
		}
	}

	ptp := make([]float64, nChans)
	for ch := 0; ch < nChans; ch++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for t := 0; t < length; t++ {
			template[ch][t] /= float64(len(waveforms))
			if template[ch][t] < lo {
				lo = template[ch][t]
			}
			if template[ch][t] > hi {
				hi = template[ch][t]
			}
		}
		ptp[ch] = hi - lo
	}

	ampOrder := argsortDesc(ptp)
	selected := make(map[int]bool)
	for i := 0; i < p.cfg.AmplitudeChannels && i < len(ampOrder); i++ {
		selected[ampOrder[i]] = true
	}

	// Variability ranking, restricted to channels above the amplitude floor.
	var madChans []int
	var madScores []float64
	samples := make([]float64, len(waveforms))
	for ch := 0; ch < nChans; ch++ {
		if ptp[ch] <= p.cfg.AmplitudeFloor {
			continue
		}
		var worst float64
		for t := 0; t < length; t++ {
			for s, wf := range waveforms {
				samples[s] = wf[ch][t]
			}
			if m := mad(samples); m > worst {
				worst = m
			}
		}
		madChans = append(madChans, ch)
		madScores = append(madScores, worst)
	}
	madOrder := argsortDesc(madScores)
	for i := 0; i < p.cfg.VarianceChannels && i < len(madOrder); i++ {
		selected[madChans[madOrder[i]]] = true
	}

	out := make([]int, 0, len(selected))
	for ch := range selected {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out
}

// extractClusters runs triage and the iterative stability loop on one
// channel's waveforms, returning groups of local spike positions. The
// loop is bounded: hitting the iteration cap emits whatever was already
// extracted rather than erroring.
func (p *Pipeline) extractClusters(waveforms [][][]float64, featChans []int) ([][]int, error) {
	all := make([]int, len(waveforms))
	for i := range all {
		all[i] = i
	}

	proj, err := p.alignProject(waveforms, all, featChans)
	if err != nil {
		return nil, err
	}

	keep := KNNTriage(proj, p.cfg.TriageNeighbors, p.cfg.TriagePercentile)
	working := make([]int, 0, len(all))
	for i, ok := range keep {
		if ok {
			working = append(working, i)
		}
	}
	if len(working) < 2 {
		return nil, nil
	}

	// Refit the projection on the retained points only.
	proj, err = p.alignProject(waveforms, working, featChans)
	if err != nil {
		return nil, err
	}

	var groups [][]int
	for iter := 0; iter < p.cfg.MaxIterations; iter++ {
		mask := make([]float64, len(working))
		group := make([]int, len(working))
		for i := range working {
			mask[i] = 1
			group[i] = i
		}
		state, resp, err := p.fitter.Fit(proj, mask, group)
		if err != nil {
			return nil, fmt.Errorf("mixture fit: %w", err)
		}
		cluster.ThresholdResponsibilities(resp, p.cfg.ResponsibilityFloor)

		k := state.NumComponents()
		if k <= 1 {
			groups = append(groups, append([]int(nil), working...))
			return groups, nil
		}

		// Stability: mean responsibility among each component's assigned
		// points. Components above the threshold are extracted; when none
		// qualifies, only the single most stable one is.
		stability := make([]float64, k)
		members := make([][]int, k)
		for comp := 0; comp < k; comp++ {
			var sum float64
			for i := range working {
				if resp[i][comp] > 0 {
					members[comp] = append(members[comp], i)
					sum += resp[i][comp]
				}
			}
			if len(members[comp]) > 0 {
				stability[comp] = sum / float64(len(members[comp]))
			}
		}

		claimed := make([]bool, len(working))
		extracted := false
		for comp := 0; comp < k; comp++ {
			if stability[comp] > p.cfg.StabilityThreshold && len(members[comp]) > 0 {
				p.claim(&groups, working, members[comp], claimed)
				extracted = true
			}
		}
		if !extracted {
			best := 0
			for comp := 1; comp < k; comp++ {
				if stability[comp] > stability[best] {
					best = comp
				}
			}
			if len(members[best]) == 0 {
				return groups, nil
			}
			p.claim(&groups, working, members[best], claimed)
		}

		remaining := make([]int, 0, len(working))
		for i, pos := range working {
			if !claimed[i] {
				remaining = append(remaining, pos)
			}
		}
		working = remaining
		if len(working) <= p.cfg.MinRemaining {
			return groups, nil
		}

		proj, err = p.alignProject(waveforms, working, featChans)
		if err != nil {
			return nil, err
		}
	}
	p.log.Warn("stability loop hit iteration cap", zap.Int("extracted", len(groups)))
	return groups, nil
}

// claim extracts one component's unclaimed members as a finalized group.
func (p *Pipeline) claim(groups *[][]int, working []int, members []int, claimed []bool) {
	var group []int
	for _, i := range members {
		if !claimed[i] {
			claimed[i] = true
			group = append(group, working[i])
		}
	}
	if len(group) > 0 {
		*groups = append(*groups, group)
	}
}

// alignProject aligns the selected waveforms on every feature channel,
// windows the aligned segments, concatenates them into one flat vector
// per spike and projects to the configured dimensionality.
func (p *Pipeline) alignProject(waveforms [][][]float64, positions []int, featChans []int) ([][]float64, error) {
	length := len(waveforms[0][0])
	start, end := p.cfg.SegmentStart, p.cfg.SegmentEnd
	if end <= 0 || end > length {
		end = length
	}
	if start < 0 || start >= end {
		start = 0
	}

	flat := make([][]float64, len(positions))
	for i := range flat {
		flat[i] = make([]float64, 0, (end-start)*len(featChans))
	}
	chanWfs := make([][]float64, len(positions))
	for _, ch := range featChans {
		for i, pos := range positions {
			chanWfs[i] = waveforms[pos][ch]
		}
		aligned := AlignToTemplate(chanWfs, p.cfg.UpsampleFactor, p.cfg.AlignHalfWidth)
		for i := range positions {
			flat[i] = append(flat[i], aligned[i][start:end]...)
		}
	}
	return Project(flat, p.cfg.PCADims)
}

// mad returns the scaled median absolute deviation of the samples.
func mad(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	med := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	dev := make([]float64, len(xs))
	for i, v := range xs {
		dev[i] = math.Abs(v - med)
	}
	sort.Float64s(dev)
	return 1.4826 * stat.Quantile(0.5, stat.Empirical, dev, nil)
}

func argsortDesc(xs []float64) []int {
	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return xs[order[a]] > xs[order[b]]
	})
	return order
}
