package cluster

import "fmt"

// GlobalCollection is the globally indexed dataset built by folding
// per-channel clustering results together. Component ids and spike ids
// are globally unique and never reused; OriginChannel records which
// channel produced each component, parallel to the component axis.
type GlobalCollection struct {
	Params        *MixtureState
	Resp          SparseResp
	OriginChannel []int
	Features      [][]float64
	Spikes        []SpikeRef
}

// ChannelResult is one channel's post-processed clustering output, ready
// to fold into the global collection.
type ChannelResult struct {
	Channel  int
	State    *MixtureState
	Resp     [][]float64 // dense, local spike-indexed
	Features [][]float64
	Spikes   []SpikeRef
}

// Fold appends a channel's result to the collection. The first fold
// adopts the result directly; subsequent folds shift the incoming
// triplets past the current maximum spike and component ids so ids stay
// unique across channels. Folds must run sequentially, in ascending
// channel order, for reproducible global ids.
func (g *GlobalCollection) Fold(res *ChannelResult) error {
	if len(res.Features) != len(res.Spikes) {
		return fmt.Errorf("channel %d: %d feature rows but %d spike refs",
			res.Channel, len(res.Features), len(res.Spikes))
	}
	triplets := SparsifyResp(res.Resp)
	k := res.State.NumComponents()

	if g.Params == nil {
		g.Params = res.State.Gather(componentRange(k))
		g.Resp = triplets
		g.OriginChannel = repeatChannel(res.Channel, k)
		g.Features = append([][]float64(nil), res.Features...)
		g.Spikes = append([]SpikeRef(nil), res.Spikes...)
	} else {
		if err := g.Params.Append(res.State); err != nil {
			return fmt.Errorf("channel %d: %w", res.Channel, err)
		}
		maxSpike, maxComponent := g.Resp.MaxIDs()
		// The spike shift is the highest assigned id, not the appended row
		// count: a channel whose trailing spikes lost every responsibility
		// entry compresses the id space, and later channels' spike ids land
		// below their own feature rows. Merge pooling indexes Features by
		// these ids and depends on this layout.
		triplets.Shift(maxSpike+1, maxComponent+1)
		g.Resp = append(g.Resp, triplets...)
		g.OriginChannel = append(g.OriginChannel, repeatChannel(res.Channel, k)...)
		g.Features = append(g.Features, res.Features...)
		g.Spikes = append(g.Spikes, res.Spikes...)
	}

	if len(g.OriginChannel) != g.Params.NumComponents() {
		return fmt.Errorf("origin channel length %d does not match %d components",
			len(g.OriginChannel), g.Params.NumComponents())
	}
	if _, maxComponent := g.Resp.MaxIDs(); maxComponent+1 != g.Params.NumComponents() {
		return fmt.Errorf("max component id %d does not match %d components",
			maxComponent, g.Params.NumComponents())
	}
	return nil
}

// NumComponents returns the global component count.
func (g *GlobalCollection) NumComponents() int {
	if g.Params == nil {
		return 0
	}
	return g.Params.NumComponents()
}

func componentRange(k int) []int {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func repeatChannel(channel, k int) []int {
	out := make([]int, k)
	for i := range out {
		out[i] = channel
	}
	return out
}
