package cluster

import (
	"fmt"

	"go.uber.org/zap"
)

// MergeEngine consolidates near-duplicate components in a global
// collection. It is a greedy, order-dependent agglomeration: anchors are
// processed in ascending component id and each anchor works through a
// queue of gated candidates, so outcomes are reproducible.
type MergeEngine struct {
	tester MergeTester
	cfg    Config
	log    *zap.Logger
}

// NewMergeEngine creates a merge engine around a merge-test collaborator.
func NewMergeEngine(tester MergeTester, cfg Config, log *zap.Logger) *MergeEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &MergeEngine{tester: tester, cfg: cfg, log: log}
}

// Consolidate repeatedly runs the anchor merge procedure until no anchor
// has a finite gated candidate left. The collection is mutated in place;
// merged components are deleted and renumbered, never resurrected.
func (e *MergeEngine) Consolidate(g *GlobalCollection) error {
	if g.Params == nil || g.NumComponents() == 0 {
		return nil
	}
	dm := NewDistanceMatrix(g.Params)
	for {
		anchor := -1
		for k := 0; k < dm.Size(); k++ {
			if len(dm.Candidates(k, e.cfg.MergeGate)) > 0 {
				anchor = k
				break
			}
		}
		if anchor < 0 {
			return nil
		}
		if err := e.mergeFrom(g, dm, anchor); err != nil {
			return err
		}
	}
}

// mergeFrom drains one anchor's candidate queue. A successful merge
// collapses the pair into the lower index, refreshes that component's
// distances, rebuilds the queue, and continues with the survivor as the
// new anchor. A rejection pins the pair's distances to +Inf.
func (e *MergeEngine) mergeFrom(g *GlobalCollection, dm *DistanceMatrix, anchor int) error {
	queue := dm.Candidates(anchor, e.cfg.MergeGate)
	for len(queue) > 0 {
		partner := queue[0]
		queue = queue[1:]

		ka, kb := anchor, partner
		if kb < ka {
			ka, kb = kb, ka
		}

		merged, localState, err := e.testPair(g, ka, kb)
		if err != nil {
			// One bad pairwise test never brings the engine down; the
			// pair is treated as rejected and left alone for good.
			e.log.Warn("merge test failed, rejecting pair",
				zap.Int("a", ka), zap.Int("b", kb), zap.Error(err))
			dm.SetInf(ka, kb)
			continue
		}
		if !merged {
			dm.SetInf(ka, kb)
			continue
		}

		e.log.Debug("merging components", zap.Int("into", ka), zap.Int("removed", kb))
		g.Params.replace(ka, localState)
		g.Params.Delete(kb)
		g.OriginChannel = append(g.OriginChannel[:kb], g.OriginChannel[kb+1:]...)
		g.Resp = g.Resp.MergeColumns(ka, kb)

		dm.Remove(kb)
		dm.Refresh(g.Params, ka)

		anchor = ka
		queue = dm.Candidates(anchor, e.cfg.MergeGate)
	}
	return nil
}

// testPair builds the two-component local sub-mixture for (ka, kb),
// re-derives its sufficient statistics and consults the merge tester.
// On acceptance the returned state holds the merged component at index 0.
func (e *MergeEngine) testPair(g *GlobalCollection, ka, kb int) (bool, *MixtureState, error) {
	members := g.Resp.MemberSpikes(ka, kb)
	if len(members) == 0 {
		return false, nil, fmt.Errorf("components %d and %d have no member spikes", ka, kb)
	}

	localFeatures := make([][]float64, len(members))
	pos := make(map[int]int, len(members))
	for i, s := range members {
		if s >= len(g.Features) {
			return false, nil, fmt.Errorf("spike id %d outside feature array of length %d", s, len(g.Features))
		}
		localFeatures[i] = g.Features[s]
		pos[s] = i
	}

	localResp := make([][]float64, len(members))
	for i := range localResp {
		localResp[i] = make([]float64, 2)
	}
	for _, entry := range g.Resp {
		i, ok := pos[entry.Spike]
		if !ok {
			continue
		}
		switch entry.Component {
		case ka:
			localResp[i][0] = entry.P
		case kb:
			localResp[i][1] = entry.P
		}
	}

	localState := g.Params.Gather([]int{ka, kb})
	stats := ComputeSuffStats(localFeatures, localResp)

	updated, _, accepted, err := e.tester.TestMerge(localFeatures, localState, localResp, stats)
	if err != nil {
		return false, nil, err
	}
	if !accepted {
		return false, nil, nil
	}
	if updated == nil || updated.NumComponents() < 1 {
		return false, nil, fmt.Errorf("merge tester accepted but returned no merged component")
	}
	if err := updated.validate(); err != nil {
		return false, nil, fmt.Errorf("merged state malformed: %w", err)
	}
	return true, updated, nil
}
