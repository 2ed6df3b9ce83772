package cluster

import "sort"

// TrainRow is one spike train entry: spike time and assigned cluster id.
type TrainRow struct {
	Time    int64
	Cluster int
}

// SpikeTrain labels every assigned spike with its highest-probability
// component and returns the rows sorted by ascending time. Spikes whose
// responsibilities were zeroed by thresholding are absent.
func (g *GlobalCollection) SpikeTrain() []TrainRow {
	assign := g.Resp.Assignments()
	rows := make([]TrainRow, 0, len(assign))
	for spike, comp := range assign {
		if spike >= len(g.Spikes) {
			continue
		}
		rows = append(rows, TrainRow{Time: g.Spikes[spike].Time, Cluster: comp})
	}
	SortTrain(rows)
	return rows
}

// SortTrain orders spike train rows by ascending time, breaking ties by
// cluster id so output is deterministic.
func SortTrain(rows []TrainRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Time != rows[j].Time {
			return rows[i].Time < rows[j].Time
		}
		return rows[i].Cluster < rows[j].Cluster
	})
}
