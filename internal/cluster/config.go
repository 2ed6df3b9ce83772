package cluster

// Default values for the clustering and merge engine. These mirror the
// tuning the sorter was validated with; override individual fields on the
// Config returned by DefaultConfig.
const (
	// DefaultResponsibilityFloor is the minimum responsibility retained
	// after a fit. Entries below it are zeroed and the row renormalized.
	DefaultResponsibilityFloor = 0.1
	// DefaultMergeGate is the squared Mahalanobis distance below which a
	// component pair becomes a merge candidate.
	DefaultMergeGate = 15.0
	// DefaultMinSpikes is the minimum per-channel responsibility mass a
	// component needs to survive pruning.
	DefaultMinSpikes = 0.0
	// DefaultStabilityThreshold is the mean assigned responsibility above
	// which a component is extracted as a finalized cluster.
	DefaultStabilityThreshold = 0.90
	// DefaultMinRemaining stops the stability loop once this few points
	// are left in the working set.
	DefaultMinRemaining = 35
	// DefaultMaxIterations bounds the stability refinement loop.
	DefaultMaxIterations = 1000
	// DefaultPCADims is the dimensionality of the projected feature space.
	DefaultPCADims = 3
	// DefaultUpsampleFactor is the bandlimited interpolation factor used
	// during sub-sample waveform alignment.
	DefaultUpsampleFactor = 20
	// DefaultAlignHalfWidth is the half-width, in original samples, of the
	// cross-correlation window around the waveform center.
	DefaultAlignHalfWidth = 7
	// DefaultAmplitudeChannels is how many channels the splitter keeps
	// from the peak-to-peak amplitude ranking.
	DefaultAmplitudeChannels = 3
	// DefaultVarianceChannels is how many channels the splitter keeps
	// from the median-absolute-deviation ranking.
	DefaultVarianceChannels = 3
	// DefaultAmplitudeFloor is the peak-to-peak amplitude, in standardized
	// signal units, a channel must exceed to enter the MAD ranking.
	DefaultAmplitudeFloor = 2.0
	// DefaultTriagePercentile is the kNN aggregate-distance percentile
	// above which points are discarded as outliers.
	DefaultTriagePercentile = 90.0
	// DefaultTriageNeighbors is the neighbor count for outlier triage.
	DefaultTriageNeighbors = 11
)

// Config is the immutable configuration surface of the engine. It is
// passed by value; nothing in the engine mutates it.
type Config struct {
	// ChannelCount is the size of the channel universe. Spike references
	// must carry channels in [0, ChannelCount).
	ChannelCount int

	// MinSpikes is the minimum responsibility mass (column sum) a
	// component must exceed to survive per-channel pruning.
	MinSpikes float64

	// ResponsibilityFloor zeroes responsibility entries below it before
	// per-spike renormalization.
	ResponsibilityFloor float64

	// MergeGate is the squared Mahalanobis gate for merge candidates.
	// A pair is a candidate when either direction is below the gate.
	MergeGate float64

	// StabilityThreshold triggers extraction of a component in the
	// splitting pipeline.
	StabilityThreshold float64

	// MinRemaining ends the stability loop when the working set shrinks
	// to or below this many points.
	MinRemaining int

	// MaxIterations bounds the stability refinement loop.
	MaxIterations int

	// PCADims is the projected feature dimensionality.
	PCADims int

	// UpsampleFactor and AlignHalfWidth control sub-sample alignment.
	// The correlation window and shift range are both
	// AlignHalfWidth*UpsampleFactor samples in the upsampled domain.
	UpsampleFactor int
	AlignHalfWidth int

	// SegmentStart and SegmentEnd window each aligned waveform before
	// feature concatenation. SegmentEnd <= 0 means the full waveform.
	SegmentStart int
	SegmentEnd   int

	// AmplitudeChannels and VarianceChannels are the top-K counts of the
	// two feature-channel rankings; AmplitudeFloor gates entry into the
	// variance ranking.
	AmplitudeChannels int
	VarianceChannels  int
	AmplitudeFloor    float64

	// TriagePercentile and TriageNeighbors control kNN outlier triage.
	TriagePercentile float64
	TriageNeighbors  int

	// Workers bounds per-channel fit parallelism. Zero or negative means
	// sequential operation.
	Workers int
}

// DefaultConfig returns the engine configuration for a probe with the
// given channel count.
func DefaultConfig(channelCount int) Config {
	return Config{
		ChannelCount:        channelCount,
		MinSpikes:           DefaultMinSpikes,
		ResponsibilityFloor: DefaultResponsibilityFloor,
		MergeGate:           DefaultMergeGate,
		StabilityThreshold:  DefaultStabilityThreshold,
		MinRemaining:        DefaultMinRemaining,
		MaxIterations:       DefaultMaxIterations,
		PCADims:             DefaultPCADims,
		UpsampleFactor:      DefaultUpsampleFactor,
		AlignHalfWidth:      DefaultAlignHalfWidth,
		SegmentStart:        0,
		SegmentEnd:          0,
		AmplitudeChannels:   DefaultAmplitudeChannels,
		VarianceChannels:    DefaultVarianceChannels,
		AmplitudeFloor:      DefaultAmplitudeFloor,
		TriagePercentile:    DefaultTriagePercentile,
		TriageNeighbors:     DefaultTriageNeighbors,
		Workers:             1,
	}
}
