// Package cluster implements the spike clustering and merge engine: one
// variational mixture fit per probe channel, post-processing of the
// responsibilities, aggregation of all channels into one globally
// indexed collection, and a greedy Mahalanobis-gated pairwise merge
// procedure that consolidates near-duplicate components.
//
// The mixture-fitting primitive is a collaborator behind the Fitter and
// MergeTester interfaces; see the vbmix package for the default
// implementation. The split subpackage holds the alternative
// stability-based splitting pipeline.
package cluster
