package types

import (
	"cosmossdk.io/math"
)

// EstimatorState is the constant-size per-pool state of every estimator. Slices that a
// rule does not need stay empty.
type EstimatorState struct {
	MovingAverages         []math.LegacyDec   `json:"moving_averages"`
	ShortMovingAverages    []math.LegacyDec   `json:"short_moving_averages,omitempty"`
	GradientIntermediate   []math.LegacyDec   `json:"gradient_intermediate,omitempty"`
	VarianceIntermediate   []math.LegacyDec   `json:"variance_intermediate,omitempty"`
	CovarianceIntermediate [][]math.LegacyDec `json:"covariance_intermediate,omitempty"`
}

// HasMovingAverage reports whether the pool has moving average history.
func (e EstimatorState) HasMovingAverage() bool {
	return len(e.MovingAverages) > 0
}

// Clone returns a deep copy.
func (e EstimatorState) Clone() EstimatorState {
	return EstimatorState{
		MovingAverages:         cloneDecs(e.MovingAverages),
		ShortMovingAverages:    cloneDecs(e.ShortMovingAverages),
		GradientIntermediate:   cloneDecs(e.GradientIntermediate),
		VarianceIntermediate:   cloneDecs(e.VarianceIntermediate),
		CovarianceIntermediate: cloneMatrix(e.CovarianceIntermediate),
	}
}
