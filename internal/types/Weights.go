package types

import (
	"math"

	sdkmath "cosmossdk.io/math"
)

// NoFreeze marks a weight state whose interpolation never reaches a guard rail.
const NoFreeze int64 = math.MaxInt64

// WeightState is what the pool reads between updates: the weights as of the last update
// and the signed per-second rate of change of every asset.
type WeightState struct {
	FixedWeights                  []sdkmath.LegacyDec `json:"fixed_weights"`
	Multipliers                   []sdkmath.LegacyDec `json:"multipliers"`
	LastUpdateTime                int64               `json:"last_update_time"`
	LastInterpolationTimePossible int64               `json:"last_interpolation_time_possible"`
}

// Clone returns a deep copy.
func (w WeightState) Clone() WeightState {
	return WeightState{
		FixedWeights:                  cloneDecs(w.FixedWeights),
		Multipliers:                   cloneDecs(w.Multipliers),
		LastUpdateTime:                w.LastUpdateTime,
		LastInterpolationTimePossible: w.LastInterpolationTimePossible,
	}
}
