package types

import (
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
)

// UpdateRecord is the history entry written by every successful update.
type UpdateRecord struct {
	RunID   uuid.UUID `json:"run_id"`
	Pool    Address   `json:"pool"`
	RunTime int64     `json:"run_time"`

	Prices []math.LegacyDec `json:"prices"`
	// OracleIndexes is the position in each asset's priority list that produced the price.
	OracleIndexes []int `json:"oracle_indexes"`

	TargetWeights                 []math.LegacyDec `json:"target_weights"`
	FixedWeights                  []math.LegacyDec `json:"fixed_weights"`
	Multipliers                   []math.LegacyDec `json:"multipliers"`
	LastInterpolationTimePossible int64            `json:"last_interpolation_time_possible"`

	CreatedAt time.Time `json:"created_at"`
}

// UsedFallback reports whether any asset was priced by a backup oracle.
func (u UpdateRecord) UsedFallback() bool {
	for _, idx := range u.OracleIndexes {
		if idx > 0 {
			return true
		}
	}
	return false
}
