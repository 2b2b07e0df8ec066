/*
This file contains the registration record the runner keeps for every pool.
*/

package types

import (
	"cosmossdk.io/math"
)

// PoolRegistration is the active rule registration of one pool.
type PoolRegistration struct {
	Pool Address `json:"pool"`
	Rule string  `json:"rule"`

	// Oracles holds one priority list per asset. Index 0 is the primary, the rest are
	// backups tried in order.
	Oracles [][]string `json:"oracles"`

	LastRunTime    int64 `json:"last_run_time"`
	UpdateInterval int64 `json:"update_interval"`

	// Lambdas has length 1 (shared) or one entry per asset.
	Lambdas           []math.LegacyDec `json:"lambdas"`
	EpsilonMax        math.LegacyDec   `json:"epsilon_max"`
	AbsoluteGuardRail math.LegacyDec   `json:"absolute_guard_rail"`
	Parameters        RuleParameters   `json:"parameters"`
	PoolManager       Address          `json:"pool_manager"`
}

// NumAssets is the number of constituents of the pool.
func (r PoolRegistration) NumAssets() int {
	return len(r.Oracles)
}

// PrimaryOracles returns the first priority oracle of every asset.
func (r PoolRegistration) PrimaryOracles() []string {
	out := make([]string, 0, len(r.Oracles))
	for _, list := range r.Oracles {
		if len(list) > 0 {
			out = append(out, list[0])
		}
	}
	return out
}

// References reports whether any asset lists the oracle and whether it is the only oracle
// configured for some asset.
func (r PoolRegistration) References(oracleID string) (referenced bool, sole bool) {
	for _, list := range r.Oracles {
		for _, id := range list {
			if id == oracleID {
				referenced = true
				if len(list) == 1 {
					sole = true
				}
			}
		}
	}
	return referenced, sole
}

// Clone returns a deep copy that shares no slices with r.
func (r PoolRegistration) Clone() PoolRegistration {
	out := r
	out.Oracles = make([][]string, len(r.Oracles))
	for i, list := range r.Oracles {
		out.Oracles[i] = append([]string(nil), list...)
	}
	out.Lambdas = cloneDecs(r.Lambdas)
	out.Parameters = r.Parameters.Clone()
	return out
}

func cloneDecs(values []math.LegacyDec) []math.LegacyDec {
	if values == nil {
		return nil
	}
	out := make([]math.LegacyDec, len(values))
	for i, v := range values {
		if v.IsNil() {
			continue
		}
		out[i] = v.Add(math.LegacyZeroDec())
	}
	return out
}

func cloneMatrix(m [][]math.LegacyDec) [][]math.LegacyDec {
	if m == nil {
		return nil
	}
	out := make([][]math.LegacyDec, len(m))
	for i, row := range m {
		out[i] = cloneDecs(row)
	}
	return out
}
