/*

This file contains the defaults applied when the environment or a pool declaration in the
registry file leaves a value out.

*/

package config

const (
	DefaultStalenessSeconds = 3600
	// Fires every five minutes. Pools with longer intervals are rejected by the interval
	// gate until they are due, which costs one registration read.
	DefaultKeeperSchedule       = "0 */5 * * * *"
	DefaultKeeperTimeoutSeconds = 60
	DefaultUpdateRPS            = 1.0

	// DefaultUpdateInterval is one hour.
	DefaultUpdateInterval = 3600
	// DefaultEpsilonMax caps a single step at 10% of weight.
	DefaultEpsilonMax = "0.1"
	// DefaultAbsoluteGuardRail keeps every asset at 1% weight or more.
	DefaultAbsoluteGuardRail = "0.01"
)
