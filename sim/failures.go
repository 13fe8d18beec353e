// Stochastic machine failure and repair generation. Failures follow an
// exponential MTBF distribution; repair durations follow an exponential MTTR
// distribution with a floor of one time unit.

package sim

import "math/rand"

// Reliability holds the failure-process parameters for the shop's machines.
type Reliability struct {
	MTBF float64 `yaml:"mtbf"` // mean time between failures
	MTTR float64 `yaml:"mttr"` // mean time to repair
}

// ReliabilityPreset returns a named reliability profile.
func ReliabilityPreset(name string) (Reliability, bool) {
	switch name {
	case "high":
		return Reliability{MTBF: 1000, MTTR: 2}, true
	case "medium":
		return Reliability{MTBF: 100, MTTR: 5}, true
	case "low":
		return Reliability{MTBF: 30, MTTR: 8}, true
	}
	return Reliability{}, false
}

// FailureRecord is one completed failure/repair cycle.
type FailureRecord struct {
	MachineID      int
	FailureTime    float64
	RepairDuration float64
	RepairEndTime  float64
}

// expDraw samples an exponential variate with the given mean.
func expDraw(rng *rand.Rand, mean float64) float64 {
	return rng.ExpFloat64() * mean
}

// drawRepairDuration samples a repair time, floored at one time unit.
func drawRepairDuration(rng *rand.Rand, mttr float64) float64 {
	d := expDraw(rng, mttr)
	if d < 1 {
		return 1
	}
	return d
}
