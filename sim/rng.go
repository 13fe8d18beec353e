package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// RNG subsystem names. Each subsystem draws from its own deterministically
// derived stream so that, e.g., adding machine failures does not perturb the
// arrival sequence of a seeded run.
const (
	SubsystemArrivals = "arrivals"
	SubsystemFailures = "failures"
	SubsystemLearning = "learning"
)

// SubsystemMachine returns the subsystem name for machine id's failure
// stream.
func SubsystemMachine(id int) string {
	return fmt.Sprintf("machine_%d", id)
}

// PartitionedRNG provides isolated, deterministically-seeded RNG streams per
// subsystem. Derivation: masterSeed XOR fnv1a64(subsystemName). Not safe for
// concurrent use; the engine is single-threaded.
type PartitionedRNG struct {
	masterSeed int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a partitioned RNG from a master seed.
func NewPartitionedRNG(masterSeed int64) *PartitionedRNG {
	return &PartitionedRNG{
		masterSeed: masterSeed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the RNG for the named subsystem, creating it lazily.
// Repeated calls with the same name return the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	rng := rand.New(rand.NewSource(p.masterSeed ^ int64(h.Sum64())))
	p.subsystems[name] = rng
	return rng
}

// Seed returns the master seed.
func (p *PartitionedRNG) Seed() int64 { return p.masterSeed }
