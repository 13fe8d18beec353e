// Package workload produces job streams for the simulator, either
// synthetically (Poisson arrivals with uniform operation mixes) or from
// Taillard-format benchmark instances.
package workload

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/jobshop-sim/jobshop-sim/sim"
)

// DefaultDueDateSlack scales a job's total processing time into its due-date
// allowance.
const DefaultDueDateSlack = 1.5

// Config parameterizes the synthetic job generator.
type Config struct {
	ArrivalRate   float64 `yaml:"arrival_rate"`   // jobs per time unit
	MachineTypes  int     `yaml:"machine_types"`  // distinct machine types in the shop
	MinOperations int     `yaml:"min_operations"` // operations per job, inclusive bounds
	MaxOperations int     `yaml:"max_operations"`
	MinDuration   float64 `yaml:"min_duration"` // per-operation duration bounds
	MaxDuration   float64 `yaml:"max_duration"`
	DueDateSlack  float64 `yaml:"due_date_slack"`
}

// Generate draws jobs arriving over [0, horizon). Inter-arrival gaps are
// exponential at ArrivalRate; each job gets a uniform number of operations
// on distinct machine types with integer durations, and a due date of
// arrival plus slack times its total processing time.
func Generate(cfg Config, horizon float64, rng *rand.Rand) []*sim.Job {
	slack := cfg.DueDateSlack
	if slack <= 0 {
		slack = DefaultDueDateSlack
	}
	var jobs []*sim.Job
	t := 0.0
	id := 0
	for {
		t += rng.ExpFloat64() / cfg.ArrivalRate
		if t >= horizon {
			break
		}
		ops := makeOperations(cfg, rng)
		j := sim.NewJob(id, ops, t, 0)
		j.DueDate = t + slack*j.TotalProcessingTime()
		jobs = append(jobs, j)
		id++
	}
	logrus.Debugf("generated %d jobs over horizon %.1f (rate=%.2f)", len(jobs), horizon, cfg.ArrivalRate)
	return jobs
}

// makeOperations draws the operation sequence for one job: machine types are
// sampled without replacement so a job never visits the same type twice.
func makeOperations(cfg Config, rng *rand.Rand) []sim.Operation {
	n := cfg.MinOperations
	if cfg.MaxOperations > cfg.MinOperations {
		n += rng.Intn(cfg.MaxOperations - cfg.MinOperations + 1)
	}
	if n > cfg.MachineTypes {
		n = cfg.MachineTypes
	}
	types := rng.Perm(cfg.MachineTypes)[:n]
	ops := make([]sim.Operation, n)
	for i, mt := range types {
		span := int(cfg.MaxDuration-cfg.MinDuration) + 1
		d := cfg.MinDuration + float64(rng.Intn(span))
		ops[i] = sim.Operation{MachineType: mt, Duration: d}
	}
	return ops
}
