// Aggregates simulation-wide statistics for final reporting: throughput,
// makespan, tardiness distribution, negotiation outcomes, and per-machine
// reliability.

package sim

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Metrics aggregates statistics over one simulation run.
type Metrics struct {
	JobsArrived   int
	JobsCompleted int
	TardyJobs     int

	TotalTardiness float64
	MaxTardiness   float64
	Makespan       float64 // latest completion time seen

	NegotiationRounds  int
	NoAssignmentRounds int
	RaceRetries        int

	MachineFailures int
	MachineRepairs  int

	tardiness []float64
	flowTimes []float64
}

// NewMetrics returns an empty metrics accumulator.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordCompletion folds one completed job into the aggregates.
func (m *Metrics) RecordCompletion(j *Job) {
	m.JobsCompleted++
	t := j.Tardiness()
	m.TotalTardiness += t
	m.tardiness = append(m.tardiness, t)
	m.flowTimes = append(m.flowTimes, j.CompletionTime-j.ArrivalTime)
	if t > 0 {
		m.TardyJobs++
	}
	if t > m.MaxTardiness {
		m.MaxTardiness = t
	}
	if j.CompletionTime > m.Makespan {
		m.Makespan = j.CompletionTime
	}
}

// MeanTardiness is the average tardiness over completed jobs.
func (m *Metrics) MeanTardiness() float64 {
	if len(m.tardiness) == 0 {
		return 0
	}
	return stat.Mean(m.tardiness, nil)
}

// MeanFlowTime is the average completion-minus-arrival time.
func (m *Metrics) MeanFlowTime() float64 {
	if len(m.flowTimes) == 0 {
		return 0
	}
	return stat.Mean(m.flowTimes, nil)
}

// TardinessQuantile returns the p-quantile of the tardiness distribution.
func (m *Metrics) TardinessQuantile(p float64) float64 {
	if len(m.tardiness) == 0 {
		return 0
	}
	sorted := make([]float64, len(m.tardiness))
	copy(sorted, m.tardiness)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Print displays aggregated metrics at the end of the simulation.
func (m *Metrics) Print(machines []*Machine, elapsed float64) {
	fmt.Println("=== Simulation Metrics ===")
	fmt.Printf("Jobs arrived         : %d\n", m.JobsArrived)
	fmt.Printf("Jobs completed       : %d\n", m.JobsCompleted)
	if m.JobsCompleted > 0 {
		fmt.Printf("Makespan             : %.2f\n", m.Makespan)
		fmt.Printf("Mean flow time       : %.2f\n", m.MeanFlowTime())
		fmt.Printf("Total tardiness      : %.2f\n", m.TotalTardiness)
		fmt.Printf("Mean tardiness       : %.2f\n", m.MeanTardiness())
		fmt.Printf("Max tardiness        : %.2f\n", m.MaxTardiness)
		fmt.Printf("P95 tardiness        : %.2f\n", m.TardinessQuantile(0.95))
		fmt.Printf("Tardy jobs           : %d\n", m.TardyJobs)
	}
	if m.NegotiationRounds > 0 {
		fmt.Printf("Negotiation rounds   : %d (%d without assignment, %d race retries)\n",
			m.NegotiationRounds, m.NoAssignmentRounds, m.RaceRetries)
	}
	fmt.Printf("Machine failures     : %d (repairs: %d)\n", m.MachineFailures, m.MachineRepairs)
	for _, mc := range machines {
		fmt.Printf("  M%d: failures=%d downtime=%.1f availability=%.1f%%\n",
			mc.ID, mc.Failures, mc.TotalDowntime, 100*mc.Availability(elapsed))
	}
}
