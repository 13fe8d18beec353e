// Prometheus collectors for the scheduler. All record methods are nil-safe
// so that library users and tests can leave the collector unset.

package sim

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes scheduler counters and gauges to Prometheus.
type Collector struct {
	jobsArrived     prometheus.Counter
	jobsCompleted   prometheus.Counter
	jobTardiness    prometheus.Histogram
	negotiations    prometheus.Counter
	noAssignments   prometheus.Counter
	raceConflicts   prometheus.Counter
	machineFailures prometheus.Counter
	machineRepairs  prometheus.Counter
	machinesDown    prometheus.Gauge
}

// NewCollector creates and registers the scheduler metrics with reg
// (prometheus.DefaultRegisterer when nil).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		jobsArrived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobshop_jobs_arrived_total",
			Help: "Total number of jobs that arrived in the shop",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobshop_jobs_completed_total",
			Help: "Total number of jobs completed",
		}),
		jobTardiness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobshop_job_tardiness",
			Help:    "Tardiness of completed jobs in simulation time units",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		negotiations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobshop_negotiation_rounds_total",
			Help: "Total number of Contract-Net negotiation rounds",
		}),
		noAssignments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobshop_negotiation_no_assignment_total",
			Help: "Negotiation rounds that ended without an assignment",
		}),
		raceConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobshop_negotiation_race_conflicts_total",
			Help: "Accepts rejected at revalidation because the slot was taken",
		}),
		machineFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobshop_machine_failures_total",
			Help: "Total number of machine failures",
		}),
		machineRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobshop_machine_repairs_total",
			Help: "Total number of completed machine repairs",
		}),
		machinesDown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobshop_machines_down",
			Help: "Number of machines currently in the FAILED state",
		}),
	}
	reg.MustRegister(c.jobsArrived, c.jobsCompleted, c.jobTardiness,
		c.negotiations, c.noAssignments, c.raceConflicts,
		c.machineFailures, c.machineRepairs, c.machinesDown)
	return c
}

func (c *Collector) RecordArrival() {
	if c == nil {
		return
	}
	c.jobsArrived.Inc()
}

func (c *Collector) RecordCompletion(tardiness float64) {
	if c == nil {
		return
	}
	c.jobsCompleted.Inc()
	c.jobTardiness.Observe(tardiness)
}

func (c *Collector) RecordNegotiation() {
	if c == nil {
		return
	}
	c.negotiations.Inc()
}

func (c *Collector) RecordNoAssignment() {
	if c == nil {
		return
	}
	c.noAssignments.Inc()
}

func (c *Collector) RecordRaceConflict() {
	if c == nil {
		return
	}
	c.raceConflicts.Inc()
}

func (c *Collector) RecordFailure() {
	if c == nil {
		return
	}
	c.machineFailures.Inc()
	c.machinesDown.Inc()
}

func (c *Collector) RecordRepair() {
	if c == nil {
		return
	}
	c.machineRepairs.Inc()
	c.machinesDown.Dec()
}

// ServeMetrics exposes /metrics on the given port. Blocks.
func ServeMetrics(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
