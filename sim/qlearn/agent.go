package qlearn

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/jobshop-sim/jobshop-sim/sim"
)

// Learning hyperparameters.
const (
	DefaultAlpha   = 0.1  // learning rate
	DefaultGamma   = 0.95 // discount factor
	DefaultEpsilon = 0.1  // exploration rate
)

// Agent is a tabular Q-learner over serialized queue states, with actions
// identified by queue position. Rows are written through to the store after every
// update; storage errors are logged and otherwise ignored so that a broken
// store degrades learning, not the simulation.
type Agent struct {
	Alpha   float64
	Gamma   float64
	Epsilon float64

	table map[string]map[int]float64
	store Store
	rng   *rand.Rand
}

// NewAgent creates an agent backed by the given store, preloading any
// persisted rows. A load failure starts the agent from an empty table.
func NewAgent(store Store, rng *rand.Rand) *Agent {
	a := &Agent{
		Alpha:   DefaultAlpha,
		Gamma:   DefaultGamma,
		Epsilon: DefaultEpsilon,
		table:   make(map[string]map[int]float64),
		store:   store,
		rng:     rng,
	}
	if store != nil {
		rows, err := store.LoadAll()
		if err != nil {
			logrus.Warnf("qtable: load failed, starting fresh: %v", err)
		} else {
			a.table = rows
			if a.table == nil {
				a.table = make(map[string]map[int]float64)
			}
			logrus.Debugf("qtable: loaded %d states", len(rows))
		}
	}
	return a
}

// SerializeState encodes a machine's queue as a discrete state: queue length
// plus the min/mean/max of the waiting operations' durations. An empty queue
// serializes with zeroed statistics.
func SerializeState(machineID int, queue []*sim.Job) string {
	durations := make([]float64, 0, len(queue))
	for _, j := range queue {
		if op, ok := j.NextOperation(); ok {
			durations = append(durations, op.Duration)
		}
	}
	return SerializeDurations(machineID, durations)
}

// SerializeDurations is the state encoding over raw next-operation durations,
// for callers that see queue statistics rather than jobs.
func SerializeDurations(machineID int, durations []float64) string {
	if len(durations) == 0 {
		return fmt.Sprintf("M%d:len=0:min=0.00:mean=0.00:max=0.00", machineID)
	}
	min, max, sum := durations[0], durations[0], 0.0
	for _, d := range durations {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
		sum += d
	}
	mean := sum / float64(len(durations))
	return fmt.Sprintf("M%d:len=%d:min=%.2f:mean=%.2f:max=%.2f", machineID, len(durations), min, mean, max)
}

// Q returns the learned value for (state, action); unseen pairs are 0.
func (a *Agent) Q(state string, action int) float64 {
	return a.table[state][action]
}

// SelectAction picks an action epsilon-greedily: with probability Epsilon a
// uniform random action, otherwise the highest-valued one. Value ties break
// toward the earliest action in the given order.
func (a *Agent) SelectAction(state string, actions []int) int {
	if len(actions) == 0 {
		return -1
	}
	if a.rng != nil && a.rng.Float64() < a.Epsilon {
		return actions[a.rng.Intn(len(actions))]
	}
	best := actions[0]
	bestQ := a.Q(state, best)
	for _, act := range actions[1:] {
		if q := a.Q(state, act); q > bestQ {
			best, bestQ = act, q
		}
	}
	return best
}

// Update applies one temporal-difference step for the observed transition
// and persists the updated row. With no next actions (queue drained) the
// bootstrap term is zero.
func (a *Agent) Update(state string, action int, reward float64, nextState string, nextActions []int) {
	maxNext := 0.0
	for i, act := range nextActions {
		q := a.Q(nextState, act)
		if i == 0 || q > maxNext {
			maxNext = q
		}
	}
	row := a.table[state]
	if row == nil {
		row = make(map[int]float64)
		a.table[state] = row
	}
	q := row[action]
	row[action] = q + a.Alpha*(reward+a.Gamma*maxNext-q)

	if a.store != nil {
		if err := a.store.SaveRow(state, row); err != nil {
			logrus.Warnf("qtable: persist failed for state %q: %v", state, err)
		}
	}
}

// States returns the number of distinct states learned so far.
func (a *Agent) States() int { return len(a.table) }

// Close flushes and closes the underlying store.
func (a *Agent) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
