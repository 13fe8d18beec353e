// Dispatch policy layer: pluggable strategies deciding which queued job a
// freed machine processes next. Heuristic rules live here; the learned policy
// is provided by the qlearn package and the negotiated policy by the cnp
// package.

package sim

import "fmt"

// DispatchPolicy selects, for a machine becoming free, which candidate job
// runs next. Returns nil when no candidate should start. Implementations
// must be deterministic given the same candidates (ties broken by ascending
// job ID).
type DispatchPolicy interface {
	Name() string
	SelectNext(machineID int, candidates []*Job) *Job
}

// FeedbackPolicy is implemented by learning policies that consume reward
// feedback after a dispatched operation completes.
type FeedbackPolicy interface {
	DispatchPolicy
	Feedback(machineID int, reward float64, next []*Job)
}

// SPTPolicy picks the candidate with the shortest next-operation duration.
type SPTPolicy struct{}

func (SPTPolicy) Name() string { return "spt" }

func (SPTPolicy) SelectNext(_ int, candidates []*Job) *Job {
	return pickBy(candidates, func(a, b *Job) bool {
		da, db := nextOpDuration(a), nextOpDuration(b)
		if da != db {
			return da < db
		}
		return a.ID < b.ID
	})
}

// EDDPolicy picks the candidate with the earliest due date.
type EDDPolicy struct{}

func (EDDPolicy) Name() string { return "edd" }

func (EDDPolicy) SelectNext(_ int, candidates []*Job) *Job {
	return pickBy(candidates, func(a, b *Job) bool {
		if a.DueDate != b.DueDate {
			return a.DueDate < b.DueDate
		}
		return a.ID < b.ID
	})
}

// LPTPolicy picks the candidate with the longest next-operation duration.
type LPTPolicy struct{}

func (LPTPolicy) Name() string { return "lpt" }

func (LPTPolicy) SelectNext(_ int, candidates []*Job) *Job {
	return pickBy(candidates, func(a, b *Job) bool {
		da, db := nextOpDuration(a), nextOpDuration(b)
		if da != db {
			return da > db
		}
		return a.ID < b.ID
	})
}

// NewHeuristicPolicy returns the named heuristic rule (spt, edd, lpt).
func NewHeuristicPolicy(name string) (DispatchPolicy, error) {
	switch name {
	case "spt":
		return SPTPolicy{}, nil
	case "edd":
		return EDDPolicy{}, nil
	case "lpt":
		return LPTPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown heuristic policy %q (want spt, edd or lpt)", name)
	}
}

func nextOpDuration(j *Job) float64 {
	op, ok := j.NextOperation()
	if !ok {
		return 0
	}
	return op.Duration
}

// pickBy returns the candidate that sorts first under less.
func pickBy(candidates []*Job, less func(a, b *Job) bool) *Job {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if less(c, best) {
			best = c
		}
	}
	return best
}
