package qlearn

import (
	"github.com/jobshop-sim/jobshop-sim/sim"
)

type pendingDecision struct {
	state  string
	action int
}

// LearnedPolicy dispatches with the Q-learning agent and folds rewards back
// in through the engine's feedback hook. It implements sim.FeedbackPolicy.
// One decision per machine can be outstanding at a time, matching the
// engine's one-operation-per-machine execution model.
type LearnedPolicy struct {
	agent   *Agent
	pending map[int]pendingDecision
}

// NewLearnedPolicy wraps an agent as a dispatch policy.
func NewLearnedPolicy(agent *Agent) *LearnedPolicy {
	return &LearnedPolicy{
		agent:   agent,
		pending: make(map[int]pendingDecision),
	}
}

func (p *LearnedPolicy) Name() string { return "qlearning" }

// SelectNext chooses a queue position for the machine and remembers the
// decision until the operation finishes and its reward arrives. Actions are
// indices into the candidate queue, so equal queue shapes share Q-rows no
// matter which jobs occupy them.
func (p *LearnedPolicy) SelectNext(machineID int, candidates []*sim.Job) *sim.Job {
	if len(candidates) == 0 {
		return nil
	}
	state := SerializeState(machineID, candidates)
	actions := make([]int, len(candidates))
	for i := range candidates {
		actions[i] = i
	}
	chosen := p.agent.SelectAction(state, actions)
	if chosen < 0 || chosen >= len(candidates) {
		return nil
	}
	p.pending[machineID] = pendingDecision{state: state, action: chosen}
	return candidates[chosen]
}

// Feedback closes the outstanding decision for the machine with the observed
// reward and the successor queue state.
func (p *LearnedPolicy) Feedback(machineID int, reward float64, next []*sim.Job) {
	dec, ok := p.pending[machineID]
	if !ok {
		return
	}
	delete(p.pending, machineID)
	nextState := SerializeState(machineID, next)
	nextActions := make([]int, len(next))
	for i := range next {
		nextActions[i] = i
	}
	p.agent.Update(dec.state, dec.action, reward, nextState, nextActions)
}
