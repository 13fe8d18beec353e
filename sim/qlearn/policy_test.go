package qlearn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobshop-sim/jobshop-sim/sim"
)

func queuedJob(id int, duration float64) *sim.Job {
	return sim.NewJob(id, []sim.Operation{{MachineType: 0, Duration: duration}}, 0, 50)
}

func TestLearnedPolicy_SelectAndFeedback(t *testing.T) {
	agent := NewAgent(NewMemoryStore(), nil)
	agent.Epsilon = 0
	p := NewLearnedPolicy(agent)

	queue := []*sim.Job{queuedJob(1, 3), queuedJob(2, 8)}
	chosen := p.SelectNext(0, queue)
	require.NotNil(t, chosen)
	assert.Equal(t, 1, chosen.ID, "all-zero row picks the head of the queue")

	p.Feedback(0, -3, []*sim.Job{queuedJob(2, 8)})
	state := SerializeState(0, queue)
	assert.Negative(t, agent.Q(state, 0), "negative reward must lower the estimate for queue position 0")
}

// Rewards are booked against queue positions, so a penalized position must
// lose the next selection for the same queue shape to its neighbor, whatever
// jobs happen to occupy the slots.
func TestLearnedPolicy_PenalizedPositionLosesSelection(t *testing.T) {
	agent := NewAgent(NewMemoryStore(), nil)
	agent.Epsilon = 0
	p := NewLearnedPolicy(agent)

	queue := []*sim.Job{queuedJob(1, 3), queuedJob(2, 8)}
	for i := 0; i < 5; i++ {
		chosen := p.SelectNext(0, queue)
		require.NotNil(t, chosen)
		if chosen.ID == 1 {
			p.Feedback(0, -50, queue)
		} else {
			p.Feedback(0, -1, queue)
		}
	}

	chosen := p.SelectNext(0, queue)
	require.NotNil(t, chosen)
	assert.Equal(t, 2, chosen.ID, "the heavily penalized head position must be passed over")
}

// Feedback without a prior decision for that machine is dropped.
func TestLearnedPolicy_FeedbackWithoutDecision(t *testing.T) {
	agent := NewAgent(NewMemoryStore(), nil)
	p := NewLearnedPolicy(agent)
	p.Feedback(4, -10, nil)
	assert.Equal(t, 0, agent.States())
}

// Decisions are tracked per machine, so interleaved feedback from two
// machines must not cross rows.
func TestLearnedPolicy_PerMachineDecisions(t *testing.T) {
	agent := NewAgent(NewMemoryStore(), nil)
	agent.Epsilon = 0
	p := NewLearnedPolicy(agent)

	queue0 := []*sim.Job{queuedJob(1, 3)}
	queue1 := []*sim.Job{queuedJob(2, 5)}
	require.NotNil(t, p.SelectNext(0, queue0))
	require.NotNil(t, p.SelectNext(1, queue1))

	p.Feedback(1, -5, nil)
	p.Feedback(0, -2, nil)

	assert.InDelta(t, DefaultAlpha*-2, agent.Q(SerializeState(0, queue0), 0), 1e-9)
	assert.InDelta(t, DefaultAlpha*-5, agent.Q(SerializeState(1, queue1), 0), 1e-9)
}

func TestLearnedPolicy_EmptyQueue(t *testing.T) {
	p := NewLearnedPolicy(NewAgent(NewMemoryStore(), nil))
	assert.Nil(t, p.SelectNext(0, nil))
}
