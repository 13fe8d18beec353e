package cnp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobshop-sim/jobshop-sim/sim"
)

func testCFP(currentTime, duration, dueDate float64) CallForProposal {
	return CallForProposal{
		RoundID:     "round-1",
		JobID:       1,
		MachineType: 0,
		Duration:    duration,
		CurrentTime: currentTime,
		DueDate:     dueDate,
	}
}

func TestResponder_ProposesFromCurrentTimeWhenFree(t *testing.T) {
	r := NewResponder(0, 0)
	defer r.Close()

	p, ref := r.Propose(testCFP(3, 5, 20))
	require.Nil(t, ref)
	assert.Equal(t, 0, p.MachineID)
	assert.Equal(t, 3.0, p.ExpectedStart)
	assert.Equal(t, 8.0, p.ExpectedEnd)
}

func TestResponder_ProposesAfterPendingBooking(t *testing.T) {
	r := NewResponder(0, 0)
	defer r.Close()

	conf := r.ConfirmAccept(Accept{RoundID: "r0", JobID: 9, Start: 5, End: 10, CurrentTime: 0})
	require.True(t, conf.Confirmed())

	p, ref := r.Propose(testCFP(7, 2, 20))
	require.Nil(t, ref)
	assert.Equal(t, 10.0, p.ExpectedStart)
	assert.Equal(t, 12.0, p.ExpectedEnd)
}

// A proposal is not a reservation: losing a round must leave the timetable
// empty and the machine free to bid again from the same window.
func TestResponder_RejectReleasesNothing(t *testing.T) {
	r := NewResponder(0, 0)
	defer r.Close()

	p, ref := r.Propose(testCFP(0, 5, 20))
	require.Nil(t, ref)
	r.RejectProposal(Reject{RoundID: p.RoundID, MachineID: 0})

	_, slots := r.Status()
	assert.Empty(t, slots)

	p, ref = r.Propose(testCFP(0, 5, 20))
	require.Nil(t, ref)
	assert.Equal(t, 0.0, p.ExpectedStart)
}

func TestResponder_RefusesWhenFailed(t *testing.T) {
	r := NewResponder(0, 0)
	defer r.Close()

	r.Mirror(sim.MirrorEvent{Type: sim.EventMachineFailed, MachineID: 0, JobID: -1, OperationIndex: -1})
	_, ref := r.Propose(testCFP(0, 5, 20))
	require.NotNil(t, ref)
	assert.Equal(t, "machine failed", ref.Reason)

	r.Mirror(sim.MirrorEvent{Type: sim.EventMachineRepaired, MachineID: 0, JobID: -1, OperationIndex: -1})
	_, ref = r.Propose(testCFP(0, 5, 20))
	assert.Nil(t, ref)
}

// TestResponder_RaceDetectedAtConfirm books the same window twice; the
// second accept must fail revalidation, never double-book.
func TestResponder_RaceDetectedAtConfirm(t *testing.T) {
	r := NewResponder(0, 0)
	defer r.Close()

	first := r.ConfirmAccept(Accept{RoundID: "a", JobID: 1, Start: 0, End: 5, CurrentTime: 0})
	second := r.ConfirmAccept(Accept{RoundID: "b", JobID: 2, Start: 0, End: 5, CurrentTime: 0})

	require.True(t, first.Confirmed())
	require.False(t, second.Confirmed())
	assert.Equal(t, StatusFailure, second.Status)
	assert.Equal(t, "slot no longer available", second.Reason)

	_, slots := r.Status()
	require.Len(t, slots, 1)
	assert.Equal(t, 1, slots[0].JobID)
}

// A failure clears every pending booking; the freed window must be
// proposable again after repair.
func TestResponder_FailureClearsBookings(t *testing.T) {
	r := NewResponder(0, 0)
	defer r.Close()

	require.True(t, r.ConfirmAccept(Accept{RoundID: "a", JobID: 1, Start: 0, End: 5, CurrentTime: 0}).Confirmed())
	require.True(t, r.ConfirmAccept(Accept{RoundID: "b", JobID: 2, Start: 5, End: 9, CurrentTime: 0}).Confirmed())

	r.Mirror(sim.MirrorEvent{Type: sim.EventMachineFailed, MachineID: 0, JobID: -1, OperationIndex: -1})
	r.Mirror(sim.MirrorEvent{Type: sim.EventMachineRepaired, MachineID: 0, JobID: -1, OperationIndex: -1})

	status, slots := r.Status()
	assert.Equal(t, sim.MachineIdle, status)
	assert.Empty(t, slots)

	p, ref := r.Propose(testCFP(0, 5, 20))
	require.Nil(t, ref)
	assert.Equal(t, 0.0, p.ExpectedStart)
}

func TestResponder_FinishedOperationReleasesSlot(t *testing.T) {
	r := NewResponder(0, 0)
	defer r.Close()

	require.True(t, r.ConfirmAccept(Accept{RoundID: "a", JobID: 1, OperationIndex: 0, Start: 0, End: 5, CurrentTime: 0}).Confirmed())
	r.Mirror(sim.MirrorEvent{Type: sim.EventMachineFinished, MachineID: 0, JobID: 1, OperationIndex: 0, Time: 5})

	_, slots := r.Status()
	assert.Empty(t, slots)
}
