package cnp

import (
	"github.com/sirupsen/logrus"

	"github.com/jobshop-sim/jobshop-sim/sim"
)

// Responder bids on behalf of one machine. All machine-local negotiation
// state (status, timetable mirror) is owned by a single goroutine; public
// methods post work to it and wait for the answer, so concurrent proposals
// and accepts for the same machine serialize on the owner.
type Responder struct {
	id          int
	machineType int

	calls chan func()
	quit  chan struct{}

	// owned by the actor goroutine
	status    sim.MachineStatus
	timetable sim.Timetable
}

// NewResponder starts the actor for one machine.
func NewResponder(id, machineType int) *Responder {
	r := &Responder{
		id:          id,
		machineType: machineType,
		calls:       make(chan func(), 16),
		quit:        make(chan struct{}),
		status:      sim.MachineIdle,
	}
	go r.loop()
	return r
}

func (r *Responder) loop() {
	for {
		select {
		case fn := <-r.calls:
			fn()
		case <-r.quit:
			return
		}
	}
}

// do runs fn on the actor goroutine and waits for it to finish.
func (r *Responder) do(fn func()) {
	done := make(chan struct{})
	select {
	case r.calls <- func() { fn(); close(done) }:
		<-done
	case <-r.quit:
	}
}

// Close stops the actor goroutine.
func (r *Responder) Close() {
	close(r.quit)
}

// ID returns the machine ID this responder bids for.
func (r *Responder) ID() int { return r.id }

// MachineType returns the machine type this responder serves.
func (r *Responder) MachineType() int { return r.machineType }

// Propose answers a call-for-proposal: a failed machine refuses, otherwise
// the bid starts at the machine's next available time (never before the
// current time) and runs for the operation's duration.
func (r *Responder) Propose(cfp CallForProposal) (Proposal, *Refusal) {
	var (
		p   Proposal
		ref *Refusal
	)
	r.do(func() {
		if r.status == sim.MachineFailed {
			ref = &Refusal{RoundID: cfp.RoundID, MachineID: r.id, Reason: "machine failed"}
			return
		}
		start := r.timetable.NextAvailable(cfp.CurrentTime)
		if start < cfp.CurrentTime {
			start = cfp.CurrentTime
		}
		p = Proposal{
			RoundID:       cfp.RoundID,
			MachineID:     r.id,
			ExpectedStart: start,
			ExpectedEnd:   start + cfp.Duration,
		}
	})
	return p, ref
}

// ConfirmAccept revalidates an award against the current timetable. A window
// that is still free gets booked and confirmed; anything else (the machine
// failed, or a competing booking landed between proposal and accept) is
// reported as an explicit failure so the initiator can fall back.
func (r *Responder) ConfirmAccept(a Accept) Confirmation {
	var conf Confirmation
	r.do(func() {
		conf.RoundID = a.RoundID
		if r.status == sim.MachineFailed {
			conf.Status = StatusFailure
			conf.Reason = "machine failed"
			return
		}
		if !r.timetable.SlotFree(a.Start, a.End, a.CurrentTime) {
			conf.Status = StatusFailure
			conf.Reason = "slot no longer available"
			return
		}
		r.timetable.Insert(sim.BookedSlot{
			JobID:          a.JobID,
			OperationIndex: a.OperationIndex,
			Start:          a.Start,
			End:            a.End,
		})
		conf.Status = StatusConfirmed
	})
	return conf
}

// RejectProposal closes a lost round. The proposal was never a reservation,
// so the timetable is untouched.
func (r *Responder) RejectProposal(rej Reject) {
	r.do(func() {
		logrus.Debugf("M%d: proposal for round %s not selected", r.id, rej.RoundID)
	})
}

// Mirror applies an engine event to the responder's view of the machine.
// A failure clears every pending booking; those operations come back through
// fresh negotiation rounds.
func (r *Responder) Mirror(ev sim.MirrorEvent) {
	r.do(func() {
		switch ev.Type {
		case sim.EventMachineStarted:
			r.status = sim.MachineBusy
		case sim.EventMachineFinished:
			r.status = sim.MachineIdle
			r.timetable.Remove(ev.JobID, ev.OperationIndex)
		case sim.EventMachineFailed:
			r.status = sim.MachineFailed
			if n := r.timetable.Clear(); n > 0 {
				logrus.Debugf("M%d responder dropped %d bookings on failure", r.id, n)
			}
		case sim.EventMachineRepaired:
			r.status = sim.MachineIdle
		}
	})
}

// Status returns the responder's view of the machine: its status and a copy
// of the pending bookings.
func (r *Responder) Status() (sim.MachineStatus, []sim.BookedSlot) {
	var (
		st    sim.MachineStatus
		slots []sim.BookedSlot
	)
	r.do(func() {
		st = r.status
		slots = r.timetable.Slots()
	})
	return st, slots
}
