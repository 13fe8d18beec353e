// Machine model: per-machine status, waiting queue, and the confirmed
// timetable of negotiated slots. The timetable is the single source of truth
// for availability queries during Contract-Net rounds.

package sim

import "fmt"

// MachineStatus is the per-machine state machine.
type MachineStatus string

const (
	MachineIdle   MachineStatus = "IDLE"
	MachineBusy   MachineStatus = "BUSY"
	MachineFailed MachineStatus = "FAILED"
)

// BookedSlot is one confirmed, non-overlapping interval on a timetable.
type BookedSlot struct {
	JobID          int
	OperationIndex int
	Start          float64
	End            float64
}

func (s BookedSlot) String() string {
	return fmt.Sprintf("Job%d_Op%d [%.2f-%.2f]", s.JobID, s.OperationIndex, s.Start, s.End)
}

// Timetable is a machine's confirmed schedule, kept sorted by start time.
// Entries whose end time has passed are pruned on every query, so the
// timetable only ever holds pending or in-progress slots.
type Timetable struct {
	slots []BookedSlot
}

// prune drops every slot that finished at or before now.
func (tt *Timetable) prune(now float64) {
	kept := tt.slots[:0]
	for _, s := range tt.slots {
		if s.End > now {
			kept = append(kept, s)
		}
	}
	tt.slots = kept
}

// NextAvailable prunes finished slots and returns the end time of the last
// remaining slot, or now when the timetable is empty.
func (tt *Timetable) NextAvailable(now float64) float64 {
	tt.prune(now)
	if len(tt.slots) == 0 {
		return now
	}
	return tt.slots[len(tt.slots)-1].End
}

// SlotFree prunes finished slots and reports whether [start, end) overlaps
// none of the remaining slots. Overlap test: NOT (end <= s.Start || start >=
// s.End).
func (tt *Timetable) SlotFree(start, end, now float64) bool {
	tt.prune(now)
	for _, s := range tt.slots {
		if !(end <= s.Start || start >= s.End) {
			return false
		}
	}
	return true
}

// Insert adds a slot, keeping the timetable sorted by start time.
func (tt *Timetable) Insert(slot BookedSlot) {
	i := len(tt.slots)
	for i > 0 && tt.slots[i-1].Start > slot.Start {
		i--
	}
	tt.slots = append(tt.slots, BookedSlot{})
	copy(tt.slots[i+1:], tt.slots[i:])
	tt.slots[i] = slot
}

// Remove deletes the slot bound to (jobID, opIndex), reporting whether one
// was present.
func (tt *Timetable) Remove(jobID, opIndex int) bool {
	for i, s := range tt.slots {
		if s.JobID == jobID && s.OperationIndex == opIndex {
			tt.slots = append(tt.slots[:i], tt.slots[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every slot and returns how many were pending. Called when the
// owning machine fails.
func (tt *Timetable) Clear() int {
	n := len(tt.slots)
	tt.slots = tt.slots[:0]
	return n
}

// Len returns the number of pending slots.
func (tt *Timetable) Len() int { return len(tt.slots) }

// Slots returns a copy of the current slots.
func (tt *Timetable) Slots() []BookedSlot {
	out := make([]BookedSlot, len(tt.slots))
	copy(out, tt.slots)
	return out
}

// Machine is one resource on the shop floor.
type Machine struct {
	ID     int
	Type   int
	Status MachineStatus

	// Queue holds jobs waiting for this machine. Used by queue-driven
	// dispatch policies (heuristic and learned); the negotiated policy
	// books slots on the Timetable instead.
	Queue []*Job

	// Timetable holds confirmed negotiated slots.
	Timetable Timetable

	// runGen invalidates in-flight completion events: a failure bumps the
	// generation, so a completion scheduled before the failure is stale.
	runGen int

	runningJob *Job
	runningOp  int
	opStart    float64

	// Reliability bookkeeping.
	Failures      int
	TotalDowntime float64
	lastFailure   float64
}

// NewMachine creates an idle machine of the given type.
func NewMachine(id, machineType int) *Machine {
	return &Machine{ID: id, Type: machineType, Status: MachineIdle}
}

// Enqueue appends a job to the waiting queue.
func (m *Machine) Enqueue(j *Job) {
	m.Queue = append(m.Queue, j)
}

// RemoveQueued removes a job from the waiting queue, reporting whether it was
// present.
func (m *Machine) RemoveQueued(j *Job) bool {
	for i, q := range m.Queue {
		if q == j {
			m.Queue = append(m.Queue[:i], m.Queue[i+1:]...)
			return true
		}
	}
	return false
}

// Availability returns the fraction of elapsed time the machine was not down.
func (m *Machine) Availability(elapsed float64) float64 {
	if elapsed <= 0 {
		return 1.0
	}
	return (elapsed - m.TotalDowntime) / elapsed
}

func (m *Machine) String() string {
	return fmt.Sprintf("M%d(type=%d, %s)", m.ID, m.Type, m.Status)
}
