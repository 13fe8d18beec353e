// State-mirroring events published by the engine so that external components
// (negotiation responders, a remote negotiation runtime) can track machine
// and job state without sharing memory with the simulator.

package sim

// Mirror event types.
const (
	EventOrderArrived    = "ORDER_ARRIVED"
	EventMachineStarted  = "MACHINE_STARTED"
	EventMachineFinished = "MACHINE_FINISHED"
	EventMachineFailed   = "MACHINE_FAILED"
	EventMachineRepaired = "MACHINE_REPAIRED"
	EventJobCompleted    = "JOB_COMPLETED"
)

// KnownEventType reports whether t is one of the mirror event types.
func KnownEventType(t string) bool {
	switch t {
	case EventOrderArrived, EventMachineStarted, EventMachineFinished,
		EventMachineFailed, EventMachineRepaired, EventJobCompleted:
		return true
	}
	return false
}

// MirrorEvent is one state-mirroring payload. Fields that do not apply to a
// given event type carry -1 (IDs) or zero values.
type MirrorEvent struct {
	Type           string      `json:"event_type"`
	Time           float64     `json:"time"`
	JobID          int         `json:"job_id"`
	MachineID      int         `json:"machine_id"`
	OperationIndex int         `json:"operation_index"`
	DueDate        float64     `json:"due_date,omitempty"`
	Operations     []Operation `json:"operations,omitempty"`
}

// EventSink consumes mirror events. Publish must not call back into the
// simulator.
type EventSink interface {
	Publish(ev MirrorEvent)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Publish(MirrorEvent) {}

// MultiSink fans one event out to several sinks in order.
type MultiSink []EventSink

func (ms MultiSink) Publish(ev MirrorEvent) {
	for _, s := range ms {
		s.Publish(ev)
	}
}
