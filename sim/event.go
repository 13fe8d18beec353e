package sim

import "github.com/sirupsen/logrus"

// Event is the interface for all simulation events. Each event has a
// timestamp and an Execute method that advances simulation state.
type Event interface {
	Timestamp() float64
	Execute(*Simulator)
}

// ArrivalEvent introduces a new job into the shop.
type ArrivalEvent struct {
	time float64
	Job  *Job
}

func (e *ArrivalEvent) Timestamp() float64 { return e.time }

func (e *ArrivalEvent) Execute(s *Simulator) {
	logrus.Infof("[t=%07.2f] << Arrival: %s", e.time, e.Job)
	s.handleArrival(e.Job)
}

// OperationStartEvent begins execution of one job operation on a machine.
// In negotiated mode it carries the confirmed assignment; a voided
// assignment (machine failed since confirmation) makes the event a no-op.
type OperationStartEvent struct {
	time       float64
	Job        *Job
	OpIndex    int
	MachineID  int
	Assignment *Assignment
}

func (e *OperationStartEvent) Timestamp() float64 { return e.time }

func (e *OperationStartEvent) Execute(s *Simulator) {
	if e.Assignment != nil && e.Assignment.Voided {
		logrus.Debugf("[t=%07.2f] dropping voided start for Job%d op %d", e.time, e.Job.ID, e.OpIndex)
		return
	}
	s.handleOperationStart(e.Job, e.OpIndex, e.MachineID, e.Assignment)
}

// OperationEndEvent completes the operation running on a machine. The
// generation stamp makes completions stale once the machine has failed in
// the meantime: failures preempt scheduled completions.
type OperationEndEvent struct {
	time      float64
	MachineID int
	Gen       int
}

func (e *OperationEndEvent) Timestamp() float64 { return e.time }

func (e *OperationEndEvent) Execute(s *Simulator) {
	m := s.Machines[e.MachineID]
	if e.Gen != m.runGen {
		logrus.Debugf("[t=%07.2f] stale completion for M%d preempted by failure", e.time, e.MachineID)
		return
	}
	s.handleOperationEnd(m)
}

// MachineFailureEvent takes a machine down and voids its pending work.
type MachineFailureEvent struct {
	time           float64
	MachineID      int
	RepairDuration float64
}

// NewMachineFailureEvent builds a failure for injection at a fixed time,
// for deterministic failure scenarios alongside the stochastic generator.
func NewMachineFailureEvent(at float64, machineID int, repairDuration float64) *MachineFailureEvent {
	return &MachineFailureEvent{time: at, MachineID: machineID, RepairDuration: repairDuration}
}

func (e *MachineFailureEvent) Timestamp() float64 { return e.time }

func (e *MachineFailureEvent) Execute(s *Simulator) {
	s.handleMachineFailure(e.MachineID, e.RepairDuration)
}

// MachineRepairEvent returns a failed machine to service.
type MachineRepairEvent struct {
	time      float64
	MachineID int
}

func (e *MachineRepairEvent) Timestamp() float64 { return e.time }

func (e *MachineRepairEvent) Execute(s *Simulator) {
	s.handleMachineRepair(e.MachineID)
}
