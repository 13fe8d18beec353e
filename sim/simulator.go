// Core discrete-event engine. A single logical clock advances to the next
// scheduled event; handlers run to completion without preemption. The only
// suspension point visible to the simulation is an operation awaiting a
// negotiation result.

package sim

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
)

// Params configures a Simulator.
type Params struct {
	Horizon     float64
	Machines    []*Machine
	Policy      DispatchPolicy // queue-driven dispatch (heuristic or learned)
	Negotiator  Negotiator     // Contract-Net dispatch; takes precedence over Policy
	Sink        EventSink
	Reliability *Reliability // nil disables machine failures
	RNG         *PartitionedRNG
	Collector   *Collector
}

// Simulator owns simulation time, machine and job state, and the event loop.
type Simulator struct {
	Clock   float64
	Horizon float64

	Machines []*Machine
	Jobs     map[int]*Job

	Policy     DispatchPolicy
	Negotiator Negotiator
	Sink       EventSink
	Metrics    *Metrics
	Collector  *Collector

	events      EventHeap
	rng         *PartitionedRNG
	reliability *Reliability

	// assignments tracks confirmed-but-unfinished allocations per machine,
	// voided wholesale when the machine fails.
	assignments map[int][]*Assignment

	// parked holds jobs whose next operation found no eligible machine;
	// retried when a repair frees a machine of the required type.
	parked []*Job
}

// NewSimulator builds a simulator and, when reliability is configured,
// schedules the first failure for every machine.
func NewSimulator(p Params) *Simulator {
	s := &Simulator{
		Horizon:     p.Horizon,
		Machines:    p.Machines,
		Jobs:        make(map[int]*Job),
		Policy:      p.Policy,
		Negotiator:  p.Negotiator,
		Sink:        p.Sink,
		Metrics:     NewMetrics(),
		Collector:   p.Collector,
		rng:         p.RNG,
		reliability: p.Reliability,
		assignments: make(map[int][]*Assignment),
	}
	if s.Sink == nil {
		s.Sink = NopSink{}
	}
	if s.rng == nil {
		s.rng = NewPartitionedRNG(0)
	}
	if s.reliability != nil {
		for _, m := range s.Machines {
			s.scheduleNextFailure(m)
		}
	}
	return s
}

// NewMachines creates n machines spread round-robin over the given number of
// machine types.
func NewMachines(n, types int) []*Machine {
	if types <= 0 {
		types = n
	}
	machines := make([]*Machine, n)
	for i := range machines {
		machines[i] = NewMachine(i, i%types)
	}
	return machines
}

// Schedule inserts an event into the queue. Scheduling strictly in the past
// indicates a logic defect and aborts the run; events at the current clock
// are legal and execute in FIFO order after the running handler.
func (s *Simulator) Schedule(ev Event) {
	if ev.Timestamp() < s.Clock {
		logrus.Errorf("event %T scheduled at %.4f before clock %.4f; aborting run", ev, ev.Timestamp(), s.Clock)
		panic("sim: event scheduled in the past")
	}
	s.events.Schedule(ev)
}

// InjectJobs schedules arrival events for pre-generated jobs.
func (s *Simulator) InjectJobs(jobs []*Job) {
	for _, j := range jobs {
		s.Schedule(&ArrivalEvent{time: j.ArrivalTime, Job: j})
	}
}

// Run drains the event queue until it is empty or the horizon is reached.
func (s *Simulator) Run() {
	for s.events.Len() > 0 {
		next := s.events.Peek()
		if next.Timestamp() > s.Horizon {
			break
		}
		ev := s.events.PopNext()
		s.Clock = ev.Timestamp()
		ev.Execute(s)
	}
	logrus.Infof("[t=%07.2f] simulation ended (%d jobs completed)", s.Clock, s.Metrics.JobsCompleted)
}

func (s *Simulator) publish(ev MirrorEvent) {
	s.Sink.Publish(ev)
}

func (s *Simulator) handleArrival(j *Job) {
	s.Jobs[j.ID] = j
	s.Metrics.JobsArrived++
	s.Collector.RecordArrival()
	s.publish(MirrorEvent{
		Type: EventOrderArrived, Time: s.Clock, JobID: j.ID,
		MachineID: -1, OperationIndex: -1,
		DueDate: j.DueDate, Operations: j.Operations,
	})
	s.startNextOperation(j, -1)
}

// startNextOperation advances a job to its next operation: completing the
// job if none remain, negotiating an assignment in negotiated mode, or
// queueing on a machine of the required type otherwise. excludeMachine
// (>= 0) is left out of re-negotiation after a failure.
func (s *Simulator) startNextOperation(j *Job, excludeMachine int) {
	op, ok := j.NextOperation()
	if !ok {
		s.completeJob(j)
		return
	}
	if s.Negotiator != nil {
		s.negotiate(j, op, excludeMachine)
		return
	}
	m := s.routeToMachine(op.MachineType)
	if m == nil {
		logrus.Warnf("[t=%07.2f] no machine of type %d for Job%d op %d; deferring", s.Clock, op.MachineType, j.ID, j.NextOp)
		s.park(j)
		return
	}
	m.Enqueue(j)
	s.dispatch(m)
}

// routeToMachine picks the machine of the given type with the shortest
// queue, preferring machines that are not failed; ties go to the lowest ID.
func (s *Simulator) routeToMachine(machineType int) *Machine {
	var best *Machine
	better := func(c, b *Machine) bool {
		if b == nil {
			return true
		}
		cf, bf := c.Status == MachineFailed, b.Status == MachineFailed
		if cf != bf {
			return bf
		}
		return len(c.Queue) < len(b.Queue)
	}
	for _, m := range s.Machines {
		if m.Type == machineType && better(m, best) {
			best = m
		}
	}
	return best
}

// dispatch asks the policy for the next job on an idle machine.
func (s *Simulator) dispatch(m *Machine) {
	if m.Status != MachineIdle || len(m.Queue) == 0 {
		return
	}
	chosen := s.Policy.SelectNext(m.ID, m.Queue)
	if chosen == nil {
		return
	}
	m.RemoveQueued(chosen)
	s.beginOperation(m, chosen)
}

func (s *Simulator) beginOperation(m *Machine, j *Job) {
	op := j.Operations[j.NextOp]
	m.Status = MachineBusy
	m.runningJob = j
	m.runningOp = j.NextOp
	m.opStart = s.Clock
	j.State = JobProcessing
	s.publish(MirrorEvent{
		Type: EventMachineStarted, Time: s.Clock,
		JobID: j.ID, MachineID: m.ID, OperationIndex: j.NextOp,
	})
	logrus.Infof("[t=%07.2f] Job%d op %d STARTED on M%d (dur=%.2f)", s.Clock, j.ID, j.NextOp, m.ID, op.Duration)
	s.Schedule(&OperationEndEvent{time: s.Clock + op.Duration, MachineID: m.ID, Gen: m.runGen})
}

func (s *Simulator) handleOperationStart(j *Job, opIdx, machineID int, a *Assignment) {
	m := s.Machines[machineID]
	if m.Status == MachineFailed {
		// Failure handling voids assignments before their start events run;
		// if one slips through, drop the stale booking and run a fresh round
		// without the failed machine.
		logrus.Warnf("[t=%07.2f] M%d failed before confirmed start of Job%d op %d; re-negotiating", s.Clock, machineID, j.ID, opIdx)
		m.Timetable.Remove(j.ID, opIdx)
		s.removeAssignment(machineID, j.ID, opIdx)
		j.Assignment = nil
		s.startNextOperation(j, machineID)
		return
	}
	if m.Status == MachineBusy && m.runningJob != nil {
		// Back-to-back slots: this start shares its timestamp with the
		// running operation's end event, or the run was pushed out by a
		// repair. Defer the start until the current run is over; the end
		// event at that time was scheduled earlier and executes first.
		resume := m.opStart + m.runningJob.Operations[m.runningOp].Duration
		if resume < s.Clock {
			resume = s.Clock
		}
		s.Schedule(&OperationStartEvent{
			time: resume, Job: j, OpIndex: opIdx,
			MachineID: machineID, Assignment: a,
		})
		return
	}
	s.beginOperation(m, j)
}

func (s *Simulator) handleOperationEnd(m *Machine) {
	j := m.runningJob
	if j == nil {
		return
	}
	opIdx := m.runningOp
	op := j.Operations[opIdx]
	m.runningJob = nil
	m.Status = MachineIdle
	j.OpEndTimes[opIdx] = s.Clock
	j.NextOp = opIdx + 1
	m.Timetable.Remove(j.ID, opIdx)
	s.removeAssignment(m.ID, j.ID, opIdx)
	j.Assignment = nil
	s.publish(MirrorEvent{
		Type: EventMachineFinished, Time: s.Clock,
		JobID: j.ID, MachineID: m.ID, OperationIndex: opIdx,
	})
	logrus.Infof("[t=%07.2f] Job%d op %d COMPLETED on M%d", s.Clock, j.ID, opIdx, m.ID)

	if fp, ok := s.Policy.(FeedbackPolicy); ok {
		reward := -op.Duration - 2*math.Max(0, s.Clock-j.DueDate)
		fp.Feedback(m.ID, reward, m.Queue)
	}

	s.startNextOperation(j, -1)
	if s.Negotiator == nil {
		s.dispatch(m)
	}
}

func (s *Simulator) completeJob(j *Job) {
	j.State = JobCompleted
	j.CompletionTime = s.Clock
	s.Metrics.RecordCompletion(j)
	s.Collector.RecordCompletion(j.Tardiness())
	s.publish(MirrorEvent{
		Type: EventJobCompleted, Time: s.Clock, JobID: j.ID,
		MachineID: -1, OperationIndex: -1,
	})
	logrus.Infof("[t=%07.2f] Job%d COMPLETED (tardiness=%.2f)", s.Clock, j.ID, j.Tardiness())
}

func (s *Simulator) negotiate(j *Job, op Operation, excludeMachine int) {
	s.Metrics.NegotiationRounds++
	s.Collector.RecordNegotiation()
	req := NegotiationRequest{
		JobID:          j.ID,
		OperationIndex: j.NextOp,
		MachineType:    op.MachineType,
		Duration:       op.Duration,
		CurrentTime:    s.Clock,
		DueDate:        j.DueDate,
		ExcludeMachine: excludeMachine,
	}
	a, ok, err := s.Negotiator.Negotiate(context.Background(), req)
	if err != nil {
		logrus.Warnf("[t=%07.2f] negotiation error for Job%d op %d: %v; deferring", s.Clock, j.ID, j.NextOp, err)
		s.park(j)
		return
	}
	if !ok {
		s.Metrics.NoAssignmentRounds++
		s.Collector.RecordNoAssignment()
		logrus.Infof("[t=%07.2f] no assignment for Job%d op %d; deferring until repair", s.Clock, j.ID, j.NextOp)
		s.park(j)
		return
	}
	j.Assignment = a
	s.assignments[a.MachineID] = append(s.assignments[a.MachineID], a)
	s.Machines[a.MachineID].Timetable.Insert(BookedSlot{
		JobID: j.ID, OperationIndex: j.NextOp,
		Start: a.ExpectedStart, End: a.ExpectedEnd,
	})
	logrus.Infof("[t=%07.2f] Job%d op %d assigned to M%d [%.2f-%.2f]", s.Clock, j.ID, j.NextOp, a.MachineID, a.ExpectedStart, a.ExpectedEnd)
	start := math.Max(a.ExpectedStart, s.Clock)
	s.Schedule(&OperationStartEvent{
		time: start, Job: j, OpIndex: j.NextOp,
		MachineID: a.MachineID, Assignment: a,
	})
}

func (s *Simulator) removeAssignment(machineID, jobID, opIdx int) {
	list := s.assignments[machineID]
	for i, a := range list {
		if a.JobID == jobID && a.OperationIndex == opIdx {
			s.assignments[machineID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (s *Simulator) park(j *Job) {
	for _, p := range s.parked {
		if p == j {
			return
		}
	}
	s.parked = append(s.parked, j)
}

func (s *Simulator) handleMachineFailure(machineID int, repairDuration float64) {
	m := s.Machines[machineID]
	m.Status = MachineFailed
	m.runGen++
	m.Failures++
	m.lastFailure = s.Clock
	s.Metrics.MachineFailures++
	s.Collector.RecordFailure()
	interrupted := m.runningJob
	m.runningJob = nil
	voided := m.Timetable.Clear()
	s.publish(MirrorEvent{
		Type: EventMachineFailed, Time: s.Clock,
		JobID: -1, MachineID: machineID, OperationIndex: -1,
	})
	logrus.Warnf("[t=%07.2f] M%d FAILED (repair=%.2f, %d pending slots voided)", s.Clock, machineID, repairDuration, voided)
	s.Schedule(&MachineRepairEvent{time: s.Clock + repairDuration, MachineID: machineID})

	pending := s.assignments[machineID]
	delete(s.assignments, machineID)
	for _, a := range pending {
		a.Voided = true
	}
	if interrupted != nil {
		// Mid-execution failure: the operation restarts from scratch on
		// another machine of the same type, via a full negotiation round.
		interrupted.Assignment = nil
		s.startNextOperation(interrupted, machineID)
	}
	for _, a := range pending {
		job := s.Jobs[a.JobID]
		if job == nil || job == interrupted {
			continue
		}
		job.Assignment = nil
		s.startNextOperation(job, machineID)
	}
}

func (s *Simulator) handleMachineRepair(machineID int) {
	m := s.Machines[machineID]
	m.Status = MachineIdle
	m.TotalDowntime += s.Clock - m.lastFailure
	s.Metrics.MachineRepairs++
	s.Collector.RecordRepair()
	s.publish(MirrorEvent{
		Type: EventMachineRepaired, Time: s.Clock,
		JobID: -1, MachineID: machineID, OperationIndex: -1,
	})
	logrus.Infof("[t=%07.2f] M%d REPAIRED (downtime=%.2f)", s.Clock, machineID, s.Clock-m.lastFailure)
	s.scheduleNextFailure(m)
	if s.Negotiator != nil {
		s.retryParked(m.Type)
	} else {
		s.dispatch(m)
	}
}

func (s *Simulator) scheduleNextFailure(m *Machine) {
	if s.reliability == nil {
		return
	}
	rng := s.rng.ForSubsystem(SubsystemMachine(m.ID))
	at := s.Clock + expDraw(rng, s.reliability.MTBF)
	repair := drawRepairDuration(rng, s.reliability.MTTR)
	s.Schedule(&MachineFailureEvent{time: at, MachineID: m.ID, RepairDuration: repair})
}

// retryParked re-attempts dispatch for parked jobs whose next operation runs
// on the given machine type.
func (s *Simulator) retryParked(machineType int) {
	pending := s.parked
	s.parked = nil
	for _, j := range pending {
		op, ok := j.NextOperation()
		if !ok {
			continue
		}
		if op.MachineType == machineType {
			s.startNextOperation(j, -1)
		} else {
			s.parked = append(s.parked, j)
		}
	}
}
