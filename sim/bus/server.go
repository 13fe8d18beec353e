package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jobshop-sim/jobshop-sim/sim"
	"github.com/jobshop-sim/jobshop-sim/sim/cnp"
	"github.com/jobshop-sim/jobshop-sim/sim/qlearn"
)

// Runtime serves the scheduler's request/reply surface: decide and feedback
// against the learning agent, state-mirroring events into the responder
// registry, and the Contract-Net actions. Malformed requests are answered
// with an error payload and never mutate state.
type Runtime struct {
	registry   *cnp.Registry
	negotiator sim.Negotiator
	agent      *qlearn.Agent

	mu     sync.Mutex
	orders map[int]*sim.Job
}

// NewRuntime builds a runtime. Any collaborator may be nil; requests that
// need a missing one get an error payload.
func NewRuntime(registry *cnp.Registry, negotiator sim.Negotiator, agent *qlearn.Agent) *Runtime {
	return &Runtime{
		registry:   registry,
		negotiator: negotiator,
		agent:      agent,
		orders:     make(map[int]*sim.Job),
	}
}

// envelope sniffs the routing fields. Action is raw because the feedback
// payload reuses the key "action" for its numeric chosen action.
type envelope struct {
	Type   string          `json:"type"`
	Action json.RawMessage `json:"action"`
}

// Handle dispatches one JSON request by type, then by action.
func (rt *Runtime) Handle(req []byte) []byte {
	var env envelope
	if err := json.Unmarshal(req, &env); err != nil {
		return errorResponse("malformed request: %v", err)
	}
	switch env.Type {
	case "decide":
		return rt.handleDecide(req)
	case "feedback":
		return rt.handleFeedback(req)
	case "event":
		return rt.handleEvent(req)
	case "":
	default:
		return errorResponse("unknown message type %q", env.Type)
	}

	var action string
	if len(env.Action) == 0 || json.Unmarshal(env.Action, &action) != nil {
		return errorResponse("request has neither a known type nor a string action")
	}
	switch action {
	case "create_order_agent":
		return rt.handleCreateOrder(req)
	case "cnp_negotiation":
		return rt.handleNegotiation(req, -1)
	case "operation_start":
		return rt.handleOperationStart(req)
	case "operation_complete":
		return rt.handleOperationComplete(req)
	case "operation_failure":
		return rt.handleOperationFailure(req)
	case "machine_failure":
		return rt.handleMachineEvent(req, sim.EventMachineFailed)
	case "machine_repair":
		return rt.handleMachineEvent(req, sim.EventMachineRepaired)
	case "get_machine_status":
		return rt.handleMachineStatus(req)
	}
	return errorResponse("unknown action %q", action)
}

type queueEntry struct {
	JobID          *int     `json:"job_id"`
	NextOpDuration *float64 `json:"next_op_duration"`
}

func queueStats(entries []queueEntry) (ids []int, durations []float64, ok bool) {
	for _, e := range entries {
		if e.JobID == nil || e.NextOpDuration == nil {
			return nil, nil, false
		}
		ids = append(ids, *e.JobID)
		durations = append(durations, *e.NextOpDuration)
	}
	return ids, durations, true
}

func (rt *Runtime) handleDecide(req []byte) []byte {
	if rt.agent == nil {
		return errorResponse("no learning agent configured")
	}
	var r struct {
		MachineID *int         `json:"machine_id"`
		Queue     []queueEntry `json:"queue"`
	}
	if err := json.Unmarshal(req, &r); err != nil {
		return errorResponse("malformed decide request: %v", err)
	}
	if r.MachineID == nil {
		return errorResponse("decide: missing machine_id")
	}
	if len(r.Queue) == 0 {
		return mustMarshal(map[string]interface{}{"allow": true})
	}
	ids, durations, ok := queueStats(r.Queue)
	if !ok {
		return errorResponse("decide: queue entries need job_id and next_op_duration")
	}
	// The agent acts on queue positions; the job ID is resolved only for the
	// reply. Feedback later arrives keyed by the same position.
	actions := make([]int, len(r.Queue))
	for i := range actions {
		actions[i] = i
	}
	rt.mu.Lock()
	state := qlearn.SerializeDurations(*r.MachineID, durations)
	selected := rt.agent.SelectAction(state, actions)
	rt.mu.Unlock()
	if selected < 0 || selected >= len(ids) {
		return errorResponse("decide: agent returned no action")
	}
	return mustMarshal(map[string]interface{}{"selected_job": ids[selected]})
}

func (rt *Runtime) handleFeedback(req []byte) []byte {
	if rt.agent == nil {
		return errorResponse("no learning agent configured")
	}
	var r struct {
		MachineID   *int         `json:"machine_id"`
		Queue       []queueEntry `json:"queue"`
		Action      *int         `json:"action"`
		Reward      *float64     `json:"reward"`
		NextState   []queueEntry `json:"next_state"`
		NextActions []int        `json:"next_actions"`
	}
	if err := json.Unmarshal(req, &r); err != nil {
		return errorResponse("malformed feedback request: %v", err)
	}
	if r.MachineID == nil || r.Action == nil || r.Reward == nil {
		return errorResponse("feedback: missing machine_id, action, or reward")
	}
	if *r.Action < 0 || *r.Action >= len(r.Queue) {
		return errorResponse("feedback: action %d out of range for queue of %d", *r.Action, len(r.Queue))
	}
	_, durations, ok := queueStats(r.Queue)
	if !ok {
		return errorResponse("feedback: queue entries need job_id and next_op_duration")
	}
	_, nextDurations, ok := queueStats(r.NextState)
	if !ok {
		return errorResponse("feedback: next_state entries need job_id and next_op_duration")
	}
	rt.mu.Lock()
	state := qlearn.SerializeDurations(*r.MachineID, durations)
	nextState := qlearn.SerializeDurations(*r.MachineID, nextDurations)
	rt.agent.Update(state, *r.Action, *r.Reward, nextState, r.NextActions)
	rt.mu.Unlock()
	return mustMarshal(map[string]interface{}{"ok": true})
}

func (rt *Runtime) handleEvent(req []byte) []byte {
	// Absent IDs must not alias job 0 or machine 0; -1 matches nothing.
	ev := sim.MirrorEvent{JobID: -1, MachineID: -1, OperationIndex: -1}
	if err := json.Unmarshal(req, &ev); err != nil {
		return errorResponse("malformed event: %v", err)
	}
	if !sim.KnownEventType(ev.Type) {
		return errorResponse("unknown event_type %q", ev.Type)
	}
	if rt.registry != nil {
		rt.registry.Publish(ev)
	}
	rt.trackEvent(ev)
	return mustMarshal(map[string]interface{}{"status": "ok"})
}

// trackEvent keeps the order book in step with mirrored execution events.
func (rt *Runtime) trackEvent(ev sim.MirrorEvent) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	j, ok := rt.orders[ev.JobID]
	if !ok {
		return
	}
	switch ev.Type {
	case sim.EventMachineStarted:
		j.State = sim.JobProcessing
	case sim.EventMachineFinished:
		if ev.OperationIndex >= 0 && ev.OperationIndex < len(j.OpEndTimes) {
			j.OpEndTimes[ev.OperationIndex] = ev.Time
			j.NextOp = ev.OperationIndex + 1
		}
	case sim.EventJobCompleted:
		j.State = sim.JobCompleted
		j.CompletionTime = ev.Time
	}
}

func (rt *Runtime) handleCreateOrder(req []byte) []byte {
	var r struct {
		JobID       *int            `json:"job_id"`
		Operations  []sim.Operation `json:"operations"`
		DueDate     *float64        `json:"due_date"`
		ArrivalTime float64         `json:"arrival_time"`
	}
	if err := json.Unmarshal(req, &r); err != nil {
		return errorResponse("malformed create_order_agent request: %v", err)
	}
	if r.JobID == nil || r.DueDate == nil || len(r.Operations) == 0 {
		return errorResponse("create_order_agent: missing job_id, due_date, or operations")
	}
	j := sim.NewJob(*r.JobID, r.Operations, r.ArrivalTime, *r.DueDate)
	rt.mu.Lock()
	rt.orders[j.ID] = j
	rt.mu.Unlock()
	logrus.Debugf("order agent created for Job%d (%d ops, due=%.2f)", j.ID, len(j.Operations), j.DueDate)
	return mustMarshal(map[string]interface{}{"status": "ok", "job_id": j.ID})
}

type negotiationPayload struct {
	JobID          *int     `json:"job_id"`
	OperationIndex *int     `json:"operation_index"`
	MachineType    *int     `json:"machine_type"`
	Duration       *float64 `json:"duration"`
	CurrentTime    *float64 `json:"current_time"`
	DueDate        *float64 `json:"due_date"`
	FailedMachine  *int     `json:"failed_machine"`
}

func (rt *Runtime) handleNegotiation(req []byte, exclude int) []byte {
	if rt.negotiator == nil {
		return errorResponse("no negotiator configured")
	}
	var r negotiationPayload
	if err := json.Unmarshal(req, &r); err != nil {
		return errorResponse("malformed negotiation request: %v", err)
	}
	if r.JobID == nil || r.OperationIndex == nil || r.MachineType == nil ||
		r.Duration == nil || r.CurrentTime == nil || r.DueDate == nil {
		return errorResponse("negotiation: missing required field")
	}
	if r.FailedMachine != nil {
		exclude = *r.FailedMachine
	}
	a, ok, err := rt.negotiator.Negotiate(context.Background(), sim.NegotiationRequest{
		JobID:          *r.JobID,
		OperationIndex: *r.OperationIndex,
		MachineType:    *r.MachineType,
		Duration:       *r.Duration,
		CurrentTime:    *r.CurrentTime,
		DueDate:        *r.DueDate,
		ExcludeMachine: exclude,
	})
	if err != nil {
		return errorResponse("negotiation failed: %v", err)
	}
	if !ok {
		return mustMarshal(map[string]interface{}{"status": "no_assignment"})
	}
	return mustMarshal(map[string]interface{}{
		"status": "success",
		"assignment": map[string]interface{}{
			"machine_id":      a.MachineID,
			"job_id":          a.JobID,
			"operation_index": a.OperationIndex,
			"expected_start":  a.ExpectedStart,
			"expected_end":    a.ExpectedEnd,
		},
	})
}

func (rt *Runtime) handleOperationFailure(req []byte) []byte {
	return rt.handleNegotiation(req, -1)
}

type operationPayload struct {
	JobID          *int    `json:"job_id"`
	OperationIndex *int    `json:"operation_index"`
	MachineID      *int    `json:"machine_id"`
	Time           float64 `json:"time"`
}

func (rt *Runtime) handleOperationStart(req []byte) []byte {
	var r operationPayload
	if err := json.Unmarshal(req, &r); err != nil {
		return errorResponse("malformed operation_start request: %v", err)
	}
	if r.JobID == nil || r.OperationIndex == nil || r.MachineID == nil {
		return errorResponse("operation_start: missing job_id, operation_index, or machine_id")
	}
	return rt.handleEvent(mustMarshal(sim.MirrorEvent{
		Type: sim.EventMachineStarted, Time: r.Time,
		JobID: *r.JobID, MachineID: *r.MachineID, OperationIndex: *r.OperationIndex,
	}))
}

func (rt *Runtime) handleOperationComplete(req []byte) []byte {
	var r operationPayload
	if err := json.Unmarshal(req, &r); err != nil {
		return errorResponse("malformed operation_complete request: %v", err)
	}
	if r.JobID == nil || r.OperationIndex == nil || r.MachineID == nil {
		return errorResponse("operation_complete: missing job_id, operation_index, or machine_id")
	}
	return rt.handleEvent(mustMarshal(sim.MirrorEvent{
		Type: sim.EventMachineFinished, Time: r.Time,
		JobID: *r.JobID, MachineID: *r.MachineID, OperationIndex: *r.OperationIndex,
	}))
}

func (rt *Runtime) handleMachineEvent(req []byte, eventType string) []byte {
	var r struct {
		MachineID *int    `json:"machine_id"`
		Time      float64 `json:"time"`
	}
	if err := json.Unmarshal(req, &r); err != nil {
		return errorResponse("malformed machine event request: %v", err)
	}
	if r.MachineID == nil {
		return errorResponse("machine event: missing machine_id")
	}
	return rt.handleEvent(mustMarshal(sim.MirrorEvent{
		Type: eventType, Time: r.Time,
		JobID: -1, MachineID: *r.MachineID, OperationIndex: -1,
	}))
}

func (rt *Runtime) handleMachineStatus(req []byte) []byte {
	if rt.registry == nil {
		return errorResponse("no machine registry configured")
	}
	var r struct {
		MachineID *int `json:"machine_id"`
	}
	if err := json.Unmarshal(req, &r); err != nil {
		return errorResponse("malformed get_machine_status request: %v", err)
	}
	if r.MachineID == nil {
		return errorResponse("get_machine_status: missing machine_id")
	}
	responder := rt.registry.Get(*r.MachineID)
	if responder == nil {
		return errorResponse("no machine with id %d", *r.MachineID)
	}
	status, slots := responder.Status()
	schedule := make([]map[string]interface{}, len(slots))
	for i, s := range slots {
		schedule[i] = map[string]interface{}{
			"job_id":          s.JobID,
			"operation_index": s.OperationIndex,
			"start":           s.Start,
			"end":             s.End,
		}
	}
	return mustMarshal(map[string]interface{}{
		"status":         "ok",
		"machine_id":     *r.MachineID,
		"machine_status": string(status),
		"schedule":       schedule,
	})
}
