package bus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobshop-sim/jobshop-sim/sim"
	"github.com/jobshop-sim/jobshop-sim/sim/cnp"
	"github.com/jobshop-sim/jobshop-sim/sim/qlearn"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	machines := []*sim.Machine{sim.NewMachine(0, 0), sim.NewMachine(1, 1)}
	reg := cnp.NewRegistry(machines)
	t.Cleanup(reg.Close)
	agent := qlearn.NewAgent(qlearn.NewMemoryStore(), nil)
	agent.Epsilon = 0
	return NewRuntime(reg, cnp.NewInitiator(reg, nil, nil), agent)
}

func handleJSON(t *testing.T, rt *Runtime, req string) map[string]interface{} {
	t.Helper()
	reply := rt.Handle([]byte(req))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(reply, &out), "reply must be JSON: %s", reply)
	return out
}

func TestRuntime_DecideEmptyQueueAllows(t *testing.T) {
	rt := newTestRuntime(t)
	out := handleJSON(t, rt, `{"type":"decide","machine_id":0,"queue":[]}`)
	assert.Equal(t, true, out["allow"])
}

func TestRuntime_DecideSelectsJob(t *testing.T) {
	rt := newTestRuntime(t)
	out := handleJSON(t, rt, `{"type":"decide","machine_id":0,"queue":[
		{"job_id":4,"next_op_duration":3.0},
		{"job_id":9,"next_op_duration":8.0}]}`)
	// untrained greedy agent picks the first queued job
	assert.Equal(t, float64(4), out["selected_job"])
}

func TestRuntime_FeedbackUpdatesTable(t *testing.T) {
	rt := newTestRuntime(t)
	out := handleJSON(t, rt, `{"type":"feedback","machine_id":0,
		"queue":[{"job_id":4,"next_op_duration":3.0}],
		"action":0,"reward":-5.0,"next_state":[],"next_actions":[]}`)
	assert.Equal(t, true, out["ok"])
}

// Decide and feedback must share one action space: positions in the queue.
// Rewarding position 1 has to flip a greedy decide for the same queue to the
// job sitting at that position.
func TestRuntime_FeedbackShapesDecide(t *testing.T) {
	rt := newTestRuntime(t)
	queue := `[{"job_id":100,"next_op_duration":5.0},{"job_id":101,"next_op_duration":5.0}]`
	for i := 0; i < 50; i++ {
		out := handleJSON(t, rt, `{"type":"feedback","machine_id":0,"queue":`+queue+`,
			"action":1,"reward":100,"next_state":[],"next_actions":[]}`)
		require.Equal(t, true, out["ok"])
	}
	out := handleJSON(t, rt, `{"type":"decide","machine_id":0,"queue":`+queue+`}`)
	assert.Equal(t, float64(101), out["selected_job"])
}

func TestRuntime_EventAcknowledged(t *testing.T) {
	rt := newTestRuntime(t)
	out := handleJSON(t, rt, `{"type":"event","event_type":"MACHINE_FAILED","time":4,"machine_id":0,"job_id":-1,"operation_index":-1}`)
	assert.Equal(t, "ok", out["status"])

	// failed machine now refuses proposals through get_machine_status
	out = handleJSON(t, rt, `{"action":"get_machine_status","machine_id":0}`)
	assert.Equal(t, "FAILED", out["machine_status"])
}

// Raw events may omit IDs; the zero value must not be read as "job 0" or
// "machine 0".
func TestRuntime_EventWithoutIDsTouchesNothing(t *testing.T) {
	rt := newTestRuntime(t)
	require.Equal(t, "ok", handleJSON(t, rt, `{"action":"create_order_agent","job_id":0,
		"operations":[{"machine_type":0,"duration":5}],"due_date":20,"arrival_time":0}`)["status"])

	out := handleJSON(t, rt, `{"type":"event","event_type":"JOB_COMPLETED","time":5}`)
	require.Equal(t, "ok", out["status"])
	rt.mu.Lock()
	state := rt.orders[0].State
	rt.mu.Unlock()
	assert.Equal(t, sim.JobCreated, state, "an event without job_id must not complete order 0")

	out = handleJSON(t, rt, `{"type":"event","event_type":"MACHINE_FAILED","time":5}`)
	require.Equal(t, "ok", out["status"])
	assert.Equal(t, "IDLE", handleJSON(t, rt, `{"action":"get_machine_status","machine_id":0}`)["machine_status"],
		"an event without machine_id must not fail machine 0")
}

func TestRuntime_ErrorPayloads(t *testing.T) {
	rt := newTestRuntime(t)
	tests := []struct {
		name string
		req  string
	}{
		{name: "unknown type", req: `{"type":"telemetry"}`},
		{name: "unknown action", req: `{"action":"destroy_shop"}`},
		{name: "unknown event type", req: `{"type":"event","event_type":"MACHINE_EXPLODED"}`},
		{name: "decide missing machine_id", req: `{"type":"decide","queue":[]}`},
		{name: "feedback missing reward", req: `{"type":"feedback","machine_id":0,"action":1}`},
		{name: "feedback action out of range", req: `{"type":"feedback","machine_id":0,"action":2,"reward":-1,
			"queue":[{"job_id":4,"next_op_duration":3.0}],"next_state":[],"next_actions":[]}`},
		{name: "negotiation missing fields", req: `{"action":"cnp_negotiation","job_id":1}`},
		{name: "status missing machine_id", req: `{"action":"get_machine_status"}`},
		{name: "status unknown machine", req: `{"action":"get_machine_status","machine_id":99}`},
		{name: "not json", req: `{{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := handleJSON(t, rt, tt.req)
			assert.Equal(t, "error", out["status"], "request %s must yield an error payload", tt.req)
			assert.NotEmpty(t, out["message"])
		})
	}
}

func TestRuntime_CreateOrderAndNegotiate(t *testing.T) {
	rt := newTestRuntime(t)

	out := handleJSON(t, rt, `{"action":"create_order_agent","job_id":7,
		"operations":[{"machine_type":0,"duration":5}],"due_date":20,"arrival_time":0}`)
	require.Equal(t, "ok", out["status"])

	out = handleJSON(t, rt, `{"action":"cnp_negotiation","job_id":7,"operation_index":0,
		"machine_type":0,"duration":5,"current_time":0,"due_date":20}`)
	require.Equal(t, "success", out["status"])
	a := out["assignment"].(map[string]interface{})
	assert.Equal(t, float64(0), a["machine_id"])
	assert.Equal(t, float64(0), a["expected_start"])
	assert.Equal(t, float64(5), a["expected_end"])
}

func TestRuntime_NegotiationNoAssignment(t *testing.T) {
	rt := newTestRuntime(t)
	out := handleJSON(t, rt, `{"action":"cnp_negotiation","job_id":7,"operation_index":0,
		"machine_type":9,"duration":5,"current_time":0,"due_date":20}`)
	assert.Equal(t, "no_assignment", out["status"])
}

func TestRuntime_OperationFailureExcludesMachine(t *testing.T) {
	rt := newTestRuntime(t)
	// only machine of type 0 is excluded: no assignment possible
	out := handleJSON(t, rt, `{"action":"operation_failure","job_id":7,"operation_index":0,
		"machine_type":0,"duration":5,"current_time":2,"due_date":20,"failed_machine":0}`)
	assert.Equal(t, "no_assignment", out["status"])
}

func TestRuntime_OperationLifecycleMirrors(t *testing.T) {
	rt := newTestRuntime(t)
	require.Equal(t, "success", handleJSON(t, rt, `{"action":"cnp_negotiation","job_id":3,"operation_index":0,
		"machine_type":0,"duration":4,"current_time":0,"due_date":20}`)["status"])

	out := handleJSON(t, rt, `{"action":"operation_start","job_id":3,"operation_index":0,"machine_id":0,"time":0}`)
	require.Equal(t, "ok", out["status"])
	assert.Equal(t, "BUSY", handleJSON(t, rt, `{"action":"get_machine_status","machine_id":0}`)["machine_status"])

	out = handleJSON(t, rt, `{"action":"operation_complete","job_id":3,"operation_index":0,"machine_id":0,"time":4}`)
	require.Equal(t, "ok", out["status"])
	status := handleJSON(t, rt, `{"action":"get_machine_status","machine_id":0}`)
	assert.Equal(t, "IDLE", status["machine_status"])
	assert.Empty(t, status["schedule"])
}

func TestRuntime_MachineFailureAndRepairActions(t *testing.T) {
	rt := newTestRuntime(t)
	require.Equal(t, "ok", handleJSON(t, rt, `{"action":"machine_failure","machine_id":1,"time":3}`)["status"])
	assert.Equal(t, "FAILED", handleJSON(t, rt, `{"action":"get_machine_status","machine_id":1}`)["machine_status"])
	require.Equal(t, "ok", handleJSON(t, rt, `{"action":"machine_repair","machine_id":1,"time":9}`)["status"])
	assert.Equal(t, "IDLE", handleJSON(t, rt, `{"action":"get_machine_status","machine_id":1}`)["machine_status"])
}

// TestRemoteCoordinator_RoundTrip drives the engine-side client against the
// runtime over the in-process transport.
func TestRemoteCoordinator_RoundTrip(t *testing.T) {
	rt := newTestRuntime(t)
	coord := NewRemoteCoordinator(NewInprocBus(rt))
	defer coord.Close()

	coord.Publish(sim.MirrorEvent{
		Type: sim.EventOrderArrived, Time: 0, JobID: 5, MachineID: -1, OperationIndex: -1,
		DueDate: 30, Operations: []sim.Operation{{MachineType: 0, Duration: 6}},
	})

	a, ok, err := coord.Negotiate(context.Background(), sim.NegotiationRequest{
		JobID: 5, OperationIndex: 0, MachineType: 0, Duration: 6,
		CurrentTime: 0, DueDate: 30, ExcludeMachine: -1,
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, a.MachineID)
	assert.Equal(t, 6.0, a.ExpectedEnd)

	_, ok, err = coord.Negotiate(context.Background(), sim.NegotiationRequest{
		JobID: 5, OperationIndex: 0, MachineType: 0, Duration: 6,
		CurrentTime: 0, DueDate: 30, ExcludeMachine: 0,
	})
	require.NoError(t, err)
	assert.False(t, ok, "excluding the only type-0 machine yields no assignment")
}
