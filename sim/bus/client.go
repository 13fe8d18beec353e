package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jobshop-sim/jobshop-sim/sim"
)

// DefaultRequestTimeout bounds one request/reply exchange with the remote
// runtime.
const DefaultRequestTimeout = 10 * time.Second

// RemoteCoordinator runs the engine against a negotiation runtime reached
// over the bus. It mirrors engine events to the runtime and delegates
// negotiation rounds to it, implementing both sim.EventSink and
// sim.Negotiator.
type RemoteCoordinator struct {
	requester Requester
	timeout   time.Duration
}

// NewRemoteCoordinator wraps a requester.
func NewRemoteCoordinator(r Requester) *RemoteCoordinator {
	return &RemoteCoordinator{requester: r, timeout: DefaultRequestTimeout}
}

// Publish mirrors one engine event to the runtime. Order arrivals create an
// order agent there; everything else is a plain event message. Transport
// errors are logged and dropped so the run keeps going with a stale mirror.
func (c *RemoteCoordinator) Publish(ev sim.MirrorEvent) {
	var payload interface{}
	if ev.Type == sim.EventOrderArrived {
		payload = map[string]interface{}{
			"action":       "create_order_agent",
			"job_id":       ev.JobID,
			"operations":   ev.Operations,
			"due_date":     ev.DueDate,
			"arrival_time": ev.Time,
		}
	} else {
		withType := struct {
			Type string `json:"type"`
			sim.MirrorEvent
		}{Type: "event", MirrorEvent: ev}
		payload = withType
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		logrus.Warnf("bus: encoding %s event: %v", ev.Type, err)
		return
	}
	reply, err := c.requester.Request(buf, c.timeout)
	if err != nil {
		logrus.Warnf("bus: mirroring %s event failed: %v", ev.Type, err)
		return
	}
	var status struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if json.Unmarshal(reply, &status) == nil && status.Status == "error" {
		logrus.Warnf("bus: runtime rejected %s event: %s", ev.Type, status.Message)
	}
}

// Negotiate delegates a negotiation round to the remote runtime. Excluded
// machines route through the operation_failure action, fresh operations
// through cnp_negotiation.
func (c *RemoteCoordinator) Negotiate(ctx context.Context, req sim.NegotiationRequest) (*sim.Assignment, bool, error) {
	action := "cnp_negotiation"
	payload := map[string]interface{}{
		"job_id":          req.JobID,
		"operation_index": req.OperationIndex,
		"machine_type":    req.MachineType,
		"duration":        req.Duration,
		"current_time":    req.CurrentTime,
		"due_date":        req.DueDate,
	}
	if req.ExcludeMachine >= 0 {
		action = "operation_failure"
		payload["failed_machine"] = req.ExcludeMachine
	}
	payload["action"] = action

	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	reply, err := c.requester.Request(buf, timeout)
	if err != nil {
		return nil, false, err
	}

	var r struct {
		Status     string `json:"status"`
		Message    string `json:"message"`
		Assignment *struct {
			MachineID      int     `json:"machine_id"`
			JobID          int     `json:"job_id"`
			OperationIndex int     `json:"operation_index"`
			ExpectedStart  float64 `json:"expected_start"`
			ExpectedEnd    float64 `json:"expected_end"`
		} `json:"assignment"`
	}
	if err := json.Unmarshal(reply, &r); err != nil {
		return nil, false, fmt.Errorf("bus: decoding %s reply: %w", action, err)
	}
	switch r.Status {
	case "success":
		if r.Assignment == nil {
			return nil, false, fmt.Errorf("bus: %s reply reports success without assignment", action)
		}
		return &sim.Assignment{
			JobID:          r.Assignment.JobID,
			OperationIndex: r.Assignment.OperationIndex,
			MachineID:      r.Assignment.MachineID,
			ExpectedStart:  r.Assignment.ExpectedStart,
			ExpectedEnd:    r.Assignment.ExpectedEnd,
		}, true, nil
	case "no_assignment":
		return nil, false, nil
	case "error":
		return nil, false, fmt.Errorf("bus: runtime error: %s", r.Message)
	}
	return nil, false, fmt.Errorf("bus: unexpected %s reply status %q", action, r.Status)
}

// Close releases the underlying transport.
func (c *RemoteCoordinator) Close() error {
	return c.requester.Close()
}
