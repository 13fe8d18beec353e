package sim

import "context"

// NegotiationRequest describes one job operation awaiting assignment. It is
// the engine-side view of a Call-For-Proposal.
type NegotiationRequest struct {
	JobID          int
	OperationIndex int
	MachineType    int
	Duration       float64
	CurrentTime    float64
	DueDate        float64

	// ExcludeMachine names a machine to leave out of the round, typically
	// the one that just failed mid-flight. -1 excludes nothing.
	ExcludeMachine int
}

// Negotiator allocates one operation to one machine among competing
// candidates. The boolean result distinguishes "no assignment" (zero
// eligible responders, all refused, or the round timed out empty) from a
// confirmed assignment; "no assignment" is a normal outcome, not an error.
// Cancelling ctx abandons the round without sending an Accept.
type Negotiator interface {
	Negotiate(ctx context.Context, req NegotiationRequest) (*Assignment, bool, error)
}
