// Package cnp implements a Contract-Net negotiation layer over the shop's
// machines. Each machine runs a responder goroutine that owns a mirror of the
// machine's timetable; an initiator fans a call-for-proposal out to every
// responder of the required type, ranks the answers, and awards the work to
// the best bidder with revalidation at confirm time.
package cnp

// CallForProposal announces one operation that needs a machine.
type CallForProposal struct {
	RoundID        string  `json:"round_id"`
	JobID          int     `json:"job_id"`
	OperationIndex int     `json:"operation_index"`
	MachineType    int     `json:"machine_type"`
	Duration       float64 `json:"duration"`
	CurrentTime    float64 `json:"current_time"`
	DueDate        float64 `json:"due_date"`
}

// Proposal is a machine's bid for the announced operation.
type Proposal struct {
	RoundID       string  `json:"round_id"`
	MachineID     int     `json:"machine_id"`
	ExpectedStart float64 `json:"expected_start"`
	ExpectedEnd   float64 `json:"expected_end"`
}

// Refusal declines to bid.
type Refusal struct {
	RoundID   string `json:"round_id"`
	MachineID int    `json:"machine_id"`
	Reason    string `json:"reason"`
}

// Accept awards the operation to one bidder. The proposed window is carried
// back so the responder can revalidate it against its current timetable.
type Accept struct {
	RoundID        string  `json:"round_id"`
	JobID          int     `json:"job_id"`
	OperationIndex int     `json:"operation_index"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	CurrentTime    float64 `json:"current_time"`
}

// Reject tells a losing bidder its proposal was not selected. Proposals never
// reserve the window, so the responder has nothing to release; the message
// closes the round on its side.
type Reject struct {
	RoundID   string `json:"round_id"`
	MachineID int    `json:"machine_id"`
}

// Confirmation statuses.
const (
	StatusConfirmed = "confirmed"
	StatusFailure   = "failure"
)

// Confirmation is the responder's answer to an Accept: either the slot is
// booked, or the award failed revalidation and the initiator must fall back.
type Confirmation struct {
	RoundID string `json:"round_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

// Confirmed reports whether the award was booked.
func (c Confirmation) Confirmed() bool { return c.Status == StatusConfirmed }
