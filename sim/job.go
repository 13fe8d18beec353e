// Defines jobs (orders) and their ordered operations. Operations are consumed
// strictly in sequence: operation i+1 cannot start before operation i has
// completed.

package sim

import "fmt"

// JobState represents the lifecycle state of a job.
type JobState string

const (
	JobCreated    JobState = "CREATED"
	JobProcessing JobState = "PROCESSING"
	JobCompleted  JobState = "COMPLETED"
)

// Operation is one atomic unit of work within a job, bound to a machine type
// and a processing duration. Immutable once created.
type Operation struct {
	MachineType int     `json:"machine_type" yaml:"machine_type"`
	Duration    float64 `json:"duration" yaml:"duration"`
}

// Job models one order moving through the shop.
type Job struct {
	ID          int
	Operations  []Operation
	ArrivalTime float64
	DueDate     float64

	State          JobState
	CompletionTime float64

	// NextOp indexes the first operation that has not completed yet.
	NextOp int

	// OpEndTimes records the completion time of each finished operation,
	// indexed by operation. Used to enforce the precedence invariant.
	OpEndTimes []float64

	// Assignment is the confirmed allocation for the operation currently
	// awaiting or undergoing execution; nil while unassigned.
	Assignment *Assignment
}

// NewJob creates a job in the CREATED state.
func NewJob(id int, ops []Operation, arrival, dueDate float64) *Job {
	return &Job{
		ID:          id,
		Operations:  ops,
		ArrivalTime: arrival,
		DueDate:     dueDate,
		State:       JobCreated,
		OpEndTimes:  make([]float64, len(ops)),
	}
}

// NextOperation returns the next unfinished operation, or false when the job
// has no operations left.
func (j *Job) NextOperation() (Operation, bool) {
	if j.NextOp >= len(j.Operations) {
		return Operation{}, false
	}
	return j.Operations[j.NextOp], true
}

// TotalProcessingTime is the sum of all operation durations.
func (j *Job) TotalProcessingTime() float64 {
	var total float64
	for _, op := range j.Operations {
		total += op.Duration
	}
	return total
}

// Tardiness is the amount by which completion exceeded the due date.
// Zero for jobs that finished on time or have not completed.
func (j *Job) Tardiness() float64 {
	if j.State != JobCompleted {
		return 0
	}
	if t := j.CompletionTime - j.DueDate; t > 0 {
		return t
	}
	return 0
}

func (j *Job) String() string {
	return fmt.Sprintf("Job%d(ops=%d, due=%.2f, state=%s)", j.ID, len(j.Operations), j.DueDate, j.State)
}

// Assignment binds one job operation to a machine with a negotiated time
// slot. Created when a negotiation round confirms; removed when the real
// execution completes or the machine fails before completion.
type Assignment struct {
	JobID          int
	OperationIndex int
	MachineID      int
	ExpectedStart  float64
	ExpectedEnd    float64

	// Voided marks an assignment invalidated by a machine failure before
	// the operation started. A voided assignment's start event is a no-op.
	Voided bool
}
