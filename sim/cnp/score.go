package cnp

import "math"

// Bid scoring weights. Lower scores win; ties break toward the lowest
// machine ID.
const (
	completionWeight = 0.7
	penaltyWeight    = 0.3
	tardinessFactor  = 2.0
)

// Score ranks a proposal: a weighted sum of the expected completion time and
// a tardiness penalty relative to the job's due date.
func Score(expectedEnd, dueDate float64) float64 {
	penalty := tardinessFactor * math.Max(0, expectedEnd-dueDate)
	return completionWeight*expectedEnd + penaltyWeight*penalty
}
