package cnp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name        string
		expectedEnd float64
		dueDate     float64
		want        float64
	}{
		{name: "late proposal pays penalty", expectedEnd: 12, dueDate: 10, want: 9.6},
		{name: "on-time proposal pays none", expectedEnd: 8, dueDate: 10, want: 5.6},
		{name: "exactly on due date", expectedEnd: 10, dueDate: 10, want: 7.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.expectedEnd, tt.dueDate), 1e-9)
		})
	}
}

// The earlier finisher must win even when both proposals are on time.
func TestScore_OrdersProposals(t *testing.T) {
	m0 := Score(12, 10)
	m1 := Score(9, 10)
	assert.Less(t, m1, m0)
}
