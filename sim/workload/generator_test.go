package workload

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		ArrivalRate:   0.5,
		MachineTypes:  4,
		MinOperations: 1,
		MaxOperations: 3,
		MinDuration:   2,
		MaxDuration:   9,
		DueDateSlack:  1.5,
	}
}

func TestGenerate_JobShape(t *testing.T) {
	jobs := Generate(testConfig(), 500, rand.New(rand.NewSource(42)))
	require.NotEmpty(t, jobs)

	prevArrival := 0.0
	for _, j := range jobs {
		assert.GreaterOrEqual(t, j.ArrivalTime, prevArrival, "arrivals must be ordered")
		assert.Less(t, j.ArrivalTime, 500.0)
		prevArrival = j.ArrivalTime

		require.NotEmpty(t, j.Operations)
		assert.LessOrEqual(t, len(j.Operations), 3)

		seen := map[int]bool{}
		for _, op := range j.Operations {
			assert.GreaterOrEqual(t, op.MachineType, 0)
			assert.Less(t, op.MachineType, 4)
			assert.False(t, seen[op.MachineType], "machine types are drawn without replacement")
			seen[op.MachineType] = true

			assert.GreaterOrEqual(t, op.Duration, 2.0)
			assert.LessOrEqual(t, op.Duration, 9.0)
			assert.Equal(t, op.Duration, float64(int(op.Duration)), "durations are integral")
		}
		assert.InDelta(t, j.ArrivalTime+1.5*j.TotalProcessingTime(), j.DueDate, 1e-9)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(testConfig(), 200, rand.New(rand.NewSource(7)))
	b := Generate(testConfig(), 200, rand.New(rand.NewSource(7)))
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ArrivalTime, b[i].ArrivalTime)
		assert.Equal(t, a[i].Operations, b[i].Operations)
	}
}

func TestGenerate_RateScalesVolume(t *testing.T) {
	slow := testConfig()
	slow.ArrivalRate = 0.05
	fast := testConfig()
	fast.ArrivalRate = 1.0
	nSlow := len(Generate(slow, 1000, rand.New(rand.NewSource(3))))
	nFast := len(Generate(fast, 1000, rand.New(rand.NewSource(3))))
	assert.Greater(t, nFast, nSlow)
}
