package workload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTaillard = `
# two toy instances
instance tiny
2 3
0 5 1 3
2 4 0 2

instance other
1 2
1 6
`

func TestParseTaillard_FirstInstance(t *testing.T) {
	jobs, err := ParseTaillard(strings.NewReader(sampleTaillard), "", 1.5)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	j := jobs[0]
	require.Len(t, j.Operations, 2)
	assert.Equal(t, 0, j.Operations[0].MachineType)
	assert.Equal(t, 5.0, j.Operations[0].Duration)
	assert.Equal(t, 1, j.Operations[1].MachineType)
	assert.Equal(t, 3.0, j.Operations[1].Duration)
	assert.Equal(t, 0.0, j.ArrivalTime)
	assert.InDelta(t, 1.5*8, j.DueDate, 1e-9)
}

func TestParseTaillard_NamedInstance(t *testing.T) {
	jobs, err := ParseTaillard(strings.NewReader(sampleTaillard), "other", 2)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Operations[0].MachineType)
	assert.Equal(t, 6.0, jobs[0].Operations[0].Duration)
}

func TestParseTaillard_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "missing instance", input: sampleTaillard, want: "not found"},
		{name: "empty input", input: "", want: "no instance"},
		{name: "bad header", input: "instance x\n2\n", want: "header"},
		{name: "short rows", input: "instance x\n2 2\n0 5\n", want: "job rows"},
		{name: "odd fields", input: "instance x\n1 2\n0 5 1\n", want: "pairs"},
		{name: "machine out of range", input: "instance x\n1 2\n5 4\n", want: "out of range"},
		{name: "bad duration", input: "instance x\n1 2\n0 -3\n", want: "duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := ""
			if tt.name == "missing instance" {
				name = "nope"
			}
			_, err := ParseTaillard(strings.NewReader(tt.input), name, 1.5)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
