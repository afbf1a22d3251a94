package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageOfWindows(t *testing.T) {
	d := StageDurations{Approval: 10, Referendum: 20, Execution: 30}
	dequeued := uint64(100)

	cases := []struct {
		now      uint64
		expected Stage
	}{
		{100, StageApproval},
		{109, StageApproval},
		{110, StageReferendum}, // window boundaries belong to the later stage
		{129, StageReferendum},
		{130, StageExecution},
		{159, StageExecution},
		{160, StageExpired},
		{100000, StageExpired},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, stageOf(dequeued, tc.now, d), "now=%d", tc.now)
	}
}

func TestStageOfZeroDurations(t *testing.T) {
	// a zero-length window is skipped entirely
	d := StageDurations{Approval: 0, Referendum: 20, Execution: 0}
	assert.Equal(t, StageReferendum, stageOf(100, 100, d))
	assert.Equal(t, StageExpired, stageOf(100, 120, d))
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "queued", StageQueued.String())
	assert.Equal(t, "approval", StageApproval.String())
	assert.Equal(t, "referendum", StageReferendum.String())
	assert.Equal(t, "execution", StageExecution.String())
	assert.Equal(t, "expired", StageExpired.String())
	assert.Equal(t, "none", StageNone.String())
}
