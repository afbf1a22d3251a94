package core

// Stage is a proposal's lifecycle stage, derived purely from elapsed time
// since dequeue. It is never stored.
type Stage uint8

const (
	StageNone Stage = iota
	StageQueued
	StageApproval
	StageReferendum
	StageExecution
	StageExpired
)

func (s Stage) String() string {
	switch s {
	case StageQueued:
		return "queued"
	case StageApproval:
		return "approval"
	case StageReferendum:
		return "referendum"
	case StageExecution:
		return "execution"
	case StageExpired:
		return "expired"
	default:
		return "none"
	}
}

// StageDurations are the lengths of the post-dequeue windows, in seconds.
type StageDurations struct {
	Approval   uint64
	Referendum uint64
	Execution  uint64
}

// stageOf classifies a dequeued proposal. Windows are half-open: Approval
// covers [t, t+a), Referendum [t+a, t+a+r), Execution the following e
// seconds, Expired thereafter.
func stageOf(dequeueTime, now uint64, d StageDurations) Stage {
	switch {
	case now < dequeueTime+d.Approval:
		return StageApproval
	case now < dequeueTime+d.Approval+d.Referendum:
		return StageReferendum
	case now < dequeueTime+d.Approval+d.Referendum+d.Execution:
		return StageExecution
	default:
		return StageExpired
	}
}
