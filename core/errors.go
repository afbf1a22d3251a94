package core

import "errors"

// Precondition violations. These abort the call with no state change.
var (
	ErrDepositTooSmall    = errors.New("deposit is below the proposal minimum")
	ErrNoTransactions     = errors.New("proposal contains no transactions")
	ErrProposalNotQueued  = errors.New("proposal is not in the queue")
	ErrAlreadyUpvoting    = errors.New("account already has an active upvote")
	ErrNoActiveUpvote     = errors.New("account has no active upvote")
	ErrZeroWeight         = errors.New("account has no voting weight")
	ErrVotingFrozen       = errors.New("account voting is frozen")
	ErrNotApprover        = errors.New("caller is not the approver")
	ErrNotAuditor         = errors.New("caller is not the auditor")
	ErrAlreadyApproved    = errors.New("proposal is already approved")
	ErrNotApproved        = errors.New("proposal is not approved")
	ErrIncorrectStage     = errors.New("proposal is not in the required stage")
	ErrIndexMismatch      = errors.New("proposal does not occupy the given index")
	ErrInvalidVoteValue   = errors.New("invalid vote value")
	ErrProposalNotPassing = errors.New("proposal is not passing")
	ErrNothingToWithdraw  = errors.New("no refund balance to withdraw")
	ErrReentrantCall      = errors.New("reentrant call into governance")
	ErrInvalidThreshold   = errors.New("constitution threshold must be in [1/2, 1)")
	ErrHotfixNotApproved  = errors.New("hotfix has no approver attestation")
	ErrHotfixNotAudited   = errors.New("hotfix has no auditor attestation")
	ErrBundleMismatch     = errors.New("hotfix bundle arrays have mismatched lengths")
)

// Queue errors.
var (
	ErrQueueEntryExists  = errors.New("queue already contains the proposal")
	ErrQueueEntryMissing = errors.New("queue does not contain the proposal")
	ErrInvalidHint       = errors.New("ordering hint is not adjacent to the target position")
	ErrWeightUnderflow   = errors.New("weight decrease exceeds current weight")
)
