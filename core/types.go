package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoralabs/agora/fixed"
)

// VoteValue is a referendum vote choice.
type VoteValue uint8

const (
	VoteNone VoteValue = iota
	VoteAbstain
	VoteNo
	VoteYes
)

func (v VoteValue) String() string {
	switch v {
	case VoteAbstain:
		return "abstain"
	case VoteNo:
		return "no"
	case VoteYes:
		return "yes"
	default:
		return "none"
	}
}

// Transaction is a single call carried by a proposal. The list of
// transactions is fixed at proposal creation.
type Transaction struct {
	Value       *big.Int
	Destination common.Address
	Data        []byte
}

// Selector returns the 4-byte function selector of the call data, or the
// zero selector when the data is shorter than 4 bytes.
func (t Transaction) Selector() [4]byte {
	var sel [4]byte
	if len(t.Data) >= 4 {
		copy(sel[:], t.Data[:4])
	}
	return sel
}

// Proposal is a governance proposal record. Only Timestamp, Approved, the
// vote totals and the weight fields mutate after creation.
type Proposal struct {
	ID           uint64
	Transactions []Transaction
	Proposer     common.Address
	Deposit      *big.Int

	// Timestamp is the creation time while queued and is re-stamped to the
	// dequeue time on promotion, anchoring stage classification.
	Timestamp uint64

	Approved     bool
	YesVotes     *big.Int
	NoVotes      *big.Int
	AbstainVotes *big.Int

	// ApprovalWeight is the total voting weight snapshotted when the
	// approver acted, fixed thereafter. NetworkWeight starts equal to it
	// and is refreshed to the current total on every vote.
	ApprovalWeight *big.Int
	NetworkWeight  *big.Int
}

// Exists reports whether the record refers to a live proposal.
func (p *Proposal) Exists() bool {
	return p != nil && p.Proposer != (common.Address{})
}

// TotalVotes returns yes + no + abstain.
func (p *Proposal) TotalVotes() *big.Int {
	total := new(big.Int).Add(p.YesVotes, p.NoVotes)
	return total.Add(total, p.AbstainVotes)
}

// UpvoteRecord tracks an account's single active queue upvote.
type UpvoteRecord struct {
	ProposalID uint64
	Weight     *big.Int
}

// VoteRecord is an account's vote on a dequeued slot. The recorded weight
// is what gets reversed if the account revotes on the same slot.
type VoteRecord struct {
	ProposalID uint64
	Value      VoteValue
	Weight     *big.Int
}

// Voter is the per-account voting ledger entry.
type Voter struct {
	Upvote               UpvoteRecord
	MostRecentReferendum uint64
	ReferendumVotes      map[int]VoteRecord
}

func newVoter() *Voter {
	return &Voter{
		Upvote:          UpvoteRecord{Weight: new(big.Int)},
		ReferendumVotes: make(map[int]VoteRecord),
	}
}

// HotfixRecord holds the two-party attestation state for a hotfix hash.
// Executed is informational: execution is guarded by the hash commitment,
// and the whitelist entry is retained after execution.
type HotfixRecord struct {
	Approved bool
	Audited  bool
	Executed bool
}

// ParticipationParameters drive the adaptive quorum mechanism. Baseline is
// the initial value only; the live baseline is engine state.
type ParticipationParameters struct {
	Baseline     fixed.Fraction
	Floor        fixed.Fraction
	UpdateFactor fixed.Fraction
	QuorumFactor fixed.Fraction
}

// Params is the full engine configuration.
type Params struct {
	MinDeposit          *big.Int
	ConcurrentProposals int
	DequeueFrequency    uint64 // seconds
	QueueExpiry         uint64 // seconds
	Durations           StageDurations
	Approver            common.Address
	Auditor             common.Address
	Participation       ParticipationParameters
}
