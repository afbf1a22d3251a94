package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoralabs/agora/fixed"
)

// Read-only accessors for dashboards and tooling. These take the shared
// lock and never advance the scheduler; lazy state advancement happens only
// on mutating entry points.

// StageDurations returns the configured stage windows.
func (g *Governance) StageDurations() StageDurations {
	return g.params.Durations
}

// Params returns a copy of the engine parameters.
func (g *Governance) Params() Params {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p := g.params
	p.MinDeposit = new(big.Int).Set(g.params.MinDeposit)
	return p
}

// Baseline returns the current adaptive participation baseline.
func (g *Governance) Baseline() fixed.Fraction {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.baseline
}

// ProposalExists reports whether a proposal record is live.
func (g *Governance) ProposalExists(id uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.proposals[id].Exists()
}

// GetProposal returns a deep copy of a proposal record.
func (g *Governance) GetProposal(id uint64) (Proposal, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p := g.proposals[id]
	if !p.Exists() {
		return Proposal{}, false
	}
	return copyProposal(p), true
}

// GetTransaction returns one of a proposal's transactions by position.
func (g *Governance) GetTransaction(id uint64, i int) (Transaction, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p := g.proposals[id]
	if !p.Exists() || i < 0 || i >= len(p.Transactions) {
		return Transaction{}, false
	}
	tx := p.Transactions[i]
	return Transaction{
		Value:       new(big.Int).Set(tx.Value),
		Destination: tx.Destination,
		Data:        append([]byte(nil), tx.Data...),
	}, true
}

// IsApproved reports a proposal's approval flag.
func (g *Governance) IsApproved(id uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p := g.proposals[id]
	return p.Exists() && p.Approved
}

// VoteTotals returns copies of a proposal's weighted vote tallies.
func (g *Governance) VoteTotals(id uint64) (yes, no, abstain *big.Int, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p := g.proposals[id]
	if !p.Exists() {
		return nil, nil, nil, false
	}
	return new(big.Int).Set(p.YesVotes), new(big.Int).Set(p.NoVotes), new(big.Int).Set(p.AbstainVotes), true
}

// QueueLength returns the number of queued proposals.
func (g *Governance) QueueLength() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.queue.Size()
}

// Upvotes returns a queued proposal's upvote weight, or nil if not queued.
func (g *Governance) Upvotes(id uint64) *big.Int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.queue.ValueOf(id)
}

// QueueSnapshot returns the queued IDs and weights in rank order.
func (g *Governance) QueueSnapshot() ([]uint64, []*big.Int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.queue.Snapshot()
}

// DequeuedSnapshot returns the dequeued slot array; 0 marks empty slots.
func (g *Governance) DequeuedSnapshot() []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]uint64(nil), g.dequeued...)
}

// GetUpvoteRecord returns the account's active upvote pointer and weight.
func (g *Governance) GetUpvoteRecord(caller common.Address) UpvoteRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.voters[g.accounts.CanonicalAccount(caller)]
	if !ok {
		return UpvoteRecord{Weight: new(big.Int)}
	}
	return UpvoteRecord{ProposalID: v.Upvote.ProposalID, Weight: new(big.Int).Set(v.Upvote.Weight)}
}

// GetVoteRecord returns the account's vote on a dequeued slot index.
func (g *Governance) GetVoteRecord(caller common.Address, index int) (VoteRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.voters[g.accounts.CanonicalAccount(caller)]
	if !ok {
		return VoteRecord{}, false
	}
	record, ok := v.ReferendumVotes[index]
	if !ok {
		return VoteRecord{}, false
	}
	record.Weight = new(big.Int).Set(record.Weight)
	return record, true
}

// MostRecentReferendum returns the newest dequeued proposal the account has
// voted on, or 0.
func (g *Governance) MostRecentReferendum(caller common.Address) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.voters[g.accounts.CanonicalAccount(caller)]
	if !ok {
		return 0
	}
	return v.MostRecentReferendum
}

// IsVoting reports whether the account is currently engaged in governance:
// an active queue upvote, or a referendum vote on a proposal still in its
// Referendum stage.
func (g *Governance) IsVoting(caller common.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.voters[g.accounts.CanonicalAccount(caller)]
	if !ok {
		return false
	}
	if v.Upvote.ProposalID != 0 && g.queue.Contains(v.Upvote.ProposalID) {
		return true
	}
	recent := g.proposals[v.MostRecentReferendum]
	if !recent.Exists() || g.queue.Contains(recent.ID) {
		return false
	}
	return stageOf(recent.Timestamp, g.clock.Now(), g.params.Durations) == StageReferendum
}

// ConstitutionThreshold resolves the pass threshold for a call.
func (g *Governance) ConstitutionThreshold(destination common.Address, selector [4]byte) fixed.Fraction {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.constitution.ThresholdFor(destination, selector)
}

// IsProposalPassing reports whether a proposal's current support clears
// every constitution threshold under the adaptive quorum.
func (g *Governance) IsProposalPassing(id uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p := g.proposals[id]
	return p.Exists() && g.isPassing(p)
}

// ProposalStage classifies a proposal right now: queued, one of the
// dequeued stages, or none for unknown IDs.
func (g *Governance) ProposalStage(id uint64) Stage {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p := g.proposals[id]
	if !p.Exists() {
		return StageNone
	}
	if g.queue.Contains(id) {
		return StageQueued
	}
	return stageOf(p.Timestamp, g.clock.Now(), g.params.Durations)
}

// RefundBalance returns the account's withdrawable deposit refunds.
func (g *Governance) RefundBalance(caller common.Address) *big.Int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	balance, ok := g.refunds[g.accounts.CanonicalAccount(caller)]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(balance)
}

// GetHotfixRecord returns the attestation state for a hotfix hash.
func (g *Governance) GetHotfixRecord(hash common.Hash) HotfixRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	record, ok := g.hotfixes[hash]
	if !ok {
		return HotfixRecord{}
	}
	return *record
}

// ProposalCount returns the number of proposals ever created.
func (g *Governance) ProposalCount() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.proposalCount
}

// LastDequeueTime returns the scheduler's last trigger time.
func (g *Governance) LastDequeueTime() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastDequeue
}

func copyProposal(p *Proposal) Proposal {
	out := Proposal{
		ID:             p.ID,
		Proposer:       p.Proposer,
		Deposit:        new(big.Int).Set(p.Deposit),
		Timestamp:      p.Timestamp,
		Approved:       p.Approved,
		YesVotes:       new(big.Int).Set(p.YesVotes),
		NoVotes:        new(big.Int).Set(p.NoVotes),
		AbstainVotes:   new(big.Int).Set(p.AbstainVotes),
		ApprovalWeight: new(big.Int).Set(p.ApprovalWeight),
		NetworkWeight:  new(big.Int).Set(p.NetworkWeight),
	}
	for _, tx := range p.Transactions {
		out.Transactions = append(out.Transactions, Transaction{
			Value:       new(big.Int).Set(tx.Value),
			Destination: tx.Destination,
			Data:        append([]byte(nil), tx.Data...),
		})
	}
	return out
}
