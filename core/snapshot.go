package core

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/agoralabs/agora/fixed"
)

// stateKey is where the engine journals its state snapshot.
const stateKey = "governance:state"

// governanceState is the JSON shape of the journaled engine state. It
// captures everything needed for a restarted daemon to resume
// mid-lifecycle.
type governanceState struct {
	ProposalCount uint64                        `json:"proposalCount"`
	Proposals     map[uint64]*Proposal          `json:"proposals"`
	QueueIDs      []uint64                      `json:"queueIds"`
	QueueWeights  []*big.Int                    `json:"queueWeights"`
	Dequeued      []uint64                      `json:"dequeued"`
	EmptyIndices  []int                         `json:"emptyIndices"`
	LastDequeue   uint64                        `json:"lastDequeue"`
	Voters        map[common.Address]*Voter     `json:"voters"`
	Refunds       map[common.Address]*big.Int   `json:"refunds"`
	Constitution  []constitutionRule            `json:"constitution"`
	Baseline      fixed.Fraction                `json:"baseline"`
	Hotfixes      map[common.Hash]*HotfixRecord `json:"hotfixes"`
}

type constitutionRule struct {
	Destination common.Address `json:"destination"`
	Selector    hexutil.Bytes  `json:"selector,omitempty"`
	Threshold   fixed.Fraction `json:"threshold"`
}

// persist journals the engine state. Journaling is best effort: a failed
// write is logged and the in-memory state remains authoritative.
func (g *Governance) persist() {
	if g.db == nil {
		return
	}
	ids, weights := g.queue.Snapshot()
	state := governanceState{
		ProposalCount: g.proposalCount,
		Proposals:     g.proposals,
		QueueIDs:      ids,
		QueueWeights:  weights,
		Dequeued:      g.dequeued,
		EmptyIndices:  g.emptyIndices,
		LastDequeue:   g.lastDequeue,
		Voters:        g.voters,
		Refunds:       g.refunds,
		Constitution:  g.constitution.rules(),
		Baseline:      g.baseline,
		Hotfixes:      g.hotfixes,
	}
	data, err := json.Marshal(&state)
	if err != nil {
		g.logger.Errorf("journal state: %s", err)
		return
	}
	g.db.Put([]byte(stateKey), data)
}

// restore reloads a journaled state snapshot, if one exists.
func (g *Governance) restore() error {
	data := g.db.Get([]byte(stateKey))
	if data == nil {
		return nil
	}
	var state governanceState
	if err := json.Unmarshal(data, &state); err != nil {
		return errors.Wrap(err, "decode state snapshot")
	}
	if len(state.QueueIDs) != len(state.QueueWeights) {
		return errors.New("corrupt state snapshot: queue arrays mismatch")
	}

	g.proposalCount = state.ProposalCount
	g.dequeued = state.Dequeued
	g.emptyIndices = state.EmptyIndices
	g.lastDequeue = state.LastDequeue
	g.baseline = state.Baseline

	g.proposals = make(map[uint64]*Proposal)
	for id, p := range state.Proposals {
		normalizeProposal(p)
		g.proposals[id] = p
	}
	g.voters = make(map[common.Address]*Voter)
	for account, v := range state.Voters {
		if v.ReferendumVotes == nil {
			v.ReferendumVotes = make(map[int]VoteRecord)
		}
		if v.Upvote.Weight == nil {
			v.Upvote.Weight = new(big.Int)
		}
		g.voters[account] = v
	}
	g.refunds = make(map[common.Address]*big.Int)
	for account, balance := range state.Refunds {
		g.refunds[account] = balance
	}
	g.hotfixes = make(map[common.Hash]*HotfixRecord)
	for hash, record := range state.Hotfixes {
		g.hotfixes[hash] = record
	}

	// snapshots are stored in rank order, so sequential inserts rebuild the
	// queue with the same tie order
	g.queue = NewQueue()
	for i, id := range state.QueueIDs {
		if err := g.queue.Insert(id, state.QueueWeights[i]); err != nil {
			return errors.Wrapf(err, "rebuild queue entry %d", id)
		}
	}

	g.constitution = NewConstitution()
	for _, rule := range state.Constitution {
		var selector [4]byte
		copy(selector[:], rule.Selector)
		if err := g.constitution.Set(rule.Destination, selector, rule.Threshold); err != nil {
			return errors.Wrapf(err, "rebuild constitution rule for %s", rule.Destination.Hex())
		}
	}

	g.logger.WithField("proposals", len(g.proposals)).Info("governance state restored")
	return nil
}

func (c *Constitution) rules() []constitutionRule {
	var rules []constitutionRule
	for destination, entry := range c.entries {
		if !entry.defaultThreshold.IsZero() {
			rules = append(rules, constitutionRule{Destination: destination, Threshold: entry.defaultThreshold})
		}
		for selector, threshold := range entry.functions {
			rules = append(rules, constitutionRule{
				Destination: destination,
				Selector:    append([]byte(nil), selector[:]...),
				Threshold:   threshold,
			})
		}
	}
	return rules
}

func normalizeProposal(p *Proposal) {
	for _, field := range []**big.Int{&p.Deposit, &p.YesVotes, &p.NoVotes, &p.AbstainVotes, &p.ApprovalWeight, &p.NetworkWeight} {
		if *field == nil {
			*field = new(big.Int)
		}
	}
	for i := range p.Transactions {
		if p.Transactions[i].Value == nil {
			p.Transactions[i].Value = new(big.Int)
		}
	}
}
