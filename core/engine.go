package core

import (
	"math/big"
	"sync"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/agoralabs/agora/fixed"
)

// Governance is the proposal lifecycle state machine. All registries are
// owned by the instance; there is no package-level state. Methods serialize
// on the mutex, read accessors take it shared so the API server can read
// concurrently.
type Governance struct {
	mu sync.RWMutex

	logger   *logrus.Logger
	accounts AccountRegistry
	executor CallExecutor
	clock    Clock
	db       storage.Storage

	params       Params
	baseline     fixed.Fraction
	constitution *Constitution

	proposalCount uint64
	proposals     map[uint64]*Proposal
	queue         *Queue

	// dequeued maps slot index -> proposal ID, 0 meaning empty. Reclaimed
	// indices are reused LIFO before the array grows.
	dequeued     []uint64
	emptyIndices []int
	lastDequeue  uint64

	voters   map[common.Address]*Voter
	refunds  map[common.Address]*big.Int
	hotfixes map[common.Hash]*HotfixRecord

	// midExecution forbids reentrant calls while proposal or hotfix
	// transactions are being executed.
	midExecution bool
}

// NewGovernance builds an engine from validated parameters. When db is
// non-nil a previously journaled state is restored from it and every
// successful mutation is journaled back.
func NewGovernance(params Params, accounts AccountRegistry, executor CallExecutor, clock Clock, db storage.Storage, logger *logrus.Logger) (*Governance, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	g := &Governance{
		logger:       logger,
		accounts:     accounts,
		executor:     executor,
		clock:        clock,
		db:           db,
		params:       params,
		baseline:     params.Participation.Baseline,
		constitution: NewConstitution(),
		proposals:    make(map[uint64]*Proposal),
		queue:        NewQueue(),
		voters:       make(map[common.Address]*Voter),
		refunds:      make(map[common.Address]*big.Int),
		hotfixes:     make(map[common.Hash]*HotfixRecord),
		lastDequeue:  clock.Now(),
	}
	if g.baseline.Lt(params.Participation.Floor) {
		g.baseline = params.Participation.Floor
	}
	if db != nil {
		if err := g.restore(); err != nil {
			return nil, errors.Wrap(err, "restore journaled state")
		}
	}
	return g, nil
}

func validateParams(p Params) error {
	one := fixed.One()
	pp := p.Participation
	for _, f := range []fixed.Fraction{pp.Baseline, pp.Floor, pp.UpdateFactor, pp.QuorumFactor} {
		if f.Gt(one) {
			return errors.New("participation parameters must lie in [0, 1]")
		}
	}
	if p.MinDeposit == nil || p.MinDeposit.Sign() < 0 {
		return errors.New("minimum deposit must be non-negative")
	}
	if p.ConcurrentProposals <= 0 {
		return errors.New("concurrent proposals must be positive")
	}
	if p.DequeueFrequency == 0 {
		return errors.New("dequeue frequency must be positive")
	}
	return nil
}

// Tick runs the dequeue scheduler against the current time. The daemon
// calls this periodically so a quiet system still advances; every mutating
// entry point also triggers it.
func (g *Governance) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeDequeue(g.clock.Now())
	g.persist()
}

// Propose creates a proposal and places it in the queue with zero upvote
// weight. The deposit is held until dequeue (refunded) or queue expiry
// (forfeited).
func (g *Governance) Propose(proposer common.Address, txs []Transaction, deposit *big.Int) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.midExecution {
		return 0, ErrReentrantCall
	}
	now := g.clock.Now()
	g.maybeDequeue(now)

	if deposit == nil || deposit.Cmp(g.params.MinDeposit) < 0 {
		return 0, ErrDepositTooSmall
	}
	if len(txs) == 0 {
		return 0, ErrNoTransactions
	}

	g.proposalCount++
	id := g.proposalCount
	p := &Proposal{
		ID:             id,
		Proposer:       g.accounts.CanonicalAccount(proposer),
		Deposit:        new(big.Int).Set(deposit),
		Timestamp:      now,
		YesVotes:       new(big.Int),
		NoVotes:        new(big.Int),
		AbstainVotes:   new(big.Int),
		ApprovalWeight: new(big.Int),
		NetworkWeight:  new(big.Int),
	}
	for _, tx := range txs {
		value := tx.Value
		if value == nil {
			value = new(big.Int)
		}
		p.Transactions = append(p.Transactions, Transaction{
			Value:       new(big.Int).Set(value),
			Destination: tx.Destination,
			Data:        append([]byte(nil), tx.Data...),
		})
	}
	g.proposals[id] = p
	if err := g.queue.Insert(id, new(big.Int)); err != nil {
		delete(g.proposals, id)
		g.proposalCount--
		return 0, err
	}

	g.logger.WithFields(logrus.Fields{
		"proposal": id,
		"proposer": p.Proposer.Hex(),
		"deposit":  p.Deposit.String(),
		"txs":      len(p.Transactions),
	}).Info("proposal queued")
	g.persist()
	return id, nil
}

// Upvote adds the caller's full weight to a queued proposal's ranking. A
// queued proposal found to be past queue expiry is removed instead and the
// call reports false with no error.
func (g *Governance) Upvote(caller common.Address, id uint64, greaterHint, lesserHint uint64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.midExecution {
		return false, ErrReentrantCall
	}
	now := g.clock.Now()
	g.maybeDequeue(now)

	account := g.accounts.CanonicalAccount(caller)
	if g.accounts.IsVotingFrozen(account) {
		return false, ErrVotingFrozen
	}
	p := g.proposals[id]
	if !p.Exists() || !g.queue.Contains(id) {
		return false, ErrProposalNotQueued
	}
	if g.removeIfQueueExpired(p, now) {
		g.persist()
		return false, nil
	}

	voter := g.voter(account)
	if voter.Upvote.ProposalID != 0 && g.queue.Contains(voter.Upvote.ProposalID) {
		return false, ErrAlreadyUpvoting
	}
	weight := g.accounts.WeightOf(account)
	if weight.Sign() <= 0 {
		return false, ErrZeroWeight
	}
	if err := g.queue.Increase(id, weight, greaterHint, lesserHint); err != nil {
		return false, err
	}
	voter.Upvote = UpvoteRecord{ProposalID: id, Weight: weight}

	g.logger.WithFields(logrus.Fields{
		"proposal": id,
		"account":  account.Hex(),
		"weight":   weight.String(),
	}).Debug("proposal upvoted")
	g.persist()
	return true, nil
}

// RevokeUpvote withdraws the caller's active upvote. The upvote pointer is
// cleared unconditionally; the queue ranking is only adjusted when the
// proposal is still queued and unexpired.
func (g *Governance) RevokeUpvote(caller common.Address, greaterHint, lesserHint uint64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.midExecution {
		return false, ErrReentrantCall
	}
	now := g.clock.Now()
	g.maybeDequeue(now)

	account := g.accounts.CanonicalAccount(caller)
	voter := g.voter(account)
	id := voter.Upvote.ProposalID
	if id == 0 {
		return false, ErrNoActiveUpvote
	}

	expired := false
	p := g.proposals[id]
	if p.Exists() && g.queue.Contains(id) {
		if g.removeIfQueueExpired(p, now) {
			expired = true
		} else if err := g.queue.Decrease(id, voter.Upvote.Weight, greaterHint, lesserHint); err != nil {
			return false, err
		}
	}
	voter.Upvote = UpvoteRecord{Weight: new(big.Int)}

	g.logger.WithFields(logrus.Fields{
		"proposal": id,
		"account":  account.Hex(),
	}).Debug("upvote revoked")
	g.persist()
	return !expired, nil
}

// Approve marks a dequeued proposal approved and snapshots the total voting
// weight. Only the designated approver may call it, and only during the
// Approval stage.
func (g *Governance) Approve(caller common.Address, id uint64, index int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.midExecution {
		return false, ErrReentrantCall
	}
	now := g.clock.Now()
	g.maybeDequeue(now)

	p, err := g.occupant(id, index)
	if err != nil {
		return false, err
	}
	if g.isDequeuedExpired(p, now) {
		g.reclaimSlot(p, index)
		g.persist()
		return false, nil
	}
	if caller != g.params.Approver {
		return false, ErrNotApprover
	}
	if p.Approved {
		return false, ErrAlreadyApproved
	}
	if stageOf(p.Timestamp, now, g.params.Durations) != StageApproval {
		return false, ErrIncorrectStage
	}

	p.Approved = true
	total := g.accounts.TotalWeight()
	p.ApprovalWeight = new(big.Int).Set(total)
	p.NetworkWeight = new(big.Int).Set(total)

	g.logger.WithFields(logrus.Fields{
		"proposal":      id,
		"networkWeight": total.String(),
	}).Info("proposal approved")
	g.persist()
	return true, nil
}

// Vote casts or replaces the caller's weighted referendum vote on a
// dequeued slot. A prior vote on the same slot for the same proposal is
// reversed before the new one is counted.
func (g *Governance) Vote(caller common.Address, id uint64, index int, value VoteValue) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.midExecution {
		return false, ErrReentrantCall
	}
	now := g.clock.Now()
	g.maybeDequeue(now)

	account := g.accounts.CanonicalAccount(caller)
	if g.accounts.IsVotingFrozen(account) {
		return false, ErrVotingFrozen
	}
	p, err := g.occupant(id, index)
	if err != nil {
		return false, err
	}
	if g.isDequeuedExpired(p, now) {
		g.reclaimSlot(p, index)
		g.persist()
		return false, nil
	}
	if !p.Approved {
		return false, ErrNotApproved
	}
	if stageOf(p.Timestamp, now, g.params.Durations) != StageReferendum {
		return false, ErrIncorrectStage
	}
	weight := g.accounts.WeightOf(account)
	if weight.Sign() <= 0 {
		return false, ErrZeroWeight
	}
	if value == VoteNone || value > VoteYes {
		return false, ErrInvalidVoteValue
	}

	voter := g.voter(account)
	if prior, ok := voter.ReferendumVotes[index]; ok && prior.ProposalID == id {
		g.subtractVote(p, prior.Value, prior.Weight)
	}
	g.addVote(p, value, weight)
	p.NetworkWeight = g.accounts.TotalWeight()
	voter.ReferendumVotes[index] = VoteRecord{ProposalID: id, Value: value, Weight: new(big.Int).Set(weight)}

	if recent := g.proposals[voter.MostRecentReferendum]; !recent.Exists() || p.Timestamp > recent.Timestamp {
		voter.MostRecentReferendum = id
	}

	g.logger.WithFields(logrus.Fields{
		"proposal": id,
		"account":  account.Hex(),
		"value":    value.String(),
		"weight":   weight.String(),
	}).Debug("referendum vote cast")
	g.persist()
	return true, nil
}

// Execute runs a passing proposal's transactions during its Execution
// window. Any transaction failure aborts the call with nothing deleted so
// execution can be retried until the proposal expires. On success, or when
// the proposal turns out to be expired, the slot is reclaimed and the
// proposal deleted.
func (g *Governance) Execute(caller common.Address, id uint64, index int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.midExecution {
		return false, ErrReentrantCall
	}
	now := g.clock.Now()
	g.maybeDequeue(now)

	p, err := g.occupant(id, index)
	if err != nil {
		return false, err
	}
	expired := g.isDequeuedExpired(p, now)
	if !expired {
		if stageOf(p.Timestamp, now, g.params.Durations) != StageExecution {
			return false, ErrIncorrectStage
		}
		if !g.isPassing(p) {
			return false, ErrProposalNotPassing
		}
		if err := g.executeTransactions(p.Transactions); err != nil {
			return false, errors.Wrapf(err, "execute proposal %d", id)
		}
		g.logger.WithFields(logrus.Fields{
			"proposal": id,
			"caller":   caller.Hex(),
		}).Info("proposal executed")
	}

	g.reclaimSlot(p, index)
	g.persist()
	return !expired, nil
}

// Withdraw transfers the caller's accumulated deposit refunds out through
// the call executor. The balance is zeroed before the transfer and
// restored if it fails.
func (g *Governance) Withdraw(caller common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.midExecution {
		return ErrReentrantCall
	}
	g.maybeDequeue(g.clock.Now())

	account := g.accounts.CanonicalAccount(caller)
	amount := g.refunds[account]
	if amount == nil || amount.Sign() == 0 {
		return ErrNothingToWithdraw
	}
	delete(g.refunds, account)
	if err := g.executor.Call(account, amount, nil); err != nil {
		g.refunds[account] = amount
		return errors.Wrap(err, "refund transfer")
	}

	g.logger.WithFields(logrus.Fields{
		"account": account.Hex(),
		"amount":  amount.String(),
	}).Info("refund withdrawn")
	g.persist()
	return nil
}

// SetConstitution writes a pass threshold for a destination or one of its
// function selectors. The host environment decides who may call this; the
// engine only enforces the [majority, unanimity) range.
func (g *Governance) SetConstitution(destination common.Address, selector [4]byte, threshold fixed.Fraction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.constitution.Set(destination, selector, threshold); err != nil {
		return err
	}
	g.persist()
	return nil
}

// maybeDequeue promotes the heaviest queued proposals into dequeued slots
// once per dequeue window. Queue-expired proposals are discarded with the
// deposit forfeited; promoted ones get their deposit refunded and their
// timestamp re-stamped to now. The cadence is wall-clock driven: the last
// dequeue time advances even when the queue is empty.
func (g *Governance) maybeDequeue(now uint64) {
	if now < g.lastDequeue+g.params.DequeueFrequency {
		return
	}
	for _, id := range g.queue.PopTopN(g.params.ConcurrentProposals) {
		p := g.proposals[id]
		if now >= p.Timestamp+g.params.QueueExpiry {
			g.logger.WithField("proposal", id).Info("queued proposal expired, deposit forfeited")
			delete(g.proposals, id)
			continue
		}
		g.credit(p.Proposer, p.Deposit)
		p.Timestamp = now
		index := g.claimSlot(id)
		g.logger.WithFields(logrus.Fields{
			"proposal": id,
			"index":    index,
		}).Info("proposal dequeued")
	}
	g.lastDequeue = now
}

// removeIfQueueExpired drops a queued proposal that outlived the queue
// expiry, forfeiting its deposit. Reports whether it expired.
func (g *Governance) removeIfQueueExpired(p *Proposal, now uint64) bool {
	if now < p.Timestamp+g.params.QueueExpiry {
		return false
	}
	_ = g.queue.Remove(p.ID)
	delete(g.proposals, p.ID)
	g.logger.WithField("proposal", p.ID).Info("queued proposal expired, deposit forfeited")
	return true
}

// isDequeuedExpired reports whether a dequeued proposal can no longer
// succeed: past the Execution window, past Referendum while not passing, or
// past Approval while never approved. Any one reason suffices.
func (g *Governance) isDequeuedExpired(p *Proposal, now uint64) bool {
	stage := stageOf(p.Timestamp, now, g.params.Durations)
	return stage == StageExpired ||
		(stage == StageExecution && !g.isPassing(p)) ||
		(stage > StageApproval && !p.Approved)
}

// isPassing computes quorum-padded support and requires it to strictly
// exceed the constitution threshold of every transaction. Turnout below
// the adaptive quorum scales support down proportionally.
func (g *Governance) isPassing(p *Proposal) bool {
	quorum := g.baseline.Mul(g.params.Participation.QuorumFactor)
	required := quorum.MulBig(p.NetworkWeight)
	total := p.TotalVotes()

	denominator := new(big.Int).Add(p.YesVotes, p.NoVotes)
	if padding := new(big.Int).Sub(required, total); padding.Sign() > 0 {
		denominator.Add(denominator, padding)
	}
	if denominator.Sign() == 0 {
		return false
	}
	support, err := fixed.FromRatio(p.YesVotes, denominator)
	if err != nil {
		return false
	}
	for _, tx := range p.Transactions {
		threshold := g.constitution.ThresholdFor(tx.Destination, tx.Selector())
		if !support.Gt(threshold) {
			return false
		}
	}
	return true
}

// reclaimSlot frees a dequeued slot, feeds the participation baseline when
// the proposal qualifies, and deletes the proposal.
func (g *Governance) reclaimSlot(p *Proposal, index int) {
	g.dequeued[index] = 0
	g.emptyIndices = append(g.emptyIndices, index)
	g.updateBaseline(p)
	delete(g.proposals, p.ID)
	g.logger.WithFields(logrus.Fields{
		"proposal": p.ID,
		"index":    index,
	}).Debug("dequeued slot reclaimed")
}

// updateBaseline folds the proposal's referendum participation into the
// moving average. Proposals that never reached approval, or were approved
// with zero network weight, leave the baseline untouched.
func (g *Governance) updateBaseline(p *Proposal) {
	if !p.Approved || p.ApprovalWeight.Sign() == 0 || p.NetworkWeight.Sign() == 0 {
		return
	}
	participation, err := fixed.FromRatio(p.TotalVotes(), p.NetworkWeight)
	if err != nil {
		return
	}
	if participation.Gt(fixed.One()) {
		participation = fixed.One()
	}
	factor := g.params.Participation.UpdateFactor
	g.baseline = participation.Mul(factor).Add(g.baseline.Mul(fixed.One().Sub(factor)))
	if g.baseline.Lt(g.params.Participation.Floor) {
		g.baseline = g.params.Participation.Floor
	}
	g.logger.WithFields(logrus.Fields{
		"proposal":      p.ID,
		"participation": participation.String(),
		"baseline":      g.baseline.String(),
	}).Debug("participation baseline updated")
}

// claimSlot places a proposal ID into the most recently freed slot, or
// appends a new one.
func (g *Governance) claimSlot(id uint64) int {
	if n := len(g.emptyIndices); n > 0 {
		index := g.emptyIndices[n-1]
		g.emptyIndices = g.emptyIndices[:n-1]
		g.dequeued[index] = id
		return index
	}
	g.dequeued = append(g.dequeued, id)
	return len(g.dequeued) - 1
}

// occupant verifies that the proposal actually occupies the dequeued slot.
func (g *Governance) occupant(id uint64, index int) (*Proposal, error) {
	if id == 0 || index < 0 || index >= len(g.dequeued) || g.dequeued[index] != id {
		return nil, ErrIndexMismatch
	}
	p := g.proposals[id]
	if !p.Exists() {
		return nil, ErrIndexMismatch
	}
	return p, nil
}

// executeTransactions performs a proposal's calls as a reentrancy-guarded
// sequence. The first failure aborts the sequence.
func (g *Governance) executeTransactions(txs []Transaction) error {
	if g.midExecution {
		return ErrReentrantCall
	}
	g.midExecution = true
	defer func() { g.midExecution = false }()

	for i, tx := range txs {
		if err := g.executor.Call(tx.Destination, tx.Value, tx.Data); err != nil {
			return errors.Wrapf(err, "transaction %d to %s", i, tx.Destination.Hex())
		}
	}
	return nil
}

func (g *Governance) voter(account common.Address) *Voter {
	v, ok := g.voters[account]
	if !ok {
		v = newVoter()
		g.voters[account] = v
	}
	return v
}

func (g *Governance) credit(account common.Address, amount *big.Int) {
	balance, ok := g.refunds[account]
	if !ok {
		balance = new(big.Int)
		g.refunds[account] = balance
	}
	balance.Add(balance, amount)
}

func (g *Governance) addVote(p *Proposal, value VoteValue, weight *big.Int) {
	switch value {
	case VoteYes:
		p.YesVotes.Add(p.YesVotes, weight)
	case VoteNo:
		p.NoVotes.Add(p.NoVotes, weight)
	case VoteAbstain:
		p.AbstainVotes.Add(p.AbstainVotes, weight)
	}
}

func (g *Governance) subtractVote(p *Proposal, value VoteValue, weight *big.Int) {
	switch value {
	case VoteYes:
		p.YesVotes.Sub(p.YesVotes, weight)
	case VoteNo:
		p.NoVotes.Sub(p.NoVotes, weight)
	case VoteAbstain:
		p.AbstainVotes.Sub(p.AbstainVotes, weight)
	}
}
