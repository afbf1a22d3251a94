package core

import (
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoralabs/agora/fixed"
)

var (
	approverAddr = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	auditorAddr  = common.HexToAddress("0xaaaa000000000000000000000000000000000002")
	alice        = common.HexToAddress("0x1000000000000000000000000000000000000001")
	bob          = common.HexToAddress("0x1000000000000000000000000000000000000002")
	carol        = common.HexToAddress("0x1000000000000000000000000000000000000003")
	target       = common.HexToAddress("0x2000000000000000000000000000000000000001")

	calldata = []byte{0xca, 0xfe, 0xba, 0xbe, 0x01}
)

func testParams() Params {
	return Params{
		MinDeposit:          big.NewInt(100),
		ConcurrentProposals: 1,
		DequeueFrequency:    100,
		QueueExpiry:         1000,
		Durations:           StageDurations{Approval: 100, Referendum: 100, Execution: 100},
		Approver:            approverAddr,
		Auditor:             auditorAddr,
		Participation: ParticipationParameters{
			Baseline:     fixed.MustFromString("0.5"),
			Floor:        fixed.MustFromString("0.05"),
			UpdateFactor: fixed.MustFromString("0.2"),
			QuorumFactor: fixed.One(),
		},
	}
}

type fixture struct {
	engine   *Governance
	registry *StaticRegistry
	executor *MockExecutor
	clock    *ManualClock
}

func newFixture(t *testing.T, params Params) *fixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	registry := NewStaticRegistry()
	registry.Weights[alice] = big.NewInt(60)
	registry.Weights[bob] = big.NewInt(40)

	executor := NewMockExecutor()
	clock := &ManualClock{Time: 1}

	engine, err := NewGovernance(params, registry, executor, clock, nil, logger)
	require.Nil(t, err)
	return &fixture{engine: engine, registry: registry, executor: executor, clock: clock}
}

func (f *fixture) propose(t *testing.T, proposer common.Address) uint64 {
	t.Helper()
	id, err := f.engine.Propose(proposer, []Transaction{
		{Destination: target, Value: big.NewInt(7), Data: calldata},
	}, big.NewInt(100))
	require.Nil(t, err)
	return id
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t, testParams())

	id := f.propose(t, alice)
	assert.Equal(t, StageQueued, f.engine.ProposalStage(id))

	ok, err := f.engine.Upvote(alice, id, 0, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(60), f.engine.Upvotes(id).Int64())

	// the dequeue window opens and Approve's scheduler pass promotes the
	// proposal, refunding the deposit
	f.clock.Advance(100)
	ok, err = f.engine.Approve(approverAddr, id, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, []uint64{id}, f.engine.DequeuedSnapshot())
	assert.Equal(t, int64(100), f.engine.RefundBalance(alice).Int64())
	assert.Equal(t, StageApproval, f.engine.ProposalStage(id))
	assert.True(t, f.engine.IsApproved(id))

	f.clock.Advance(100)
	assert.Equal(t, StageReferendum, f.engine.ProposalStage(id))
	ok, err = f.engine.Vote(alice, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)
	ok, err = f.engine.Vote(bob, id, 0, VoteAbstain)
	require.Nil(t, err)
	assert.True(t, ok)

	yes, no, abstain, found := f.engine.VoteTotals(id)
	require.True(t, found)
	assert.Equal(t, int64(60), yes.Int64())
	assert.Equal(t, int64(0), no.Int64())
	assert.Equal(t, int64(40), abstain.Int64())
	assert.True(t, f.engine.IsProposalPassing(id))
	assert.True(t, f.engine.IsVoting(alice))

	f.clock.Advance(100)
	assert.Equal(t, StageExecution, f.engine.ProposalStage(id))
	ok, err = f.engine.Execute(carol, id, 0)
	require.Nil(t, err)
	assert.True(t, ok)

	require.Len(t, f.executor.Calls, 1)
	assert.Equal(t, target, f.executor.Calls[0].Destination)
	assert.Equal(t, int64(7), f.executor.Calls[0].Value.Int64())
	assert.Equal(t, calldata, f.executor.Calls[0].Data)

	assert.False(t, f.engine.ProposalExists(id))
	assert.Equal(t, StageNone, f.engine.ProposalStage(id))
	assert.False(t, f.engine.IsVoting(alice))

	// full participation folds into the baseline: 1*0.2 + 0.5*0.8
	assert.Equal(t, "0.6", f.engine.Baseline().String())

	require.Nil(t, f.engine.Withdraw(alice))
	require.Len(t, f.executor.Calls, 2)
	assert.Equal(t, alice, f.executor.Calls[1].Destination)
	assert.Equal(t, int64(100), f.executor.Calls[1].Value.Int64())
	assert.Equal(t, int64(0), f.engine.RefundBalance(alice).Int64())
	assert.ErrorIs(t, f.engine.Withdraw(alice), ErrNothingToWithdraw)
}

func TestProposeValidation(t *testing.T) {
	f := newFixture(t, testParams())

	_, err := f.engine.Propose(alice, []Transaction{{Destination: target}}, big.NewInt(99))
	assert.ErrorIs(t, err, ErrDepositTooSmall)
	_, err = f.engine.Propose(alice, []Transaction{{Destination: target}}, nil)
	assert.ErrorIs(t, err, ErrDepositTooSmall)
	_, err = f.engine.Propose(alice, nil, big.NewInt(100))
	assert.ErrorIs(t, err, ErrNoTransactions)
	assert.Zero(t, f.engine.ProposalCount())
}

func TestSingleUpvoteInvariant(t *testing.T) {
	f := newFixture(t, testParams())

	first := f.propose(t, alice)
	second := f.propose(t, bob)

	ok, err := f.engine.Upvote(alice, first, 0, 0)
	require.Nil(t, err)
	assert.True(t, ok)

	_, err = f.engine.Upvote(alice, second, 0, 0)
	assert.ErrorIs(t, err, ErrAlreadyUpvoting)

	ok, err = f.engine.RevokeUpvote(alice, 0, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), f.engine.Upvotes(first).Int64())

	ok, err = f.engine.Upvote(alice, second, 0, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(60), f.engine.Upvotes(second).Int64())

	record := f.engine.GetUpvoteRecord(alice)
	assert.Equal(t, second, record.ProposalID)
	assert.Equal(t, int64(60), record.Weight.Int64())
}

func TestUpvoteValidation(t *testing.T) {
	f := newFixture(t, testParams())
	id := f.propose(t, alice)

	_, err := f.engine.Upvote(alice, 99, 0, 0)
	assert.ErrorIs(t, err, ErrProposalNotQueued)

	_, err = f.engine.Upvote(carol, id, 0, 0)
	assert.ErrorIs(t, err, ErrZeroWeight)

	f.registry.Frozen[bob] = true
	_, err = f.engine.Upvote(bob, id, 0, 0)
	assert.ErrorIs(t, err, ErrVotingFrozen)

	_, err = f.engine.RevokeUpvote(carol, 0, 0)
	assert.ErrorIs(t, err, ErrNoActiveUpvote)
}

func TestQueueExpiryForfeitsDeposit(t *testing.T) {
	f := newFixture(t, testParams())
	id := f.propose(t, alice)

	// past queue expiry the scheduler discards the proposal instead of
	// promoting it, and the deposit stays forfeited
	f.clock.Advance(1000)
	f.engine.Tick()

	assert.False(t, f.engine.ProposalExists(id))
	assert.Zero(t, f.engine.QueueLength())
	assert.Empty(t, f.engine.DequeuedSnapshot())
	assert.Equal(t, int64(0), f.engine.RefundBalance(alice).Int64())
}

func TestUpvoteOnQueueExpiredProposal(t *testing.T) {
	params := testParams()
	params.QueueExpiry = 50
	f := newFixture(t, params)

	id := f.propose(t, alice)
	ok, err := f.engine.Upvote(alice, id, 0, 0)
	require.Nil(t, err)
	assert.True(t, ok)

	// expired but not yet swept: the upvote reports failure without error
	// and removes the proposal
	f.clock.Advance(60)
	ok, err = f.engine.Upvote(bob, id, 0, 0)
	require.Nil(t, err)
	assert.False(t, ok)
	assert.False(t, f.engine.ProposalExists(id))
	assert.Equal(t, int64(0), f.engine.RefundBalance(alice).Int64())
}

func TestApprove(t *testing.T) {
	f := newFixture(t, testParams())
	id := f.propose(t, alice)
	f.clock.Advance(100)

	_, err := f.engine.Approve(bob, id, 0)
	assert.ErrorIs(t, err, ErrNotApprover)
	_, err = f.engine.Approve(approverAddr, id, 1)
	assert.ErrorIs(t, err, ErrIndexMismatch)
	_, err = f.engine.Approve(approverAddr, 99, 0)
	assert.ErrorIs(t, err, ErrIndexMismatch)

	ok, err := f.engine.Approve(approverAddr, id, 0)
	require.Nil(t, err)
	assert.True(t, ok)

	p, found := f.engine.GetProposal(id)
	require.True(t, found)
	assert.Equal(t, int64(100), p.NetworkWeight.Int64())
	assert.Equal(t, int64(100), p.ApprovalWeight.Int64())

	_, err = f.engine.Approve(approverAddr, id, 0)
	assert.ErrorIs(t, err, ErrAlreadyApproved)
}

func TestApprovalLapseExpiresProposal(t *testing.T) {
	f := newFixture(t, testParams())
	id := f.propose(t, alice)
	f.clock.Advance(100)
	f.engine.Tick() // dequeues into slot 0

	// never approved; once the approval window closes any access sweeps it
	f.clock.Advance(100)
	ok, err := f.engine.Vote(alice, id, 0, VoteYes)
	require.Nil(t, err)
	assert.False(t, ok)
	assert.False(t, f.engine.ProposalExists(id))

	// an unapproved proposal leaves the baseline untouched
	assert.Equal(t, "0.5", f.engine.Baseline().String())

	// the freed slot is reused by the next dequeue
	second := f.propose(t, bob)
	f.clock.Advance(100)
	f.engine.Tick()
	assert.Equal(t, []uint64{second}, f.engine.DequeuedSnapshot())
}

func TestVote(t *testing.T) {
	f := newFixture(t, testParams())
	id := f.propose(t, alice)
	f.clock.Advance(100)
	f.engine.Tick()

	// referendum has not started yet
	_, err := f.engine.Vote(alice, id, 0, VoteYes)
	assert.ErrorIs(t, err, ErrNotApproved)
	ok, err := f.engine.Approve(approverAddr, id, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	_, err = f.engine.Vote(alice, id, 0, VoteYes)
	assert.ErrorIs(t, err, ErrIncorrectStage)

	f.clock.Advance(100)
	_, err = f.engine.Vote(alice, id, 0, VoteNone)
	assert.ErrorIs(t, err, ErrInvalidVoteValue)
	_, err = f.engine.Vote(carol, id, 0, VoteYes)
	assert.ErrorIs(t, err, ErrZeroWeight)

	ok, err = f.engine.Vote(alice, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)

	record, found := f.engine.GetVoteRecord(alice, 0)
	require.True(t, found)
	assert.Equal(t, id, record.ProposalID)
	assert.Equal(t, VoteYes, record.Value)
	assert.Equal(t, int64(60), record.Weight.Int64())
	assert.Equal(t, id, f.engine.MostRecentReferendum(alice))

	// revoting reverses the prior ballot exactly
	ok, err = f.engine.Vote(alice, id, 0, VoteNo)
	require.Nil(t, err)
	assert.True(t, ok)
	yes, no, abstain, found := f.engine.VoteTotals(id)
	require.True(t, found)
	assert.Equal(t, int64(0), yes.Int64())
	assert.Equal(t, int64(60), no.Int64())
	assert.Equal(t, int64(0), abstain.Int64())

	ok, err = f.engine.Vote(alice, id, 0, VoteAbstain)
	require.Nil(t, err)
	assert.True(t, ok)
	yes, no, abstain, _ = f.engine.VoteTotals(id)
	assert.Equal(t, int64(0), yes.Int64())
	assert.Equal(t, int64(0), no.Int64())
	assert.Equal(t, int64(60), abstain.Int64())
}

func TestQuorumPadding(t *testing.T) {
	f := newFixture(t, testParams())
	f.registry.Weights[alice] = big.NewInt(10)
	f.registry.Weights[bob] = big.NewInt(90)

	id := f.propose(t, alice)
	f.clock.Advance(100)
	ok, err := f.engine.Approve(approverAddr, id, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	f.clock.Advance(100)

	// turnout 10 of 100 against a required quorum of 50: support is padded
	// down to 10/50 and fails the majority threshold
	ok, err = f.engine.Vote(alice, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.False(t, f.engine.IsProposalPassing(id))

	ok, err = f.engine.Vote(bob, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.True(t, f.engine.IsProposalPassing(id))
}

func TestConstitutionGatesPassing(t *testing.T) {
	f := newFixture(t, testParams())
	require.Nil(t, f.engine.SetConstitution(target, [4]byte{}, fixed.MustFromString("0.66")))

	id := f.propose(t, alice)
	f.clock.Advance(100)
	ok, err := f.engine.Approve(approverAddr, id, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	f.clock.Advance(100)

	ok, err = f.engine.Vote(alice, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)
	ok, err = f.engine.Vote(bob, id, 0, VoteNo)
	require.Nil(t, err)
	assert.True(t, ok)

	// 60% support clears a simple majority but not the 0.66 threshold
	assert.False(t, f.engine.IsProposalPassing(id))
	assert.Equal(t, "0.66", f.engine.ConstitutionThreshold(target, calldataSelector()).String())
}

func TestExecuteRetriesAfterFailure(t *testing.T) {
	f := newFixture(t, testParams())
	id := f.propose(t, alice)
	f.clock.Advance(100)
	ok, err := f.engine.Approve(approverAddr, id, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	f.clock.Advance(100)
	ok, err = f.engine.Vote(alice, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)
	ok, err = f.engine.Vote(bob, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)

	f.clock.Advance(100)
	_, err = f.engine.Execute(alice, id, 1)
	assert.ErrorIs(t, err, ErrIndexMismatch)
	_, err = f.engine.Execute(alice, 99, 0)
	assert.ErrorIs(t, err, ErrIndexMismatch)

	// a failed call leaves the proposal in place for a retry
	f.executor.FailOn[target] = errors.New("reverted")
	_, err = f.engine.Execute(alice, id, 0)
	require.NotNil(t, err)
	assert.True(t, f.engine.ProposalExists(id))

	delete(f.executor.FailOn, target)
	ok, err = f.engine.Execute(alice, id, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.False(t, f.engine.ProposalExists(id))
	require.Len(t, f.executor.Calls, 1)
}

func TestExecuteWrongStage(t *testing.T) {
	f := newFixture(t, testParams())
	id := f.propose(t, alice)
	f.clock.Advance(100)
	ok, err := f.engine.Approve(approverAddr, id, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	f.clock.Advance(100)
	ok, err = f.engine.Vote(alice, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)
	ok, err = f.engine.Vote(bob, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)

	// still in referendum
	_, err = f.engine.Execute(alice, id, 0)
	assert.ErrorIs(t, err, ErrIncorrectStage)
	assert.True(t, f.engine.ProposalExists(id))
}

func TestExecuteExpiredReclaimsWithoutCalls(t *testing.T) {
	f := newFixture(t, testParams())
	id := f.propose(t, alice)
	f.clock.Advance(100)
	ok, err := f.engine.Approve(approverAddr, id, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	f.clock.Advance(100)
	ok, err = f.engine.Vote(alice, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)
	ok, err = f.engine.Vote(bob, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)

	f.clock.Advance(300)
	ok, err = f.engine.Execute(alice, id, 0)
	require.Nil(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.executor.Calls)
	assert.False(t, f.engine.ProposalExists(id))
	// the approved, voted proposal still feeds the baseline on reclaim
	assert.Equal(t, "0.6", f.engine.Baseline().String())
}

func TestBaselineFloorClamp(t *testing.T) {
	params := testParams()
	params.Participation.Floor = fixed.MustFromString("0.4")
	params.Participation.UpdateFactor = fixed.One()
	f := newFixture(t, params)
	f.registry.Weights[alice] = big.NewInt(1)
	f.registry.Weights[bob] = big.NewInt(99)

	id := f.propose(t, alice)
	f.clock.Advance(100)
	ok, err := f.engine.Approve(approverAddr, id, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	f.clock.Advance(100)
	ok, err = f.engine.Vote(alice, id, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)

	// participation of 0.01 would drag the baseline below the floor
	f.clock.Advance(100)
	ok, err = f.engine.Execute(alice, id, 0)
	require.Nil(t, err)
	assert.False(t, ok)
	assert.Equal(t, "0.4", f.engine.Baseline().String())
}

func TestSchedulerCadence(t *testing.T) {
	f := newFixture(t, testParams())
	assert.Equal(t, uint64(1), f.engine.LastDequeueTime())

	// the cadence advances on an empty queue too
	f.clock.Advance(149)
	f.engine.Tick()
	assert.Equal(t, uint64(150), f.engine.LastDequeueTime())

	id := f.propose(t, alice)
	f.clock.Advance(50)
	f.engine.Tick() // window not open yet
	assert.Equal(t, 1, f.engine.QueueLength())

	f.clock.Advance(50)
	f.engine.Tick()
	assert.Zero(t, f.engine.QueueLength())
	assert.Equal(t, []uint64{id}, f.engine.DequeuedSnapshot())
	assert.Equal(t, uint64(250), f.engine.LastDequeueTime())
}

func TestDequeueTakesHeaviest(t *testing.T) {
	params := testParams()
	params.ConcurrentProposals = 2
	f := newFixture(t, params)
	f.registry.Weights[carol] = big.NewInt(30)

	first := f.propose(t, alice)
	second := f.propose(t, alice)
	third := f.propose(t, alice)

	ok, err := f.engine.Upvote(carol, first, 0, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	ok, err = f.engine.Upvote(alice, second, 0, first)
	require.Nil(t, err)
	assert.True(t, ok)
	ok, err = f.engine.Upvote(bob, third, second, first)
	require.Nil(t, err)
	assert.True(t, ok)

	f.clock.Advance(100)
	f.engine.Tick()

	assert.Equal(t, []uint64{second, third}, f.engine.DequeuedSnapshot())
	assert.Equal(t, 1, f.engine.QueueLength())
	assert.True(t, f.engine.ProposalExists(first))
	assert.Equal(t, StageQueued, f.engine.ProposalStage(first))
}

func TestWithdrawRestoresBalanceOnFailure(t *testing.T) {
	f := newFixture(t, testParams())
	f.propose(t, alice)
	f.clock.Advance(100)
	f.engine.Tick()
	require.Equal(t, int64(100), f.engine.RefundBalance(alice).Int64())

	f.executor.FailOn[alice] = errors.New("transfer reverted")
	err := f.engine.Withdraw(alice)
	require.NotNil(t, err)
	assert.Equal(t, int64(100), f.engine.RefundBalance(alice).Int64())

	delete(f.executor.FailOn, alice)
	require.Nil(t, f.engine.Withdraw(alice))
	assert.Equal(t, int64(0), f.engine.RefundBalance(alice).Int64())
}

func TestCanonicalAccountAliases(t *testing.T) {
	f := newFixture(t, testParams())
	signer := common.HexToAddress("0x3000000000000000000000000000000000000001")
	f.registry.Aliases[signer] = alice

	id := f.propose(t, signer)
	p, found := f.engine.GetProposal(id)
	require.True(t, found)
	assert.Equal(t, alice, p.Proposer)

	ok, err := f.engine.Upvote(signer, id, 0, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(60), f.engine.Upvotes(id).Int64())
	assert.Equal(t, id, f.engine.GetUpvoteRecord(alice).ProposalID)
}

func calldataSelector() [4]byte {
	var sel [4]byte
	copy(sel[:], calldata[:4])
	return sel
}
