package core

import (
	"io"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoralabs/agora/fixed"
)

func TestJournalRestore(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := leveldb.New(filepath.Join(t.TempDir(), "leveldb"))
	require.Nil(t, err)

	registry := NewStaticRegistry()
	registry.Weights[alice] = big.NewInt(60)
	registry.Weights[bob] = big.NewInt(40)
	clock := &ManualClock{Time: 1}

	engine, err := NewGovernance(testParams(), registry, NewMockExecutor(), clock, db, logger)
	require.Nil(t, err)

	first, err := engine.Propose(alice, []Transaction{{Destination: target, Data: calldata}}, big.NewInt(100))
	require.Nil(t, err)
	second, err := engine.Propose(bob, []Transaction{{Destination: target, Value: big.NewInt(7), Data: calldata}}, big.NewInt(100))
	require.Nil(t, err)

	ok, err := engine.Upvote(alice, second, 0, first)
	require.Nil(t, err)
	assert.True(t, ok)
	require.Nil(t, engine.SetConstitution(target, [4]byte{}, fixed.MustFromString("0.6")))

	values, destinations, data, lengths := hotfixBundle()
	hash, err := HotfixHash(values, destinations, data, lengths)
	require.Nil(t, err)
	require.Nil(t, engine.ApproveHotfix(approverAddr, hash))

	clock.Advance(100)
	engine.Tick() // dequeues the upvoted proposal
	ok, err = engine.Approve(approverAddr, second, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	clock.Advance(100)
	ok, err = engine.Vote(alice, second, 0, VoteYes)
	require.Nil(t, err)
	assert.True(t, ok)

	// a fresh engine over the same journal resumes mid-lifecycle
	executor := NewMockExecutor()
	restored, err := NewGovernance(testParams(), registry, executor, clock, db, logger)
	require.Nil(t, err)

	assert.Equal(t, uint64(2), restored.ProposalCount())
	assert.Equal(t, engine.LastDequeueTime(), restored.LastDequeueTime())

	ids, weights := restored.QueueSnapshot()
	require.Equal(t, []uint64{first}, ids)
	assert.Equal(t, int64(0), weights[0].Int64())
	assert.Equal(t, []uint64{second}, restored.DequeuedSnapshot())

	assert.True(t, restored.IsApproved(second))
	yes, no, abstain, found := restored.VoteTotals(second)
	require.True(t, found)
	assert.Equal(t, int64(60), yes.Int64())
	assert.Equal(t, int64(0), no.Int64())
	assert.Equal(t, int64(0), abstain.Int64())

	record := restored.GetUpvoteRecord(alice)
	assert.Equal(t, second, record.ProposalID)
	assert.Equal(t, int64(60), record.Weight.Int64())

	assert.Equal(t, int64(100), restored.RefundBalance(bob).Int64())
	assert.Equal(t, "0.6", restored.ConstitutionThreshold(target, [4]byte{}).String())
	assert.True(t, restored.GetHotfixRecord(hash).Approved)

	// the restored engine carries the proposal through to execution
	clock.Advance(100)
	ok, err = restored.Execute(alice, second, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	require.Len(t, executor.Calls, 1)
	assert.Equal(t, target, executor.Calls[0].Destination)
	assert.Equal(t, int64(7), executor.Calls[0].Value.Int64())
	assert.False(t, restored.ProposalExists(second))
}
