package core

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// AccountRegistry resolves callers to canonical voter accounts and answers
// weight queries. It is the identity/stake layer, consumed but not
// implemented by the engine.
type AccountRegistry interface {
	// WeightOf returns the account's current voting weight.
	WeightOf(account common.Address) *big.Int

	// TotalWeight returns the total voting weight in the system.
	TotalWeight() *big.Int

	// CanonicalAccount maps a caller to its canonical voter account.
	CanonicalAccount(caller common.Address) common.Address

	// IsVotingFrozen reports whether the account is blocked from upvoting
	// and voting.
	IsVotingFrozen(account common.Address) bool
}

// CallExecutor performs the low-level calls of proposal transactions and
// refund withdrawals. A failed or reverted call must return an error.
type CallExecutor interface {
	Call(destination common.Address, value *big.Int, data []byte) error
}

// Clock supplies the current time in unix seconds. It must be monotonically
// non-decreasing.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

var _ AccountRegistry = (*StaticRegistry)(nil)

// StaticRegistry is an AccountRegistry backed by a fixed weight table,
// used by the daemon when no staking backend is configured and by tests.
type StaticRegistry struct {
	Weights map[common.Address]*big.Int
	Frozen  map[common.Address]bool
	Aliases map[common.Address]common.Address
}

// NewStaticRegistry returns an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		Weights: make(map[common.Address]*big.Int),
		Frozen:  make(map[common.Address]bool),
		Aliases: make(map[common.Address]common.Address),
	}
}

func (r *StaticRegistry) WeightOf(account common.Address) *big.Int {
	if w, ok := r.Weights[account]; ok {
		return new(big.Int).Set(w)
	}
	return new(big.Int)
}

func (r *StaticRegistry) TotalWeight() *big.Int {
	total := new(big.Int)
	for _, w := range r.Weights {
		total.Add(total, w)
	}
	return total
}

func (r *StaticRegistry) CanonicalAccount(caller common.Address) common.Address {
	if canonical, ok := r.Aliases[caller]; ok {
		return canonical
	}
	return caller
}

func (r *StaticRegistry) IsVotingFrozen(account common.Address) bool {
	return r.Frozen[account]
}

var _ CallExecutor = (*MockExecutor)(nil)

// MockExecutor records calls and can be told to fail for a destination.
type MockExecutor struct {
	Calls  []MockCall
	FailOn map[common.Address]error
}

type MockCall struct {
	Destination common.Address
	Value       *big.Int
	Data        []byte
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{FailOn: make(map[common.Address]error)}
}

func (m *MockExecutor) Call(destination common.Address, value *big.Int, data []byte) error {
	if err, ok := m.FailOn[destination]; ok {
		return err
	}
	if value == nil {
		value = new(big.Int)
	}
	m.Calls = append(m.Calls, MockCall{
		Destination: destination,
		Value:       new(big.Int).Set(value),
		Data:        append([]byte(nil), data...),
	})
	return nil
}

var _ CallExecutor = (*LoggingExecutor)(nil)

// LoggingExecutor logs calls instead of submitting them anywhere. The
// daemon uses it when no chain backend is configured.
type LoggingExecutor struct {
	Logger *logrus.Logger
}

func (e *LoggingExecutor) Call(destination common.Address, value *big.Int, data []byte) error {
	if value == nil {
		value = new(big.Int)
	}
	e.Logger.WithFields(logrus.Fields{
		"destination": destination.Hex(),
		"value":       value.String(),
		"dataLen":     len(data),
	}).Info("governance call (dry run)")
	return nil
}

var _ Clock = (*ManualClock)(nil)

// ManualClock is a settable clock for tests.
type ManualClock struct {
	Time uint64
}

func (c *ManualClock) Now() uint64 {
	return c.Time
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d uint64) {
	c.Time += d
}
