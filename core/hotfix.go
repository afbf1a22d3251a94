package core

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// HotfixHash commits to the exact byte-level encoding of a transaction
// bundle: for each transaction, a 32-byte value, the 20-byte destination
// and the length-prefixed call data. The length prefixes make the encoding
// injective, so distinct bundles can never collide.
func HotfixHash(values []*big.Int, destinations []common.Address, data []byte, dataLengths []int) (common.Hash, error) {
	txs, err := unpackBundle(values, destinations, data, dataLengths)
	if err != nil {
		return common.Hash{}, err
	}
	var encoded []byte
	for _, tx := range txs {
		encoded = append(encoded, common.LeftPadBytes(tx.Value.Bytes(), 32)...)
		encoded = append(encoded, tx.Destination.Bytes()...)
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(tx.Data)))
		encoded = append(encoded, length[:]...)
		encoded = append(encoded, tx.Data...)
	}
	return common.BytesToHash(crypto.Keccak256(encoded)), nil
}

// ApproveHotfix records the approver's attestation for a hotfix hash.
func (g *Governance) ApproveHotfix(caller common.Address, hash common.Hash) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.params.Approver {
		return ErrNotApprover
	}
	g.hotfix(hash).Approved = true
	g.logger.WithField("hash", hash.Hex()).Info("hotfix approved")
	g.persist()
	return nil
}

// AuditHotfix records the auditor's attestation for a hotfix hash.
func (g *Governance) AuditHotfix(caller common.Address, hash common.Hash) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.params.Auditor {
		return ErrNotAuditor
	}
	g.hotfix(hash).Audited = true
	g.logger.WithField("hash", hash.Hex()).Info("hotfix audited")
	g.persist()
	return nil
}

// ExecuteHotfix executes a pre-attested transaction bundle immediately,
// bypassing the queue and stage machinery. Both the approver and auditor
// attestations must cover the bundle's exact commitment hash. The transient
// proposal built from the bundle is discarded afterwards; the whitelist
// entry is retained, since execution is guarded by the hash commitment
// rather than single-use consumption.
func (g *Governance) ExecuteHotfix(caller common.Address, values []*big.Int, destinations []common.Address, data []byte, dataLengths []int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.midExecution {
		return ErrReentrantCall
	}

	hash, err := HotfixHash(values, destinations, data, dataLengths)
	if err != nil {
		return err
	}
	record, ok := g.hotfixes[hash]
	if !ok || !record.Approved {
		return ErrHotfixNotApproved
	}
	if !record.Audited {
		return ErrHotfixNotAudited
	}

	txs, err := unpackBundle(values, destinations, data, dataLengths)
	if err != nil {
		return err
	}
	transient := &Proposal{
		Transactions: txs,
		Proposer:     g.accounts.CanonicalAccount(caller),
		Deposit:      new(big.Int),
		Timestamp:    g.clock.Now(),
	}
	if err := g.executeTransactions(transient.Transactions); err != nil {
		return errors.Wrap(err, "execute hotfix")
	}
	record.Executed = true

	g.logger.WithFields(logrus.Fields{
		"hash":   hash.Hex(),
		"caller": caller.Hex(),
		"txs":    len(txs),
	}).Info("hotfix executed")
	g.persist()
	return nil
}

func (g *Governance) hotfix(hash common.Hash) *HotfixRecord {
	record, ok := g.hotfixes[hash]
	if !ok {
		record = &HotfixRecord{}
		g.hotfixes[hash] = record
	}
	return record
}

// unpackBundle splits a flat (values, destinations, data, lengths) bundle
// into transactions, validating that the arrays line up exactly.
func unpackBundle(values []*big.Int, destinations []common.Address, data []byte, dataLengths []int) ([]Transaction, error) {
	if len(values) != len(destinations) || len(values) != len(dataLengths) {
		return nil, ErrBundleMismatch
	}
	txs := make([]Transaction, 0, len(values))
	offset := 0
	for i := range values {
		if dataLengths[i] < 0 || offset+dataLengths[i] > len(data) {
			return nil, ErrBundleMismatch
		}
		value := values[i]
		if value == nil {
			value = new(big.Int)
		}
		txs = append(txs, Transaction{
			Value:       new(big.Int).Set(value),
			Destination: destinations[i],
			Data:        append([]byte(nil), data[offset:offset+dataLengths[i]]...),
		})
		offset += dataLengths[i]
	}
	if offset != len(data) {
		return nil, ErrBundleMismatch
	}
	return txs, nil
}
