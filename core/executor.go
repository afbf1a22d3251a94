package core

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ChainClient is the slice of the RPC client the executor needs.
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

var _ ChainClient = (*ethclient.Client)(nil)

// DialChain connects to the chain RPC endpoint, retrying with fibonacci
// backoff while the node comes up.
func DialChain(ctx context.Context, url string) (*ethclient.Client, error) {
	var client *ethclient.Client
	action := func(attempt uint) error {
		var err error
		client, err = ethclient.DialContext(ctx, url)
		return err
	}
	if err := retry.Retry(action, strategy.Limit(5), strategy.Backoff(backoff.Fibonacci(5*time.Second))); err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return client, nil
}

var _ CallExecutor = (*ChainExecutor)(nil)

// ChainExecutor performs proposal transactions as signed chain
// transactions. A reverted receipt is reported as a call failure so
// execution errors are never swallowed.
type ChainExecutor struct {
	ctx     context.Context
	client  ChainClient
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  *logrus.Logger
}

// NewChainExecutor builds an executor signing with the given hex-encoded
// private key.
func NewChainExecutor(ctx context.Context, client ChainClient, hexKey string, chainID *big.Int, logger *logrus.Logger) (*ChainExecutor, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "parse executor key")
	}
	return &ChainExecutor{
		ctx:     ctx,
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		logger:  logger,
	}, nil
}

func (e *ChainExecutor) Call(destination common.Address, value *big.Int, data []byte) error {
	if value == nil {
		value = new(big.Int)
	}
	nonce, err := e.client.PendingNonceAt(e.ctx, e.from)
	if err != nil {
		return errors.Wrap(err, "fetch nonce")
	}
	gasPrice, err := e.client.SuggestGasPrice(e.ctx)
	if err != nil {
		return errors.Wrap(err, "suggest gas price")
	}
	gas, err := e.client.EstimateGas(e.ctx, ethereum.CallMsg{
		From:  e.from,
		To:    &destination,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return errors.Wrap(err, "estimate gas")
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &destination,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return errors.Wrap(err, "sign transaction")
	}
	if err := e.client.SendTransaction(e.ctx, signed); err != nil {
		return errors.Wrap(err, "send transaction")
	}

	e.logger.WithFields(logrus.Fields{
		"tx":          signed.Hash().Hex(),
		"destination": destination.Hex(),
	}).Debug("governance call submitted")

	var receipt *ethtypes.Receipt
	action := func(attempt uint) error {
		receipt, err = e.client.TransactionReceipt(e.ctx, signed.Hash())
		return err
	}
	if err := retry.Retry(action, strategy.Limit(10), strategy.Backoff(backoff.Fibonacci(2*time.Second))); err != nil {
		return errors.Wrap(err, "await receipt")
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return errors.Errorf("call to %s reverted in tx %s", destination.Hex(), signed.Hash().Hex())
	}
	return nil
}
