package wallet

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	xerrors "SSOWallet-Chain/internal/errors"
	"SSOWallet-Chain/internal/session"
)

// Broadcaster is the slice of chain access submission needs.
type Broadcaster interface {
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// receiptPollInterval paces the receipt wait loop.
const receiptPollInterval = time.Second

// Pipeline runs prepare, sign, serialize, submit and receipt-wait as one
// strict sequence. It holds no mutable state across invocations beyond the
// shared chain connection, so one pipeline may serve many transactions as
// long as the caller serializes nonce usage per account.
type Pipeline struct {
	builder     *Builder
	signer      *Signer
	broadcaster Broadcaster
	log         *slog.Logger
}

// NewPipeline assembles a pipeline from its stages.
func NewPipeline(builder *Builder, signer *Signer, broadcaster Broadcaster, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{builder: builder, signer: signer, broadcaster: broadcaster, log: log}
}

// Execute pushes one transfer through the whole pipeline and returns the
// transaction hash. A signing or serialization failure aborts before
// anything reaches the chain.
func (p *Pipeline) Execute(ctx context.Context, from common.Address, spec *session.Spec, to common.Address, amount *big.Int, data []byte) (common.Hash, error) {
	tx, err := p.builder.Prepare(ctx, from, to, amount, data)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := p.signer.Sign(tx, spec)
	if err != nil {
		return common.Hash{}, err
	}

	raw, err := Serialize(signed)
	if err != nil {
		return common.Hash{}, err
	}

	return p.Submit(ctx, raw)
}

// Submit broadcasts pre-serialized envelope bytes.
func (p *Pipeline) Submit(ctx context.Context, raw []byte) (common.Hash, error) {
	txHash, err := p.broadcaster.SendRawTransaction(ctx, raw)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeSubmissionFailure, err, "广播交易被节点拒绝")
	}
	p.log.Info("交易已广播", "tx_hash", txHash.Hex())
	return txHash, nil
}

// WaitForReceipt polls for the receipt of txHash until it appears or timeout
// elapses. Timing out is a normal outcome and yields a nil receipt with a
// nil error; only RPC failures other than not-found are reported.
func (p *Pipeline) WaitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*coretypes.Receipt, error) {
	deadline := time.Now().Add(timeout)
	for {
		receipt, err := p.broadcaster.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, xerrors.Wrap(xerrors.CodeNetworkError, err, "查询交易回执失败")
		}
		if time.Now().After(deadline) {
			p.log.Warn("等待交易回执超时", "tx_hash", txHash.Hex(), "timeout", timeout.String())
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}
