package wallet

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SSOWallet-Chain/internal/errors"
)

// ChainReader is the slice of chain access preparation needs.
type ChainReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	BaseFee(ctx context.Context) (*big.Int, error)
	ChainID() uint64
}

// Builder prepares unsigned envelopes against live chain state.
type Builder struct {
	chain ChainReader
	log   *slog.Logger
}

// NewBuilder wires a builder against one chain endpoint.
func NewBuilder(chain ChainReader, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{chain: chain, log: log}
}

// Prepare reads the account nonce and current base fee and fills an envelope
// for a transfer of amount to target. The fee cap is 2.5x the base fee; the
// priority fee stays zero, zkSync sequencers ignore it.
func (b *Builder) Prepare(ctx context.Context, from, to common.Address, amount *big.Int, data []byte) (*UnsignedTx, error) {
	nonce, err := b.chain.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodePreparationFailure, err, "获取账户 nonce 失败")
	}

	baseFee, err := b.chain.BaseFee(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodePreparationFailure, err, "获取 base fee 失败")
	}
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(5))
	maxFee.Div(maxFee, big.NewInt(2))

	if amount == nil {
		amount = new(big.Int)
	}

	b.log.Debug("交易参数已准备",
		"from", from.Hex(), "to", to.Hex(),
		"nonce", nonce, "max_fee_per_gas", maxFee.String())

	return &UnsignedTx{
		TxType:               TxTypeEIP712,
		From:                 from,
		To:                   to,
		GasLimit:             DefaultGasLimit,
		GasPerPubdata:        DefaultGasPerPubdata,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: new(big.Int),
		Nonce:                nonce,
		Value:                amount,
		Data:                 data,
		ChainID:              b.chain.ChainID(),
	}, nil
}
