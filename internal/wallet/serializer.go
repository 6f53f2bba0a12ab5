package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"SSOWallet-Chain/internal/codec"
	xerrors "SSOWallet-Chain/internal/errors"
)

// Serialize renders a signed envelope into raw broadcast bytes: the type
// byte 0x71 followed by the RLP list the chain's signature scheme expects.
// The slot order, the two empty strings and the repeated chain ID are fixed
// by that scheme; scalars use minimal big-endian encoding, so zero becomes
// an empty string, not 0x00.
func Serialize(tx *SignedTx) ([]byte, error) {
	if tx == nil {
		return nil, xerrors.New(xerrors.CodeSerializationFailure, "没有可序列化的交易")
	}
	if len(tx.CustomSignature) == 0 {
		return nil, xerrors.New(xerrors.CodeSerializationFailure, "交易未签名, 拒绝序列化")
	}

	chainID := codec.MinimalBytes(new(big.Int).SetUint64(tx.ChainID))

	factoryDeps := make([]any, 0, len(tx.FactoryDeps))
	for _, dep := range tx.FactoryDeps {
		factoryDeps = append(factoryDeps, dep)
	}

	fields := []any{
		codec.MinimalBytes(new(big.Int).SetUint64(tx.Nonce)),
		codec.MinimalBytes(orZero(tx.MaxPriorityFeePerGas)),
		codec.MinimalBytes(orZero(tx.MaxFeePerGas)),
		codec.MinimalBytes(new(big.Int).SetUint64(tx.GasLimit)),
		tx.To.Bytes(),
		codec.MinimalBytes(orZero(tx.Value)),
		emptyNotNil(tx.Data),
		chainID,
		[]byte{},
		[]byte{},
		chainID,
		tx.From.Bytes(),
		codec.MinimalBytes(new(big.Int).SetUint64(tx.GasPerPubdata)),
		factoryDeps,
		tx.CustomSignature,
		[]any{},
	}

	encoded, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSerializationFailure, err, "RLP 编码交易失败")
	}

	out := make([]byte, 0, len(encoded)+1)
	out = append(out, TxTypeEIP712)
	return append(out, encoded...), nil
}

func emptyNotNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
