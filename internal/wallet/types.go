// Package wallet assembles, signs and broadcasts session-keyed transactions
// for zkSync-style chains. The pipeline is strictly sequential per
// transaction; callers sharing one account serialize around nonce assignment
// themselves.
package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TxTypeEIP712 tags the zkSync native transaction envelope (0x71).
	TxTypeEIP712 = 113

	// DefaultGasLimit covers a session-validated value transfer.
	DefaultGasLimit = 196807

	// DefaultGasPerPubdata is the standard zkSync pubdata byte allowance.
	DefaultGasPerPubdata = 50000
)

// UnsignedTx carries every field of the 0x71 envelope prior to signing.
// Instances live for one submission attempt and are never persisted.
type UnsignedTx struct {
	TxType               uint64
	From                 common.Address
	To                   common.Address
	GasLimit             uint64
	GasPerPubdata        uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Nonce                uint64
	Value                *big.Int
	Data                 []byte
	FactoryDeps          [][]byte
	PaymasterInput       []byte
	ChainID              uint64
}

// SignedTx is an UnsignedTx plus the ABI-encoded custom signature the
// session-key validator consumes.
type SignedTx struct {
	UnsignedTx
	CustomSignature []byte
}
