package wallet

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"SSOWallet-Chain/internal/codec"
	xerrors "SSOWallet-Chain/internal/errors"
	"SSOWallet-Chain/internal/session"
)

// transactionTypes is the fixed EIP-712 schema of the 0x71 envelope. Address
// fields are declared uint256; the chain's signature scheme hashes them as
// integers, with the zero address collapsing to integer zero.
var transactionTypes = codec.TypedDataTypes{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Transaction": {
		{Name: "txType", Type: "uint256"},
		{Name: "from", Type: "uint256"},
		{Name: "to", Type: "uint256"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "gasPerPubdataByteLimit", Type: "uint256"},
		{Name: "maxFeePerGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint256"},
		{Name: "paymaster", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "factoryDeps", Type: "bytes32[]"},
		{Name: "paymasterInput", Type: "bytes"},
	},
}

var customSignatureParams = []codec.Param{
	codec.MustParam("sessionKeySignedHash", "bytes"),
	codec.MustParam("sessionContract", "address"),
	codec.MustParam("validatorData", "bytes"),
}

// Signer holds one session private key and the module deployment its
// signatures validate against.
type Signer struct {
	key    *ecdsa.PrivateKey
	module common.Address
}

// NewSigner parses a hex-encoded session private key.
func NewSigner(hexKey string, module common.Address) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "解析会话私钥失败")
	}
	return &Signer{key: key, module: module}, nil
}

// Address returns the signer address derived from the session key.
func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// Sign hashes the envelope per the chain's typed-data scheme, signs it with
// the session key and attaches the full custom signature: the 65-byte
// r ‖ s ‖ (27+v) signature, the session module address, and the ABI-encoded
// session configuration as validator data. On any failure the envelope stays
// unsigned; there is no partial result.
func (s *Signer) Sign(tx *UnsignedTx, spec *session.Spec) (*SignedTx, error) {
	if tx == nil {
		return nil, xerrors.New(xerrors.CodeSigningFailure, "没有可签名的交易")
	}
	if spec == nil {
		return nil, xerrors.New(xerrors.CodeSigningFailure, "缺少会话配置")
	}

	hash, err := s.envelopeHash(tx)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "会话私钥签名失败")
	}
	sig[64] += 27

	// 周期 ID 由策略层计算, 链上校验合约目前只接受空占位数组。
	validatorData, err := codec.EncodeParams(session.SpecParams(), []any{spec.Values(), []any{}})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "编码会话配置失败")
	}

	customSignature, err := codec.EncodeParams(customSignatureParams, []any{sig, s.module, validatorData})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "编码自定义签名失败")
	}

	return &SignedTx{UnsignedTx: *tx, CustomSignature: customSignature}, nil
}

// envelopeHash computes the typed-data signing hash of the envelope.
func (s *Signer) envelopeHash(tx *UnsignedTx) ([]byte, error) {
	domain := map[string]any{
		"name":    "zkSync",
		"version": "2",
		"chainId": new(big.Int).SetUint64(tx.ChainID),
	}
	message := map[string]any{
		"txType":                 new(big.Int).SetUint64(tx.TxType),
		"from":                   addressWord(tx.From),
		"to":                     addressWord(tx.To),
		"gasLimit":               new(big.Int).SetUint64(tx.GasLimit),
		"gasPerPubdataByteLimit": new(big.Int).SetUint64(tx.GasPerPubdata),
		"maxFeePerGas":           orZero(tx.MaxFeePerGas),
		"maxPriorityFeePerGas":   orZero(tx.MaxPriorityFeePerGas),
		"paymaster":              new(big.Int),
		"nonce":                  new(big.Int).SetUint64(tx.Nonce),
		"value":                  orZero(tx.Value),
		"data":                   tx.Data,
		"factoryDeps":            tx.FactoryDeps,
		"paymasterInput":         tx.PaymasterInput,
	}

	hash, err := codec.HashTypedData(domain, message, "Transaction", transactionTypes)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "计算交易签名哈希失败")
	}
	return hash, nil
}

func addressWord(addr common.Address) *big.Int {
	return new(big.Int).SetBytes(addr.Bytes())
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
