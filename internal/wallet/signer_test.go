package wallet

import (
	"bytes"
	"math/big"
	"testing"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"SSOWallet-Chain/internal/codec"
	xerrors "SSOWallet-Chain/internal/errors"
	"SSOWallet-Chain/internal/session"
)

const testKeyHex = "4646464646464646464646464646464646464646464646464646464646464646"

var testSessionModule = common.HexToAddress("0x9999000000000000000000000000000000009999")

func testUnsignedTx() *UnsignedTx {
	return &UnsignedTx{
		TxType:               TxTypeEIP712,
		From:                 common.HexToAddress("0xbbbb00000000000000000000000000000000bbbb"),
		To:                   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		GasLimit:             DefaultGasLimit,
		GasPerPubdata:        DefaultGasPerPubdata,
		MaxFeePerGas:         big.NewInt(2_500_000_000),
		MaxPriorityFeePerGas: new(big.Int),
		Nonce:                7,
		Value:                big.NewInt(1_000_000_000),
		ChainID:              240,
	}
}

func testSessionSpec(signer common.Address) *session.Spec {
	return &session.Spec{
		Signer:    signer,
		ExpiresAt: big.NewInt(2_000_000_000),
		FeeLimit:  session.UsageLimit{LimitType: session.LimitLifetime, Limit: big.NewInt(1e15), Period: new(big.Int)},
		TransferPolicies: []session.TransferPolicy{
			{
				Target:         common.Address{},
				MaxValuePerUse: big.NewInt(1e10),
				ValueLimit:     session.UsageLimit{LimitType: session.LimitUnlimited, Limit: new(big.Int), Period: new(big.Int)},
			},
		},
	}
}

// unpackCustomSignature decodes the (bytes, address, bytes) triple through
// the go-ethereum ABI decoder, cross-checking the hand-rolled encoder.
func unpackCustomSignature(t *testing.T, data []byte) ([]byte, common.Address, []byte) {
	t.Helper()
	bytesType, err := gethabi.NewType("bytes", "", nil)
	if err != nil {
		t.Fatalf("bytes type: %v", err)
	}
	addressType, err := gethabi.NewType("address", "", nil)
	if err != nil {
		t.Fatalf("address type: %v", err)
	}
	args := gethabi.Arguments{{Type: bytesType}, {Type: addressType}, {Type: bytesType}}
	values, err := args.Unpack(data)
	if err != nil {
		t.Fatalf("unpack custom signature: %v", err)
	}
	return values[0].([]byte), values[1].(common.Address), values[2].([]byte)
}

func TestSignRecoversSessionSigner(t *testing.T) {
	signer, err := NewSigner(testKeyHex, testSessionModule)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	tx := testUnsignedTx()
	spec := testSessionSpec(signer.Address())

	signed, err := signer.Sign(tx, spec)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(signed.CustomSignature) == 0 {
		t.Fatal("custom signature empty")
	}

	sig, module, validatorData := unpackCustomSignature(t, signed.CustomSignature)
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("recovery byte = %d, want 27 or 28", sig[64])
	}
	if module != testSessionModule {
		t.Fatalf("module = %s, want %s", module, testSessionModule)
	}

	hash, err := signer.envelopeHash(tx)
	if err != nil {
		t.Fatalf("envelopeHash: %v", err)
	}
	recoverable := append(append([]byte{}, sig[:64]...), sig[64]-27)
	pub, err := crypto.SigToPub(hash, recoverable)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub); got != signer.Address() {
		t.Fatalf("recovered %s, want %s", got, signer.Address())
	}

	wantValidator, err := codec.EncodeParams(session.SpecParams(), []any{spec.Values(), []any{}})
	if err != nil {
		t.Fatalf("encode validator data: %v", err)
	}
	if !bytes.Equal(validatorData, wantValidator) {
		t.Fatal("validator data does not match the encoded session spec")
	}
}

func TestSignHashIsDeterministic(t *testing.T) {
	signer, err := NewSigner("0x"+testKeyHex, testSessionModule)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	tx := testUnsignedTx()

	h1, err := signer.envelopeHash(tx)
	if err != nil {
		t.Fatalf("envelopeHash: %v", err)
	}
	h2, err := signer.envelopeHash(tx)
	if err != nil {
		t.Fatalf("envelopeHash: %v", err)
	}
	if !bytes.Equal(h1, h2) {
		t.Fatal("hashing the same envelope twice diverged")
	}

	tx.ChainID = 241
	h3, err := signer.envelopeHash(tx)
	if err != nil {
		t.Fatalf("envelopeHash: %v", err)
	}
	if bytes.Equal(h1, h3) {
		t.Fatal("chain ID change did not change the hash")
	}
}

func TestSignZeroAddressCollapses(t *testing.T) {
	signer, err := NewSigner(testKeyHex, testSessionModule)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	tx := testUnsignedTx()
	tx.To = common.Address{}

	h1, err := signer.envelopeHash(tx)
	if err != nil {
		t.Fatalf("envelopeHash: %v", err)
	}

	// The zero address must hash exactly like the integer 0.
	word, err := codec.NumberToWord(new(big.Int), codec.WordSize, false)
	if err != nil {
		t.Fatalf("NumberToWord: %v", err)
	}
	addrWord, err := codec.NumberToWord(addressWord(tx.To), codec.WordSize, false)
	if err != nil {
		t.Fatalf("NumberToWord: %v", err)
	}
	if !bytes.Equal(word, addrWord) {
		t.Fatal("zero address did not collapse to integer zero")
	}
	if len(h1) != 32 {
		t.Fatalf("hash length = %d, want 32", len(h1))
	}
}

func TestSignRefusesMissingInputs(t *testing.T) {
	signer, err := NewSigner(testKeyHex, testSessionModule)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	if _, err := signer.Sign(nil, testSessionSpec(signer.Address())); xerrors.CodeOf(err) != xerrors.CodeSigningFailure {
		t.Fatalf("nil tx error = %v, want SIGNING_FAILURE", err)
	}
	if _, err := signer.Sign(testUnsignedTx(), nil); xerrors.CodeOf(err) != xerrors.CodeSigningFailure {
		t.Fatalf("nil spec error = %v, want SIGNING_FAILURE", err)
	}
}

func TestNewSignerRejectsGarbage(t *testing.T) {
	if _, err := NewSigner("not-a-key", testSessionModule); xerrors.CodeOf(err) != xerrors.CodeSigningFailure {
		t.Fatalf("error = %v, want SIGNING_FAILURE", err)
	}
}
