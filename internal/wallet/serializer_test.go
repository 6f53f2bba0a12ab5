package wallet

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	xerrors "SSOWallet-Chain/internal/errors"
)

func decodeEnvelope(t *testing.T, raw []byte) []rlp.RawValue {
	t.Helper()
	if len(raw) == 0 || raw[0] != TxTypeEIP712 {
		t.Fatalf("envelope type byte = %x, want 0x71", raw[:1])
	}
	var fields []rlp.RawValue
	if err := rlp.DecodeBytes(raw[1:], &fields); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return fields
}

func TestSerializeLayout(t *testing.T) {
	tx := &SignedTx{
		UnsignedTx:      *testUnsignedTx(),
		CustomSignature: []byte{0xde, 0xad, 0xbe, 0xef},
	}

	raw, err := Serialize(tx)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	fields := decodeEnvelope(t, raw)
	if len(fields) != 16 {
		t.Fatalf("envelope has %d slots, want 16", len(fields))
	}

	// nonce 7 is below 0x80, so RLP stores it as the single byte itself
	if !bytes.Equal(fields[0], []byte{0x07}) {
		t.Fatalf("nonce slot = %x", fields[0])
	}
	// zero priority fee must be the empty string
	if !bytes.Equal(fields[1], []byte{0x80}) {
		t.Fatalf("priority fee slot = %x, want empty string", fields[1])
	}
	// to is a 20-byte string
	if fields[4][0] != 0x94 {
		t.Fatalf("to slot prefix = %x, want 0x94", fields[4][0])
	}
	// slots 8 and 9 stay empty, slot 10 repeats the chain ID from slot 7
	if !bytes.Equal(fields[8], []byte{0x80}) || !bytes.Equal(fields[9], []byte{0x80}) {
		t.Fatalf("legacy signature slots = %x %x, want empty", fields[8], fields[9])
	}
	if !bytes.Equal(fields[7], fields[10]) {
		t.Fatalf("chain ID slots differ: %x vs %x", fields[7], fields[10])
	}
	// factory deps and paymaster params are empty lists
	if !bytes.Equal(fields[13], []byte{0xc0}) || !bytes.Equal(fields[15], []byte{0xc0}) {
		t.Fatalf("list slots = %x %x, want empty lists", fields[13], fields[15])
	}
}

func TestSerializeZeroValueIsEmptyString(t *testing.T) {
	tx := &SignedTx{
		UnsignedTx:      *testUnsignedTx(),
		CustomSignature: []byte{0x01},
	}
	tx.Value = new(big.Int)

	raw, err := Serialize(tx)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	fields := decodeEnvelope(t, raw)
	if !bytes.Equal(fields[5], []byte{0x80}) {
		t.Fatalf("zero value slot = %x, want empty string", fields[5])
	}
}

func TestSerializeRefusesUnsigned(t *testing.T) {
	tx := &SignedTx{UnsignedTx: *testUnsignedTx()}
	if _, err := Serialize(tx); xerrors.CodeOf(err) != xerrors.CodeSerializationFailure {
		t.Fatalf("error = %v, want SERIALIZATION_FAILURE", err)
	}
	if _, err := Serialize(nil); xerrors.CodeOf(err) != xerrors.CodeSerializationFailure {
		t.Fatalf("nil tx error = %v, want SERIALIZATION_FAILURE", err)
	}
}
