package codec

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	xerrors "SSOWallet-Chain/internal/errors"
)

func testTypes() TypedDataTypes {
	return TypedDataTypes{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
		},
		"Transaction": {
			{Name: "txType", Type: "uint256"},
			{Name: "from", Type: "uint256"},
			{Name: "to", Type: "uint256"},
			{Name: "data", Type: "bytes"},
			{Name: "factoryDeps", Type: "bytes32[]"},
		},
	}
}

func TestEncodeTypeCanonicalString(t *testing.T) {
	got := EncodeType("EIP712Domain", testTypes())
	want := "EIP712Domain(string name,string version,uint256 chainId)"
	if got != want {
		t.Fatalf("unexpected type string:\n got %s\nwant %s", got, want)
	}
}

func TestEncodeTypeSortsDependencies(t *testing.T) {
	types := TypedDataTypes{
		"Outer": {
			{Name: "b", Type: "Zeta"},
			{Name: "a", Type: "Alpha"},
		},
		"Zeta":  {{Name: "v", Type: "uint256"}},
		"Alpha": {{Name: "v", Type: "uint256"}},
	}
	got := EncodeType("Outer", types)
	want := "Outer(Zeta b,Alpha a)Alpha(uint256 v)Zeta(uint256 v)"
	if got != want {
		t.Fatalf("dependencies must be sorted after the primary type:\n got %s\nwant %s", got, want)
	}
}

func TestHashStructLayout(t *testing.T) {
	types := testTypes()
	domain := map[string]any{
		"name":    "zkSync",
		"version": "2",
		"chainId": big.NewInt(240),
	}

	got, err := HashDomain(domain, types)
	if err != nil {
		t.Fatalf("hash domain: %v", err)
	}

	// Rebuild the expected hash from the EIP-712 definition directly.
	chainWord, _ := NumberToWord(big.NewInt(240), WordSize, false)
	want := crypto.Keccak256(Concat(
		crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId)")),
		crypto.Keccak256([]byte("zkSync")),
		crypto.Keccak256([]byte("2")),
		chainWord,
	))
	if !bytes.Equal(got, want) {
		t.Fatalf("domain hash mismatch:\n got %x\nwant %x", got, want)
	}
}

func TestHashTypedDataDeterministic(t *testing.T) {
	types := testTypes()
	domain := map[string]any{
		"name":    "zkSync",
		"version": "2",
		"chainId": big.NewInt(240),
	}
	message := map[string]any{
		"txType":      big.NewInt(113),
		"from":        big.NewInt(1),
		"to":          big.NewInt(2),
		"data":        "0x",
		"factoryDeps": []any{},
	}

	first, err := HashTypedData(domain, message, "Transaction", types)
	if err != nil {
		t.Fatalf("hash typed data: %v", err)
	}
	second, err := HashTypedData(domain, message, "Transaction", types)
	if err != nil {
		t.Fatalf("hash typed data again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("hashing is not deterministic: %x vs %x", first, second)
	}
	if len(first) != 32 {
		t.Fatalf("expected 32-byte hash, got %d bytes", len(first))
	}

	// Any change to the domain must change the final hash.
	domain["chainId"] = big.NewInt(241)
	changed, err := HashTypedData(domain, message, "Transaction", types)
	if err != nil {
		t.Fatalf("hash with changed domain: %v", err)
	}
	if bytes.Equal(first, changed) {
		t.Fatalf("hash must depend on the domain chain ID")
	}
}

func TestHashStructEmptyBytesNormalization(t *testing.T) {
	types := TypedDataTypes{
		"Blob": {{Name: "data", Type: "bytes"}},
	}

	empty, err := HashStruct(map[string]any{"data": "0x"}, "Blob", types)
	if err != nil {
		t.Fatalf("hash empty bytes: %v", err)
	}
	zero, err := HashStruct(map[string]any{"data": "0x0"}, "Blob", types)
	if err != nil {
		t.Fatalf("hash 0x0 bytes: %v", err)
	}
	// "0x" is the empty byte string, "0x0" normalizes to a single zero byte.
	if bytes.Equal(empty, zero) {
		t.Fatalf("0x and 0x0 normalize to different payloads")
	}

	want := crypto.Keccak256(Concat(
		crypto.Keccak256([]byte("Blob(bytes data)")),
		crypto.Keccak256([]byte{}),
	))
	if !bytes.Equal(empty, want) {
		t.Fatalf("empty bytes hash mismatch:\n got %x\nwant %x", empty, want)
	}
}

func TestHashStructEmptyBytes32Array(t *testing.T) {
	types := TypedDataTypes{
		"Deps": {{Name: "factoryDeps", Type: "bytes32[]"}},
	}
	got, err := HashStruct(map[string]any{"factoryDeps": []any{}}, "Deps", types)
	if err != nil {
		t.Fatalf("hash empty array: %v", err)
	}
	want := crypto.Keccak256(Concat(
		crypto.Keccak256([]byte("Deps(bytes32[] factoryDeps)")),
		crypto.Keccak256([]byte{}),
	))
	if !bytes.Equal(got, want) {
		t.Fatalf("empty bytes32[] hash mismatch:\n got %x\nwant %x", got, want)
	}
}

func TestHashStructUnsupportedFieldType(t *testing.T) {
	types := TypedDataTypes{
		"Bad": {{Name: "who", Type: "address"}},
	}
	_, err := HashStruct(map[string]any{"who": "0x0000000000000000000000000000000000000001"}, "Bad", types)
	if xerrors.CodeOf(err) != xerrors.CodeUnsupportedType {
		t.Fatalf("expected UNSUPPORTED_TYPE, got %v", err)
	}
}
