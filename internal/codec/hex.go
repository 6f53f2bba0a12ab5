package codec

import (
	"encoding/hex"
	"math/big"
	"strings"

	xerrors "SSOWallet-Chain/internal/errors"
)

// WordSize is the width of a single ABI word in bytes.
const WordSize = 32

// FromHex decodes a 0x-prefixed (or bare) hex string into bytes. An odd
// number of digits is tolerated by left-padding a single zero, matching the
// behaviour expected by the wire format rather than rejecting the value.
func FromHex(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if trimmed == "" {
		return []byte{}, nil
	}
	if len(trimmed)%2 != 0 {
		trimmed = "0" + trimmed
	}
	out, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeFormat, err, "非法的十六进制字符串: "+s)
	}
	return out, nil
}

// ByteLen reports how many bytes a hex string encodes, after prefix
// stripping and odd-length correction.
func ByteLen(s string) int {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return (len(trimmed) + 1) / 2
}

// PadLeft zero-pads b on the left up to size bytes. Values already at or
// beyond size are returned unchanged.
func PadLeft(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

// PadRight zero-pads b on the right up to size bytes. Values already at or
// beyond size are returned unchanged.
func PadRight(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

// Concat joins byte slices into a freshly allocated buffer.
func Concat(parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// NumberToWord encodes n into a size-byte big-endian word. Negative values
// are only legal when signed is true and are emitted in two's complement,
// masked to size*8 bits.
func NumberToWord(n *big.Int, size int, signed bool) ([]byte, error) {
	if n == nil {
		return nil, xerrors.New(xerrors.CodeFormat, "数值不能为空")
	}
	v := new(big.Int).Set(n)
	if v.Sign() < 0 {
		if !signed {
			return nil, xerrors.New(xerrors.CodeFormat, "无符号类型不接受负数: "+n.String())
		}
		// Two's complement: 2^(size*8) + n.
		mod := new(big.Int).Lsh(big.NewInt(1), uint(size*8))
		v.Add(mod, v)
	}
	mask := new(big.Int).Lsh(big.NewInt(1), uint(size*8))
	mask.Sub(mask, big.NewInt(1))
	v.And(v, mask)
	return PadLeft(v.Bytes(), size), nil
}

// MinimalBytes returns the canonical RLP integer payload for n: big-endian
// with no leading zeros, and the empty string for zero.
func MinimalBytes(n *big.Int) []byte {
	if n == nil || n.Sign() == 0 {
		return []byte{}
	}
	return n.Bytes()
}
