package codec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	xerrors "SSOWallet-Chain/internal/errors"
)

// TypedField is one field of an EIP-712 struct type.
type TypedField struct {
	Name string
	Type string
}

// TypedDataTypes maps struct names to their field lists.
type TypedDataTypes map[string][]TypedField

// EncodeType renders the canonical type string for primary: the primary
// struct first, then every reachable dependency sorted lexicographically.
// The sort order is part of the hash, not cosmetics.
func EncodeType(primary string, types TypedDataTypes) string {
	deps := map[string]bool{}
	collectTypeDeps(primary, types, deps)
	delete(deps, primary)

	ordered := make([]string, 0, len(deps)+1)
	for name := range deps {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)
	ordered = append([]string{primary}, ordered...)

	var b strings.Builder
	for _, name := range ordered {
		b.WriteString(name)
		b.WriteByte('(')
		for i, field := range types[name] {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(field.Type)
			b.WriteByte(' ')
			b.WriteString(field.Name)
		}
		b.WriteByte(')')
	}
	return b.String()
}

func collectTypeDeps(name string, types TypedDataTypes, results map[string]bool) {
	if results[name] {
		return
	}
	if _, ok := types[name]; !ok {
		return
	}
	results[name] = true
	for _, field := range types[name] {
		base := field.Type
		if idx := strings.Index(base, "["); idx >= 0 {
			base = base[:idx]
		}
		collectTypeDeps(base, types, results)
	}
}

// HashType hashes the encoded type string of primary.
func HashType(primary string, types TypedDataTypes) []byte {
	return crypto.Keccak256([]byte(EncodeType(primary, types)))
}

// HashStruct hashes a struct instance: the type hash word followed by one
// encoded word per field, keccak'd as a whole. Only the field types the
// transaction schema needs are supported.
func HashStruct(data map[string]any, primary string, types TypedDataTypes) ([]byte, error) {
	fields, ok := types[primary]
	if !ok {
		return nil, xerrors.New(xerrors.CodeUnsupportedType, "未定义的结构类型: "+primary)
	}

	words := [][]byte{HashType(primary, types)}
	for _, field := range fields {
		value, present := data[field.Name]
		if !present {
			return nil, xerrors.New(xerrors.CodeFormat,
				fmt.Sprintf("%s 缺少字段 %s", primary, field.Name))
		}
		word, err := encodeTypedField(field, value)
		if err != nil {
			return nil, err
		}
		words = append(words, word)
	}
	return crypto.Keccak256(Concat(words...)), nil
}

func encodeTypedField(field TypedField, value any) ([]byte, error) {
	switch field.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, xerrors.New(xerrors.CodeFormat,
				fmt.Sprintf("字段 %s 需要字符串取值", field.Name))
		}
		return crypto.Keccak256([]byte(s)), nil
	case "uint256":
		n, err := toBigInt(value)
		if err != nil {
			return nil, err
		}
		return NumberToWord(n, WordSize, false)
	case "bytes":
		raw, err := typedBytesValue(value)
		if err != nil {
			return nil, err
		}
		return crypto.Keccak256(raw), nil
	case "bytes32[]":
		return hashBytes32Array(field.Name, value)
	default:
		return nil, xerrors.New(xerrors.CodeUnsupportedType,
			fmt.Sprintf("字段 %s 使用了不支持的类型 %s", field.Name, field.Type))
	}
}

// typedBytesValue normalizes a bytes field, tolerating the literal "0x" and
// "0x0" spellings that show up in empty call data.
func typedBytesValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "0x" {
			return []byte{}, nil
		}
		if s == "0x0" {
			return []byte{0}, nil
		}
		return FromHex(s)
	default:
		return nil, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的 bytes 字段取值: %v", value))
	}
}

func hashBytes32Array(name string, value any) ([]byte, error) {
	var elems [][]byte
	switch v := value.(type) {
	case nil:
	case [][]byte:
		elems = v
	case []any:
		for _, item := range v {
			raw, err := toBytes(item)
			if err != nil {
				return nil, err
			}
			elems = append(elems, PadLeft(raw, WordSize))
		}
	default:
		return nil, xerrors.New(xerrors.CodeFormat,
			fmt.Sprintf("字段 %s 需要 bytes32 数组取值", name))
	}
	if len(elems) == 0 {
		return crypto.Keccak256([]byte{}), nil
	}
	return crypto.Keccak256(Concat(elems...)), nil
}

// HashDomain hashes the EIP712Domain struct of the given domain values.
func HashDomain(domain map[string]any, types TypedDataTypes) ([]byte, error) {
	return HashStruct(domain, "EIP712Domain", types)
}

// HashTypedData produces the final signing hash:
// keccak(0x1901 ‖ hashDomain ‖ hashStruct(message)).
func HashTypedData(domain, message map[string]any, primary string, types TypedDataTypes) ([]byte, error) {
	domainHash, err := HashDomain(domain, types)
	if err != nil {
		return nil, err
	}
	structHash, err := HashStruct(message, primary, types)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(Concat([]byte{0x19, 0x01}, domainHash, structHash)), nil
}
