package codec

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SSOWallet-Chain/internal/errors"
)

// Kind discriminates the closed set of ABI types the wallet understands.
type Kind int

const (
	KindAddress Kind = iota
	KindBool
	KindInt
	KindBytes
	KindString
	KindTuple
	KindArray
)

// Type is the resolved form of an ABI type string. Type strings are parsed
// once via ParseType; the encoder then dispatches on Kind exhaustively
// instead of re-matching strings per value.
type Type struct {
	Kind       Kind
	Bits       int  // KindInt: width in bits
	Signed     bool // KindInt: int vs uint
	Size       int  // KindBytes: fixed size in bytes, 0 for dynamic bytes
	Elem       *Type
	Len        int // KindArray: fixed length, -1 for dynamic
	Components []Param
}

// Param pairs a field name with its resolved type. Names matter for tuples
// whose values arrive as maps.
type Param struct {
	Name string
	Type *Type
}

var arraySuffix = regexp.MustCompile(`^(.*)\[([0-9]*)\]$`)

// ParseType resolves an ABI type string into a Type. Tuple types need their
// component list supplied alongside the string.
func ParseType(s string, components []Param) (*Type, error) {
	s = strings.TrimSpace(s)
	if m := arraySuffix.FindStringSubmatch(s); m != nil {
		elem, err := ParseType(m[1], components)
		if err != nil {
			return nil, err
		}
		length := -1
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				return nil, xerrors.New(xerrors.CodeUnsupportedType, "非法的数组长度: "+s)
			}
			length = n
		}
		return &Type{Kind: KindArray, Elem: elem, Len: length}, nil
	}

	switch {
	case s == "address":
		return &Type{Kind: KindAddress}, nil
	case s == "bool":
		return &Type{Kind: KindBool}, nil
	case s == "string":
		return &Type{Kind: KindString}, nil
	case s == "tuple":
		if len(components) == 0 {
			return nil, xerrors.New(xerrors.CodeUnsupportedType, "tuple 类型缺少 components 描述")
		}
		return &Type{Kind: KindTuple, Components: components}, nil
	case s == "bytes":
		return &Type{Kind: KindBytes, Size: 0}, nil
	case strings.HasPrefix(s, "bytes"):
		n, err := strconv.Atoi(s[len("bytes"):])
		if err != nil || n < 1 || n > 32 {
			return nil, xerrors.New(xerrors.CodeUnsupportedType, "不支持的定长 bytes 类型: "+s)
		}
		return &Type{Kind: KindBytes, Size: n}, nil
	case strings.HasPrefix(s, "uint"), strings.HasPrefix(s, "int"):
		signed := strings.HasPrefix(s, "int")
		digits := strings.TrimPrefix(strings.TrimPrefix(s, "uint"), "int")
		bits := 256
		if digits != "" {
			n, err := strconv.Atoi(digits)
			if err != nil || n < 8 || n > 256 || n%8 != 0 {
				return nil, xerrors.New(xerrors.CodeUnsupportedType, "不支持的整数类型: "+s)
			}
			bits = n
		}
		return &Type{Kind: KindInt, Bits: bits, Signed: signed}, nil
	default:
		return nil, xerrors.New(xerrors.CodeUnsupportedType, "无法识别的 ABI 类型: "+s)
	}
}

// MustParam builds a Param from a type string, panicking on grammar errors.
// Intended for the package-level schema literals only.
func MustParam(name, typeStr string, components ...Param) Param {
	t, err := ParseType(typeStr, components)
	if err != nil {
		panic(err)
	}
	return Param{Name: name, Type: t}
}

// prepared is the intermediate encoding of a single value: its body bytes
// plus whether a pointer word must refer to it from the head region.
type prepared struct {
	dynamic bool
	encoded []byte
}

// EncodeParams ABI-encodes values against params using canonical head/tail
// layout: static values inline, dynamic values behind 32-byte offsets into
// the tail region. Tuples carry no length prefix; arrays do.
func EncodeParams(params []Param, values []any) ([]byte, error) {
	if len(params) != len(values) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("参数数量 %d 与取值数量 %d 不一致", len(params), len(values)))
	}
	preps := make([]prepared, len(params))
	for i := range params {
		p, err := prepare(params[i].Type, values[i])
		if err != nil {
			return nil, err
		}
		preps[i] = p
	}
	return assemble(preps), nil
}

// assemble lays out prepared values: heads first (inline statics, offset
// words for dynamics), then the dynamic bodies in parameter order.
func assemble(preps []prepared) []byte {
	staticSize := 0
	for _, p := range preps {
		if p.dynamic {
			staticSize += WordSize
		} else {
			staticSize += len(p.encoded)
		}
	}

	var heads, tails []byte
	dynamicSize := 0
	for _, p := range preps {
		if p.dynamic {
			offset := new(big.Int).SetInt64(int64(staticSize + dynamicSize))
			word, _ := NumberToWord(offset, WordSize, false)
			heads = append(heads, word...)
			tails = append(tails, p.encoded...)
			dynamicSize += len(p.encoded)
		} else {
			heads = append(heads, p.encoded...)
		}
	}
	return append(heads, tails...)
}

func prepare(t *Type, value any) (prepared, error) {
	switch t.Kind {
	case KindAddress:
		return prepareAddress(value)
	case KindBool:
		return prepareBool(value)
	case KindInt:
		return prepareNumber(value, t.Signed)
	case KindBytes:
		return prepareBytes(value, t.Size)
	case KindString:
		return prepareString(value)
	case KindTuple:
		return prepareTuple(t, value)
	case KindArray:
		return prepareArray(t, value)
	default:
		return prepared{}, xerrors.New(xerrors.CodeUnsupportedType, "未知的类型标记")
	}
}

func prepareAddress(value any) (prepared, error) {
	var raw []byte
	switch v := value.(type) {
	case common.Address:
		raw = v.Bytes()
	case string:
		s := strings.TrimSpace(v)
		if !strings.HasPrefix(s, "0x") || len(s) != 42 || !isHex(s[2:]) {
			return prepared{}, xerrors.New(xerrors.CodeFormat, "非法的地址: "+v)
		}
		raw = common.HexToAddress(s).Bytes()
	default:
		return prepared{}, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的地址取值: %v", value))
	}
	return prepared{encoded: PadLeft(raw, WordSize)}, nil
}

func prepareBool(value any) (prepared, error) {
	b, ok := value.(bool)
	if !ok {
		return prepared{}, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的布尔取值: %v", value))
	}
	word := make([]byte, WordSize)
	if b {
		word[WordSize-1] = 1
	}
	return prepared{encoded: word}, nil
}

func prepareNumber(value any, signed bool) (prepared, error) {
	n, err := toBigInt(value)
	if err != nil {
		return prepared{}, err
	}
	word, err := NumberToWord(n, WordSize, signed)
	if err != nil {
		return prepared{}, err
	}
	return prepared{encoded: word}, nil
}

func prepareBytes(value any, fixedSize int) (prepared, error) {
	raw, err := toBytes(value)
	if err != nil {
		return prepared{}, err
	}
	if fixedSize > 0 {
		if len(raw) != fixedSize {
			return prepared{}, xerrors.New(xerrors.CodeFormat,
				fmt.Sprintf("bytes%d 期望 %d 字节, 实际 %d 字节", fixedSize, fixedSize, len(raw)))
		}
		return prepared{encoded: PadRight(raw, WordSize)}, nil
	}
	lengthWord, _ := NumberToWord(big.NewInt(int64(len(raw))), WordSize, false)
	padded := raw
	if rem := len(raw) % WordSize; rem != 0 {
		padded = PadRight(raw, len(raw)+WordSize-rem)
	}
	return prepared{dynamic: true, encoded: Concat(lengthWord, padded)}, nil
}

func prepareString(value any) (prepared, error) {
	s, ok := value.(string)
	if !ok {
		return prepared{}, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的字符串取值: %v", value))
	}
	return prepareBytes([]byte(s), 0)
}

func prepareTuple(t *Type, value any) (prepared, error) {
	preps := make([]prepared, len(t.Components))
	hasDynamic := false
	for i, comp := range t.Components {
		fieldValue, err := tupleField(value, comp.Name, i)
		if err != nil {
			return prepared{}, err
		}
		p, err := prepare(comp.Type, fieldValue)
		if err != nil {
			return prepared{}, err
		}
		if p.dynamic {
			hasDynamic = true
		}
		preps[i] = p
	}
	if hasDynamic {
		return prepared{dynamic: true, encoded: assemble(preps)}, nil
	}
	parts := make([][]byte, len(preps))
	for i, p := range preps {
		parts[i] = p.encoded
	}
	return prepared{encoded: Concat(parts...)}, nil
}

// tupleField pulls a component value out of either a name-keyed map or a
// positional slice, tolerating both decoded shapes.
func tupleField(value any, name string, index int) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		if name != "" {
			if field, ok := v[name]; ok {
				return field, nil
			}
		}
		return nil, xerrors.New(xerrors.CodeFormat, "tuple 取值缺少字段: "+name)
	case []any:
		if index >= len(v) {
			return nil, xerrors.New(xerrors.CodeFormat,
				fmt.Sprintf("tuple 取值缺少第 %d 个元素", index))
		}
		return v[index], nil
	default:
		return nil, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的 tuple 取值: %v", value))
	}
}

func prepareArray(t *Type, value any) (prepared, error) {
	items, ok := value.([]any)
	if !ok {
		// A bare tuple value is treated as a single-element array, matching
		// the tolerant behaviour of the event-log decoders upstream.
		if m, isMap := value.(map[string]any); isMap {
			items = []any{m}
		} else {
			return prepared{}, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的数组取值: %v", value))
		}
	}

	dynamicLen := t.Len < 0
	if !dynamicLen && len(items) != t.Len {
		return prepared{}, xerrors.New(xerrors.CodeArrayLengthMismatch,
			fmt.Sprintf("期望数组长度 %d, 实际 %d", t.Len, len(items)))
	}

	preps := make([]prepared, len(items))
	hasDynamicChild := false
	for i, item := range items {
		p, err := prepare(t.Elem, item)
		if err != nil {
			return prepared{}, err
		}
		if p.dynamic {
			hasDynamicChild = true
		}
		preps[i] = p
	}

	if dynamicLen || hasDynamicChild {
		body := assemble(preps)
		if dynamicLen {
			lengthWord, _ := NumberToWord(big.NewInt(int64(len(items))), WordSize, false)
			return prepared{dynamic: true, encoded: Concat(lengthWord, body)}, nil
		}
		return prepared{dynamic: true, encoded: body}, nil
	}

	parts := make([][]byte, len(preps))
	for i, p := range preps {
		parts[i] = p.encoded
	}
	return prepared{encoded: Concat(parts...)}, nil
}

func toBigInt(value any) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, xerrors.New(xerrors.CodeFormat, "数值不能为空")
		}
		return v, nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case uint8:
		return big.NewInt(int64(v)), nil
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "0x") {
			n, ok := new(big.Int).SetString(s[2:], 16)
			if !ok {
				return nil, xerrors.New(xerrors.CodeFormat, "非法的十六进制数值: "+v)
			}
			return n, nil
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, xerrors.New(xerrors.CodeFormat, "非法的十进制数值: "+v)
		}
		return n, nil
	default:
		return nil, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的数值取值: %v", value))
	}
}

func toBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case common.Hash:
		return v.Bytes(), nil
	case string:
		if !strings.HasPrefix(strings.TrimSpace(v), "0x") {
			return nil, xerrors.New(xerrors.CodeFormat, "bytes 取值必须以 0x 开头: "+v)
		}
		return FromHex(v)
	default:
		return nil, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的 bytes 取值: %v", value))
	}
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
