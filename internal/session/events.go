package session

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	xerrors "SSOWallet-Chain/internal/errors"
)

// sessionModuleABI is the event subset of the session-key module contract.
const sessionModuleABI = `[
  {
    "type": "event",
    "name": "SessionCreated",
    "inputs": [
      {"name": "account", "type": "address", "indexed": true},
      {"name": "sessionHash", "type": "bytes32", "indexed": true},
      {
        "name": "sessionSpec",
        "type": "tuple",
        "indexed": false,
        "components": [
          {"name": "signer", "type": "address"},
          {"name": "expiresAt", "type": "uint256"},
          {
            "name": "feeLimit",
            "type": "tuple",
            "components": [
              {"name": "limitType", "type": "uint8"},
              {"name": "limit", "type": "uint256"},
              {"name": "period", "type": "uint256"}
            ]
          },
          {
            "name": "callPolicies",
            "type": "tuple[]",
            "components": [
              {"name": "target", "type": "address"},
              {"name": "selector", "type": "bytes4"},
              {"name": "maxValuePerUse", "type": "uint256"},
              {
                "name": "valueLimit",
                "type": "tuple",
                "components": [
                  {"name": "limitType", "type": "uint8"},
                  {"name": "limit", "type": "uint256"},
                  {"name": "period", "type": "uint256"}
                ]
              },
              {
                "name": "constraints",
                "type": "tuple[]",
                "components": [
                  {"name": "condition", "type": "uint8"},
                  {"name": "index", "type": "uint64"},
                  {"name": "refValue", "type": "bytes32"},
                  {
                    "name": "limit",
                    "type": "tuple",
                    "components": [
                      {"name": "limitType", "type": "uint8"},
                      {"name": "limit", "type": "uint256"},
                      {"name": "period", "type": "uint256"}
                    ]
                  }
                ]
              }
            ]
          },
          {
            "name": "transferPolicies",
            "type": "tuple[]",
            "components": [
              {"name": "target", "type": "address"},
              {"name": "maxValuePerUse", "type": "uint256"},
              {
                "name": "valueLimit",
                "type": "tuple",
                "components": [
                  {"name": "limitType", "type": "uint8"},
                  {"name": "limit", "type": "uint256"},
                  {"name": "period", "type": "uint256"}
                ]
              }
            ]
          }
        ]
      }
    ]
  },
  {
    "type": "event",
    "name": "SessionRevoked",
    "inputs": [
      {"name": "account", "type": "address", "indexed": true},
      {"name": "sessionHash", "type": "bytes32", "indexed": true}
    ]
  }
]`

var moduleABI = mustParseABI(sessionModuleABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// CreatedTopic is the SessionCreated event signature hash.
func CreatedTopic() common.Hash { return moduleABI.Events["SessionCreated"].ID }

// RevokedTopic is the SessionRevoked event signature hash.
func RevokedTopic() common.Hash { return moduleABI.Events["SessionRevoked"].ID }

// parseCreatedLog extracts the account, session hash and spec from one
// SessionCreated log.
func parseCreatedLog(log coretypes.Log) (common.Address, *Resolved, error) {
	if len(log.Topics) < 3 {
		return common.Address{}, nil, xerrors.New(xerrors.CodeFormat, "SessionCreated 日志缺少 topic")
	}
	account := common.BytesToAddress(log.Topics[1].Bytes())
	sessionHash := log.Topics[2]

	values, err := moduleABI.Events["SessionCreated"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return common.Address{}, nil, xerrors.Wrap(xerrors.CodeFormat, err, "解码 sessionSpec 失败")
	}
	if len(values) != 1 {
		return common.Address{}, nil, xerrors.New(xerrors.CodeFormat, "SessionCreated 日志数据异常")
	}

	spec, err := NormalizeSpec(values[0])
	if err != nil {
		return common.Address{}, nil, err
	}
	return account, &Resolved{
		Spec:        spec,
		SessionHash: sessionHash,
		BlockNumber: log.BlockNumber,
	}, nil
}

// NormalizeSpec converts a decoded sessionSpec payload into the canonical
// Spec representation. Depending on the log decoder in use the payload may
// arrive as a generated struct, a name-keyed map or a positional tuple; all
// three shapes are accepted here so nothing downstream ever branches on
// decoding shape again.
func NormalizeSpec(value any) (*Spec, error) {
	signer, err := asAddress(specField(value, "signer", 0))
	if err != nil {
		return nil, err
	}
	expiresAt, err := asBig(specField(value, "expiresAt", 1))
	if err != nil {
		return nil, err
	}
	feeLimit, err := normalizeLimit(specField(value, "feeLimit", 2))
	if err != nil {
		return nil, err
	}

	var callPolicies []CallPolicy
	for i, item := range asList(specField(value, "callPolicies", 3)) {
		policy, err := normalizeCallPolicy(item)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeFormat, err, fmt.Sprintf("解析第 %d 条调用策略失败", i))
		}
		callPolicies = append(callPolicies, policy)
	}

	var transferPolicies []TransferPolicy
	for i, item := range asList(specField(value, "transferPolicies", 4)) {
		policy, err := normalizeTransferPolicy(item)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeFormat, err, fmt.Sprintf("解析第 %d 条转账策略失败", i))
		}
		transferPolicies = append(transferPolicies, policy)
	}

	return &Spec{
		Signer:           signer,
		ExpiresAt:        expiresAt,
		FeeLimit:         feeLimit,
		CallPolicies:     callPolicies,
		TransferPolicies: transferPolicies,
	}, nil
}

func normalizeLimit(value any) (UsageLimit, error) {
	limitType, err := asUint8(specField(value, "limitType", 0))
	if err != nil {
		return UsageLimit{}, err
	}
	limit, err := asBig(specField(value, "limit", 1))
	if err != nil {
		return UsageLimit{}, err
	}
	period, err := asBig(specField(value, "period", 2))
	if err != nil {
		return UsageLimit{}, err
	}
	return UsageLimit{LimitType: LimitType(limitType), Limit: limit, Period: period}, nil
}

func normalizeCallPolicy(value any) (CallPolicy, error) {
	target, err := asAddress(specField(value, "target", 0))
	if err != nil {
		return CallPolicy{}, err
	}
	selector, err := asBytes4(specField(value, "selector", 1))
	if err != nil {
		return CallPolicy{}, err
	}
	maxValue, err := asBig(specField(value, "maxValuePerUse", 2))
	if err != nil {
		return CallPolicy{}, err
	}
	valueLimit, err := normalizeLimit(specField(value, "valueLimit", 3))
	if err != nil {
		return CallPolicy{}, err
	}

	var constraints []Constraint
	for _, item := range asList(specField(value, "constraints", 4)) {
		condition, err := asUint8(specField(item, "condition", 0))
		if err != nil {
			return CallPolicy{}, err
		}
		index, err := asUint64(specField(item, "index", 1))
		if err != nil {
			return CallPolicy{}, err
		}
		refValue, err := asHash(specField(item, "refValue", 2))
		if err != nil {
			return CallPolicy{}, err
		}
		limit, err := normalizeLimit(specField(item, "limit", 3))
		if err != nil {
			return CallPolicy{}, err
		}
		constraints = append(constraints, Constraint{
			Condition: Condition(condition),
			Index:     index,
			RefValue:  refValue,
			Limit:     limit,
		})
	}

	return CallPolicy{
		Target:         target,
		Selector:       selector,
		MaxValuePerUse: maxValue,
		ValueLimit:     valueLimit,
		Constraints:    constraints,
	}, nil
}

func normalizeTransferPolicy(value any) (TransferPolicy, error) {
	target, err := asAddress(specField(value, "target", 0))
	if err != nil {
		return TransferPolicy{}, err
	}
	maxValue, err := asBig(specField(value, "maxValuePerUse", 1))
	if err != nil {
		return TransferPolicy{}, err
	}
	valueLimit, err := normalizeLimit(specField(value, "valueLimit", 2))
	if err != nil {
		return TransferPolicy{}, err
	}
	return TransferPolicy{Target: target, MaxValuePerUse: maxValue, ValueLimit: valueLimit}, nil
}

// specField reads one logical field from any of the supported payload
// shapes: name-keyed map, positional slice, or decoder-generated struct.
func specField(value any, name string, index int) any {
	switch v := value.(type) {
	case map[string]any:
		if field, ok := v[name]; ok {
			return field
		}
		return nil
	case []any:
		if index < len(v) {
			return v[index]
		}
		return nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if field := rv.FieldByName(exportedName(name)); field.IsValid() {
			return field.Interface()
		}
		if index < rv.NumField() {
			return rv.Field(index).Interface()
		}
	}
	return nil
}

func exportedName(name string) string {
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func asList(value any) []any {
	if value == nil {
		return nil
	}
	if list, ok := value.([]any); ok {
		return list
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func asAddress(value any) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case [20]byte:
		return common.Address(v), nil
	case []byte:
		if len(v) == 20 {
			return common.BytesToAddress(v), nil
		}
	case string:
		if common.IsHexAddress(v) {
			return common.HexToAddress(v), nil
		}
	}
	return common.Address{}, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的地址字段: %v", value))
}

func asBig(value any) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v != nil {
			return v, nil
		}
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case uint8:
		return big.NewInt(int64(v)), nil
	case string:
		if n, ok := new(big.Int).SetString(strings.TrimPrefix(v, "0x"), numberBase(v)); ok {
			return n, nil
		}
	}
	return nil, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的数值字段: %v", value))
}

func numberBase(s string) int {
	if strings.HasPrefix(s, "0x") {
		return 16
	}
	return 10
}

func asUint8(value any) (uint8, error) {
	n, err := asBig(value)
	if err != nil {
		return 0, err
	}
	return uint8(n.Uint64()), nil
}

func asUint64(value any) (uint64, error) {
	n, err := asBig(value)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func asBytes4(value any) ([4]byte, error) {
	var out [4]byte
	switch v := value.(type) {
	case [4]byte:
		return v, nil
	case []byte:
		if len(v) == 4 {
			copy(out[:], v)
			return out, nil
		}
	case string:
		raw := common.FromHex(v)
		if len(raw) == 4 {
			copy(out[:], raw)
			return out, nil
		}
	}
	return out, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的 selector 字段: %v", value))
}

func asHash(value any) (common.Hash, error) {
	switch v := value.(type) {
	case common.Hash:
		return v, nil
	case [32]byte:
		return common.Hash(v), nil
	case []byte:
		if len(v) == 32 {
			return common.BytesToHash(v), nil
		}
	case string:
		raw := common.FromHex(v)
		if len(raw) == 32 {
			return common.BytesToHash(raw), nil
		}
	}
	return common.Hash{}, xerrors.New(xerrors.CodeFormat, fmt.Sprintf("非法的 bytes32 字段: %v", value))
}
