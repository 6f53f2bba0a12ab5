package session

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"SSOWallet-Chain/internal/codec"
)

// LimitType classifies how a usage limit is enforced.
type LimitType uint8

const (
	LimitUnlimited LimitType = iota
	LimitLifetime
	LimitAllowance
)

// Condition restricts a call argument against a reference value.
type Condition uint8

const (
	ConditionUnconstrained Condition = iota
	ConditionEqual
	ConditionGreater
	ConditionLess
	ConditionGreaterEqual
	ConditionLessEqual
	ConditionNotEqual
)

// UsageLimit bounds how much value or fee a session may consume. When
// LimitType is LimitAllowance the limit resets every Period seconds, and
// Period must be positive.
type UsageLimit struct {
	LimitType LimitType
	Limit     *big.Int
	Period    *big.Int
}

// Constraint restricts one call argument, located at a byte offset inside
// the call data, against RefValue.
type Constraint struct {
	Condition Condition
	Index     uint64
	RefValue  common.Hash
	Limit     UsageLimit
}

// CallPolicy authorizes calls to one function of one contract.
type CallPolicy struct {
	Target         common.Address
	Selector       [4]byte
	MaxValuePerUse *big.Int
	ValueLimit     UsageLimit
	Constraints    []Constraint
}

// TransferPolicy authorizes native-value transfers to a target. The zero
// address acts as a wildcard target.
type TransferPolicy struct {
	Target         common.Address
	MaxValuePerUse *big.Int
	ValueLimit     UsageLimit
}

// Spec is the full session configuration as created on chain. It is
// immutable once created; a session dies by expiry or revocation only.
type Spec struct {
	Signer           common.Address
	ExpiresAt        *big.Int
	FeeLimit         UsageLimit
	CallPolicies     []CallPolicy
	TransferPolicies []TransferPolicy
}

// Resolved pairs a parsed spec with its on-chain identity.
type Resolved struct {
	Spec        *Spec
	SessionHash common.Hash
	BlockNumber uint64
}

var usageLimitComponents = []codec.Param{
	codec.MustParam("limitType", "uint8"),
	codec.MustParam("limit", "uint256"),
	codec.MustParam("period", "uint256"),
}

// SpecParams is the ABI schema of the validator payload: the sessionSpec
// tuple followed by the uint64[] period-ID slot.
func SpecParams() []codec.Param {
	return []codec.Param{
		codec.MustParam("sessionSpec", "tuple",
			codec.MustParam("signer", "address"),
			codec.MustParam("expiresAt", "uint256"),
			codec.Param{Name: "feeLimit", Type: mustTuple(usageLimitComponents)},
			codec.MustParam("callPolicies", "tuple[]",
				codec.MustParam("target", "address"),
				codec.MustParam("selector", "bytes4"),
				codec.MustParam("maxValuePerUse", "uint256"),
				codec.Param{Name: "valueLimit", Type: mustTuple(usageLimitComponents)},
				codec.MustParam("constraints", "tuple[]",
					codec.MustParam("condition", "uint8"),
					codec.MustParam("index", "uint64"),
					codec.MustParam("refValue", "bytes32"),
					codec.Param{Name: "limit", Type: mustTuple(usageLimitComponents)},
				),
			),
			codec.MustParam("transferPolicies", "tuple[]",
				codec.MustParam("target", "address"),
				codec.MustParam("maxValuePerUse", "uint256"),
				codec.Param{Name: "valueLimit", Type: mustTuple(usageLimitComponents)},
			),
		),
		codec.MustParam("periodIds", "uint64[]"),
	}
}

func mustTuple(components []codec.Param) *codec.Type {
	t, err := codec.ParseType("tuple", components)
	if err != nil {
		panic(err)
	}
	return t
}

// Values renders the spec in the shape the ABI encoder consumes for the
// sessionSpec tuple of SpecParams.
func (s *Spec) Values() map[string]any {
	callPolicies := make([]any, 0, len(s.CallPolicies))
	for _, p := range s.CallPolicies {
		constraints := make([]any, 0, len(p.Constraints))
		for _, c := range p.Constraints {
			constraints = append(constraints, map[string]any{
				"condition": uint8(c.Condition),
				"index":     c.Index,
				"refValue":  c.RefValue,
				"limit":     limitValues(c.Limit),
			})
		}
		callPolicies = append(callPolicies, map[string]any{
			"target":         p.Target,
			"selector":       p.Selector[:],
			"maxValuePerUse": orZero(p.MaxValuePerUse),
			"valueLimit":     limitValues(p.ValueLimit),
			"constraints":    constraints,
		})
	}

	transferPolicies := make([]any, 0, len(s.TransferPolicies))
	for _, p := range s.TransferPolicies {
		transferPolicies = append(transferPolicies, map[string]any{
			"target":         p.Target,
			"maxValuePerUse": orZero(p.MaxValuePerUse),
			"valueLimit":     limitValues(p.ValueLimit),
		})
	}

	return map[string]any{
		"signer":           s.Signer,
		"expiresAt":        orZero(s.ExpiresAt),
		"feeLimit":         limitValues(s.FeeLimit),
		"callPolicies":     callPolicies,
		"transferPolicies": transferPolicies,
	}
}

func limitValues(l UsageLimit) map[string]any {
	return map[string]any{
		"limitType": uint8(l.LimitType),
		"limit":     orZero(l.Limit),
		"period":    orZero(l.Period),
	}
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
