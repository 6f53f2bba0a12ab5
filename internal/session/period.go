package session

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

var (
	wildcardTarget   = common.Address{}
	wildcardSelector = [4]byte{}
)

// periodID buckets a timestamp by the limit's period. Limits that are not
// time-windowed always live in bucket 0.
func periodID(limit UsageLimit, timestamp int64) uint64 {
	if limit.LimitType == LimitAllowance && limit.Period != nil && limit.Period.Sign() > 0 {
		return uint64(timestamp) / limit.Period.Uint64()
	}
	return 0
}

// PeriodIDs computes the usage-counter buckets a transaction would consume
// at the given timestamp: the fee limit first, then the limits of the single
// policy matching target/selector. A nil or short selector means a native
// transfer. An empty result means no policy authorizes the route; callers
// treat that as "unauthorized", not as an error.
func PeriodIDs(spec *Spec, target common.Address, selector []byte, timestamp int64) []uint64 {
	if spec == nil {
		return nil
	}
	ids := []uint64{periodID(spec.FeeLimit, timestamp)}

	if len(selector) < 4 {
		for _, p := range spec.TransferPolicies {
			if p.Target == target || p.Target == wildcardTarget {
				return append(ids, periodID(p.ValueLimit, timestamp))
			}
		}
		return nil
	}

	for _, p := range spec.CallPolicies {
		if p.Target != target {
			continue
		}
		if !bytes.Equal(p.Selector[:], selector[:4]) && p.Selector != wildcardSelector {
			continue
		}
		ids = append(ids, periodID(p.ValueLimit, timestamp))
		for _, c := range p.Constraints {
			ids = append(ids, periodID(c.Limit, timestamp))
		}
		return ids
	}
	return nil
}
