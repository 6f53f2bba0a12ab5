package session

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	xerrors "SSOWallet-Chain/internal/errors"
)

// LogSource is the slice of chain access the resolver needs.
type LogSource interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]coretypes.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

const (
	// fallbackRecentBlocks bounds the unfiltered retry when the node
	// rejects the account-filtered query.
	fallbackRecentBlocks = 1000
	// scanChunkBlocks is the window size of the last-resort full scan.
	scanChunkBlocks = 10000
)

// Resolver reconstructs session state for an account from the event history
// of one session-key module deployment.
type Resolver struct {
	source LogSource
	module common.Address
	log    *slog.Logger
	now    func() time.Time
}

// NewResolver wires a resolver against a log source and module address.
func NewResolver(source LogSource, module common.Address, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{source: source, module: module, log: log, now: time.Now}
}

// ActiveSession returns the most recently created session of account that is
// neither expired nor revoked. When signer is non-zero only sessions keyed by
// that signer qualify; the comparison ignores address casing. A nil result
// with a nil error means no active session exists.
func (r *Resolver) ActiveSession(ctx context.Context, account, signer common.Address) (*Resolved, error) {
	logs, err := r.fetchLogs(ctx, account)
	if err != nil {
		return nil, err
	}

	revoked := map[common.Hash]bool{}
	var created []*Resolved
	for _, log := range logs {
		if len(log.Topics) == 0 {
			continue
		}
		switch log.Topics[0] {
		case RevokedTopic():
			if len(log.Topics) >= 3 {
				revoked[log.Topics[2]] = true
			}
		case CreatedTopic():
			logAccount, resolved, err := parseCreatedLog(log)
			if err != nil {
				r.log.Warn("跳过无法解析的 SessionCreated 日志",
					"block", log.BlockNumber, "tx", log.TxHash.Hex(), "error", err)
				continue
			}
			if logAccount != account {
				continue
			}
			created = append(created, resolved)
		}
	}

	sort.Slice(created, func(i, j int) bool {
		return created[i].BlockNumber > created[j].BlockNumber
	})

	nowSec := r.now().Unix()
	for _, candidate := range created {
		if revoked[candidate.SessionHash] {
			continue
		}
		if candidate.Spec.ExpiresAt != nil && candidate.Spec.ExpiresAt.Int64() <= nowSec {
			continue
		}
		if signer != (common.Address{}) && candidate.Spec.Signer != signer {
			continue
		}
		return candidate, nil
	}
	return nil, nil
}

// fetchLogs walks down a ladder of query shapes. Public RPC endpoints differ
// wildly in what they accept: some reject topic-position filters, some cap
// the block range. Each rung trades precision for compatibility.
func (r *Resolver) fetchLogs(ctx context.Context, account common.Address) ([]coretypes.Log, error) {
	topics := [][]common.Hash{
		{CreatedTopic(), RevokedTopic()},
		{common.BytesToHash(account.Bytes())},
	}
	logs, err := r.source.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{r.module},
		Topics:    topics,
	})
	if err == nil {
		return logs, nil
	}
	r.log.Warn("按账户过滤日志失败, 回退到近期区块", "account", account.Hex(), "error", err)

	head, headErr := r.source.BlockNumber(ctx)
	if headErr != nil {
		return nil, xerrors.Wrap(xerrors.CodeNetworkError, headErr, "获取最新区块高度失败")
	}

	from := uint64(0)
	if head > fallbackRecentBlocks {
		from = head - fallbackRecentBlocks
	}
	logs, err = r.source.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{r.module},
		FromBlock: newBlockNumber(from),
		ToBlock:   newBlockNumber(head),
	})
	if err == nil {
		return logs, nil
	}
	r.log.Warn("近期区块日志查询失败, 回退到分段全量扫描", "error", err)

	return r.scanLogs(ctx, head)
}

// scanLogs sweeps the whole chain in fixed windows. Slow, but the only shape
// every endpoint answers.
func (r *Resolver) scanLogs(ctx context.Context, head uint64) ([]coretypes.Log, error) {
	var all []coretypes.Log
	for from := uint64(0); from <= head; from += scanChunkBlocks {
		to := from + scanChunkBlocks - 1
		if to > head {
			to = head
		}
		chunk, err := r.source.FilterLogs(ctx, ethereum.FilterQuery{
			Addresses: []common.Address{r.module},
			FromBlock: newBlockNumber(from),
			ToBlock:   newBlockNumber(to),
		})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeNetworkError, err, "分段扫描会话日志失败")
		}
		all = append(all, chunk...)
	}
	return all, nil
}

func newBlockNumber(n uint64) *big.Int {
	return new(big.Int).SetUint64(n)
}
