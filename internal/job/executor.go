package job

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"SSOWallet-Chain/internal/codec"
	xerrors "SSOWallet-Chain/internal/errors"
	"SSOWallet-Chain/internal/session"
	"SSOWallet-Chain/internal/wallet"
)

// Executor 定义处理器执行作业所需的能力。
type Executor interface {
	Execute(ctx context.Context, job *Job) (*ExecutionResult, error)
}

// defaultReceiptTimeout 是等待交易回执的默认时长。
const defaultReceiptTimeout = 300 * time.Second

// TransferExecutor 将转账作业解析为会话交易并提交上链。
type TransferExecutor struct {
	resolver       *session.Resolver
	pipeline       *wallet.Pipeline
	account        common.Address
	signer         common.Address
	receiptTimeout time.Duration
	log            *slog.Logger
	now            func() time.Time

	// 同一账户的 nonce 必须串行使用。
	mu sync.Mutex
}

// TransferExecutorOption 定义执行器的可选配置。
type TransferExecutorOption func(*TransferExecutor)

// WithReceiptTimeout 调整等待交易回执的时长。
func WithReceiptTimeout(timeout time.Duration) TransferExecutorOption {
	return func(e *TransferExecutor) {
		if timeout > 0 {
			e.receiptTimeout = timeout
		}
	}
}

// WithExecutorLogger 指定日志输出。
func WithExecutorLogger(log *slog.Logger) TransferExecutorOption {
	return func(e *TransferExecutor) {
		if log != nil {
			e.log = log
		}
	}
}

// NewTransferExecutor 构造 TransferExecutor。
// account 是链上的智能账户地址，signer 是本地会话密钥对应的地址。
func NewTransferExecutor(resolver *session.Resolver, pipeline *wallet.Pipeline, account, signer common.Address, opts ...TransferExecutorOption) *TransferExecutor {
	e := &TransferExecutor{
		resolver:       resolver,
		pipeline:       pipeline,
		account:        account,
		signer:         signer,
		receiptTimeout: defaultReceiptTimeout,
		log:            slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Execute 解析账户当前的会话策略并执行转账。
func (e *TransferExecutor) Execute(ctx context.Context, job *Job) (*ExecutionResult, error) {
	if e.resolver == nil || e.pipeline == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "转账执行器未初始化")
	}
	if job == nil {
		return nil, xerrors.New(CodeJobValidation, "作业不能为空")
	}
	to, amount, data, err := decodeJobPayload(job)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	resolved, err := e.resolver.ActiveSession(ctx, e.account, e.signer)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, xerrors.New(CodeJobUnauthorized, "当前账户没有可用的会话")
	}
	timestamp := e.now().Unix()
	if len(session.PeriodIDs(resolved.Spec, to, data, timestamp)) == 0 {
		return nil, xerrors.New(CodeJobUnauthorized,
			fmt.Sprintf("会话策略不允许向 %s 执行该调用", to.Hex()))
	}

	txHash, err := e.pipeline.Execute(ctx, e.account, resolved.Spec, to, amount, data)
	if err != nil {
		return nil, err
	}
	result := &ExecutionResult{
		TxHash:      txHash.Hex(),
		SessionHash: resolved.SessionHash.Hex(),
	}

	receipt, err := e.pipeline.WaitForReceipt(ctx, txHash, e.receiptTimeout)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		e.log.Warn("等待交易回执超时",
			slog.String("job_id", job.ID),
			slog.String("tx_hash", txHash.Hex()),
		)
		return result, nil
	}
	if receipt.Status == 0 {
		return nil, xerrors.New(CodeJobProcessing,
			fmt.Sprintf("交易 %s 在链上回滚", txHash.Hex()),
			xerrors.WithRetryable(false))
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.String()
	}
	result.GasUsed = new(big.Int).SetUint64(receipt.GasUsed).String()
	return result, nil
}

func decodeJobPayload(job *Job) (common.Address, *big.Int, []byte, error) {
	if !common.IsHexAddress(job.To) {
		return common.Address{}, nil, nil, xerrors.New(CodeJobValidation, "转账目标地址不合法")
	}
	to := common.HexToAddress(job.To)
	amount := new(big.Int)
	if raw := strings.TrimSpace(job.Amount); raw != "" {
		if _, ok := amount.SetString(raw, 10); !ok {
			return common.Address{}, nil, nil, xerrors.New(CodeJobValidation, "转账金额必须是十进制整数")
		}
	}
	var data []byte
	if raw := strings.TrimSpace(job.CallData); raw != "" {
		decoded, err := codec.FromHex(raw)
		if err != nil {
			return common.Address{}, nil, nil, xerrors.Wrap(CodeJobValidation, err, "调用数据不是合法的十六进制")
		}
		data = decoded
	}
	return to, amount, data, nil
}
