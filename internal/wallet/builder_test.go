package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SSOWallet-Chain/internal/errors"
)

type stubChainReader struct {
	nonce    uint64
	baseFee  *big.Int
	nonceErr error
	feeErr   error
}

func (s *stubChainReader) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return s.nonce, s.nonceErr
}

func (s *stubChainReader) BaseFee(ctx context.Context) (*big.Int, error) {
	return s.baseFee, s.feeErr
}

func (s *stubChainReader) ChainID() uint64 { return 240 }

func TestPrepareFillsEnvelope(t *testing.T) {
	reader := &stubChainReader{nonce: 12, baseFee: big.NewInt(1_000_000_000)}
	builder := NewBuilder(reader, nil)

	from := common.HexToAddress("0xbbbb00000000000000000000000000000000bbbb")
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx, err := builder.Prepare(context.Background(), from, to, big.NewInt(5), nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if tx.TxType != TxTypeEIP712 {
		t.Fatalf("tx type = %d, want %d", tx.TxType, TxTypeEIP712)
	}
	if tx.Nonce != 12 {
		t.Fatalf("nonce = %d, want 12", tx.Nonce)
	}
	if tx.GasLimit != DefaultGasLimit || tx.GasPerPubdata != DefaultGasPerPubdata {
		t.Fatalf("gas defaults = %d/%d", tx.GasLimit, tx.GasPerPubdata)
	}
	if tx.MaxFeePerGas.Cmp(big.NewInt(2_500_000_000)) != 0 {
		t.Fatalf("max fee = %s, want 2.5x base fee", tx.MaxFeePerGas)
	}
	if tx.MaxPriorityFeePerGas.Sign() != 0 {
		t.Fatalf("priority fee = %s, want 0", tx.MaxPriorityFeePerGas)
	}
	if tx.ChainID != 240 {
		t.Fatalf("chain ID = %d, want 240", tx.ChainID)
	}
}

func TestPrepareNilAmount(t *testing.T) {
	reader := &stubChainReader{baseFee: big.NewInt(2)}
	tx, err := NewBuilder(reader, nil).Prepare(context.Background(), common.Address{}, common.Address{}, nil, nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if tx.Value == nil || tx.Value.Sign() != 0 {
		t.Fatalf("value = %v, want 0", tx.Value)
	}
}

func TestPrepareReportsFetchFailures(t *testing.T) {
	reader := &stubChainReader{nonceErr: errors.New("rpc down")}
	if _, err := NewBuilder(reader, nil).Prepare(context.Background(), common.Address{}, common.Address{}, nil, nil); xerrors.CodeOf(err) != xerrors.CodePreparationFailure {
		t.Fatalf("nonce failure = %v, want PREPARATION_FAILURE", err)
	}

	reader = &stubChainReader{feeErr: errors.New("rpc down")}
	if _, err := NewBuilder(reader, nil).Prepare(context.Background(), common.Address{}, common.Address{}, nil, nil); xerrors.CodeOf(err) != xerrors.CodePreparationFailure {
		t.Fatalf("fee failure = %v, want PREPARATION_FAILURE", err)
	}
}
