package job

import (
	"context"
	"errors"
	"testing"

	xerrors "SSOWallet-Chain/internal/errors"
)

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error { return errors.New("broker down") }
func (failingProducer) Close() error                          { return nil }

func TestServiceSubmitValidatesRequest(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(4), 3)
	ctx := context.Background()

	if _, err := service.Submit(ctx, TransferRequest{To: "not-an-address", Amount: "1"}); xerrors.CodeOf(err) != CodeJobValidation {
		t.Fatalf("expected validation error for bad address, got %v", err)
	}
	if _, err := service.Submit(ctx, TransferRequest{To: "0x1111111111111111111111111111111111111111", Amount: "1.5"}); xerrors.CodeOf(err) != CodeJobValidation {
		t.Fatalf("expected validation error for bad amount, got %v", err)
	}
}

func TestServiceSubmitIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, NewMemoryQueue(4), 3)
	ctx := context.Background()

	req := TransferRequest{
		ID:     "fixed-id",
		To:     "0x1111111111111111111111111111111111111111",
		Amount: "10",
	}
	first, err := service.Submit(ctx, req)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := service.Submit(ctx, req)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same job, got %s and %s", first.ID, second.ID)
	}
	jobs, err := service.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected a single job, got %d", len(jobs))
	}
}

func TestServiceSubmitDefaultsAmountToZero(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(4), 3)
	job, err := service.Submit(context.Background(), TransferRequest{
		To: "0x1111111111111111111111111111111111111111",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Amount != "0" {
		t.Fatalf("expected zero amount, got %q", job.Amount)
	}
}

func TestServiceSubmitMarksFailedWhenPublishFails(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, failingProducer{}, 3)
	ctx := context.Background()

	_, err := service.Submit(ctx, TransferRequest{
		ID:     "doomed",
		To:     "0x1111111111111111111111111111111111111111",
		Amount: "1",
	})
	if xerrors.CodeOf(err) != CodeJobPublish {
		t.Fatalf("expected publish failure, got %v", err)
	}
	job, getErr := store.Get(ctx, "doomed")
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if job.Status != StatusFailed || job.ErrorCode != string(CodeJobPublish) {
		t.Fatalf("expected failed job with publish code, got %+v", job)
	}
}
