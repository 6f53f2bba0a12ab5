package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"SSOWallet-Chain/internal/job"
	"SSOWallet-Chain/internal/session"
)

type stubSessions struct {
	resolved *session.Resolved
	err      error
}

func (s *stubSessions) ActiveSession(context.Context, common.Address, common.Address) (*session.Resolved, error) {
	return s.resolved, s.err
}

func newTestServer(t *testing.T, sessions SessionSource) (*Server, *job.MemoryStore) {
	t.Helper()
	store := job.NewMemoryStore()
	svc := job.NewService(store, job.NewMemoryQueue(16), 3)
	return NewServer(":0", svc, sessions, common.Address{}, common.Address{}), store
}

func TestCreateTransfer(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{})

	body := strings.NewReader(`{"to":"0x1111111111111111111111111111111111111111","amount":"1000"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", body)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: got %d want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var got job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID == "" || got.Status != job.StatusPending {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestCreateTransferValidation(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{})

	body := strings.NewReader(`{"to":"not-an-address","amount":"1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", body)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["code"] != string(job.CodeJobValidation) {
		t.Fatalf("unexpected error code: %s", payload["code"])
	}
}

func TestTransferDetail(t *testing.T) {
	server, store := newTestServer(t, &stubSessions{})

	sample := &job.Job{
		ID:         "job-success",
		To:         "0x1111111111111111111111111111111111111111",
		Amount:     "5",
		Status:     job.StatusSucceeded,
		Attempts:   1,
		MaxRetries: 3,
		Result: &job.ExecutionResult{
			TxHash: "0xabc",
		},
	}
	if err := store.Create(context.Background(), sample); err != nil {
		t.Fatalf("create sample job: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/job-success", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var got job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != sample.ID {
		t.Fatalf("unexpected job id: got %q want %q", got.ID, sample.ID)
	}
	if got.Result == nil || got.Result.TxHash != "0xabc" {
		t.Fatalf("unexpected job result: %+v", got.Result)
	}
}

func TestTransferDetailErrors(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{})

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/job-1", nil)
		rec := httptest.NewRecorder()

		server.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/", nil)
		rec := httptest.NewRecorder()

		server.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/missing", nil)
		rec := httptest.NewRecorder()

		server.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestListTransfersWithFilters(t *testing.T) {
	server, store := newTestServer(t, &stubSessions{})
	ctx := context.Background()

	jobs := []*job.Job{
		{ID: "a", To: "0x1111111111111111111111111111111111111111", Amount: "1", Status: job.StatusPending, MaxRetries: 3},
		{ID: "b", To: "0x2222222222222222222222222222222222222222", Amount: "2", Status: job.StatusPending, MaxRetries: 3},
	}
	for _, j := range jobs {
		if err := store.Create(ctx, j); err != nil {
			t.Fatalf("create job %s: %v", j.ID, err)
		}
	}
	if err := store.MarkFailed(ctx, "b", job.CodeJobProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers?status=failed", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	var got []*job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("unexpected list: %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transfers?status=bogus", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestTransferStats(t *testing.T) {
	server, store := newTestServer(t, &stubSessions{})
	ctx := context.Background()

	if err := store.Create(ctx, &job.Job{ID: "a", To: "0x1111111111111111111111111111111111111111", Amount: "1", Status: job.StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/stats", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d: %s", rec.Code, rec.Body.String())
	}
	var stats job.JobStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSessionEndpoint(t *testing.T) {
	resolved := &session.Resolved{
		Spec: &session.Spec{
			Signer:    common.HexToAddress("0xcccc00000000000000000000000000000000cccc"),
			ExpiresAt: big.NewInt(2_000_000),
			TransferPolicies: []session.TransferPolicy{
				{Target: common.Address{}},
			},
		},
		SessionHash: common.HexToHash("0x01"),
		BlockNumber: 100,
	}
	server, _ := newTestServer(t, &stubSessions{resolved: resolved})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	var view sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !view.Active || view.SessionHash != common.HexToHash("0x01").Hex() || view.TransferPolicies != 1 {
		t.Fatalf("unexpected session view: %+v", view)
	}
}

func TestSessionEndpointNoSession(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	var view sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Active {
		t.Fatalf("expected inactive session view: %+v", view)
	}
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
}
