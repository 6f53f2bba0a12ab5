package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SSOWallet-Chain/internal/errors"
	"SSOWallet-Chain/internal/job"
	"SSOWallet-Chain/internal/observability/metrics"
	"SSOWallet-Chain/internal/session"
)

// SessionSource 提供当前账户的会话查询能力。
type SessionSource interface {
	ActiveSession(ctx context.Context, account, signer common.Address) (*session.Resolved, error)
}

// Server 负责暴露 REST 接口，供外部提交并查询转账作业。
type Server struct {
	addr     string
	jobs     *job.Service
	sessions SessionSource
	account  common.Address
	signer   common.Address
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, jobs *job.Service, sessions SessionSource, account, signer common.Address) *Server {
	return &Server{addr: addr, jobs: jobs, sessions: sessions, account: account, signer: signer}
}

// Handler 返回装配好的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/transfers", instrument("transfers", s.handleTransfers))
	mux.HandleFunc("/api/v1/transfers/", instrument("transfer_detail", s.handleTransferByID))
	mux.HandleFunc("/api/v1/transfers/stats", instrument("transfer_stats", s.handleStats))
	mux.HandleFunc("/api/v1/session", instrument("session", s.handleSession))
	mux.HandleFunc("/healthz", instrument("healthz", s.handleHealth))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTransfer(w, r)
	case http.MethodGet:
		s.handleListTransfers(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleCreateTransfer 处理创建转账作业的请求。
func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		http.Error(w, "作业服务未初始化", http.StatusServiceUnavailable)
		return
	}
	var req job.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	created, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		http.Error(w, "作业服务未初始化", http.StatusServiceUnavailable)
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	jobs, err := s.jobs.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleTransferByID 处理 /api/v1/transfers/{id} 形式的查询。
func (s *Server) handleTransferByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/transfers/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "作业 ID 不合法", http.StatusBadRequest)
		return
	}
	if s.jobs == nil {
		http.Error(w, "作业服务未初始化", http.StatusServiceUnavailable)
		return
	}
	found, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.jobs == nil {
		http.Error(w, "作业服务未初始化", http.StatusServiceUnavailable)
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats, err := s.jobs.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// sessionView 是会话状态的对外表示。
type sessionView struct {
	Active           bool   `json:"active"`
	SessionHash      string `json:"session_hash,omitempty"`
	Signer           string `json:"signer,omitempty"`
	ExpiresAt        string `json:"expires_at,omitempty"`
	BlockNumber      uint64 `json:"block_number,omitempty"`
	CallPolicies     int    `json:"call_policies,omitempty"`
	TransferPolicies int    `json:"transfer_policies,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.sessions == nil {
		http.Error(w, "会话解析器未初始化", http.StatusServiceUnavailable)
		return
	}
	resolved, err := s.sessions.ActiveSession(r.Context(), s.account, s.signer)
	if err != nil {
		writeError(w, err)
		return
	}
	view := sessionView{}
	if resolved != nil {
		view.Active = true
		view.SessionHash = resolved.SessionHash.Hex()
		view.Signer = resolved.Spec.Signer.Hex()
		if resolved.Spec.ExpiresAt != nil {
			view.ExpiresAt = resolved.Spec.ExpiresAt.String()
		}
		view.BlockNumber = resolved.BlockNumber
		view.CallPolicies = len(resolved.Spec.CallPolicies)
		view.TransferPolicies = len(resolved.Spec.TransferPolicies)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func listOptionsFromQuery(r *http.Request) ([]job.ListOption, error) {
	var opts []job.ListOption
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, errors.New("limit 参数不合法")
		}
		opts = append(opts, job.WithLimit(parsed))
	}
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return nil, errors.New("offset 参数不合法")
		}
		opts = append(opts, job.WithOffset(parsed))
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []job.Status
		for _, part := range strings.Split(raw, ",") {
			status := job.Status(strings.TrimSpace(part))
			if !job.IsValidStatus(status) {
				return nil, errors.New("status 参数不合法")
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, job.WithStatuses(statuses...))
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, job.WithQuery(raw))
	}
	if raw := query.Get("has_result"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("has_result 参数不合法")
		}
		opts = append(opts, job.WithResultPresence(parsed))
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case job.CodeJobValidation:
		status = http.StatusBadRequest
	case job.CodeJobNotFound:
		status = http.StatusNotFound
	case job.CodeJobConflict:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(xerrors.CodeOf(err)),
	})
}

// statusRecorder 捕获写回的状态码用于指标上报。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 为处理函数记录请求指标。
func instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
