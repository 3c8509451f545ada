package server_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/infra"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/infra/auth"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/server"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/server/handler"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/service"
)

// --- стабы сервисов ---

type stubReviewerRepo struct {
	reviewer *domain.Reviewer
}

func (r *stubReviewerRepo) GetReviewerByUsername(_ context.Context, username string) (*domain.Reviewer, error) {
	if r.reviewer != nil && r.reviewer.Username == username {
		return r.reviewer, nil
	}
	return nil, nil
}

type stubAnalysis struct {
	lastTx domain.Transaction
}

func (s *stubAnalysis) Analyze(_ context.Context, tx domain.Transaction) (*domain.WorkflowState, error) {
	s.lastTx = tx
	return &domain.WorkflowState{
		Transaction: tx,
		Decision:    &domain.Decision{Verdict: domain.VerdictApprove, Confidence: 0.9, DecidedBy: domain.DecidedByArbiter},
	}, nil
}

func (s *stubAnalysis) GetAnalysis(_ context.Context, id string) (*domain.AnalysisRecord, error) {
	if id != "tx-known" {
		return nil, domain.ErrTransactionNotFound
	}
	return &domain.AnalysisRecord{TransactionID: id, Verdict: domain.VerdictApprove}, nil
}

func (s *stubAnalysis) ListAnalyses(_ context.Context, _ domain.Verdict, _ int) ([]*domain.AnalysisRecord, error) {
	return []*domain.AnalysisRecord{}, nil
}

type stubReview struct {
	lastReviewer string
	resolveErr   error
}

func (s *stubReview) ListPending(context.Context) ([]domain.EscalationRecord, int, error) {
	return []domain.EscalationRecord{}, 0, nil
}

func (s *stubReview) GetEscalation(_ context.Context, id string) (domain.EscalationRecord, error) {
	return domain.EscalationRecord{}, domain.ErrEscalationNotFound
}

func (s *stubReview) Resolve(_ context.Context, id string, res domain.Resolution) (domain.EscalationRecord, error) {
	s.lastReviewer = res.ReviewerID
	if s.resolveErr != nil {
		return domain.EscalationRecord{}, s.resolveErr
	}
	if !res.AllowedForReviewer() {
		return domain.EscalationRecord{}, domain.ErrInvalidResolutionVerdict
	}
	return domain.EscalationRecord{TransactionID: id, Status: domain.EscalationResolved}, nil
}

// --- сборка тестового сервера с настоящим RS256-контуром ---

type testEnv struct {
	srv      *server.Server
	review   *stubReview
	analysis *stubAnalysis
	password string
	username string
}

func newTestEnv(t *testing.T, scopes map[string]bool) *testEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	password := "sup3r-secret"
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	repo := &stubReviewerRepo{reviewer: &domain.Reviewer{
		ID: "rev-1", Username: "analyst", PasswordHash: string(hash), Scopes: scopes,
	}}

	authService := service.NewAuthService(repo, key, time.Hour)
	validator := auth.NewBaseValidator(&key.PublicKey)

	analysis := &stubAnalysis{}
	review := &stubReview{}

	srv := server.NewServer(
		&infra.Config{},
		zap.NewNop(),
		validator,
		handler.NewAuthHandler(authService),
		handler.NewAnalysisHandler(analysis, service.ValidateTransaction),
		handler.NewHITLHandler(review),
		nil,
	)

	return &testEnv{srv: srv, review: review, analysis: analysis, password: password, username: "analyst"}
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: e.username, Password: e.password})
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp domain.TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	return resp.AccessToken
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t, map[string]bool{domain.ScopeHITLReview: true})

	body, _ := json.Marshal(domain.LoginRequest{Username: "analyst", Password: "wrong"})
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHITL_RequiresToken(t *testing.T) {
	env := newTestEnv(t, map[string]bool{domain.ScopeHITLReview: true})

	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/hitl", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHITL_RequiresScope(t *testing.T) {
	env := newTestEnv(t, map[string]bool{domain.ScopeTransactionsRead: true}) // нет hitl.review

	req := httptest.NewRequest(http.MethodGet, "/v1/hitl", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestHITL_ListWithValidToken(t *testing.T) {
	env := newTestEnv(t, map[string]bool{domain.ScopeHITLReview: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/hitl", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Pending []domain.EscalationRecord `json:"pending"`
		Total   int                       `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pending == nil {
		t.Error("pending should be [] not null")
	}
}

// ReviewerID обязан браться из токена, не из тела запроса.
func TestHITL_ResolveUsesReviewerFromToken(t *testing.T) {
	env := newTestEnv(t, map[string]bool{domain.ScopeHITLReview: true})

	body, _ := json.Marshal(map[string]string{"verdict": "BLOCK", "notes": "confirmed"})
	req := httptest.NewRequest(http.MethodPost, "/v1/hitl/tx-1/resolve", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if env.review.lastReviewer != "rev-1" {
		t.Errorf("reviewer = %q, want rev-1 (from token subject)", env.review.lastReviewer)
	}
}

func TestHITL_ResolveConflictOnDoubleDecision(t *testing.T) {
	env := newTestEnv(t, map[string]bool{domain.ScopeHITLReview: true})
	env.review.resolveErr = domain.ErrEscalationNotFound

	body, _ := json.Marshal(map[string]string{"verdict": "APPROVE"})
	req := httptest.NewRequest(http.MethodPost, "/v1/hitl/tx-1/resolve", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestHITL_ResolveRejectsForbiddenVerdict(t *testing.T) {
	env := newTestEnv(t, map[string]bool{domain.ScopeHITLReview: true})

	body, _ := json.Marshal(map[string]string{"verdict": "CHALLENGE"})
	req := httptest.NewRequest(http.MethodPost, "/v1/hitl/tx-1/resolve", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyze_PublicEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	tx := domain.Transaction{
		CustomerID: "C-1", Amount: 900, Currency: "PEN", Country: "PE",
		Timestamp: time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
	}
	body, _ := json.Marshal(tx)
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/transactions/analyze", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var st domain.WorkflowState
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Decision == nil || st.Decision.Verdict != domain.VerdictApprove {
		t.Errorf("decision = %+v", st.Decision)
	}
	// ID сгенерирован валидацией, раз не был передан
	if env.analysis.lastTx.ID == "" {
		t.Error("transaction id was not generated")
	}
}

func TestAnalyze_RejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []domain.Transaction{
		{Amount: 100, Currency: "PEN", Timestamp: time.Now()},                      // нет customer_id
		{CustomerID: "C-1", Amount: -5, Currency: "PEN", Timestamp: time.Now()},    // отрицательная сумма
		{CustomerID: "C-1", Amount: 100, Timestamp: time.Now()},                    // нет валюты
		{CustomerID: "C-1", Amount: 100, Currency: "PEN"},                          // нет таймстемпа
	}
	for i, tx := range cases {
		body, _ := json.Marshal(tx)
		rec := httptest.NewRecorder()
		env.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/transactions/analyze", bytes.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("case %d: status = %d, want 400", i, rec.Code)
		}
	}
}

func TestTransactions_GetNotFound(t *testing.T) {
	env := newTestEnv(t, map[string]bool{domain.ScopeTransactionsRead: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions/tx-ghost", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
