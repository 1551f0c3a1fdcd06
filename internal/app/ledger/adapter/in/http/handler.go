package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	identity "github.com/JoeShih716/go-stmt-ledger/internal/app/identity/domain"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
	"github.com/JoeShih716/go-stmt-ledger/pkg/metrics"
)

// APIPrefix 所有業務路由的前綴
const APIPrefix = "/api/v1"

// HealthCheck 回傳 nil 表示後端可用
type HealthCheck func(ctx context.Context) error

// Handler HTTP 入口
type Handler struct {
	ledger         LedgerService
	identity       IdentityService
	metrics        metrics.Collector
	metricsHandler http.Handler
	health         HealthCheck
	logger         *logging.Logger
}

// Option Handler 選項
type Option func(*Handler)

// WithMetrics 設定指標收集器，handler 為 /metrics 的輸出
func WithMetrics(collector metrics.Collector, handler http.Handler) Option {
	return func(h *Handler) {
		h.metrics = collector
		h.metricsHandler = handler
	}
}

// WithHealthCheck 設定 /health 的檢查
func WithHealthCheck(check HealthCheck) Option {
	return func(h *Handler) {
		h.health = check
	}
}

// WithLogger 設定 logger
func WithLogger(l *logging.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

func NewHandler(ledger LedgerService, ids IdentityService, opts ...Option) *Handler {
	h := &Handler{
		ledger:   ledger,
		identity: ids,
		metrics:  metrics.NoOpCollector{},
		logger:   logging.L(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("http")
	return h
}

// Router 建立路由
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(observeMiddleware(h.metrics, h.logger))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	if h.metricsHandler != nil {
		r.Handle("/metrics", h.metricsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix(APIPrefix).Subrouter()
	api.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(authMiddleware(h.identity, h.logger))
	authed.HandleFunc("/profile", h.ShowProfile).Methods(http.MethodGet)
	authed.HandleFunc("/statements/deposit", h.Deposit).Methods(http.MethodPost)
	authed.HandleFunc("/statements/withdraw", h.Withdraw).Methods(http.MethodPost)
	// balance 必須在 {id} 之前註冊
	authed.HandleFunc("/statements/balance", h.Balance).Methods(http.MethodGet)
	authed.HandleFunc("/statements/{id}", h.GetStatement).Methods(http.MethodGet)
	return r
}

// Health 健康檢查
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createSessionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type statementRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// profileResponse 不含密碼
type profileResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func toProfile(u *identity.User) profileResponse {
	return profileResponse{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// CreateUser POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.identity.Register(r.Context(), identity.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// CreateSession POST /sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	session, err := h.identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, "authenticate", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ShowProfile GET /profile
func (h *Handler) ShowProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	user, err := h.identity.Profile(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, "profile", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(user))
}

// Deposit POST /statements/deposit
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req statementRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	stmt, err := h.ledger.Deposit(r.Context(), p.AccountID, req.Amount, req.Description)
	if err != nil {
		h.fail(w, "deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, stmt)
}

// Withdraw POST /statements/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req statementRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	stmt, err := h.ledger.Withdraw(r.Context(), p.AccountID, req.Amount, req.Description)
	if err != nil {
		h.fail(w, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusCreated, stmt)
}

// Balance GET /statements/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	view, err := h.ledger.Balance(r.Context(), p.AccountID)
	if err != nil {
		h.fail(w, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetStatement GET /statements/{id}
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	stmt, err := h.ledger.Lookup(r.Context(), p.AccountID, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, "get statement", err)
		return
	}
	writeJSON(w, http.StatusOK, stmt)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Error(err))
	}
	writeError(w, status, msg)
}
