package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/HerbHall/creditdesk/internal/version"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Handler serves the authentication and user administration endpoints.
type Handler struct {
	service *Service
	limiter *loginLimiter
	logger  *zap.Logger
}

// NewHandler creates a Handler. Login attempts are limited per client
// address to cfg.Attempts per cfg.Window; a zero config disables the limit.
func NewHandler(service *Service, cfg LoginRateConfig, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		limiter: newLoginLimiter(cfg),
		logger:  logger,
	}
}

// RegisterRoutes mounts the auth routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", h.handleLogout)
	mux.HandleFunc("POST /api/v1/auth/setup", h.handleSetup)
	mux.HandleFunc("GET /api/v1/auth/setup/status", h.handleSetupStatus)
	mux.HandleFunc("GET /api/v1/auth/me", h.handleMe)
	mux.HandleFunc("GET /api/v1/auth/health", h.handleHealth)

	mux.HandleFunc("GET /api/v1/users", RequireRole(h.handleListUsers, RoleAdmin))
	mux.HandleFunc("GET /api/v1/users/{id}", RequireRole(h.handleGetUser, RoleAdmin))
	mux.HandleFunc("PATCH /api/v1/users/{id}", RequireRole(h.handleUpdateUser, RoleAdmin))
}

// Middleware returns the bearer-token middleware bound to this handler's service.
func (h *Handler) Middleware() func(http.Handler) http.Handler {
	return Middleware(h.service)
}

// handleRegister creates a principal. Anyone may register a client account;
// staff and admin accounts can only be created by an admin.
//
//	@Summary		Register
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RegisterRequest	true	"New account"
//	@Success		201		{object}	User
//	@Failure		400		{object}	server.Problem
//	@Failure		403		{object}	server.Problem
//	@Failure		409		{object}	server.Problem
//	@Router			/auth/register [post]
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	role, err := ParseRole(req.Role)
	if err != nil {
		writeAuthError(w, http.StatusBadRequest, err.Error())
		return
	}
	if role != RoleClient {
		if _, err := Authorize(ClaimsFromContext(r.Context()), RoleAdmin); err != nil {
			writeAuthError(w, http.StatusForbidden, "only an admin may create staff or admin accounts")
			return
		}
	}

	user, err := h.service.Register(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, user)
	case errors.Is(err, ErrDuplicateEmail):
		writeAuthError(w, http.StatusConflict, "email already registered")
	case isValidation(err):
		writeAuthError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("register error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "registration failed")
	}
}

// handleLogin authenticates and returns an access token.
//
//	@Summary		Login
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	Session
//	@Failure		401		{object}	server.Problem
//	@Failure		429		{object}	server.Problem
//	@Router			/auth/login [post]
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.allow(remoteHost(r)) {
		writeAuthError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, session)
	case errors.Is(err, ErrInvalidCredentials):
		writeAuthError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, ErrAccountInactive):
		writeAuthError(w, http.StatusForbidden, "account is deactivated")
	default:
		h.logger.Error("login error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "authentication failed")
	}
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogout revokes the presented bearer token. It answers 204 even when
// the token is already revoked or no longer valid.
//
//	@Summary		Logout
//	@Tags			auth
//	@Security		BearerAuth
//	@Success		204	"No Content"
//	@Failure		401	{object}	server.Problem
//	@Router			/auth/logout [post]
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := BearerToken(r)
	if !ok {
		writeAuthError(w, http.StatusUnauthorized, "missing or invalid authorization header")
		return
	}
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.logger.Error("logout error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetup creates the first admin account.
//
//	@Summary		Initial setup
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RegisterRequest	true	"Admin account"
//	@Success		201		{object}	User
//	@Failure		409		{object}	server.Problem
//	@Router			/auth/setup [post]
func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.service.Setup(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, user)
	case errors.Is(err, ErrSetupComplete):
		writeAuthError(w, http.StatusConflict, "setup already completed")
	case isValidation(err):
		writeAuthError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("setup error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "setup failed")
	}
}

// handleSetupStatus reports whether the first admin still has to be created.
//
//	@Summary		Setup status
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	SetupStatusResponse
//	@Router			/auth/setup/status [get]
func (h *Handler) handleSetupStatus(w http.ResponseWriter, r *http.Request) {
	needed, err := h.service.NeedsSetup(r.Context())
	if err != nil {
		h.logger.Error("setup status check failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to check setup status")
		return
	}
	writeJSON(w, http.StatusOK, SetupStatusResponse{SetupRequired: needed, Version: version.Short()})
}

// SetupStatusResponse is returned by GET /auth/setup/status.
type SetupStatusResponse struct {
	SetupRequired bool   `json:"setup_required"`
	Version       string `json:"version"`
}

// handleMe returns the caller's own account.
//
//	@Summary		Current user
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	User
//	@Failure		401	{object}	server.Problem
//	@Router			/auth/me [get]
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeAuthError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeAuthError(w, http.StatusUnauthorized, ErrInvalidToken.Error())
			return
		}
		h.logger.Error("me lookup failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HealthResponse describes the token authority's state.
type HealthResponse struct {
	Status            string  `json:"status"`
	RegisteredUsers   int     `json:"registered_users"`
	RevokedTokens     int     `json:"revoked_tokens"`
	RevocationBackend string  `json:"revocation_backend"`
	Algorithm         string  `json:"jwt_algorithm"`
	TokenTTLHours     float64 `json:"token_expiration_hours"`
}

// handleHealth reports user and revocation counts.
//
//	@Summary		Auth health
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/auth/health [get]
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:            "healthy",
		RevocationBackend: h.service.Revoker().Backend(),
		Algorithm:         "HS256",
		TokenTTLHours:     h.service.Tokens().TTL().Hours(),
	}
	n, err := h.service.CountUsers(r.Context())
	if err != nil {
		h.logger.Warn("auth health: count users", zap.Error(err))
		resp.Status = "unhealthy"
	}
	resp.RegisteredUsers = n

	revoked, err := h.service.Revoker().Len(r.Context())
	if err != nil {
		h.logger.Warn("auth health: count revocations", zap.Error(err))
		resp.Status = "unhealthy"
	}
	resp.RevokedTokens = revoked

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleListUsers returns every principal.
//
//	@Summary		List users
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		User
//	@Failure		403	{object}	server.Problem
//	@Router			/users [get]
func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleGetUser returns one principal.
//
//	@Summary		Get user
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	User
//	@Failure		404	{object}	server.Problem
//	@Router			/users/{id} [get]
func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeAuthError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("get user error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser changes a principal's name, role or active flag.
//
//	@Summary		Update user
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string		true	"User ID"
//	@Param			request	body		UserUpdate	true	"Fields to change"
//	@Success		200		{object}	User
//	@Failure		400		{object}	server.Problem
//	@Failure		404		{object}	server.Problem
//	@Router			/users/{id} [patch]
func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var upd UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.UpdateUser(r.Context(), r.PathValue("id"), upd)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, user)
	case errors.Is(err, ErrUserNotFound):
		writeAuthError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, ErrInvalidRole):
		writeAuthError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("update user error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to update user")
	}
}

// isValidation reports errors produced by input validation in Register.
func isValidation(err error) bool {
	var v *validationError
	return errors.As(err, &v) || errors.Is(err, ErrInvalidRole)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAuthError writes an RFC 7807 problem response.
func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://creditdesk.dev/problems/auth-error",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

// writeVerifyError maps a Verify failure to a response. All token failures
// share one message; anything else is a server fault.
func writeVerifyError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidToken) {
		writeAuthError(w, http.StatusUnauthorized, ErrInvalidToken.Error())
		return
	}
	writeAuthError(w, http.StatusInternalServerError, "token verification failed")
}

// loginLimiter is a per-address token bucket for login attempts.
type loginLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	buckets map[string]*loginBucket
}

type loginBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLoginLimiter(cfg LoginRateConfig) *loginLimiter {
	if cfg.Attempts <= 0 || cfg.Window <= 0 {
		return nil
	}
	return &loginLimiter{
		every:   rate.Every(cfg.Window / time.Duration(cfg.Attempts)),
		burst:   cfg.Attempts,
		buckets: make(map[string]*loginBucket),
	}
}

func (l *loginLimiter) allow(addr string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[addr]
	if !ok {
		if len(l.buckets) >= 10000 {
			for k, v := range l.buckets {
				if now.Sub(v.lastSeen) > time.Hour {
					delete(l.buckets, k)
				}
			}
		}
		b = &loginBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[addr] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
