package authapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"linkup/cmd/internal/auth/session"
	"linkup/cmd/internal/presence"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// Authority is the session surface the controllers call. session.Service
// satisfies it.
type Authority interface {
	Register(ctx context.Context, in session.RegisterInput) (session.TokenPair, error)
	Login(ctx context.Context, in session.LoginInput) (session.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (session.AccessToken, error)
	FindByID(ctx context.Context, id string) (session.Account, error)
	ValidateAccessToken(ctx context.Context, raw string) (session.AccessClaims, error)
	UpdateProfile(ctx context.Context, id string, in session.ProfileInput) (session.Account, error)
	DeleteAccount(ctx context.Context, id string) (session.Deletion, error)
}

// PresenceLister answers presence queries.
type PresenceLister interface {
	ConnectedUsers() []presence.Entry
	IsOnline(userID string) bool
}

// Handler holds the auth and user controllers. They only translate between
// HTTP and the session authority.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions Authority
	presence PresenceLister
}

// NewHandler constructs a Handler. presence may be nil, in which case
// GET /presence is not mounted.
func NewHandler(log *slog.Logger, cfg Config, sessions Authority, p PresenceLister) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, cfg: cfg.normalized(), sessions: sessions, presence: p}
}

// Mount attaches the routes to r.
func (h *Handler) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authRateLimit())
		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/refresh", h.handleRefresh)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/user/info", h.handleInfo)
		r.Patch("/user/update", h.handleUpdate)
		r.Delete("/user/delete", h.handleDelete)
		if h.presence != nil {
			r.Get("/presence", h.handlePresence)
			r.Get("/presence/{userID}", h.handleOnline)
		}
	})
}

// Routes returns a standalone router with every route mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func (h *Handler) authRateLimit() func(http.Handler) http.Handler {
	key := httprate.KeyByIP
	if h.cfg.TrustProxy {
		key = httprate.KeyByRealIP
	}
	return httprate.Limit(h.cfg.AuthRateLimit, h.cfg.AuthRateWindow,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		}),
	)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req session.RegisterInput
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	pair, err := h.sessions.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenPairResponse(pair))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req session.LoginInput
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	pair, err := h.sessions.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenPairResponse(pair))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	access, err := h.sessions.RefreshToken(r.Context(), token)
	if err != nil {
		writeServiceError(w, h.log, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, accessTokenResponse{AccessToken: access.Token, AccessExpiresAt: access.ExpiresAt})
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	acct, err := h.sessions.FindByID(r.Context(), claims.AccountID)
	if err != nil {
		writeServiceError(w, h.log, "user.info", err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(acct)})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req session.ProfileInput
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	claims := claimsFrom(r.Context())
	acct, err := h.sessions.UpdateProfile(r.Context(), claims.AccountID, req)
	if err != nil {
		writeServiceError(w, h.log, "user.update", err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(acct)})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	del, err := h.sessions.DeleteAccount(r.Context(), claims.AccountID)
	if err != nil {
		writeServiceError(w, h.log, "user.delete", err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{ID: del.ID, DeletedAt: del.DeletedAt})
}

func (h *Handler) handlePresence(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPresenceResponse(h.presence.ConnectedUsers()))
}

func (h *Handler) handleOnline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	writeJSON(w, http.StatusOK, onlineResponse{ID: id, Online: h.presence.IsOnline(id)})
}

// ---- auth ----

type claimsKey struct{}

func claimsFrom(ctx context.Context) session.AccessClaims {
	c, _ := ctx.Value(claimsKey{}).(session.AccessClaims)
	return c
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		claims, err := h.sessions.ValidateAccessToken(r.Context(), token)
		if err != nil {
			writeServiceError(w, h.log, "auth", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
