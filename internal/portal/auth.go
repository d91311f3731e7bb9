package portal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/middleware"
)

const (
	maxLoginBody  = 4 << 10
	healthTimeout = 2 * time.Second
)

type handlers struct {
	engine *portalguard.Engine
	logger *slog.Logger
	checks map[string]func(context.Context) error
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Redirect string               `json:"redirect"`
	User     portalguard.Identity `json:"user"`
}

type meResponse struct {
	User portalguard.Identity `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		status, msg := loginErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("login failed", "error", err)
		}
		writeJSON(w, status, errorResponse{Error: msg})
		return
	}

	http.SetCookie(w, h.sessionCookie(res.Token, res.ExpiresAt))
	writeJSON(w, http.StatusOK, loginResponse{
		Redirect: portalguard.PostLoginTarget(r.URL.Query().Get(portalguard.RedirectParam), res.Identity.Role),
		User:     res.Identity,
	})
}

func loginErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, portalguard.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, portalguard.ErrLoginRateLimited):
		return http.StatusTooManyRequests, "too many attempts, try again later"
	case errors.Is(err, portalguard.ErrAccountDisabled):
		return http.StatusForbidden, "account disabled"
	case errors.Is(err, portalguard.ErrRoleInvalid):
		return http.StatusForbidden, "account has no portal role"
	case errors.Is(err, portalguard.ErrRedisUnavailable),
		errors.Is(err, portalguard.ErrUserStoreUnavailable),
		errors.Is(err, portalguard.ErrSessionCreationFailed),
		errors.Is(err, portalguard.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "login temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r, h.engine.Cookie().Name)
	if token != "" {
		err := h.engine.Logout(r.Context(), token)
		if err != nil && !errors.Is(err, portalguard.ErrTokenInvalid) {
			h.logger.Error("logout failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "logout temporarily unavailable"})
			return
		}
	}
	http.SetCookie(w, h.sessionCookie("", time.Unix(0, 0)))
	writeJSON(w, http.StatusOK, map[string]string{"redirect": portalguard.LoginPath})
}

func (h *handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	n, err := h.engine.LogoutAll(r.Context(), id.ID)
	if err != nil {
		h.logger.Error("logout-all failed", "error", err, "user_id", id.ID)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "logout temporarily unavailable"})
		return
	}
	http.SetCookie(w, h.sessionCookie("", time.Unix(0, 0)))
	writeJSON(w, http.StatusOK, map[string]int{"sessions": n})
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	v := h.engine.Verify(r.Context(), middleware.TokenFromRequest(r, h.engine.Cookie().Name))
	if !v.Valid {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: v.User})
}

func (h *handlers) sessionCookie(value string, expires time.Time) *http.Cookie {
	cc := h.engine.Cookie()
	c := &http.Cookie{
		Name:     cc.Name,
		Value:    value,
		Path:     cc.Path,
		Domain:   cc.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: cc.SameSite,
	}
	if value == "" {
		c.MaxAge = -1
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
