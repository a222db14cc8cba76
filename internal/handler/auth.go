package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/auth"
	"github.com/sakif/movie-tracker/internal/model"
	"github.com/sakif/movie-tracker/internal/service"
)

const stateCookie = "oauth_state"

var errGitHubDisabled = ErrorResponse{Error: "GitHub sign-in is not configured", Code: "not_found"}

// Authenticator issues tokens for credentials. *service.AuthService
// implements it.
type Authenticator interface {
	Register(ctx context.Context, in service.Credentials) (*service.AuthResult, error)
	IssueTokens(ctx context.Context, in service.Credentials) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*service.AuthResult, error)
}

// GitHubLogin is the OAuth side of GitHub sign-in. *auth.GitHubProvider
// implements it.
type GitHubLogin interface {
	Enabled() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

var (
	_ Authenticator = (*service.AuthService)(nil)
	_ GitHubLogin   = (*auth.GitHubProvider)(nil)
)

// AuthHandler serves registration, token issue/refresh and GitHub sign-in.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister       → create an account, return a token pair
//   - HandleToken          → trade email + password for a token pair
//   - HandleRefresh        → trade a refresh token for a new pair
//   - HandleGitHubLogin    → redirect to GitHub's authorization page
//   - HandleGitHubCallback → exchange the code, link by email, return tokens
//
// Tokens are returned in the body and sent back as "Authorization: Bearer".
type AuthHandler struct {
	accounts Authenticator
	github   GitHubLogin
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil when GitHub
// sign-in is not configured.
func NewAuthHandler(accounts Authenticator, github GitHubLogin, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, github: github, logger: logger}
}

func (h *AuthHandler) githubEnabled() bool {
	return h.github != nil && h.github.Enabled()
}

type tokenResponse struct {
	Message string          `json:"message,omitempty"`
	User    *model.User     `json:"user"`
	Tokens  *auth.TokenPair `json:"tokens"`
}

// HandleRegister serves POST /api/auth/register with {email, password}.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.Credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Message: "user registered", User: res.User, Tokens: res.Tokens})
}

// HandleToken serves POST /api/auth/token with {email, password}.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var in service.Credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.accounts.IssueTokens(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{User: res.User, Tokens: res.Tokens})
}

// HandleRefresh serves POST /api/auth/token/refresh with {refresh}.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.accounts.Refresh(r.Context(), body.Refresh)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{User: res.User, Tokens: res.Tokens})
}

// HandleGitHubLogin redirects the browser to GitHub.
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived HttpOnly cookie and must come
// back unchanged on the callback.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if !h.githubEnabled() {
		writeJSON(w, http.StatusNotFound, errGitHubDisabled)
		return
	}
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes sign-in.
//
// FLOW:
//  1. Check the state against the cookie
//  2. Exchange the code for a GitHub profile
//  3. Link to the account with the same email, or create one
//  4. Return a token pair
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if !h.githubEnabled() {
		writeJSON(w, http.StatusNotFound, errGitHubDisabled)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, r, h.logger, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if denied := r.URL.Query().Get("error"); denied != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", denied))
		writeError(w, r, h.logger, apperror.Unauthorized("GitHub authorization was denied"))
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, h.logger, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, r, h.logger, apperror.Unauthorized("GitHub authentication failed"))
		return
	}

	res, err := h.accounts.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("user authenticated via GitHub",
		slog.String("userID", res.User.ID),
		slog.String("login", ghUser.Login),
	)
	writeJSON(w, http.StatusOK, tokenResponse{User: res.User, Tokens: res.Tokens})
}
