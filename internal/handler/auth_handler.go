// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/chatproxy/internal/auth"
	"github.com/hitoshi/chatproxy/internal/metrics"
	"github.com/hitoshi/chatproxy/internal/middleware"
	"github.com/hitoshi/chatproxy/internal/model"
	"github.com/hitoshi/chatproxy/internal/token"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.Result, error)
	Authenticate(ctx context.Context, tokenString string) (*token.Claims, error)
	Logout(ctx context.Context, claims *token.Claims) error
}

// AuthMetrics は認証操作の結果を記録するインターフェース。
type AuthMetrics interface {
	RecordAuthAttempt(action, outcome string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie   middleware.CookieConfig
	TokenTTL time.Duration // token Cookieの有効期間
}

// AuthHandler は登録・ログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	metrics AuthMetrics
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, m AuthMetrics, config AuthHandlerConfig) *AuthHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = token.DefaultTTL
	}
	return &AuthHandler{
		service: service,
		metrics: m,
		config:  config,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse は登録・ログイン成功時のレスポンス。パスワードハッシュは含めない。
type authResponse struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

// Register は新規ユーザーを登録してトークンを返す。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.metrics.RecordAuthAttempt(metrics.AuthActionRegister, metrics.AuthOutcomeInvalid)
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.metrics.RecordAuthAttempt(metrics.AuthActionRegister, authOutcome(err))
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordAuthAttempt(metrics.AuthActionRegister, metrics.AuthOutcomeSuccess)
	h.respondWithToken(w, http.StatusCreated, result)
}

// Login はメールアドレスとパスワードを照合してトークンを返す。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.metrics.RecordAuthAttempt(metrics.AuthActionLogin, metrics.AuthOutcomeInvalid)
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.metrics.RecordAuthAttempt(metrics.AuthActionLogin, authOutcome(err))
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordAuthAttempt(metrics.AuthActionLogin, metrics.AuthOutcomeSuccess)
	h.respondWithToken(w, http.StatusOK, result)
}

// Logout はトークンを失効させ、token Cookieを削除する。
// POST /auth/logout
// トークンがない、または既に無効な場合もCookieを削除して204を返す。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if tok, ok := middleware.TokenFromRequest(r); ok {
		claims, err := h.service.Authenticate(r.Context(), tok)
		switch {
		case err == nil:
			if logoutErr := h.service.Logout(r.Context(), claims); logoutErr != nil {
				h.metrics.RecordAuthAttempt(metrics.AuthActionLogout, metrics.AuthOutcomeError)
				handleServiceError(w, logoutErr)
				return
			}
			h.metrics.RecordAuthAttempt(metrics.AuthActionLogout, metrics.AuthOutcomeSuccess)
		case errors.Is(err, token.ErrInvalidToken):
			h.metrics.RecordAuthAttempt(metrics.AuthActionLogout, metrics.AuthOutcomeRejected)
		default:
			h.metrics.RecordAuthAttempt(metrics.AuthActionLogout, metrics.AuthOutcomeError)
			handleServiceError(w, err)
			return
		}
	}

	middleware.ClearTokenCookie(w, h.config.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

// respondWithToken はtoken Cookieを設定してトークンとユーザー情報を返す。
func (h *AuthHandler) respondWithToken(w http.ResponseWriter, statusCode int, result *auth.Result) {
	middleware.SetTokenCookie(w, result.Token, h.config.TokenTTL, h.config.Cookie)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, statusCode, authResponse{
		Token: result.Token,
		User:  result.User.Public(),
	})
}

// authOutcome はサービスエラーをメトリクス用の結果ラベルに変換する。
func authOutcome(err error) string {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return metrics.AuthOutcomeError
	}
	switch apiErr.Code {
	case model.ErrCodeMissingFields, model.ErrCodeInvalidRequestBody:
		return metrics.AuthOutcomeInvalid
	case model.ErrCodeDuplicateEmail:
		return metrics.AuthOutcomeDuplicate
	case model.ErrCodeInvalidCredentials:
		return metrics.AuthOutcomeRejected
	default:
		return metrics.AuthOutcomeError
	}
}
