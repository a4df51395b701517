package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/chatproxy/internal/auth"
	"github.com/hitoshi/chatproxy/internal/middleware"
	"github.com/hitoshi/chatproxy/internal/model"
	"github.com/hitoshi/chatproxy/internal/token"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn     func(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
	loginFn        func(ctx context.Context, in auth.LoginInput) (*auth.Result, error)
	authenticateFn func(ctx context.Context, tokenString string) (*token.Claims, error)
	logoutFn       func(ctx context.Context, claims *token.Claims) error
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, in auth.LoginInput) (*auth.Result, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Authenticate(ctx context.Context, tokenString string) (*token.Claims, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, tokenString)
	}
	return nil, token.ErrInvalidToken
}

func (m *mockAuthService) Logout(ctx context.Context, claims *token.Claims) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, claims)
	}
	return nil
}

// mockAuthMetrics は記録された認証結果を保持する。
type mockAuthMetrics struct {
	attempts []string
}

func (m *mockAuthMetrics) RecordAuthAttempt(action, outcome string) {
	m.attempts = append(m.attempts, action+":"+outcome)
}

// --- ヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// jsonRequest はJSONボディ付きのリクエストを生成するヘルパー。
func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseAPIErrorResponse はレスポンスボディからエラーレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func testUser() *model.User {
	return &model.User{
		ID:           "user-123",
		Email:        "a@b.com",
		Name:         "A",
		PasswordHash: "$2a$10$hash",
	}
}

// findCookie はレスポンスから指定名のCookieを探す。
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
