package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/chatproxy/internal/token"
)

// Action はルートガードの判定結果。
type Action int

const (
	// ActionAllow はリクエストをそのまま通す。
	ActionAllow Action = iota
	// ActionRedirectHome はホーム（/）へリダイレクトする。
	ActionRedirectHome
	// ActionRedirectLogin はログインページ（/login）へリダイレクトする。
	ActionRedirectLogin
)

// Location はリダイレクト先のパスを返す。ActionAllowの場合は空文字列。
func (a Action) Location() string {
	switch a {
	case ActionRedirectHome:
		return "/"
	case ActionRedirectLogin:
		return "/login"
	default:
		return ""
	}
}

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionRedirectHome:
		return "redirect_home"
	case ActionRedirectLogin:
		return "redirect_login"
	default:
		return "unknown"
	}
}

// isAuthPage はパスがログイン・登録ページかを判定する。末尾のスラッシュは無視する。
func isAuthPage(path string) bool {
	p := strings.TrimSuffix(path, "/")
	return p == "/login" || p == "/register"
}

// Decide はページ遷移に対するガードの判定を返す。
//
//	ログイン・登録ページ + トークンあり → ホームへ
//	ログイン・登録ページ + トークンなし → 通過
//	その他のページ       + トークンあり → 通過
//	その他のページ       + トークンなし → ログインページへ
func Decide(path string, hasToken bool) Action {
	switch {
	case isAuthPage(path) && hasToken:
		return ActionRedirectHome
	case isAuthPage(path):
		return ActionAllow
	case hasToken:
		return ActionAllow
	default:
		return ActionRedirectLogin
	}
}

// NewRouteGuardMiddleware はページ遷移を保護するミドルウェアを返す。
// token Cookieの署名・有効期限・失効を検証し、無効なトークンは未所持として扱って
// Cookieを削除する。API・静的ファイルのルートには適用しないこと。
func NewRouteGuardMiddleware(authenticator TokenAuthenticator, cookies CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			hasToken := false

			if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
				claims, err := authenticator.Authenticate(ctx, cookie.Value)
				switch {
				case err == nil:
					hasToken = true
					ctx = ContextWithClaims(ctx, claims)
				case errors.Is(err, token.ErrInvalidToken):
					ClearTokenCookie(w, cookies)
				default:
					slog.Error("failed to verify page token",
						slog.String("error", err.Error()),
						slog.String("path", r.URL.Path),
					)
				}
			}

			action := Decide(r.URL.Path, hasToken)
			if action != ActionAllow {
				http.Redirect(w, r, action.Location(), http.StatusTemporaryRedirect)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
