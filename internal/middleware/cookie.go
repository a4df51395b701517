package middleware

import (
	"net/http"
	"time"
)

// TokenCookieName はセッショントークンを保持するCookieの名前。
const TokenCookieName = "token"

// CookieConfig はサーバーが発行するCookieの共通設定。
type CookieConfig struct {
	Secure bool
	Domain string
}

// SetTokenCookie はセッショントークンをHttpOnly Cookieとして設定する。
// 有効期間はトークン自体の有効期間に合わせる。
func SetTokenCookie(w http.ResponseWriter, value string, ttl time.Duration, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearTokenCookie はセッショントークンCookieを削除する。
func ClearTokenCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
