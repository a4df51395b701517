// Package client はchatproxyサーバーのGoクライアントを提供する。
// ログイン状態（Session）はJSONファイルに永続化し、プロセスをまたいで引き継ぐ。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/chatproxy/internal/model"
	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout はHTTPクライアントの既定タイムアウト。
// サーバー側の言語モデル呼び出しより長くする。
const DefaultTimeout = 90 * time.Second

// maxErrorBodySize はエラーレスポンスとして読み取るボディの上限。
const maxErrorBodySize = 64 << 10

var (
	// ErrNotReady はLoad前にセッションを必要とする操作を呼び出した場合のエラー。
	ErrNotReady = errors.New("client session is not loaded")
	// ErrNotLoggedIn はログインしていない状態で認証が必要な操作を呼び出した場合のエラー。
	ErrNotLoggedIn = errors.New("not logged in")
)

// Session はクライアントが保持するログイン状態。
type Session struct {
	User  *model.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// LoggedIn はトークンを保持しているかを返す。
func (s Session) LoggedIn() bool {
	return s.Token != ""
}

// ResponseError はサーバーが返したエラーレスポンスを表す。
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned status %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

// Client はchatproxyサーバーのAPIクライアント。
// Loadでセッションファイルを読み込むまではセッションを必要とする操作はErrNotReadyを返す。
type Client struct {
	baseURL     string
	httpClient  *http.Client
	sessionPath string

	mu      sync.Mutex
	ready   bool
	session Session
}

// New はClientを生成する。httpClientがnilの場合はDefaultTimeoutのクライアントを使用する。
// サーバーが発行するCookieを保持するため、Cookie Jarを設定したコピーを使う。
func New(baseURL, sessionPath string, httpClient *http.Client) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	hc := &http.Client{Timeout: DefaultTimeout}
	if httpClient != nil {
		copied := *httpClient
		hc = &copied
	}
	if hc.Jar == nil {
		hc.Jar = jar
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  hc,
		sessionPath: sessionPath,
	}, nil
}

// Load はセッションファイルを読み込み、クライアントを利用可能な状態にする。
// ファイルが存在しない場合は未ログイン状態で利用可能になる。
func (c *Client) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Session
	data, err := os.ReadFile(c.sessionPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to read session file: %w", err)
	case len(bytes.TrimSpace(data)) > 0:
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to parse session file: %w", err)
		}
	}

	c.session = s
	c.ready = true
	return nil
}

// Ready はLoadが完了しているかを返す。
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Session は現在のセッションを返す。
func (c *Client) Session() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return Session{}, ErrNotReady
	}
	return c.session, nil
}

type authResponse struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

// Register は新規ユーザーを登録し、発行されたトークンをセッションに保存する。
func (c *Client) Register(ctx context.Context, email, password, name string) (*model.PublicUser, error) {
	return c.authenticate(ctx, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	})
}

// Login はログインし、発行されたトークンをセッションに保存する。
func (c *Client) Login(ctx context.Context, email, password string) (*model.PublicUser, error) {
	return c.authenticate(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, payload map[string]string) (*model.PublicUser, error) {
	if !c.Ready() {
		return nil, ErrNotReady
	}

	var resp authResponse
	if err := c.do(ctx, http.MethodPost, path, "", payload, &resp); err != nil {
		return nil, err
	}

	user := resp.User
	if err := c.saveSession(Session{User: &user, Token: resp.Token}); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout はサーバー側でトークンを失効させ、ローカルのセッションを削除する。
// サーバーへの通知に失敗してもローカルのセッションは削除する。
func (c *Client) Logout(ctx context.Context) error {
	s, err := c.Session()
	if err != nil {
		return err
	}

	var remoteErr error
	if s.LoggedIn() {
		remoteErr = c.do(ctx, http.MethodPost, "/auth/logout", s.Token, nil, nil)
	}

	if err := c.saveSession(Session{}); err != nil {
		return err
	}
	if remoteErr != nil {
		return fmt.Errorf("logged out locally, server revocation failed: %w", remoteErr)
	}
	return nil
}

// Me はサーバーに問い合わせてログイン中のユーザー情報を返す。
func (c *Client) Me(ctx context.Context) (*model.PublicUser, error) {
	tok, err := c.token()
	if err != nil {
		return nil, err
	}

	var user model.PublicUser
	if err := c.doAuthenticated(ctx, http.MethodGet, "/auth/me", tok, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Chat はメッセージを送信し、言語モデルの応答を返す。
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	tok, err := c.token()
	if err != nil {
		return "", err
	}

	var resp struct {
		Response string `json:"response"`
	}
	if err := c.doAuthenticated(ctx, http.MethodPost, "/chat", tok, map[string]string{"message": message}, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// token はログイン中のトークンを返す。
func (c *Client) token() (string, error) {
	s, err := c.Session()
	if err != nil {
		return "", err
	}
	if !s.LoggedIn() {
		return "", ErrNotLoggedIn
	}
	return s.Token, nil
}

// doAuthenticated は認証付きリクエストを送信する。
// 401が返った場合はトークンが失効しているため、ローカルのセッションを削除する。
func (c *Client) doAuthenticated(ctx context.Context, method, path, tok string, payload, out any) error {
	err := c.do(ctx, method, path, tok, payload, out)

	var respErr *ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusUnauthorized {
		if saveErr := c.saveSession(Session{}); saveErr != nil {
			return errors.Join(err, saveErr)
		}
		return fmt.Errorf("%w: %w", ErrNotLoggedIn, err)
	}
	return err
}

// do はJSONリクエストを送信し、2xxの場合はレスポンスをoutにデコードする。
func (c *Client) do(ctx context.Context, method, path, tok string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeResponseError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func decodeResponseError(resp *http.Response) error {
	respErr := &ResponseError{StatusCode: resp.StatusCode}

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		respErr.Message = body.Error
		respErr.Code = body.Code
	} else {
		respErr.Message = http.StatusText(resp.StatusCode)
	}
	return respErr
}

// saveSession はセッションを更新し、ファイルへ書き出す。
// 一時ファイルに書き込んでからリネームし、所有者のみ読み書きできる権限にする。
func (c *Client) saveSession(s Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	dir := filepath.Dir(c.sessionPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set session file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, c.sessionPath); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	c.session = s
	return nil
}
