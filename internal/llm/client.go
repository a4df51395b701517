// Package llm はOpenRouter互換のチャット補完APIクライアントを提供する。
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// DefaultBaseURL はOpenRouter APIのベースURL。
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultModel は既定で使用するモデル。
	DefaultModel = "openai/gpt-3.5-turbo"
	// DefaultSystemPrompt は全リクエストに付与するシステムプロンプト。
	DefaultSystemPrompt = "You are a helpful assistant."
	// FallbackResponse は応答本文が空の場合に返す文字列。
	FallbackResponse = "No response."

	defaultMaxResponseSize = 1 << 20
	completionsPath        = "/chat/completions"
)

// ErrUpstream は言語モデルAPIの呼び出しに失敗したことを示す。
var ErrUpstream = errors.New("language model request failed")

// UpstreamError は言語モデルAPIが返したエラーの詳細を保持する。
// Messageは上流の error.message で、ログ用途に限る。
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("language model API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("language model API returned status %d: %s", e.StatusCode, e.Message)
}

// Is はerrors.Is(err, ErrUpstream)を満たす。
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// Message はチャット補完APIのメッセージ。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Config はClientの設定。
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	SystemPrompt    string
	MaxResponseSize int64
}

// Client はチャット補完APIのクライアント。
type Client struct {
	httpClient      *http.Client
	logger          *slog.Logger
	endpoint        string
	apiKey          string
	model           string
	systemPrompt    string
	maxResponseSize int64
}

// NewClient はClientの新しいインスタンスを生成する。
// 未設定の項目にはOpenRouterの既定値を使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	maxSize := cfg.MaxResponseSize
	if maxSize <= 0 {
		maxSize = defaultMaxResponseSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient:      httpClient,
		logger:          logger,
		endpoint:        baseURL + completionsPath,
		apiKey:          cfg.APIKey,
		model:           model,
		systemPrompt:    prompt,
		maxResponseSize: maxSize,
	}
}

// Complete はシステムプロンプトとユーザーメッセージを送信し、最初の候補の本文を返す。
// 本文が空または欠落している場合はFallbackResponseを返す。
// 通信失敗・非2xx応答・不正な応答はいずれもErrUpstreamを満たすエラーになる。
func (c *Client) Complete(ctx context.Context, userMessage string) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: userMessage},
		},
	})
	if err != nil {
		return "", fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("言語モデルAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: レスポンスボディの読み取りに失敗しました: %v", ErrUpstream, err)
	}
	if int64(len(body)) > c.maxResponseSize {
		return "", fmt.Errorf("%w: レスポンスが上限サイズ %d バイトを超えました", ErrUpstream, c.maxResponseSize)
	}

	var result completionResponse
	decodeErr := json.Unmarshal(body, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstream := &UpstreamError{StatusCode: resp.StatusCode}
		if decodeErr == nil && result.Error != nil {
			upstream.Message = result.Error.Message
		}
		c.logger.Error("言語モデルAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("upstream_message", upstream.Message),
		)
		return "", upstream
	}

	if decodeErr != nil {
		c.logger.Error("言語モデルAPIのレスポンスのパースに失敗しました",
			slog.String("error", decodeErr.Error()),
		)
		return "", fmt.Errorf("%w: レスポンスJSONのパースに失敗しました: %v", ErrUpstream, decodeErr)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return FallbackResponse, nil
	}
	return result.Choices[0].Message.Content, nil
}
