// Package chat は認証済みユーザーのメッセージを言語モデルへ中継する。
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/chatproxy/internal/llm"
	"github.com/hitoshi/chatproxy/internal/metrics"
	"github.com/hitoshi/chatproxy/internal/model"
)

// Completer は言語モデルへの問い合わせインターフェース。
type Completer interface {
	Complete(ctx context.Context, userMessage string) (string, error)
}

// Service はチャットメッセージの検証と言語モデル呼び出しを行う。
type Service struct {
	completer Completer
	metrics   metrics.MetricsCollector
	timeout   time.Duration
}

// NewService はServiceを生成する。timeoutが0以下の場合はリクエストのコンテキストのみに従う。
func NewService(completer Completer, collector metrics.MetricsCollector, timeout time.Duration) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		completer: completer,
		metrics:   collector,
		timeout:   timeout,
	}
}

// Send はメッセージを言語モデルに送信し、応答本文を返す。
// 空のメッセージにはMESSAGE_REQUIRED、上流の失敗にはUPSTREAM_ERRORを返す。
// 上流のエラー詳細はログにのみ記録する。
func (s *Service) Send(ctx context.Context, userID, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", model.NewMessageRequiredError()
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	response, err := s.completer.Complete(ctx, message)
	s.metrics.RecordUpstreamLatency(time.Since(start))

	if err != nil {
		s.metrics.RecordChatFailure(failureReason(err))
		slog.Error("chat completion failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return "", model.NewUpstreamError()
	}

	s.metrics.RecordChatSuccess()
	return response, nil
}

// failureReason はメトリクス用の失敗理由を返す。
func failureReason(err error) string {
	var upstream *llm.UpstreamError
	switch {
	case errors.As(err, &upstream):
		return "upstream_status"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport"
	}
}

var _ Completer = (*llm.Client)(nil)
