// Package auth はメールアドレスとパスワードによる登録・ログイン、トークンの失効を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/chatproxy/internal/model"
	"github.com/hitoshi/chatproxy/internal/repository"
	"github.com/hitoshi/chatproxy/internal/token"
)

// dummyPassword は存在しないユーザーのログイン時に照合するダミーハッシュの元になる値。
const dummyPassword = "chatproxy-timing-equalizer"

// TokenManager はトークンの発行と検証を行うインターフェース。
type TokenManager interface {
	Issue(user *model.User) (string, error)
	Verify(tokenString string) (*token.Claims, error)
}

// NameSanitizer は表示名を正規化するインターフェース。
type NameSanitizer interface {
	Sanitize(name string) string
}

// RegisterInput は登録リクエストの入力。
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput はログインリクエストの入力。
type LoginInput struct {
	Email    string
	Password string
}

// Result は登録・ログイン成功時の結果。
type Result struct {
	Token string
	User  *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users       repository.UserRepository
	revocations repository.RevocationRepository
	hasher      PasswordHasher
	tokens      TokenManager
	sanitizer   NameSanitizer
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。sanitizerがnilの場合は表示名を空白の除去のみ行う。
func NewService(
	users repository.UserRepository,
	revocations repository.RevocationRepository,
	hasher PasswordHasher,
	tokens TokenManager,
	sanitizer NameSanitizer,
) *Service {
	return &Service{
		users:       users,
		revocations: revocations,
		hasher:      hasher,
		tokens:      tokens,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// Register は新規ユーザーを作成してトークンを発行する。
// 必須項目が欠けている場合はMISSING_FIELDS、メールアドレスが登録済みの場合はDUPLICATE_EMAILを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	email := strings.TrimSpace(in.Email)
	name := s.cleanName(in.Name)
	if email == "" || name == "" || in.Password == "" {
		return nil, model.NewMissingFieldsError()
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 事前チェック後に同じメールアドレスで作成された場合もストアが重複を検出する
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewDuplicateEmailError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	tok, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return &Result{Token: tok, User: user}, nil
}

// Login はメールアドレスとパスワードを照合してトークンを発行する。
// ユーザーが存在しない場合とパスワードが一致しない場合は同一のエラーを返す。
func (s *Service) Login(ctx context.Context, in LoginInput) (*Result, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, model.NewMissingFieldsError()
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		// 応答時間からアカウントの有無を推測されないよう、ダミーハッシュでも照合を行う
		s.hasher.Verify(in.Password, s.timingHash())
		return nil, model.NewInvalidCredentialsError()
	}
	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		slog.Info("login rejected", slog.String("user_id", user.ID))
		return nil, model.NewInvalidCredentialsError()
	}

	tok, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return &Result{Token: tok, User: user}, nil
}

// Authenticate はトークンを検証し、失効済みでなければクレームを返す。
// 無効なトークンにはtoken.ErrInvalidTokenを返す。
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, token.ErrInvalidToken
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return nil, token.ErrInvalidToken
	}
	return claims, nil
}

// Logout はトークンを有効期限まで失効リストに登録する。
func (s *Service) Logout(ctx context.Context, claims *token.Claims) error {
	if claims == nil || claims.ID == "" {
		return fmt.Errorf("token id is required")
	}

	expiresAt := s.now().Add(token.DefaultTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	if err := s.revocations.Revoke(ctx, claims.ID, expiresAt); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	slog.Info("user logged out", slog.String("user_id", claims.UserID()))
	return nil
}

func (s *Service) cleanName(name string) string {
	if s.sanitizer != nil {
		return s.sanitizer.Sanitize(name)
	}
	return strings.TrimSpace(name)
}

// timingHash はダミー照合用のハッシュを返す。初回呼び出し時に設定コストで生成する。
func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			slog.Warn("failed to generate dummy hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
