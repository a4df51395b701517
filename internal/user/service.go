// Package user はユーザー情報の参照を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/chatproxy/internal/model"
	"github.com/hitoshi/chatproxy/internal/repository"
)

// Service はユーザー情報のサービス層。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// Profile はユーザーの公開プロフィールを返す。
// トークンが有効でもユーザーがストアに存在しない場合はUNAUTHENTICATEDを返す。
func (s *Service) Profile(ctx context.Context, userID string) (*model.PublicUser, error) {
	if userID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		slog.Warn("token refers to a missing user", slog.String("user_id", userID))
		return nil, model.NewUnauthenticatedError()
	}

	profile := u.Public()
	return &profile, nil
}
