// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/chatproxy/internal/model"
)

// ErrDuplicateEmail は登録済みのメールアドレスでユーザーを作成しようとした場合に返される。
var ErrDuplicateEmail = errors.New("email already exists")

// UserRepository はユーザーデータ（認証情報ストア）の永続化インターフェース。
// ユーザーは作成のみで、更新・削除は行わない。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// 同一メールアドレスが既に存在する場合はErrDuplicateEmailを返し、ストアは変更しない。
	Create(ctx context.Context, user *model.User) error
}

// RevocationRepository は失効済みトークン（ログアウト済みトークン）の永続化インターフェース。
type RevocationRepository interface {
	// Revoke はトークンIDを失効済みとして記録する。expiresAtはトークン自体の有効期限。
	// 同一IDを複数回記録してもエラーにならない（冪等）。
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error

	// IsRevoked はトークンIDが失効済みかを返す。
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// DeleteExpired は有効期限を過ぎた失効エントリを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
