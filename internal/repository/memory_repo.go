package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/chatproxy/internal/model"
)

// MemoryUserRepo はプロセス内メモリを使用したユーザーリポジトリ。
// 開発環境とテストで使用する。プロセス終了時に内容は失われる。
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[string]*model.User
	byEmail map[string]string // email -> id
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]string),
	}
}

// FindByID は指定IDのユーザーのコピーを返す。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// FindByEmail はメールアドレスでユーザーのコピーを返す。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *r.byID[id]
	return &cp, nil
}

// Create はユーザーを作成する。一意性確認と追加は同一ロック内で行う。
func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return ErrDuplicateEmail
	}

	cp := *user
	r.byID[cp.ID] = &cp
	r.byEmail[cp.Email] = cp.ID
	return nil
}

// Count は保持しているユーザー数を返す。
func (r *MemoryUserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// MemoryRevocationRepo はプロセス内メモリを使用した失効トークンリポジトリ。
type MemoryRevocationRepo struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> expiresAt
	now     func() time.Time
}

// NewMemoryRevocationRepo はMemoryRevocationRepoを生成する。
func NewMemoryRevocationRepo() *MemoryRevocationRepo {
	return &MemoryRevocationRepo{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke はトークンIDを失効済みとして記録する。
func (r *MemoryRevocationRepo) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[jti]; !exists {
		r.entries[jti] = expiresAt
	}
	return nil
}

// IsRevoked はトークンIDが失効済みかを返す。
func (r *MemoryRevocationRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[jti]
	return ok, nil
}

// DeleteExpired は有効期限を過ぎた失効エントリを削除する。
func (r *MemoryRevocationRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var deleted int64
	for jti, exp := range r.entries {
		if exp.Before(now) {
			delete(r.entries, jti)
			deleted++
		}
	}
	return deleted, nil
}

// compile-time interface check
var (
	_ UserRepository       = (*MemoryUserRepo)(nil)
	_ RevocationRepository = (*MemoryRevocationRepo)(nil)
)
