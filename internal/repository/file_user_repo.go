package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hitoshi/chatproxy/internal/model"
)

// FileUserRepo はJSONファイルを使用したユーザーリポジトリ。
// 変更のたびにレコード全体を読み込み、全体を書き戻す。
// 読み込み・一意性確認・書き戻しは1つのロック内で直列化し、同時登録による更新の消失を防ぐ。
// 同一ファイルを複数プロセスから共有することは想定しない。
type FileUserRepo struct {
	mu   sync.RWMutex
	path string
}

// NewFileUserRepo はFileUserRepoを生成する。
// ファイルが存在しない場合は最初の書き込み時に作成する。
func NewFileUserRepo(path string) *FileUserRepo {
	return &FileUserRepo{path: path}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *FileUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *FileUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Email == email {
			return &users[i], nil
		}
	}
	return nil, nil
}

// Create はユーザーを追加してファイル全体を書き戻す。
func (r *FileUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}
	for i := range users {
		if users[i].Email == user.Email {
			return ErrDuplicateEmail
		}
	}

	users = append(users, *user)
	return r.save(users)
}

// load はファイルから全ユーザーを読み込む。ファイルが存在しない場合は空のスライスを返す。
func (r *FileUserRepo) load() ([]model.User, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.User{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user store: %w", err)
	}
	if len(data) == 0 {
		return []model.User{}, nil
	}

	var users []model.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to parse user store: %w", err)
	}
	return users, nil
}

// save は一時ファイルに書き込んでからrenameで置き換える。
// 書き込み途中でプロセスが停止しても既存ファイルは壊れない。
func (r *FileUserRepo) save(users []model.User) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode user store: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create user store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write user store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync user store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close user store: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace user store: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*FileUserRepo)(nil)
