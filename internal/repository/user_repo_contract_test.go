package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/chatproxy/internal/model"
)

func newTestUser(email string) *model.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuvabcdefghijklmnopqrstuvwxyz0123",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// runUserRepositoryContract は全バックエンド共通のUserRepositoryの振る舞いを検証する。
func runUserRepositoryContract(t *testing.T, newRepo func(t *testing.T) UserRepository) {
	t.Run("作成したユーザーをメールアドレスとIDで取得できる", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		u := newTestUser("alice@example.com")

		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("Create: %v", err)
		}

		byEmail, err := repo.FindByEmail(ctx, "alice@example.com")
		if err != nil {
			t.Fatalf("FindByEmail: %v", err)
		}
		if byEmail == nil || byEmail.ID != u.ID {
			t.Fatalf("FindByEmail = %+v, want id %s", byEmail, u.ID)
		}
		if byEmail.PasswordHash != u.PasswordHash {
			t.Errorf("PasswordHash = %q, want %q", byEmail.PasswordHash, u.PasswordHash)
		}

		byID, err := repo.FindByID(ctx, u.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if byID == nil || byID.Email != u.Email {
			t.Fatalf("FindByID = %+v, want email %s", byID, u.Email)
		}
	})

	t.Run("存在しないユーザーはnilを返す", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u, err := repo.FindByEmail(ctx, "nobody@example.com")
		if err != nil {
			t.Fatalf("FindByEmail: %v", err)
		}
		if u != nil {
			t.Errorf("expected nil, got %+v", u)
		}

		u, err = repo.FindByID(ctx, uuid.New().String())
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if u != nil {
			t.Errorf("expected nil, got %+v", u)
		}
	})

	t.Run("重複メールアドレスはErrDuplicateEmail", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first := newTestUser("dup@example.com")
		if err := repo.Create(ctx, first); err != nil {
			t.Fatalf("Create: %v", err)
		}

		second := newTestUser("dup@example.com")
		err := repo.Create(ctx, second)
		if !errors.Is(err, ErrDuplicateEmail) {
			t.Fatalf("err = %v, want ErrDuplicateEmail", err)
		}

		// 失敗した作成はストアに残らない
		got, err := repo.FindByID(ctx, second.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got != nil {
			t.Errorf("second user should not be stored, got %+v", got)
		}
	})

	t.Run("メールアドレスは大文字小文字を区別する", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		if err := repo.Create(ctx, newTestUser("case@example.com")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := repo.Create(ctx, newTestUser("CASE@example.com")); err != nil {
			t.Fatalf("Create with different case: %v", err)
		}

		u, err := repo.FindByEmail(ctx, "Case@example.com")
		if err != nil {
			t.Fatalf("FindByEmail: %v", err)
		}
		if u != nil {
			t.Errorf("expected nil for differently cased email, got %+v", u)
		}
	})

	t.Run("同時登録でも同一メールアドレスは1件のみ作成される", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const workers = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		duplicates := 0

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Create(ctx, newTestUser("race@example.com"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, ErrDuplicateEmail):
					duplicates++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if succeeded != 1 {
			t.Errorf("succeeded = %d, want 1", succeeded)
		}
		if duplicates != workers-1 {
			t.Errorf("duplicates = %d, want %d", duplicates, workers-1)
		}
	})

	t.Run("異なるメールアドレスの同時登録はすべて成功する", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- repo.Create(ctx, newTestUser(fmt.Sprintf("user%d@example.com", i)))
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Errorf("Create: %v", err)
			}
		}
		for i := 0; i < workers; i++ {
			u, err := repo.FindByEmail(ctx, fmt.Sprintf("user%d@example.com", i))
			if err != nil || u == nil {
				t.Errorf("user%d not found (err=%v)", i, err)
			}
		}
	})
}
