// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはファイルストアへの永続化のためJSONに含まれる。クライアントへ返す場合は必ずPublic()を使用すること。
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicUser はクライアントに返却してよいユーザー情報（公開プロフィール）を表す。
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Public はユーザーの公開プロフィールを返す。
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
	}
}

// RevokedToken はログアウトにより失効させたトークンを表す。
// ExpiresAtを過ぎたエントリはトークン自体が無効になるため削除してよい。
type RevokedToken struct {
	JTI       string
	ExpiresAt time.Time
}
