// Package model はドメインモデルを定義する。
package model

import "time"

// User は管理画面にログインするユーザー（認証主体）を表す。
// PasswordHashはAPI応答に含めない。
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Name         string         `json:"name"`
	Metadata     map[string]any `json:"metadata"`
	PasswordHash string         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Session はユーザーのログインセッションを表す。
// IDはCookieに格納する不透明なトークン。
type Session struct {
	ID          string    `json:"-"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	RefreshedAt time.Time `json:"refreshed_at"`

	// User はセッションに紐づくユーザー。読み出し時にのみ設定される。
	User *User `json:"user,omitempty"`
}

// Valid はセッションが指定時刻において有効かを返す。
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// AuthEventType は認証状態変化の種別を表す。
type AuthEventType string

const (
	AuthEventInitialSession AuthEventType = "INITIAL_SESSION"
	AuthEventSignedIn       AuthEventType = "SIGNED_IN"
	AuthEventSignedOut      AuthEventType = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEventType = "USER_UPDATED"
)

// AuthEvent は認証状態変化の通知。
// Sessionはイベント発生後の現在のセッション（サインアウト時はnil）。
// Originは操作を行ったクライアントの識別子で、クライアントが自身の操作の
// 通知を二重に処理しないために使う。
type AuthEvent struct {
	Type      AuthEventType `json:"event"`
	UserID    string        `json:"-"`
	SessionID string        `json:"-"`
	Origin    string        `json:"origin,omitempty"`
	Session   *Session      `json:"session"`
}
