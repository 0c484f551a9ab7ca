// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/barberadmin/internal/model"
)

// ErrNotFound は更新対象の行が存在しない場合に返す。
// 参照系の操作はこのエラーではなくnilを返す。
var ErrNotFound = errors.New("record not found")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（小文字正規化済み）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はユーザーの表示名とメタデータを更新する。
	UpdateProfile(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Extend は有効なセッションの期限を延長する。期限切れまたは存在しない場合はnilを返す。
	Extend(ctx context.Context, id string, expiresAt, refreshedAt time.Time) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// BarbershopRepository は店舗データの永続化インターフェース。
// 全ての操作は所有者IDで絞り込まれ、他ユーザーの行には一切触れない。
type BarbershopRepository interface {
	// ListByOwner は所有者の店舗一覧をcreated_at降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]model.BarbershopSummary, error)

	// FindByIDAndOwner はIDと所有者で店舗を取得する。
	// 存在しない場合と他ユーザー所有の場合はどちらもnilを返す。
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Barbershop, error)

	// Create は店舗を作成し、ストアが設定したタイムスタンプを反映して返す。
	Create(ctx context.Context, shop *model.Barbershop) (*model.Barbershop, error)

	// UpdateByIDAndOwner はIDと所有者で絞り込んで部分更新し、更新後の店舗を返す。
	// 対象行がない場合はnilを返す。
	UpdateByIDAndOwner(ctx context.Context, id, ownerID string, patch model.BarbershopPatch) (*model.Barbershop, error)

	// DeleteByIDAndOwner はIDと所有者で絞り込んで削除し、削除したかどうかを返す。
	DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error)
}
