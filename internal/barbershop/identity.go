package barbershop

import (
	"context"

	"github.com/hitoshi/barberadmin/internal/middleware"
	"github.com/hitoshi/barberadmin/internal/model"
)

// IdentityResolver は呼び出し元のユーザーIDを解決する。
// 未認証の場合は空文字列とnilを返す。エラーはセッションストアの障害を表す。
type IdentityResolver interface {
	ResolveUserID(ctx context.Context) (string, error)
}

// SessionGetter はセッショントークンからセッションを取得する。
// auth.Serviceが実装する。
type SessionGetter interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
}

// SessionIdentityResolver はリクエストコンテキストのセッショントークンを
// 呼び出しごとにセッションストアへ問い合わせてユーザーIDを解決する。
// クライアント側にキャッシュされた状態は使用しない。
type SessionIdentityResolver struct {
	sessions SessionGetter
}

// NewSessionIdentityResolver はSessionIdentityResolverを生成する。
func NewSessionIdentityResolver(sessions SessionGetter) *SessionIdentityResolver {
	return &SessionIdentityResolver{sessions: sessions}
}

// ResolveUserID はセッションの所有ユーザーIDを返す。
func (r *SessionIdentityResolver) ResolveUserID(ctx context.Context) (string, error) {
	token := middleware.SessionTokenFromContext(ctx)
	if token == "" {
		return "", nil
	}

	session, err := r.sessions.GetSession(ctx, token)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", nil
	}
	return session.UserID, nil
}

// compile-time interface check
var _ IdentityResolver = (*SessionIdentityResolver)(nil)
