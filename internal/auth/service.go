// Package auth はパスワード認証とセッション管理を提供する。
//
// セッションはCookieに格納する不透明なトークンで識別し、
// 状態変化（サインイン、サインアウト、更新）はauthevents.Busへ通知する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/barberadmin/internal/authevents"
	"github.com/hitoshi/barberadmin/internal/model"
	"github.com/hitoshi/barberadmin/internal/repository"
)

var (
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しない場合のエラー。
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrSessionNotFound はセッションが存在しないか期限切れの場合のエラー。
	ErrSessionNotFound = errors.New("session not found or expired")
	// ErrEmailTaken はメールアドレスが登録済みの場合のエラー。
	ErrEmailTaken = errors.New("email is already registered")
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// UserUpdate はユーザー情報の更新内容。nilのフィールドは変更しない。
type UserUpdate struct {
	Name     *string        `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	events      authevents.Bus
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。eventsがnilの場合はイベントを通知しない。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	events authevents.Bus,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		events:      events,
		config:      config,
		now:         time.Now,
	}
}

// SignInWithPassword はメールアドレスとパスワードを検証し、セッションを発行する。
// ユーザーが存在しない場合とパスワード不一致の場合は区別せずErrInvalidCredentialsを返す。
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	// 1. メールアドレスでユーザーを検索
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// 2. パスワードを検証（ユーザー不在時もハッシュ比較を行い応答時間を揃える）
	hash := dummyPasswordHash
	if user != nil {
		hash = user.PasswordHash
	}
	if !checkPassword(hash, password) || user == nil {
		slog.Info("sign in rejected", slog.String("email", normalizeEmail(email)))
		return nil, ErrInvalidCredentials
	}

	// 3. セッションを発行
	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	session.User = user

	slog.Info("user signed in", slog.String("user_id", user.ID))

	// 4. SIGNED_INを通知
	s.publish(ctx, model.AuthEvent{
		Type:      model.AuthEventSignedIn,
		UserID:    user.ID,
		SessionID: session.ID,
		Session:   session,
	})

	return session, nil
}

// SignOut はセッションを破棄し、SIGNED_OUTを通知する。
// 既に存在しないセッションの場合は何もしない。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if session == nil {
		return nil
	}

	slog.Info("user signed out", slog.String("user_id", session.UserID))
	s.publish(ctx, model.AuthEvent{
		Type:      model.AuthEventSignedOut,
		UserID:    session.UserID,
		SessionID: sessionID,
	})
	return nil
}

// GetSession はセッションIDから有効なセッションをユーザー付きで取得する。
// セッションが存在しないか期限切れの場合はnilを返す。
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if !session.Valid(s.now()) {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	session.User = user

	return session, nil
}

// RefreshSession はセッションの有効期限を延長し、TOKEN_REFRESHEDを通知する。
func (s *Service) RefreshSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	now := s.now()
	session, err := s.sessionRepo.Extend(ctx, sessionID, s.expiry(now), now)
	if err != nil {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}
	session.User = user

	s.publish(ctx, model.AuthEvent{
		Type:      model.AuthEventTokenRefreshed,
		UserID:    session.UserID,
		SessionID: sessionID,
		Session:   session,
	})

	return session, nil
}

// UpdateUser はセッションのユーザー情報を更新し、USER_UPDATEDを通知する。
// メタデータは指定キーのみ上書きする。
func (s *Service) UpdateUser(ctx context.Context, sessionID string, update UserUpdate) (*model.User, error) {
	// 1. セッションからユーザーを特定
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	user := session.User

	// 2. 変更を適用
	if update.Name != nil {
		user.Name = strings.TrimSpace(*update.Name)
	}
	if user.Metadata == nil {
		user.Metadata = map[string]any{}
	}
	for k, v := range update.Metadata {
		user.Metadata[k] = v
	}
	user.UpdatedAt = s.now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	// 3. USER_UPDATEDを通知（全セッションが対象のためセッションIDは付けない）
	s.publish(ctx, model.AuthEvent{
		Type:    model.AuthEventUserUpdated,
		UserID:  user.ID,
		Session: session,
	})

	return user, nil
}

// CreateUser はパスワード認証のユーザーを作成する。
// 管理コマンドからの登録に使用する。
func (s *Service) CreateUser(ctx context.Context, email, password, name string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Metadata:     map[string]any{},
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", slog.String("user_id", user.ID))
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:          sessionID,
		UserID:      userID,
		ExpiresAt:   s.expiry(now),
		CreatedAt:   now,
		RefreshedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) expiry(now time.Time) time.Time {
	return now.Add(time.Duration(s.config.SessionMaxAge) * time.Second)
}

// publish はイベントを通知する。通知の失敗は認証処理自体を失敗させない。
func (s *Service) publish(ctx context.Context, event model.AuthEvent) {
	if s.events == nil {
		return
	}
	event.Origin = authevents.OriginFromContext(ctx)
	if err := s.events.Publish(ctx, event); err != nil {
		slog.Warn("failed to publish auth event",
			slog.String("event", string(event.Type)),
			slog.String("user_id", event.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
