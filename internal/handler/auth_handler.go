// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/barberadmin/internal/auth"
	"github.com/hitoshi/barberadmin/internal/authevents"
	"github.com/hitoshi/barberadmin/internal/metrics"
	"github.com/hitoshi/barberadmin/internal/middleware"
	"github.com/hitoshi/barberadmin/internal/model"
)

// ClientIDHeader は操作元クライアントの識別子を送るリクエストヘッダー名。
// 発行されるイベントのoriginとして使われる。
const ClientIDHeader = "X-Client-ID"

// sseKeepAlive はイベントストリームのコメント送信間隔。
const sseKeepAlive = 25 * time.Second

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	RefreshSession(ctx context.Context, sessionID string) (*model.Session, error)
	UpdateUser(ctx context.Context, sessionID string, update auth.UserUpdate) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はセッションストアのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	events  authevents.Bus
	metrics metrics.MetricsCollector
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。eventsとcollectorは任意。
func NewAuthHandler(service AuthServiceInterface, events authevents.Bus, collector metrics.MetricsCollector, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		events:  events,
		metrics: collector,
		config:  config,
	}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Session *model.Session `json:"session"`
	User    *model.User    `json:"user,omitempty"`
}

type userResponse struct {
	User *model.User `json:"user"`
}

type signOutResponse struct {
	Error *string `json:"error"`
}

// SignIn はメールアドレスとパスワードでサインインし、セッションCookieを発行する。
// POST /auth/v1/token
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	session, err := h.service.SignInWithPassword(withOrigin(r), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.recordSignIn(metrics.SignInInvalidCredentials)
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
			return
		}
		h.recordSignIn(metrics.SignInError)
		slog.Error("sign in failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStoreError())
		return
	}
	h.recordSignIn(metrics.SignInSuccess)

	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)
	writeJSON(w, http.StatusOK, sessionResponse{Session: session, User: session.User})
}

// SignOut はセッションを破棄し、Cookieを削除する。
// セッションが無い場合も成功として扱う。
// POST /auth/v1/logout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionTokenFromRequest(r); token != "" {
		if err := h.service.SignOut(withOrigin(r), token); err != nil {
			slog.Error("sign out failed", slog.String("error", err.Error()))
			msg := model.NewStoreError().Message
			writeJSON(w, http.StatusInternalServerError, signOutResponse{Error: &msg})
			return
		}
		if h.metrics != nil {
			h.metrics.RecordSignOut()
		}
	}

	h.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, signOutResponse{})
}

// Session は現在のセッションを返す。未認証・期限切れの場合はsessionがnull。
// GET /auth/v1/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), middleware.SessionTokenFromRequest(r))
	if err != nil {
		slog.Error("failed to get session", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStoreError())
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: session})
}

// Refresh はセッションの有効期限を延長する。
// POST /auth/v1/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.RefreshSession(withOrigin(r), middleware.SessionTokenFromRequest(r))
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			h.setSessionCookie(w, "", -1)
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
			return
		}
		slog.Error("failed to refresh session", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStoreError())
		return
	}

	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)
	writeJSON(w, http.StatusOK, sessionResponse{Session: session, User: session.User})
}

// UpdateUser はユーザーの表示名とメタデータを更新する。
// PUT /auth/v1/user
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var update auth.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	user, err := h.service.UpdateUser(withOrigin(r), middleware.SessionTokenFromRequest(r), update)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
			return
		}
		slog.Error("failed to update user", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStoreError())
		return
	}

	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// Events は呼び出し元ユーザーの認証イベントをServer-Sent Eventsで配信する。
// 最初のイベントはINITIAL_SESSION。セッションIDを持つイベントはそのセッションの
// ストリームにのみ配信し、自身のセッションのSIGNED_OUTを送った時点で終了する。
// GET /auth/v1/events（SessionMiddlewareの後に配置）
func (h *AuthHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || h.events == nil {
		middleware.WriteInternalServerError(w)
		return
	}

	ctx := r.Context()
	token := middleware.SessionTokenFromContext(ctx)

	// 1. 現在のセッションを取得
	session, err := h.service.GetSession(ctx, token)
	if err != nil || session == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	// 2. 購読を開始してから初期イベントを送る（取りこぼし防止）
	events, unsubscribe, err := h.events.Subscribe(ctx, session.UserID)
	if err != nil {
		slog.Error("failed to subscribe auth events", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	defer unsubscribe()

	// サーバーのWriteTimeoutはストリームに適用しない
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("failed to clear write deadline", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, model.AuthEvent{Type: model.AuthEventInitialSession, Session: session}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	// 3. イベントを転送
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.SessionID != "" && event.SessionID != token {
				continue
			}
			if err := writeSSE(w, event); err != nil {
				return
			}
			flusher.Flush()
			if event.Type == model.AuthEventSignedOut {
				return
			}
		}
	}
}

func (h *AuthHandler) recordSignIn(result string) {
	if h.metrics != nil {
		h.metrics.RecordSignIn(result)
	}
}

// setSessionCookie はセッションCookieを設定する。maxAgeが負の場合は削除する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeSSE はイベントを1フレーム書き込む。
func writeSSE(w http.ResponseWriter, event model.AuthEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}

// withOrigin はリクエストの操作元クライアントIDをコンテキストに載せる。
func withOrigin(r *http.Request) context.Context {
	return authevents.WithOrigin(r.Context(), r.Header.Get(ClientIDHeader))
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
