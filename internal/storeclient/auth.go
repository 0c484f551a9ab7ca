package storeclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/hitoshi/barberadmin/internal/auth"
	"github.com/hitoshi/barberadmin/internal/middleware"
	"github.com/hitoshi/barberadmin/internal/model"
)

type sessionBody struct {
	Session *model.Session `json:"session"`
	User    *model.User    `json:"user,omitempty"`
}

// GetSession は現在のセッションを返す。未認証の場合はnil。
func (c *Client) GetSession(ctx context.Context) (*model.Session, error) {
	var body sessionBody
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/session", nil, &body); err != nil {
		return nil, err
	}
	return body.Session, nil
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
// 成功するとセッションCookieがjarに保存され、SIGNED_INを通知する。
// 認証情報の不一致はCodeがINVALID_CREDENTIALSの*Errorになる。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	var body sessionBody
	err := c.doJSON(ctx, http.MethodPost, "/auth/v1/token", map[string]string{
		"email":    email,
		"password": password,
	}, &body)
	if err != nil {
		return nil, err
	}
	if body.Session == nil {
		return nil, fmt.Errorf("sign in response has no session")
	}
	if body.Session.User == nil {
		body.Session.User = body.User
	}

	c.emit(model.AuthEvent{Type: model.AuthEventSignedIn, Session: body.Session})
	return body.Session, nil
}

// SignOut はセッションを破棄し、SIGNED_OUTを通知する。
func (c *Client) SignOut(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("failed to read sign out response: %w", err)
	}
	var body struct {
		Error *string `json:"error"`
	}
	_ = json.Unmarshal(data, &body)

	switch {
	case body.Error != nil:
		return &Error{StatusCode: resp.StatusCode, APIError: &model.APIError{
			Code:     model.ErrCodeStore,
			Message:  *body.Error,
			Category: "system",
		}}
	case resp.StatusCode >= 300:
		return errorFromBody(resp.StatusCode, data)
	}

	c.emit(model.AuthEvent{Type: model.AuthEventSignedOut})
	return nil
}

// RefreshSession はセッションの有効期限を延長し、TOKEN_REFRESHEDを通知する。
func (c *Client) RefreshSession(ctx context.Context) (*model.Session, error) {
	var body sessionBody
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/refresh", nil, &body); err != nil {
		return nil, err
	}
	if body.Session != nil && body.Session.User == nil {
		body.Session.User = body.User
	}

	c.emit(model.AuthEvent{Type: model.AuthEventTokenRefreshed, Session: body.Session})
	return body.Session, nil
}

// UpdateUser はユーザー情報を更新し、USER_UPDATEDを通知する。
func (c *Client) UpdateUser(ctx context.Context, update auth.UserUpdate) (*model.User, error) {
	var body struct {
		User *model.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPut, "/auth/v1/user", update, &body); err != nil {
		return nil, err
	}

	// 通知には更新後のユーザーを含むセッションを載せる
	session, err := c.GetSession(ctx)
	if err != nil {
		slog.Warn("failed to reload session after user update", slog.String("error", err.Error()))
	}
	if session != nil {
		c.emit(model.AuthEvent{Type: model.AuthEventUserUpdated, Session: session})
	}
	return body.User, nil
}

// Subscription はOnAuthStateChangeの購読。
type Subscription interface {
	// Unsubscribe は購読を解除する。複数回呼んでもよい。
	Unsubscribe()
}

type subscription struct {
	once        sync.Once
	unsubscribe func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.unsubscribe)
}

// OnAuthStateChange は認証状態の変化を受け取るハンドラーを登録する。
// ハンドラーは単一のゴルーチンから発生順に呼ばれる。
func (c *Client) OnAuthStateChange(handler func(model.AuthEvent)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.handlers[id] = handler

	return &subscription{unsubscribe: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}}
}

// emit は自身の操作による通知を配送キューへ積む。
func (c *Client) emit(event model.AuthEvent) {
	event.Origin = c.clientID
	c.enqueue(event)
}

// enqueue は通知を配送キューへ積む。呼び出し元をブロックしない。
func (c *Client) enqueue(event model.AuthEvent) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, event)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// dispatch はキューの通知を順に購読者へ配送する。
func (c *Client) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		for {
			event, handlers, ok := c.next()
			if !ok {
				break
			}
			for _, h := range handlers {
				deliver(h, event)
			}
		}
	}
}

// next はキュー先頭の通知と、その時点の購読者を登録順で返す。
func (c *Client) next() (model.AuthEvent, []func(model.AuthEvent), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.pending) == 0 {
		return model.AuthEvent{}, nil, false
	}
	event := c.pending[0]
	c.pending = c.pending[1:]

	handlers := make([]func(model.AuthEvent), 0, len(c.handlers))
	for id := 0; id < c.nextID; id++ {
		if h, ok := c.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	return event, handlers, true
}

// deliver はハンドラーのpanicが配送ゴルーチンを止めないようにする。
func deliver(h func(model.AuthEvent), event model.AuthEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("auth state handler panicked",
				slog.String("event", string(event.Type)),
				slog.Any("panic", rec),
			)
		}
	}()
	h(event)
}

// Watch はサーバーの認証イベントストリームを購読し、他のクライアントが
// 起こした変化を購読者へ通知する。自身の操作によるイベントは既に通知済みのため破棄する。
// ストリームが終了するとnilを、ctxが終了するとctx.Err()を返す。
func (c *Client) Watch(ctx context.Context) error {
	stream := *c.http
	stream.Timeout = 0

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+"/auth/v1/events", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(middleware.APIKeyHeader, c.publicKey)
	req.Header.Set(clientIDHeader, c.clientID)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	err = readEvents(resp.Body, func(event model.AuthEvent) {
		if event.Origin != c.clientID {
			c.enqueue(event)
		}
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// readEvents はServer-Sent Eventsのフレームを読み、data行をAuthEventとして渡す。
// コメント行（":"で始まる行）は無視する。
func readEvents(r io.Reader, fn func(model.AuthEvent)) error {
	reader := bufio.NewReader(r)
	var data strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read event stream: %w", err)
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() > 0 {
				var event model.AuthEvent
				if jsonErr := json.Unmarshal([]byte(data.String()), &event); jsonErr != nil {
					slog.Warn("discarding malformed auth event", slog.String("error", jsonErr.Error()))
				} else if event.Type != "" {
					fn(event)
				}
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if eof {
			return nil
		}
	}
}
