package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/barberadmin/internal/auth"
	"github.com/hitoshi/barberadmin/internal/authevents"
	"github.com/hitoshi/barberadmin/internal/middleware"
	"github.com/hitoshi/barberadmin/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	signInFn     func(ctx context.Context, email, password string) (*model.Session, error)
	signOutFn    func(ctx context.Context, sessionID string) error
	getSessionFn func(ctx context.Context, sessionID string) (*model.Session, error)
	refreshFn    func(ctx context.Context, sessionID string) (*model.Session, error)
	updateUserFn func(ctx context.Context, sessionID string, update auth.UserUpdate) (*model.User, error)
}

func (m *mockAuthService) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, auth.ErrInvalidCredentials
}

func (m *mockAuthService) SignOut(ctx context.Context, sessionID string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockAuthService) RefreshSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, sessionID)
	}
	return nil, auth.ErrSessionNotFound
}

func (m *mockAuthService) UpdateUser(ctx context.Context, sessionID string, update auth.UserUpdate) (*model.User, error) {
	if m.updateUserFn != nil {
		return m.updateUserFn(ctx, sessionID, update)
	}
	return nil, auth.ErrSessionNotFound
}

// recordingCollector はメトリクス呼び出しを記録する。
type recordingCollector struct {
	signIns   []string
	signOuts  int
	cacheHits []bool
	statuses  []int
}

func (c *recordingCollector) RecordSignIn(result string) { c.signIns = append(c.signIns, result) }
func (c *recordingCollector) RecordSignOut()             { c.signOuts++ }
func (c *recordingCollector) RecordAction(string, string, time.Duration) {}
func (c *recordingCollector) RecordHTTPStatus(code int) { c.statuses = append(c.statuses, code) }
func (c *recordingCollector) RecordViewCache(hit bool)  { c.cacheHits = append(c.cacheHits, hit) }
func (c *recordingCollector) RecordSessionsCleaned(int64) {}

var testAuthConfig = AuthHandlerConfig{SessionMaxAge: 86400}

func testSession(token, userID string) *model.Session {
	return &model.Session{
		ID:        token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
		User:      &model.User{ID: userID, Email: userID + "@example.com"},
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func withSessionCookie(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	return req
}

// --- テスト ---

func TestAuthHandler_SignIn_SetsCookie(t *testing.T) {
	var gotOrigin string
	svc := &mockAuthService{
		signInFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			gotOrigin = authevents.OriginFromContext(ctx)
			if email != "owner@example.com" || password != "secret" {
				t.Errorf("unexpected credentials %q/%q", email, password)
			}
			return testSession("token-1", "user-1"), nil
		},
	}
	collector := &recordingCollector{}
	h := NewAuthHandler(svc, nil, collector, testAuthConfig)

	req := httptest.NewRequest(http.MethodPost, "/auth/v1/token", strings.NewReader(`{"email":"owner@example.com","password":"secret"}`))
	req.Header.Set(ClientIDHeader, "tab-1")
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cookie := findCookie(resp, middleware.SessionCookieName)
	if cookie == nil || cookie.Value != "token-1" {
		t.Fatalf("session cookie = %+v, want token-1", cookie)
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	if cookie.MaxAge != 86400 {
		t.Errorf("MaxAge = %d, want 86400", cookie.MaxAge)
	}

	var body map[string]json.RawMessage
	json.NewDecoder(resp.Body).Decode(&body)
	if _, ok := body["session"]; !ok {
		t.Error("response should contain session")
	}
	if strings.Contains(string(body["session"]), "token-1") {
		t.Error("session token must not appear in the response body")
	}
	if gotOrigin != "tab-1" {
		t.Errorf("origin = %q, want tab-1", gotOrigin)
	}
	if len(collector.signIns) != 1 || collector.signIns[0] != "success" {
		t.Errorf("signIns = %v", collector.signIns)
	}
}

func TestAuthHandler_SignIn_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
		wantMetric string
	}{
		{"invalid credentials", `{"email":"a@example.com","password":"x"}`, auth.ErrInvalidCredentials, http.StatusUnauthorized, model.ErrCodeInvalidCredentials, "invalid_credentials"},
		{"store failure", `{"email":"a@example.com","password":"x"}`, errors.New("db down"), http.StatusInternalServerError, model.ErrCodeStore, "error"},
		{"malformed body", `{`, nil, http.StatusBadRequest, model.ErrCodeInvalidRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				signInFn: func(ctx context.Context, email, password string) (*model.Session, error) {
					return nil, tt.err
				},
			}
			collector := &recordingCollector{}
			h := NewAuthHandler(svc, nil, collector, testAuthConfig)

			w := httptest.NewRecorder()
			h.SignIn(w, httptest.NewRequest(http.MethodPost, "/auth/v1/token", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body middleware.ErrorResponseBody
			json.NewDecoder(w.Body).Decode(&body)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if findCookie(w.Result(), middleware.SessionCookieName) != nil {
				t.Error("no session cookie should be set on failure")
			}
			if tt.wantMetric != "" && (len(collector.signIns) != 1 || collector.signIns[0] != tt.wantMetric) {
				t.Errorf("signIns = %v, want [%s]", collector.signIns, tt.wantMetric)
			}
		})
	}
}

func TestAuthHandler_SignOut(t *testing.T) {
	var gotSession string
	svc := &mockAuthService{
		signOutFn: func(ctx context.Context, sessionID string) error {
			gotSession = sessionID
			return nil
		},
	}
	collector := &recordingCollector{}
	h := NewAuthHandler(svc, nil, collector, testAuthConfig)

	w := httptest.NewRecorder()
	h.SignOut(w, withSessionCookie(httptest.NewRequest(http.MethodPost, "/auth/v1/logout", nil), "token-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotSession != "token-1" {
		t.Errorf("signed out session = %q, want token-1", gotSession)
	}
	if strings.TrimSpace(w.Body.String()) != `{"error":null}` {
		t.Errorf("body = %s", w.Body.String())
	}
	cookie := findCookie(w.Result(), middleware.SessionCookieName)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("session cookie should be cleared, got %+v", cookie)
	}
	if collector.signOuts != 1 {
		t.Errorf("signOuts = %d, want 1", collector.signOuts)
	}
}

func TestAuthHandler_SignOut_WithoutSession(t *testing.T) {
	called := false
	svc := &mockAuthService{
		signOutFn: func(ctx context.Context, sessionID string) error {
			called = true
			return nil
		},
	}
	h := NewAuthHandler(svc, nil, nil, testAuthConfig)

	w := httptest.NewRecorder()
	h.SignOut(w, httptest.NewRequest(http.MethodPost, "/auth/v1/logout", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if called {
		t.Error("store should not be called without a session")
	}
}

func TestAuthHandler_SignOut_StoreFailure(t *testing.T) {
	svc := &mockAuthService{
		signOutFn: func(ctx context.Context, sessionID string) error {
			return errors.New("db down")
		},
	}
	h := NewAuthHandler(svc, nil, nil, testAuthConfig)

	w := httptest.NewRecorder()
	h.SignOut(w, withSessionCookie(httptest.NewRequest(http.MethodPost, "/auth/v1/logout", nil), "token-1"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body struct {
		Error *string `json:"error"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	if body.Error == nil || *body.Error != "The data store is unavailable" {
		t.Errorf("error = %v", body.Error)
	}
}

func TestAuthHandler_Session(t *testing.T) {
	tests := []struct {
		name        string
		token       string
		wantSession bool
	}{
		{"anonymous", "", false},
		{"expired", "stale", false},
		{"valid", "token-1", true},
	}

	svc := &mockAuthService{
		getSessionFn: func(ctx context.Context, sessionID string) (*model.Session, error) {
			if sessionID == "token-1" {
				return testSession("token-1", "user-1"), nil
			}
			return nil, nil
		},
	}
	h := NewAuthHandler(svc, nil, nil, testAuthConfig)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/v1/session", nil)
			if tt.token != "" {
				withSessionCookie(req, tt.token)
			}
			w := httptest.NewRecorder()
			h.Session(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var body struct {
				Session *model.Session `json:"session"`
			}
			json.NewDecoder(w.Body).Decode(&body)
			if (body.Session != nil) != tt.wantSession {
				t.Errorf("session = %+v, wantSession %v", body.Session, tt.wantSession)
			}
		})
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	svc := &mockAuthService{
		refreshFn: func(ctx context.Context, sessionID string) (*model.Session, error) {
			if sessionID != "token-1" {
				return nil, auth.ErrSessionNotFound
			}
			return testSession("token-1", "user-1"), nil
		},
	}
	h := NewAuthHandler(svc, nil, nil, testAuthConfig)

	w := httptest.NewRecorder()
	h.Refresh(w, withSessionCookie(httptest.NewRequest(http.MethodPost, "/auth/v1/refresh", nil), "token-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if c := findCookie(w.Result(), middleware.SessionCookieName); c == nil || c.Value != "token-1" {
		t.Errorf("refreshed cookie = %+v", c)
	}

	w = httptest.NewRecorder()
	h.Refresh(w, withSessionCookie(httptest.NewRequest(http.MethodPost, "/auth/v1/refresh", nil), "gone"))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandler_UpdateUser(t *testing.T) {
	var got auth.UserUpdate
	svc := &mockAuthService{
		updateUserFn: func(ctx context.Context, sessionID string, update auth.UserUpdate) (*model.User, error) {
			got = update
			return &model.User{ID: "user-1", Name: *update.Name}, nil
		},
	}
	h := NewAuthHandler(svc, nil, nil, testAuthConfig)

	req := httptest.NewRequest(http.MethodPut, "/auth/v1/user", strings.NewReader(`{"name":"Sam","metadata":{"locale":"ja"}}`))
	w := httptest.NewRecorder()
	h.UpdateUser(w, withSessionCookie(req, "token-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Name == nil || *got.Name != "Sam" || got.Metadata["locale"] != "ja" {
		t.Errorf("update = %+v", got)
	}
}

func TestAuthHandler_UpdateUser_Unauthenticated(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil, nil, testAuthConfig)

	w := httptest.NewRecorder()
	h.UpdateUser(w, httptest.NewRequest(http.MethodPut, "/auth/v1/user", strings.NewReader(`{}`)))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// readFrame はSSEの1フレームを読み、data行のイベントを返す。コメントは読み飛ばす。
func readFrame(t *testing.T, r *bufio.Reader) model.AuthEvent {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before a frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			var event model.AuthEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				t.Fatalf("invalid frame %q: %v", data, err)
			}
			return event
		}
	}
}

func TestAuthHandler_Events(t *testing.T) {
	bus := authevents.NewMemoryBus()
	defer bus.Close()

	svc := &mockAuthService{
		getSessionFn: func(ctx context.Context, sessionID string) (*model.Session, error) {
			return testSession(sessionID, "user-1"), nil
		},
	}
	h := NewAuthHandler(svc, bus, nil, testAuthConfig)

	srv := httptest.NewServer(middleware.NewSessionMiddleware(svc)(http.HandlerFunc(h.Events)))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	withSessionCookie(req, "token-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	reader := bufio.NewReader(resp.Body)

	// 1. 最初はINITIAL_SESSION
	if e := readFrame(t, reader); e.Type != model.AuthEventInitialSession || e.Session == nil {
		t.Fatalf("first frame = %+v, want INITIAL_SESSION with session", e)
	}

	// 2. 他セッション宛てのイベントは届かず、ユーザー全体のイベントは届く
	ctx := context.Background()
	bus.Publish(ctx, model.AuthEvent{Type: model.AuthEventTokenRefreshed, UserID: "user-1", SessionID: "token-2"})
	bus.Publish(ctx, model.AuthEvent{Type: model.AuthEventUserUpdated, UserID: "user-1", Origin: "tab-9"})
	e := readFrame(t, reader)
	if e.Type != model.AuthEventUserUpdated || e.Origin != "tab-9" {
		t.Fatalf("frame = %+v, want USER_UPDATED from tab-9", e)
	}

	// 3. 自セッションのSIGNED_OUTでストリームが終わる
	bus.Publish(ctx, model.AuthEvent{Type: model.AuthEventSignedOut, UserID: "user-1", SessionID: "token-1"})
	if e := readFrame(t, reader); e.Type != model.AuthEventSignedOut {
		t.Fatalf("frame = %+v, want SIGNED_OUT", e)
	}
	if _, err := reader.ReadString('\n'); err == nil {
		t.Error("stream should end after SIGNED_OUT")
	}
}

func TestAuthHandler_Events_Unauthenticated(t *testing.T) {
	bus := authevents.NewMemoryBus()
	defer bus.Close()
	h := NewAuthHandler(&mockAuthService{}, bus, nil, testAuthConfig)

	srv := httptest.NewServer(http.HandlerFunc(h.Events))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestWriteSSE_Format(t *testing.T) {
	w := httptest.NewRecorder()
	if err := writeSSE(w, model.AuthEvent{Type: model.AuthEventSignedOut, Origin: "tab-1"}); err != nil {
		t.Fatalf("writeSSE failed: %v", err)
	}

	want := fmt.Sprintf("event: SIGNED_OUT\ndata: %s\n\n", `{"event":"SIGNED_OUT","origin":"tab-1","session":null}`)
	if w.Body.String() != want {
		t.Errorf("frame = %q, want %q", w.Body.String(), want)
	}
}
