package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/barberadmin/internal/middleware"
)

// noRedirect はリダイレクトを追わないHTTPクライアント。
var noRedirect = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestRouter_APIKeyRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "other-key", http.StatusUnauthorized},
		{"valid", testPublicKey, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/auth/v1/session", nil)
			if tt.key != "" {
				req.Header.Set(middleware.APIKeyHeader, tt.key)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestRouter_CSRFRequiredForMutations(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/barbershops", strings.NewReader(`{"name":"Fade Co"}`))
	req.Header.Set(middleware.APIKeyHeader, testPublicKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp, err = http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !strings.Contains(string(body), "barberadmin_http_status_total") {
		t.Error("metrics should include the HTTP status counter")
	}
}

func TestHealthHandler_StoreDown(t *testing.T) {
	h := healthHandler(pingFunc(func(ctx context.Context) error { return errors.New("connection refused") }))

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_PageGuard(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1@example.com")

	// 1. 未認証の保護ページはログインへ
	resp, err := noRedirect.Get(env.server.URL + "/app/barbershops")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Errorf("status = %d, location = %q; want 303 to /login", resp.StatusCode, resp.Header.Get("Location"))
	}

	// 2. ログインページは未認証なら表示
	resp, err = noRedirect.Get(env.server.URL + "/login")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// 3. サインイン後はログインページから一覧へ、保護ページは表示
	session, err := env.auth.SignInWithPassword(context.Background(), "u1@example.com", "password123")
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	cookie := &http.Cookie{Name: middleware.SessionCookieName, Value: session.ID}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/login", nil)
	req.AddCookie(cookie)
	resp, err = noRedirect.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/app/barbershops" {
		t.Errorf("status = %d, location = %q; want 303 to /app/barbershops", resp.StatusCode, resp.Header.Get("Location"))
	}

	req, _ = http.NewRequest(http.MethodGet, env.server.URL+"/app/barbershops", nil)
	req.AddCookie(cookie)
	resp, err = noRedirect.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !strings.Contains(string(body), `"barbershops":[]`) {
		t.Errorf("body = %s", body)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", resp.Header.Get("X-Content-Type-Options"))
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Errorf("X-Frame-Options = %q", resp.Header.Get("X-Frame-Options"))
	}
}
