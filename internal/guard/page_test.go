package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/barberadmin/internal/middleware"
	"github.com/hitoshi/barberadmin/internal/model"
)

type finderFunc func(ctx context.Context, id string) (*model.Session, error)

func (f finderFunc) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return f(ctx, id)
}

func validOnly(token string) finderFunc {
	return func(_ context.Context, id string) (*model.Session, error) {
		if id == token {
			return &model.Session{ID: id, UserID: "user-1"}, nil
		}
		return nil, nil
	}
}

func pageRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/app/barbershops", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	}
	return req
}

func TestRequirePage(t *testing.T) {
	tests := []struct {
		name         string
		finder       finderFunc
		token        string
		wantStatus   int
		wantLocation string
	}{
		{"no cookie", validOnly("good"), "", http.StatusSeeOther, "/login"},
		{"expired session", validOnly("good"), "stale", http.StatusSeeOther, "/login"},
		{"valid session", validOnly("good"), "good", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser, gotToken string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = middleware.UserIDFromContext(r.Context())
				gotToken = middleware.SessionTokenFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			w := httptest.NewRecorder()
			RequirePage(tt.finder, "/login")(next).ServeHTTP(w, pageRequest(tt.token))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
			if tt.wantStatus == http.StatusOK {
				if gotUser != "user-1" {
					t.Errorf("user ID = %q, want %q", gotUser, "user-1")
				}
				if gotToken != tt.token {
					t.Errorf("session token = %q, want %q", gotToken, tt.token)
				}
			}
		})
	}
}

func TestRequirePage_StoreFailureIsServerError(t *testing.T) {
	failing := finderFunc(func(context.Context, string) (*model.Session, error) {
		return nil, errors.New("db down")
	})
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	w := httptest.NewRecorder()
	RequirePage(failing, "/login")(next).ServeHTTP(w, pageRequest("good"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if loc := w.Header().Get("Location"); loc != "" {
		t.Errorf("store failure should not redirect, got Location %q", loc)
	}
	if called {
		t.Error("next handler should not be called")
	}
	if body := w.Body.String(); strings.Contains(body, "db down") {
		t.Errorf("internal error leaked into body: %s", body)
	}
}

func TestRedirectIfAuthenticated(t *testing.T) {
	tests := []struct {
		name         string
		token        string
		wantStatus   int
		wantLocation string
	}{
		{"anonymous", "", http.StatusOK, ""},
		{"stale cookie", "stale", http.StatusOK, ""},
		{"signed in", "good", http.StatusSeeOther, "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodGet, "/login", nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: tt.token})
			}

			w := httptest.NewRecorder()
			RedirectIfAuthenticated(validOnly("good"), "/dashboard")(next).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
		})
	}
}
