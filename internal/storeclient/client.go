// Package storeclient はセッションストアとレコードAPIのHTTPクライアントを提供する。
//
// Clientはcookie jarでセッションCookieを保持し、ブラウザのタブと同じ立場で
// サーバーと対話する。認証状態の変化はOnAuthStateChangeの購読者へ
// 発生順に通知する。
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/barberadmin/internal/config"
	"github.com/hitoshi/barberadmin/internal/middleware"
	"github.com/hitoshi/barberadmin/internal/model"
)

// clientIDHeader はサーバーがイベントのoriginとして記録するヘッダー名。
const clientIDHeader = "X-Client-ID"

const defaultTimeout = 15 * time.Second

// Config はClientの設定。
type Config struct {
	StoreURL       string
	StorePublicKey string

	// HTTPClient は任意。Jarが未設定の場合は新しいcookie jarを割り当てる。
	HTTPClient *http.Client
}

// Client はセッションストアのクライアントハンドル。
// 同一ハンドルを共有する呼び出しはCookieのセッション状態も共有する。
type Client struct {
	baseURL   *url.URL
	publicKey string
	clientID  string
	http      *http.Client

	mu       sync.Mutex
	handlers map[int]func(model.AuthEvent)
	nextID   int
	pending  []model.AuthEvent
	wake     chan struct{}
	done     chan struct{}
	closed   bool
}

// New はClientを生成する。StoreURLまたはStorePublicKeyが未設定の場合は
// *model.ConfigurationErrorを返す。
func New(cfg Config) (*Client, error) {
	var missing []string
	if cfg.StoreURL == "" {
		missing = append(missing, "STORE_URL")
	}
	if cfg.StorePublicKey == "" {
		missing = append(missing, "STORE_PUBLIC_KEY")
	}
	if len(missing) > 0 {
		return nil, &model.ConfigurationError{Missing: missing}
	}

	base, err := url.Parse(strings.TrimRight(cfg.StoreURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &model.ConfigurationError{Reason: fmt.Sprintf("STORE_URL %q is not an absolute URL", cfg.StoreURL)}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		copied := *httpClient
		copied.Jar = jar
		httpClient = &copied
	}

	c := &Client{
		baseURL:   base,
		publicKey: cfg.StorePublicKey,
		clientID:  uuid.New().String(),
		http:      httpClient,
		handlers:  make(map[int]func(model.AuthEvent)),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go c.dispatch()
	return c, nil
}

// NewFromEnv はSTORE_URLとSTORE_PUBLIC_KEYからClientを生成する。
func NewFromEnv() (*Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	return New(Config{StoreURL: cfg.StoreURL, StorePublicKey: cfg.StorePublicKey})
}

// ClientID はこのハンドルの識別子を返す。
func (c *Client) ClientID() string {
	return c.clientID
}

// Close は通知の配送を停止する。未配送の通知は破棄される。
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Error はストアがエラーレスポンスを返した場合のエラー。
type Error struct {
	StatusCode int
	APIError   *model.APIError
}

func (e *Error) Error() string {
	return fmt.Sprintf("store responded %d: %s", e.StatusCode, e.APIError.Message)
}

// Unwrap は*model.APIErrorをerrors.Asで取り出せるようにする。
func (e *Error) Unwrap() error {
	return e.APIError
}

// do はapikeyとクライアントIDを付けてリクエストを送る。
// 変更系メソッドではCSRFトークンを付与する。
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(middleware.APIKeyHeader, c.publicKey)
	req.Header.Set(clientIDHeader, c.clientID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if method != http.MethodGet && method != http.MethodHead {
		token, err := c.csrfToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set(middleware.CSRFHeaderName, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// doJSON はリクエストを送り、2xxの場合はoutへデコードする。
// それ以外はエラーボディを*Errorとして返す。
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// csrfToken はcookie jarのCSRFトークンを返す。未取得なら取得エンドポイントを呼ぶ。
func (c *Client) csrfToken(ctx context.Context) (string, error) {
	for _, cookie := range c.http.Jar.Cookies(c.baseURL) {
		if cookie.Name == middleware.CSRFCookieName && cookie.Value != "" {
			return cookie.Value, nil
		}
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/csrf-token", nil, &body); err != nil {
		return "", fmt.Errorf("failed to fetch CSRF token: %w", err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("failed to fetch CSRF token: empty token")
	}
	return body.Token, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	return errorFromBody(resp.StatusCode, data)
}

// errorFromBody はエラーレスポンスのボディを*Errorに変換する。
func errorFromBody(status int, data []byte) error {
	var body middleware.ErrorResponseBody
	if err := json.Unmarshal(data, &body); err != nil || body.Message == "" {
		return &Error{StatusCode: status, APIError: &model.APIError{
			Code:     fmt.Sprintf("HTTP_%d", status),
			Message:  http.StatusText(status),
			Category: "system",
		}}
	}
	return &Error{StatusCode: status, APIError: &model.APIError{
		Code:     body.Code,
		Message:  body.Message,
		Category: body.Category,
		Action:   body.Action,
	}}
}
