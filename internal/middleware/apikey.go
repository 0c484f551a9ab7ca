package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/hitoshi/barberadmin/internal/model"
)

// APIKeyHeader はストアの公開キーを送るリクエストヘッダー名。
const APIKeyHeader = "apikey"

// NewAPIKeyMiddleware はapikeyヘッダーが公開キーと一致しないリクエストを
// 401で拒否するミドルウェアを返す。
func NewAPIKeyMiddleware(publicKey string) func(next http.Handler) http.Handler {
	expected := []byte(publicKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(APIKeyHeader))
			if len(got) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				slog.Warn("rejected request with invalid api key",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidAPIKeyError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
