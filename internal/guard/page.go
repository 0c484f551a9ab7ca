package guard

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/barberadmin/internal/middleware"
)

// RequirePage は有効なセッションのないページリクエストをloginRouteへ303でリダイレクトする。
// セッションストアの障害はサインアウト扱いにせず500を返す。
// 通過したリクエストのコンテキストにはセッショントークンとユーザーIDを注入する。
func RequirePage(finder middleware.SessionFinder, loginRoute string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := middleware.SessionTokenFromRequest(r)
			if token == "" {
				http.Redirect(w, r, loginRoute, http.StatusSeeOther)
				return
			}

			session, err := finder.GetSession(r.Context(), token)
			if err != nil {
				slog.Error("failed to find session for page",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				middleware.WriteInternalServerError(w)
				return
			}
			if session == nil {
				http.Redirect(w, r, loginRoute, http.StatusSeeOther)
				return
			}

			ctx := middleware.ContextWithSessionToken(r.Context(), token)
			ctx = middleware.ContextWithUserID(ctx, session.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RedirectIfAuthenticated はサインイン済みの呼び出し元をlandingRouteへ303でリダイレクトする。
// セッションの確認に失敗した場合はそのまま通す。
func RedirectIfAuthenticated(finder middleware.SessionFinder, landingRoute string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := middleware.SessionTokenFromRequest(r); token != "" {
				session, err := finder.GetSession(r.Context(), token)
				if err == nil && session != nil {
					http.Redirect(w, r, landingRoute, http.StatusSeeOther)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
