package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/barberadmin/internal/barbershop"
	"github.com/hitoshi/barberadmin/internal/metrics"
	"github.com/hitoshi/barberadmin/internal/middleware"
	"github.com/hitoshi/barberadmin/internal/model"
	"github.com/hitoshi/barberadmin/internal/viewcache"
)

// LoginView はサインインページのビューモデル。
type LoginView struct {
	Route        string `json:"route"`
	LandingRoute string `json:"landing_route"`
}

// ListView は店舗一覧ページのビューモデル。
type ListView struct {
	Route       string                    `json:"route"`
	NewRoute    string                    `json:"new_route"`
	Barbershops []model.BarbershopSummary `json:"barbershops"`
	Error       *string                   `json:"error"`
}

// NewView は店舗作成ページのビューモデル。
type NewView struct {
	Route        string      `json:"route"`
	DefaultTheme model.Theme `json:"default_theme"`
}

// DetailView は店舗詳細ページのビューモデル。
type DetailView struct {
	Route      string            `json:"route"`
	Barbershop *model.Barbershop `json:"barbershop"`
	Error      *string           `json:"error"`
}

// PageHandler はページルートのビューモデルを返すハンドラー。
// 認証済みページのビューは所有者・ルート単位でキャッシュし、
// 店舗の変更時にbarbershop.Actionsが無効化する。
type PageHandler struct {
	actions      BarbershopActions
	cache        viewcache.Cache
	metrics      metrics.MetricsCollector
	landingRoute string
}

// NewPageHandler はPageHandlerを生成する。cacheとcollectorは任意。
func NewPageHandler(actions BarbershopActions, cache viewcache.Cache, collector metrics.MetricsCollector, landingRoute string) *PageHandler {
	return &PageHandler{
		actions:      actions,
		cache:        cache,
		metrics:      collector,
		landingRoute: landingRoute,
	}
}

// Login はサインインページを返す。
// GET /login
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LoginView{Route: r.URL.Path, LandingRoute: h.landingRoute})
}

// List は店舗一覧ページを返す。
// GET /app/barbershops
func (h *PageHandler) List(w http.ResponseWriter, r *http.Request) {
	route := barbershop.ListRoute
	if h.serveCached(w, r, route) {
		return
	}

	res := h.actions.List(r.Context())
	view := ListView{Route: route, NewRoute: barbershop.NewRoute, Error: res.Error, Barbershops: []model.BarbershopSummary{}}
	if res.Data != nil {
		view.Barbershops = *res.Data
	}
	h.render(w, r, route, resultStatus(res.Err(), http.StatusOK), view)
}

// New は店舗作成ページを返す。
// GET /app/barbershops/new
func (h *PageHandler) New(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewView{Route: barbershop.NewRoute, DefaultTheme: model.DefaultTheme()})
}

// Detail は店舗詳細ページを返す。
// GET /app/barbershops/{id}
func (h *PageHandler) Detail(w http.ResponseWriter, r *http.Request) {
	route := barbershop.DetailRoute(chi.URLParam(r, "id"))
	if h.serveCached(w, r, route) {
		return
	}

	res := h.actions.GetByID(r.Context(), chi.URLParam(r, "id"))
	h.render(w, r, route, resultStatus(res.Err(), http.StatusOK), DetailView{
		Route:      route,
		Barbershop: res.Data,
		Error:      res.Error,
	})
}

// serveCached はキャッシュ済みのビューがあれば書き込みtrueを返す。
func (h *PageHandler) serveCached(w http.ResponseWriter, r *http.Request, route string) bool {
	ownerID := cacheOwner(r)
	if h.cache == nil || ownerID == "" {
		return false
	}

	body, hit, err := h.cache.Get(r.Context(), ownerID, route)
	if err != nil {
		slog.Warn("view cache read failed", slog.String("route", route), slog.String("error", err.Error()))
		return false
	}
	if h.metrics != nil {
		h.metrics.RecordViewCache(hit)
	}
	if !hit {
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
	return true
}

// render はビューを書き込み、成功したビューのみキャッシュへ保存する。
func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, route string, status int, view any) {
	body, err := json.Marshal(view)
	if err != nil {
		slog.Error("failed to encode view", slog.String("route", route), slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	ownerID := cacheOwner(r)
	if status == http.StatusOK && h.cache != nil && ownerID != "" {
		if err := h.cache.Set(r.Context(), ownerID, route, body); err != nil {
			slog.Warn("view cache write failed", slog.String("route", route), slog.String("error", err.Error()))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// cacheOwner はキャッシュキーに使う所有者IDを返す。
// セッション検証を通過していないリクエストでは空文字列となりキャッシュを使わない。
func cacheOwner(r *http.Request) string {
	ownerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		return ""
	}
	return ownerID
}
