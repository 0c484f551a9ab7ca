package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/barberadmin/internal/barbershop"
	"github.com/hitoshi/barberadmin/internal/model"
)

// BarbershopActions は店舗ハンドラーが必要とする操作インターフェース。
// barbershop.Actionsが実装する。
type BarbershopActions interface {
	List(ctx context.Context) barbershop.Result[[]model.BarbershopSummary]
	GetByID(ctx context.Context, id string) barbershop.Result[model.Barbershop]
	Create(ctx context.Context, input barbershop.CreateInput) barbershop.Result[model.Barbershop]
	Update(ctx context.Context, id string, input barbershop.UpdateInput) barbershop.Result[model.Barbershop]
	Delete(ctx context.Context, id string) barbershop.Result[struct{}]
}

// BarbershopHandler は店舗APIのHTTPハンドラー。
// レスポンスボディは成功・失敗ともに {error, data} 形式。
type BarbershopHandler struct {
	actions BarbershopActions
}

// NewBarbershopHandler はBarbershopHandlerを生成する。
func NewBarbershopHandler(actions BarbershopActions) *BarbershopHandler {
	return &BarbershopHandler{actions: actions}
}

// ListBarbershops は呼び出し元の店舗一覧を返す。
// GET /api/barbershops
func (h *BarbershopHandler) ListBarbershops(w http.ResponseWriter, r *http.Request) {
	res := h.actions.List(r.Context())
	writeResult(w, http.StatusOK, res, res.Err())
}

// GetBarbershop は店舗を1件返す。
// GET /api/barbershops/{id}
func (h *BarbershopHandler) GetBarbershop(w http.ResponseWriter, r *http.Request) {
	res := h.actions.GetByID(r.Context(), chi.URLParam(r, "id"))
	writeResult(w, http.StatusOK, res, res.Err())
}

// CreateBarbershop は店舗を作成する。
// POST /api/barbershops
func (h *BarbershopHandler) CreateBarbershop(w http.ResponseWriter, r *http.Request) {
	var input barbershop.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeInvalidBody(w)
		return
	}

	res := h.actions.Create(r.Context(), input)
	writeResult(w, http.StatusCreated, res, res.Err())
}

// UpdateBarbershop は店舗を部分更新する。
// PATCH /api/barbershops/{id}
func (h *BarbershopHandler) UpdateBarbershop(w http.ResponseWriter, r *http.Request) {
	var input barbershop.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeInvalidBody(w)
		return
	}

	res := h.actions.Update(r.Context(), chi.URLParam(r, "id"), input)
	writeResult(w, http.StatusOK, res, res.Err())
}

// DeleteBarbershop は店舗を削除する。
// DELETE /api/barbershops/{id}
func (h *BarbershopHandler) DeleteBarbershop(w http.ResponseWriter, r *http.Request) {
	res := h.actions.Delete(r.Context(), chi.URLParam(r, "id"))
	writeResult(w, http.StatusOK, res, res.Err())
}

// resultStatus は失敗の種別をHTTPステータスに対応付ける。
func resultStatus(apiErr *model.APIError, success int) int {
	if apiErr == nil {
		return success
	}
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeBarbershopNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidation, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, success int, body any, apiErr *model.APIError) {
	writeJSON(w, resultStatus(apiErr, success), body)
}

func writeInvalidBody(w http.ResponseWriter) {
	msg := model.NewInvalidRequestError().Message
	writeJSON(w, http.StatusBadRequest, barbershop.Result[struct{}]{Error: &msg})
}
