package storeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hitoshi/barberadmin/internal/barbershop"
	"github.com/hitoshi/barberadmin/internal/model"
)

// ListBarbershops は呼び出し元の店舗一覧を返す。
// 操作の失敗はResult.Errorに入り、errorは通信の失敗のみを表す。
func (c *Client) ListBarbershops(ctx context.Context) (barbershop.Result[[]model.BarbershopSummary], error) {
	var res barbershop.Result[[]model.BarbershopSummary]
	err := c.result(ctx, http.MethodGet, "/api/barbershops", nil, &res)
	return res, err
}

// GetBarbershop は店舗を1件返す。
func (c *Client) GetBarbershop(ctx context.Context, id string) (barbershop.Result[model.Barbershop], error) {
	var res barbershop.Result[model.Barbershop]
	err := c.result(ctx, http.MethodGet, "/api/barbershops/"+url.PathEscape(id), nil, &res)
	return res, err
}

// CreateBarbershop は店舗を作成する。
func (c *Client) CreateBarbershop(ctx context.Context, input barbershop.CreateInput) (barbershop.Result[model.Barbershop], error) {
	var res barbershop.Result[model.Barbershop]
	err := c.result(ctx, http.MethodPost, "/api/barbershops", input, &res)
	return res, err
}

// UpdateBarbershop は店舗を部分更新する。
func (c *Client) UpdateBarbershop(ctx context.Context, id string, input barbershop.UpdateInput) (barbershop.Result[model.Barbershop], error) {
	var res barbershop.Result[model.Barbershop]
	err := c.result(ctx, http.MethodPatch, "/api/barbershops/"+url.PathEscape(id), input, &res)
	return res, err
}

// DeleteBarbershop は店舗を削除する。
func (c *Client) DeleteBarbershop(ctx context.Context, id string) (barbershop.Result[struct{}], error) {
	var res barbershop.Result[struct{}]
	err := c.result(ctx, http.MethodDelete, "/api/barbershops/"+url.PathEscape(id), nil, &res)
	return res, err
}

// result は {error, data} 形式のレスポンスをステータスに関わらずデコードする。
// ボディがこの形式でない場合（apikeyやCSRFの拒否など）は*Errorを返す。
func (c *Client) result(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if _, ok := raw["error"]; !ok {
		data, _ := json.Marshal(raw)
		return errorFromBody(resp.StatusCode, data)
	}

	data, _ := json.Marshal(raw)
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", path, err)
	}
	return nil
}
