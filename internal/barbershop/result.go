package barbershop

import "github.com/hitoshi/barberadmin/internal/model"

// Result は店舗操作の統一結果。
// 成功時はErrorがnil、失敗時はDataがnilになる。削除の成功時は両方nil。
type Result[T any] struct {
	Error *string `json:"error"`
	Data  *T      `json:"data"`

	err *model.APIError
}

// Err は失敗の原因を返す。成功時と、JSONから復元した結果ではnil。
// HTTPステータスの決定に使用する。
func (r Result[T]) Err() *model.APIError {
	return r.err
}

// OK は操作が成功したかを返す。
func (r Result[T]) OK() bool {
	return r.Error == nil
}

func ok[T any](data *T) Result[T] {
	return Result[T]{Data: data}
}

func fail[T any](apiErr *model.APIError) Result[T] {
	msg := apiErr.Message
	return Result[T]{Error: &msg, err: apiErr}
}

// Success は成功の結果を返す。
func Success[T any](data *T) Result[T] {
	return ok(data)
}

// Failure はapiErrを原因とする失敗の結果を返す。
func Failure[T any](apiErr *model.APIError) Result[T] {
	return fail[T](apiErr)
}
