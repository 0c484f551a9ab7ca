package authevents

import "context"

type originKey struct{}

// WithOrigin は操作元クライアントの識別子をコンテキストに載せる。
func WithOrigin(ctx context.Context, origin string) context.Context {
	if origin == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFromContext は操作元クライアントの識別子を返す。未設定なら空文字列。
func OriginFromContext(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}
