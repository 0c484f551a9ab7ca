package barbershop

import "github.com/google/uuid"

// ページのルート。ビューキャッシュのキーとしても使用する。
const (
	ListRoute = "/app/barbershops"
	NewRoute  = "/app/barbershops/new"
)

// DetailRoute は店舗詳細ページのルートを返す。
// 表記の異なる同一IDが同じキャッシュキーになるよう、UUIDは標準表記に揃える。
func DetailRoute(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		id = u.String()
	}
	return ListRoute + "/" + id
}
