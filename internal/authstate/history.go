package authstate

import "sync"

// History はメモリ上でルート遷移を記録するNavigator。
type History struct {
	mu     sync.Mutex
	routes []string
}

// NewHistory は初期ルートを持つHistoryを生成する。
func NewHistory(initial string) *History {
	return &History{routes: []string{initial}}
}

// Navigate はルートを遷移履歴に追加する。現在のルートと同じ場合は何もしない。
func (h *History) Navigate(route string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.routes) > 0 && h.routes[len(h.routes)-1] == route {
		return
	}
	h.routes = append(h.routes, route)
}

// CurrentRoute は現在のルートを返す。
func (h *History) CurrentRoute() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.routes) == 0 {
		return ""
	}
	return h.routes[len(h.routes)-1]
}

// Routes は遷移履歴のコピーを返す。
func (h *History) Routes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.routes...)
}
