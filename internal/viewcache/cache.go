// Package viewcache はページのビューモデルを所有者・ルート単位でキャッシュする。
//
// 店舗の作成・更新・削除時に対象ルートを無効化し、
// 以降の表示が変更を反映するようにする。
package viewcache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL はキャッシュエントリの既定の有効期間。
const DefaultTTL = 5 * time.Minute

// Cache はページビューモデルのキャッシュインターフェース。
type Cache interface {
	// Get はキャッシュ済みのビューを返す。存在しない場合はfalseを返す。
	Get(ctx context.Context, ownerID, route string) ([]byte, bool, error)
	// Set はビューを保存する。
	Set(ctx context.Context, ownerID, route string, body []byte) error
	// Invalidate は所有者の指定ルートのキャッシュを削除する。
	Invalidate(ctx context.Context, ownerID string, routes ...string) error
}

type memoryEntry struct {
	body      []byte
	expiresAt time.Time
}

// memoryCache はプロセス内のCache実装。
type memoryCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryCache はメモリ上のCacheを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func NewMemoryCache(ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &memoryCache{
		ttl:   ttl,
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (c *memoryCache) Get(_ context.Context, ownerID, route string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(ownerID, route)
	entry, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.items, key)
		return nil, false, nil
	}
	return entry.body, true, nil
}

func (c *memoryCache) Set(_ context.Context, ownerID, route string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[cacheKey(ownerID, route)] = memoryEntry{
		body:      append([]byte(nil), body...),
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, ownerID string, routes ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, route := range routes {
		delete(c.items, cacheKey(ownerID, route))
	}
	return nil
}

// cacheKey は所有者とルートからキャッシュキーを組み立てる。
func cacheKey(ownerID, route string) string {
	return "view:" + ownerID + ":" + route
}
