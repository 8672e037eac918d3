package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// NegativeCache 记住所有上游都返回 404 的路径，在 ttl 内直接拒绝，避免反复回源。
// nil 值可直接使用，表示关闭。
type NegativeCache struct {
	marks *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewNegativeCache 构造容量为 size 的负缓存；ttl<=0 时返回 nil（关闭）。
func NewNegativeCache(size int, ttl time.Duration) (*NegativeCache, error) {
	if ttl <= 0 {
		return nil, nil
	}
	if size <= 0 {
		size = 4096
	}
	marks, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &NegativeCache{marks: marks, ttl: ttl, now: time.Now}, nil
}

// Mark 记录一次“全部上游未找到”。
func (n *NegativeCache) Mark(locator Locator) {
	if n == nil {
		return
	}
	n.marks.Add(locatorKey(locator), n.now().Add(n.ttl))
}

// Hit 报告 locator 是否仍处于负缓存期内，过期条目顺带清理。
func (n *NegativeCache) Hit(locator Locator) bool {
	if n == nil {
		return false
	}
	key := locatorKey(locator)
	value, ok := n.marks.Get(key)
	if !ok {
		return false
	}
	expireAt, ok := value.(time.Time)
	if ok && n.now().Before(expireAt) {
		return true
	}
	n.marks.Remove(key)
	return false
}

// Clear 在成功写入或显式驱逐后撤销标记。
func (n *NegativeCache) Clear(locator Locator) {
	if n == nil {
		return
	}
	n.marks.Remove(locatorKey(locator))
}

// Purge 清空全部标记。
func (n *NegativeCache) Purge() {
	if n == nil {
		return
	}
	n.marks.Purge()
}

// Len 返回当前标记数量（含尚未清理的过期项）。
func (n *NegativeCache) Len() int {
	if n == nil {
		return 0
	}
	return n.marks.Len()
}
