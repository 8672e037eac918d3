package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// 单个 LRU 条目数量上限，真正的约束是 maxBytes。
const memoryCacheSlots = 1 << 16

// DefaultMemoryItemBytes 是进入内存层的单个正文上限，jar 等大文件始终走磁盘。
const DefaultMemoryItemBytes = 512 << 10

// MemoryStore 在磁盘 Store 前加一层按字节计量的 LRU，读穿透、写失效。
type MemoryStore struct {
	backend      Store
	items        *lru.Cache
	maxBytes     int64
	maxItemBytes int64
	usedBytes    atomic.Int64

	// mu 串行化 add 与失效；generation 在每次写入/失效后递增，读穿透期间变化则放弃回填。
	mu         sync.Mutex
	generation uint64
}

type memoryItem struct {
	entry Entry
	body  []byte
}

// NewMemoryStore 包装 backend；maxBytes<=0 时不启用内存层，直接返回 backend。
func NewMemoryStore(backend Store, maxBytes, maxItemBytes int64) (Store, error) {
	if backend == nil {
		return nil, errors.New("memory store requires a backend")
	}
	if maxBytes <= 0 {
		return backend, nil
	}
	if maxItemBytes <= 0 || maxItemBytes > maxBytes {
		maxItemBytes = min(int64(DefaultMemoryItemBytes), maxBytes)
	}
	store := &MemoryStore{
		backend:      backend,
		maxBytes:     maxBytes,
		maxItemBytes: maxItemBytes,
	}
	items, err := lru.NewWithEvict(memoryCacheSlots, store.onEvict)
	if err != nil {
		return nil, err
	}
	store.items = items
	return store, nil
}

func (m *MemoryStore) onEvict(_ interface{}, value interface{}) {
	if item, ok := value.(*memoryItem); ok {
		m.usedBytes.Add(-int64(len(item.body)))
	}
}

func (m *MemoryStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	key := locatorKey(locator)
	if value, ok := m.items.Get(key); ok {
		item := value.(*memoryItem)
		return &ReadResult{Entry: item.entry, Reader: newBytesReader(item.body)}, nil
	}

	gen := m.currentGeneration()
	result, err := m.backend.Get(ctx, locator)
	if err != nil {
		return nil, err
	}
	if result.Entry.SizeBytes > m.maxItemBytes {
		return result, nil
	}

	body, err := io.ReadAll(io.LimitReader(result.Reader, m.maxItemBytes+1))
	result.Reader.Close()
	if err != nil {
		return nil, err
	}
	if int64(len(body)) != result.Entry.SizeBytes {
		// 读取期间文件被替换，交给下一次请求重新加载。
		return m.backend.Get(ctx, locator)
	}
	m.add(key, gen, &memoryItem{entry: result.Entry, body: body})
	return &ReadResult{Entry: result.Entry, Reader: newBytesReader(body)}, nil
}

func (m *MemoryStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	entry, err := m.backend.Put(ctx, locator, body, opts)
	if err != nil {
		return nil, err
	}
	m.invalidate(locatorKey(locator), false)
	return entry, nil
}

func (m *MemoryStore) Touch(ctx context.Context, locator Locator, validatedAt time.Time) error {
	if err := m.backend.Touch(ctx, locator, validatedAt); err != nil {
		return err
	}
	m.invalidate(locatorKey(locator), false)
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, locator Locator) error {
	if err := m.backend.Remove(ctx, locator); err != nil {
		return err
	}
	m.invalidate(locatorKey(locator), true)
	return nil
}

func (m *MemoryStore) Stats(ctx context.Context, hubName string) (Stats, error) {
	return m.backend.Stats(ctx, hubName)
}

// MemoryUsage 返回当前内存层的条目数与字节数。
func (m *MemoryStore) MemoryUsage() Stats {
	return Stats{Entries: int64(m.items.Len()), Bytes: m.usedBytes.Load()}
}

func (m *MemoryStore) currentGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// add 只在读穿透期间没有发生写入或失效时回填；同名键先移除，让 onEvict 扣减旧字节。
func (m *MemoryStore) add(key string, gen uint64, item *memoryItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return
	}
	m.items.Remove(key)
	m.items.Add(key, item)
	m.usedBytes.Add(int64(len(item.body)))
	for m.usedBytes.Load() > m.maxBytes {
		if _, _, ok := m.items.RemoveOldest(); !ok {
			break
		}
	}
}

func (m *MemoryStore) invalidate(key string, subtree bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.items.Remove(key)
	if !subtree {
		return
	}
	prefix := strings.TrimSuffix(key, "/") + "/"
	for _, k := range m.items.Keys() {
		if s, ok := k.(string); ok && strings.HasPrefix(s, prefix) {
			m.items.Remove(s)
		}
	}
}

type bytesReader struct {
	*bytes.Reader
}

func newBytesReader(body []byte) io.ReadSeekCloser {
	return bytesReader{bytes.NewReader(body)}
}

func (bytesReader) Close() error { return nil }
