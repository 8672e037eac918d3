package cache

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/any-hub/maven-hub/internal/hubmodule"
)

// ErrStoreUnavailable 表示当前模块未注入缓存存储实例。
var ErrStoreUnavailable = errors.New("cache store unavailable")

// StrategyWriter 注入模块的缓存策略，提供 TTL 决策与写入封装。
type StrategyWriter struct {
	store    Store
	strategy hubmodule.CacheStrategyProfile
	now      func() time.Time
}

// NewStrategyWriter 构造策略感知的写入器，默认使用 time.Now 作为时钟。
func NewStrategyWriter(store Store, strategy hubmodule.CacheStrategyProfile) StrategyWriter {
	return StrategyWriter{
		store:    store,
		strategy: strategy,
		now:      time.Now,
	}
}

// Enabled 返回当前是否具备缓存写入能力。
func (w StrategyWriter) Enabled() bool {
	return w.store != nil
}

// Put 写入缓存正文，并保持与 Store 相同的语义。
func (w StrategyWriter) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	if w.store == nil {
		return nil, ErrStoreUnavailable
	}
	return w.store.Put(ctx, locator, body, opts)
}

// Touch 记录再验证成功的时间点，刷新 TTL 起点。
func (w StrategyWriter) Touch(ctx context.Context, locator Locator) error {
	if w.store == nil {
		return ErrStoreUnavailable
	}
	return w.store.Touch(ctx, locator, w.now())
}

// ShouldBypassValidation 根据策略 TTL 判断是否可以直接复用缓存，TTL 从最近一次下载或再验证起算。
func (w StrategyWriter) ShouldBypassValidation(entry Entry) bool {
	return w.strategy.Fresh(entry.LastChecked(), w.now())
}

// SupportsValidation 返回当前策略是否允许通过 HEAD/Etag 等方式再验证。
func (w StrategyWriter) SupportsValidation() bool {
	return w.strategy.Revalidates()
}

// ValidationMode 返回再验证时使用的条件头类型。
func (w StrategyWriter) ValidationMode() hubmodule.ValidationMode {
	return w.strategy.ValidationMode
}
