package hubmodule

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	defaultModuleKey = "maven"
	// DiskLayoutMaven2 是唯一支持的磁盘布局：缓存路径与仓库路径一一对应。
	DiskLayoutMaven2 = "maven2"
)

var (
	modulesMu sync.RWMutex
	modules   = make(map[string]ModuleMetadata)
)

// Register 将模块元数据加入注册表：键不区分大小写，校验模式与磁盘布局必须合法。
func Register(meta ModuleMetadata) error {
	key := normalizeKey(meta.Key)
	if key == "" {
		return fmt.Errorf("module key is required")
	}
	meta.Key = key
	if mode := meta.CacheStrategy.ValidationMode; mode != "" && !mode.Valid() {
		return fmt.Errorf("module %s: unsupported validation mode %q", key, mode)
	}
	meta.CacheStrategy = normalizeStrategy(meta.CacheStrategy)
	if meta.CacheStrategy.DiskLayout != DiskLayoutMaven2 {
		return fmt.Errorf("module %s: unsupported disk layout %q", key, meta.CacheStrategy.DiskLayout)
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()
	if _, exists := modules[key]; exists {
		return fmt.Errorf("module %s already registered", key)
	}
	modules[key] = meta
	return nil
}

// MustRegister 在注册失败时 panic，供模块 init() 使用。
func MustRegister(meta ModuleMetadata) {
	if err := Register(meta); err != nil {
		panic(err)
	}
}

func Resolve(key string) (ModuleMetadata, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return ModuleMetadata{}, false
	}
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	meta, ok := modules[normalized]
	return meta, ok
}

// List 返回按键排序的模块元数据。
func List() []ModuleMetadata {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	result := make([]ModuleMetadata, 0, len(modules))
	for _, meta := range modules {
		result = append(result, meta)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// Keys 返回已注册模块的键，配置校验据此提示可选的 Hub Type。
func Keys() []string {
	items := List()
	keys := make([]string, len(items))
	for i, meta := range items {
		keys[i] = meta.Key
	}
	return keys
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
