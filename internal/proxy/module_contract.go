package proxy

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/any-hub/maven-hub/internal/server"
)

// ModuleHandler 是每个仓库模块（maven、gradle）在运行时提供的处理入口。
type ModuleHandler = server.ProxyHandler

// ModuleRegistration 将 module_key 与其 handler 绑定。
type ModuleRegistration struct {
	Key     string
	Handler ModuleHandler
}

// ErrModuleHandlerExists indicates a handler has already been registered for the key.
var ErrModuleHandlerExists = errors.New("module handler already registered")

var moduleHandlers sync.Map

func (r ModuleRegistration) Validate() error {
	if normalizeModuleKey(r.Key) == "" {
		return errors.New("module key required")
	}
	if r.Handler == nil {
		return errors.New("module handler required")
	}
	return nil
}

// RegisterModule 注册模块 handler，同一 key 只能注册一次。
func RegisterModule(reg ModuleRegistration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	key := normalizeModuleKey(reg.Key)
	if _, loaded := moduleHandlers.LoadOrStore(key, reg.Handler); loaded {
		return fmt.Errorf("%w: %s", ErrModuleHandlerExists, key)
	}
	return nil
}

// MustRegisterModule panics when registration fails; main wires every configured module through it.
func MustRegisterModule(reg ModuleRegistration) {
	if err := RegisterModule(reg); err != nil {
		panic(err)
	}
}

// RegisteredModules 返回已注册 handler 的 module_key，供启动日志使用。
func RegisteredModules() []string {
	var keys []string
	moduleHandlers.Range(func(key, _ interface{}) bool {
		if s, ok := key.(string); ok {
			keys = append(keys, s)
		}
		return true
	})
	return keys
}

func lookupModuleHandler(key string) ModuleHandler {
	normalized := normalizeModuleKey(key)
	if normalized == "" {
		return nil
	}
	if value, ok := moduleHandlers.Load(normalized); ok {
		if handler, ok := value.(ModuleHandler); ok {
			return handler
		}
	}
	return nil
}

func normalizeModuleKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
