package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/any-hub/maven-hub/internal/config"
	"github.com/any-hub/maven-hub/internal/hubmodule"
	"github.com/any-hub/maven-hub/internal/upstream"
)

// HubRoute 将 Hub 配置与派生属性（缓存 TTL、解析后的上游列表）聚合在一起，
// 供路由/代理层直接复用，避免重复解析配置。
type HubRoute struct {
	// Config 是用户在 config.toml 中声明的 Hub 字段副本。
	Config config.HubConfig
	// ListenPort 记录当前监听端口，方便日志与 X-Forwarded-Port 输出。
	ListenPort int
	// CacheTTL 是对当前 Hub 生效的 TTL：Hub 覆盖 > 模块默认 > 全局值。
	CacheTTL time.Duration
	// Targets 为按优先级排列的上游（Upstream 在前，Mirrors 依次在后）。
	Targets []upstream.Target
	// ModuleKey/Module 记录当前 hub 选用的模块及其元数据。
	ModuleKey string
	Module    hubmodule.ModuleMetadata
	// CacheStrategy 代表模块默认策略与 hub 覆盖后的最终结果。
	CacheStrategy hubmodule.CacheStrategyProfile
}

// HubRegistry 提供 Host 与 /<Name>/ 前缀两种查找方式，所有 Hub 共享同一个监听端口。
type HubRegistry struct {
	byDomain map[string]*HubRoute
	byName   map[string]*HubRoute
	ordered  []*HubRoute
}

// NewHubRegistry 根据配置构建路由表。调用方应在启动阶段创建一次并复用。
func NewHubRegistry(cfg *config.Config) (*HubRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &HubRegistry{
		byDomain: make(map[string]*HubRoute, len(cfg.Hubs)),
		byName:   make(map[string]*HubRoute, len(cfg.Hubs)),
	}

	for _, hub := range cfg.Hubs {
		nameKey := strings.ToLower(hub.Name)
		if nameKey == "" {
			return nil, errors.New("hub name is required")
		}
		if _, exists := registry.byName[nameKey]; exists {
			return nil, fmt.Errorf("duplicate hub name %s", hub.Name)
		}

		normalizedHost := normalizeDomain(hub.Domain)
		if normalizedHost != "" {
			if _, exists := registry.byDomain[normalizedHost]; exists {
				return nil, fmt.Errorf("duplicate domain mapping detected for %s", normalizedHost)
			}
		}

		route, err := buildHubRoute(cfg, hub)
		if err != nil {
			return nil, err
		}

		registry.byName[nameKey] = route
		if normalizedHost != "" {
			registry.byDomain[normalizedHost] = route
		}
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据 Host 或 Host:port 查找 HubRoute，忽略端口与大小写。
func (r *HubRegistry) Lookup(host string) (*HubRoute, bool) {
	if r == nil {
		return nil, false
	}

	normalizedHost, _ := normalizeHost(host)
	if normalizedHost == "" {
		return nil, false
	}

	route, ok := r.byDomain[normalizedHost]
	return route, ok
}

// LookupPrefix 将 /<hub>/rest 映射为 (route, /rest)；只有 /<hub> 时 rest 为 "/"。
func (r *HubRegistry) LookupPrefix(requestPath string) (*HubRoute, string, bool) {
	if r == nil {
		return nil, "", false
	}
	trimmed := strings.TrimPrefix(requestPath, "/")
	name, rest, found := strings.Cut(trimmed, "/")
	if name == "" {
		return nil, "", false
	}
	route, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, "", false
	}
	if !found {
		return route, "/", true
	}
	return route, "/" + rest, true
}

// Get 按 Hub 名称查找，供诊断接口使用。
func (r *HubRegistry) Get(name string) (*HubRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return route, ok
}

// List 返回当前注册的 HubRoute 列表（按配置定义的顺序），用于 /-/hubs 输出。
func (r *HubRegistry) List() []HubRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]HubRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

func buildHubRoute(cfg *config.Config, hub config.HubConfig) (*HubRoute, error) {
	if hub.Module == "" {
		hub.Module = hub.Type
	}
	if hub.Module == "" {
		hub.Module = hubmodule.DefaultModuleKey()
	}
	meta, err := moduleMetadataForHub(hub)
	if err != nil {
		return nil, fmt.Errorf("hub %s: %w", hub.Name, err)
	}

	targets, err := buildTargets(hub)
	if err != nil {
		return nil, err
	}

	runtime := cfg.Runtime(hub, meta)

	return &HubRoute{
		Config:        hub,
		ListenPort:    cfg.Global.ListenPort,
		CacheTTL:      runtime.CacheTTL,
		Targets:       targets,
		ModuleKey:     runtime.Module.Key,
		Module:        runtime.Module,
		CacheStrategy: runtime.CacheStrategy,
	}, nil
}

func normalizeDomain(domain string) string {
	host, _ := normalizeHost(domain)
	return host
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 && strings.Count(raw[idx+1:], ":") == 0 {
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
