package server

import (
	"fmt"
	"net/url"

	"github.com/any-hub/maven-hub/internal/config"
	"github.com/any-hub/maven-hub/internal/hubmodule"
	"github.com/any-hub/maven-hub/internal/upstream"
)

func moduleMetadataForHub(hub config.HubConfig) (hubmodule.ModuleMetadata, error) {
	if meta, ok := hubmodule.Resolve(hub.Module); ok {
		return meta, nil
	}
	return hubmodule.ModuleMetadata{}, fmt.Errorf("module %s is not registered", hub.Module)
}

// buildTargets 按 Upstream > Mirrors 的顺序解析上游，Proxy 对所有上游生效。
func buildTargets(hub config.HubConfig) ([]upstream.Target, error) {
	var proxyURL *url.URL
	if hub.Proxy != "" {
		parsed, err := url.Parse(hub.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy for hub %s: %w", hub.Name, err)
		}
		proxyURL = parsed
	}

	raw := hub.Upstreams()
	if len(raw) == 0 {
		return nil, fmt.Errorf("hub %s has no upstream", hub.Name)
	}
	targets := make([]upstream.Target, 0, len(raw))
	for _, item := range raw {
		parsed, err := url.Parse(item)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream for hub %s: %w", hub.Name, err)
		}
		targets = append(targets, upstream.Target{
			Name:     parsed.Host,
			BaseURL:  parsed,
			ProxyURL: proxyURL,
		})
	}
	return targets, nil
}
