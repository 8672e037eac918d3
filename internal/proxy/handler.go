package proxy

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/maven-hub/internal/cache"
	"github.com/any-hub/maven-hub/internal/config"
	"github.com/any-hub/maven-hub/internal/logging"
	"github.com/any-hub/maven-hub/internal/maven"
	"github.com/any-hub/maven-hub/internal/metrics"
	"github.com/any-hub/maven-hub/internal/proxy/hooks"
	"github.com/any-hub/maven-hub/internal/server"
	"github.com/any-hub/maven-hub/internal/upstream"
)

// defaultFillTimeout 约束脱离客户端连接后的回源写缓存时长。
const defaultFillTimeout = 10 * time.Minute

// Options 汇总 Handler 依赖；Negative/Metrics 可为空。
type Options struct {
	Fetcher           *upstream.Fetcher
	Store             cache.Store
	Negative          *cache.NegativeCache
	Metrics           *metrics.Recorder
	Logger            *logrus.Logger
	ServeStaleOnError bool
	FillTimeout       time.Duration
}

// Handler 负责 orchestrate “负缓存 → 缓存命中 → 再验证 → 合并回源写缓存” 的全流程，
// 对外暴露 Fiber handler，内部复用共享 Fetcher 与磁盘缓存。
type Handler struct {
	fetcher     *upstream.Fetcher
	store       cache.Store
	negative    *cache.NegativeCache
	metrics     *metrics.Recorder
	logger      *logrus.Logger
	serveStale  bool
	fillTimeout time.Duration

	fills singleflight.Group
}

// requestState 是单次请求在各阶段之间传递的上下文。
type requestState struct {
	route     *server.HubRoute
	req       maven.Request
	locator   cache.Locator
	policy    hooks.CachePolicy
	hookCtx   *hooks.RequestContext
	hookDef   hooks.Hooks
	hasHooks  bool
	writer    cache.StrategyWriter
	header    http.Header
	method    string
	requestID string
	started   time.Time
}

// NewHandler constructs a proxy handler with shared fetcher/logger/store.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fillTimeout := opts.FillTimeout
	if fillTimeout <= 0 {
		fillTimeout = defaultFillTimeout
	}
	return &Handler{
		fetcher:     opts.Fetcher,
		store:       opts.Store,
		negative:    opts.Negative,
		metrics:     opts.Metrics,
		logger:      logger,
		serveStale:  opts.ServeStaleOnError,
		fillTimeout: fillTimeout,
	}
}

func buildHookContext(route *server.HubRoute, c fiber.Ctx) *hooks.RequestContext {
	if route == nil {
		return &hooks.RequestContext{Method: c.Method()}
	}
	return &hooks.RequestContext{
		HubName:   route.Config.Name,
		Domain:    route.Config.Domain,
		HubType:   route.Config.Type,
		ModuleKey: route.ModuleKey,
		Method:    c.Method(),
	}
}

// Handle 执行缓存查找、条件回源和最终 streaming 逻辑，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx, route *server.HubRoute) error {
	st, err := h.prepare(c, route)
	if err != nil {
		return h.writeError(c, &requestState{
			route:     route,
			method:    c.Method(),
			requestID: server.RequestID(c),
			started:   time.Now(),
		}, fiber.StatusBadRequest, "invalid_path", err)
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if !st.policy.AllowCache || !st.writer.Enabled() {
		return h.passthrough(ctx, c, st)
	}

	// metadata 的校验文件总是由缓存中的 metadata 计算，保证与同一时刻返回的正文一致。
	if h.isMetadataChecksum(st) {
		return h.serveSynthesizedChecksum(ctx, c, st, true)
	}

	if h.negative.Hit(st.locator) {
		c.Set(headerCacheHit, logging.CacheNegative)
		return h.writeNotFound(c, st, logging.CacheNegative)
	}

	cached, err := h.store.Get(ctx, st.locator)
	switch {
	case err == nil:
		return h.serveCached(ctx, c, st, cached)
	case errors.Is(err, cache.ErrNotFound):
	default:
		h.logger.WithError(err).
			WithFields(logrus.Fields{"hub": route.Config.Name, "module_key": route.ModuleKey, "path": st.req.Path}).
			Warn("cache_get_failed")
	}

	return h.serveMiss(ctx, c, st)
}

func (h *Handler) prepare(c fiber.Ctx, route *server.HubRoute) (*requestState, error) {
	hookDef, hasHooks := hooks.Fetch(route.ModuleKey)
	hookCtx := buildHookContext(route, c)

	rawPath := server.RepoPath(c)
	if hasHooks && hookDef.NormalizePath != nil {
		if normalized := hookDef.NormalizePath(hookCtx, rawPath); normalized != "" {
			rawPath = normalized
		}
	}
	req, err := maven.ParsePath(rawPath)
	if err != nil {
		return nil, err
	}

	return &requestState{
		route:     route,
		req:       req,
		locator:   cache.Locator{HubName: route.Config.Name, Path: req.Path},
		policy:    h.cachePolicy(route, hookCtx, hookDef, hasHooks, req),
		hookCtx:   hookCtx,
		hookDef:   hookDef,
		hasHooks:  hasHooks,
		writer:    cache.NewStrategyWriter(h.store, route.CacheStrategy),
		header:    buildUpstreamHeader(c, route),
		method:    c.Method(),
		requestID: server.RequestID(c),
		started:   time.Now(),
	}, nil
}

// cachePolicy 先取路径分类的默认策略，再叠加模块 hook 与 Hub 配置。
func (h *Handler) cachePolicy(route *server.HubRoute, hookCtx *hooks.RequestContext, hookDef hooks.Hooks, hasHooks bool, req maven.Request) hooks.CachePolicy {
	policy := hooks.DefaultCachePolicy(req)
	if hasHooks && hookDef.CachePolicy != nil {
		policy = hookDef.CachePolicy(hookCtx, req, policy)
	}
	if req.Kind == maven.KindArtifact && !route.CacheStrategy.ImmutableReleases {
		policy.RequireRevalidate = true
	}
	if route.Config.ChecksumPolicy == config.ChecksumPolicyIgnore {
		policy.VerifyChecksum = false
	}
	return policy
}

// serveCached 处理缓存命中：TTL 内直接返回，否则按策略再验证。
func (h *Handler) serveCached(ctx context.Context, c fiber.Ctx, st *requestState, cached *cache.ReadResult) error {
	entry := cached.Entry
	if !st.policy.RequireRevalidate || st.writer.ShouldBypassValidation(entry) {
		return h.serveEntry(c, st, cached, logging.CacheHit)
	}

	outcome := revalidateChanged
	var revalidateErr error
	if st.writer.SupportsValidation() && !h.isMergedMetadata(st) {
		outcome, revalidateErr = h.revalidate(ctx, st, entry)
	}

	switch {
	case revalidateErr != nil:
		h.logger.WithError(revalidateErr).
			WithFields(logrus.Fields{"hub": st.route.Config.Name, "module_key": st.route.ModuleKey, "path": st.req.Path}).
			Warn("cache_revalidate_failed")
		if h.serveStale {
			return h.serveEntry(c, st, cached, logging.CacheStale)
		}
		cached.Reader.Close()
		return h.writeError(c, st, fiber.StatusBadGateway, "upstream_failed", revalidateErr)
	case outcome == revalidateFresh:
		if err := st.writer.Touch(ctx, st.locator); err != nil {
			h.logger.WithError(err).
				WithFields(logrus.Fields{"hub": st.route.Config.Name, "path": st.req.Path}).
				Warn("cache_touch_failed")
		}
		return h.serveEntry(c, st, cached, logging.CacheHit)
	case outcome == revalidateGone:
		cached.Reader.Close()
		if err := h.store.Remove(ctx, st.locator); err != nil {
			h.logger.WithError(err).
				WithFields(logrus.Fields{"hub": st.route.Config.Name, "path": st.req.Path}).
				Warn("cache_remove_failed")
		}
		return h.serveMiss(ctx, c, st)
	}

	// 上游内容已变化：重新回源，失败时按配置回退到旧条目。
	if st.method == http.MethodHead || !st.policy.AllowStore {
		cached.Reader.Close()
		return h.passthrough(ctx, c, st)
	}
	fresh, err := h.fill(ctx, st)
	if err != nil {
		if h.serveStale && !errors.Is(err, upstream.ErrNotFound) {
			h.logger.WithError(err).
				WithFields(logrus.Fields{"hub": st.route.Config.Name, "path": st.req.Path}).
				Warn("cache_refresh_failed")
			return h.serveEntry(c, st, cached, logging.CacheStale)
		}
		cached.Reader.Close()
		return h.respondFillError(c, st, err)
	}
	cached.Reader.Close()
	return h.serveFilled(ctx, c, st, fresh)
}

// serveMiss 处理缓存未命中：HEAD 直接透传，校验文件尝试合成，其余走合并回源。
func (h *Handler) serveMiss(ctx context.Context, c fiber.Ctx, st *requestState) error {
	if st.method == http.MethodHead || !st.policy.AllowStore {
		return h.passthrough(ctx, c, st)
	}

	result, err := h.fill(ctx, st)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) && st.req.Kind == maven.KindChecksum {
			return h.serveSynthesizedChecksum(ctx, c, st, false)
		}
		return h.respondFillError(c, st, err)
	}
	return h.serveFilled(ctx, c, st, result)
}

func (h *Handler) respondFillError(c fiber.Ctx, st *requestState, err error) error {
	switch {
	case errors.Is(err, upstream.ErrNotFound):
		h.negative.Mark(st.locator)
		return h.writeNotFound(c, st, logging.CacheMiss)
	case errors.Is(err, errCacheWrite):
		return h.writeError(c, st, fiber.StatusInternalServerError, "cache_write_failed", err)
	case errors.Is(err, maven.ErrChecksumMismatch):
		return h.writeError(c, st, fiber.StatusBadGateway, "checksum_mismatch", err)
	default:
		return h.writeError(c, st, fiber.StatusBadGateway, "upstream_failed", err)
	}
}

func (h *Handler) isMergedMetadata(st *requestState) bool {
	return st.req.Kind == maven.KindMetadata && st.route.Config.MergeMetadata && len(st.route.Targets) > 1
}

func (h *Handler) isMetadataChecksum(st *requestState) bool {
	if st.req.Kind != maven.KindChecksum {
		return false
	}
	base, err := maven.ParsePath(st.req.Base)
	return err == nil && base.Kind == maven.KindMetadata
}

// buildUpstreamHeader 复制客户端请求头并补充 X-Forwarded-*；条件头与凭证由代理自行决定。
func buildUpstreamHeader(c fiber.Ctx, route *server.HubRoute) http.Header {
	src := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		src.Add(string(key), string(value))
	})
	header := http.Header{}
	server.CopyHeaders(header, src)
	for _, key := range []string{
		"Host", "Authorization", "Cookie", "Content-Length", "Range",
		"If-None-Match", "If-Modified-Since", "If-Match", "If-Unmodified-Since", "If-Range",
	} {
		header.Del(key)
	}

	header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := src.Get("X-Forwarded-For"); prior != "" {
			header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			header.Set("X-Forwarded-For", ip)
		}
	}
	header.Set("X-Forwarded-Proto", c.Protocol())
	header.Set("X-Forwarded-Port", routePort(route))
	return header
}

func routePort(route *server.HubRoute) string {
	if route == nil || route.ListenPort <= 0 {
		return "0"
	}
	return strconv.Itoa(route.ListenPort)
}
