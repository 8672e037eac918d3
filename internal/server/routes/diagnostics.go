package routes

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/maven-hub/internal/cache"
	"github.com/any-hub/maven-hub/internal/metrics"
	"github.com/any-hub/maven-hub/internal/server"
	"github.com/any-hub/maven-hub/internal/version"
)

// DiagnosticsOptions 汇总诊断接口依赖；Store/Negative/Metrics 为空时对应接口降级。
type DiagnosticsOptions struct {
	Registry   *server.HubRegistry
	Store      cache.Store
	Negative   *cache.NegativeCache
	Metrics    *metrics.Recorder
	AdminToken string
	Logger     *logrus.Logger
}

type hubStatusPayload struct {
	hubBindingPayload
	Cache      *cache.Stats `json:"cache,omitempty"`
	CacheError string       `json:"cache_error,omitempty"`
}

// memoryReporter 由启用了内存层的 Store 实现。
type memoryReporter interface {
	MemoryUsage() cache.Stats
}

// RegisterDiagnosticsRoutes 注册 /-/healthz、/-/hubs、/-/metrics 以及缓存驱逐接口。
func RegisterDiagnosticsRoutes(app *fiber.App, opts DiagnosticsOptions) {
	if app == nil || opts.Registry == nil {
		return
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version.Version,
			"hubs":    len(opts.Registry.List()),
		})
	})

	app.Get("/-/hubs", func(c fiber.Ctx) error {
		routes := opts.Registry.List()
		result := make([]hubStatusPayload, 0, len(routes))
		for _, route := range routes {
			item := hubStatusPayload{hubBindingPayload: encodeHubBinding(route)}
			if opts.Store != nil {
				stats, err := opts.Store.Stats(c.Context(), route.Config.Name)
				if err != nil {
					item.CacheError = err.Error()
				} else {
					item.Cache = &stats
				}
			}
			result = append(result, item)
		}
		payload := fiber.Map{"hubs": result}
		if mem, ok := opts.Store.(memoryReporter); ok {
			payload["memory"] = mem.MemoryUsage()
		}
		return c.JSON(payload)
	})

	if opts.Metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}

	app.Delete("/-/cache/:hub/*", func(c fiber.Ctx) error {
		if opts.AdminToken == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin_disabled"})
		}
		if !validBearer(c.Get(fiber.HeaderAuthorization), opts.AdminToken) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		if opts.Store == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "cache_unavailable"})
		}

		route, ok := opts.Registry.Get(c.Params("hub"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "hub_not_found"})
		}
		target := "/" + strings.TrimPrefix(c.Params("*"), "/")
		locator := cache.Locator{HubName: route.Config.Name, Path: target}

		if err := opts.Store.Remove(c.Context(), locator); err != nil {
			if errors.Is(err, cache.ErrInvalidLocator) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_path"})
			}
			logger.WithFields(logrus.Fields{
				"action":     "cache_evict",
				"hub":        route.Config.Name,
				"path":       target,
				"request_id": server.RequestID(c),
			}).WithError(err).Error("cache_evict_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_evict_failed"})
		}
		if strings.HasSuffix(target, "/") {
			opts.Negative.Purge()
		} else {
			opts.Negative.Clear(locator)
		}

		logger.WithFields(logrus.Fields{
			"action":     "cache_evict",
			"hub":        route.Config.Name,
			"path":       target,
			"request_id": server.RequestID(c),
		}).Info("cache_evicted")
		return c.JSON(fiber.Map{"evicted": target, "hub": route.Config.Name})
	})
}

func validBearer(header, token string) bool {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header[len(prefix):]), []byte(token)) == 1
}
