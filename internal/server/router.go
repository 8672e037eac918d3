package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component responsible for serving a repository
// request for a resolved hub. It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx, *HubRoute) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, *HubRoute) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, route *HubRoute) error {
	return f(c, route)
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *HubRegistry
	Proxy      ProxyHandler
	ListenPort int
}

const (
	contextKeyRoute     = "_mavenhub_route"
	contextKeyRepoPath  = "_mavenhub_repo_path"
	contextKeyRequestID = "_mavenhub_request_id"

	diagnosticsPrefix = "/-/"
	allowedMethods    = "GET, HEAD"
)

// NewApp builds a Fiber application with request guards, Host / path-prefix
// routing middleware and structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("hub registry is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		StrictRouting: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())
	app.Use(requestGuardMiddleware())
	app.Use(hubRoutingMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(c.Path()) {
			return c.Next()
		}
		route, _ := getRouteFromContext(c)
		if route == nil {
			return renderHostUnmapped(c, opts.Logger, "", opts.ListenPort)
		}
		return opts.Proxy.Handle(c, route)
	})

	return app, nil
}

func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// requestGuardMiddleware 只放行没有请求体的 GET/HEAD，仓库是只读的。
func requestGuardMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		if isDiagnosticsPath(c.Path()) {
			return c.Next()
		}
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead:
		default:
			c.Set(fiber.HeaderAllow, allowedMethods)
			return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
				"error": "method_not_allowed",
			})
		}
		if len(c.Body()) > 0 || c.Request().Header.ContentLength() > 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "body_not_allowed",
			})
		}
		return c.Next()
	}
}

// hubRoutingMiddleware 先按 Host 查找 HubRoute，未命中再按 /<Name>/ 前缀查找。
func hubRoutingMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		requestPath := c.Path()
		if isDiagnosticsPath(requestPath) {
			return c.Next()
		}

		rawHost := strings.TrimSpace(getHostHeader(c))
		if route, ok := opts.Registry.Lookup(rawHost); ok {
			c.Locals(contextKeyRoute, route)
			c.Locals(contextKeyRepoPath, requestPath)
			return c.Next()
		}
		if route, rest, ok := opts.Registry.LookupPrefix(requestPath); ok {
			c.Locals(contextKeyRoute, route)
			c.Locals(contextKeyRepoPath, rest)
			return c.Next()
		}
		return renderHostUnmapped(c, opts.Logger, rawHost, opts.ListenPort)
	}
}

func renderHostUnmapped(c fiber.Ctx, logger *logrus.Logger, host string, port int) error {
	fields := logrus.Fields{
		"action":     "host_lookup",
		"host":       host,
		"port":       port,
		"path":       c.Path(),
		"request_id": RequestID(c),
	}
	logger.WithFields(fields).Warn("host_unmapped")

	if host != "" {
		c.Set("X-Maven-Hub-Host", host)
	}

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "host_unmapped",
	})
}

func getHostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return c.Hostname()
}

func getRouteFromContext(c fiber.Ctx) (*HubRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*HubRoute); ok {
			return route, true
		}
	}
	return nil, false
}

// RepoPath 返回去掉 /<hub> 前缀后的仓库路径；Host 路由时即原始路径。
func RepoPath(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRepoPath); value != nil {
		if p, ok := value.(string); ok {
			return p
		}
	}
	return c.Path()
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, diagnosticsPrefix)
}
