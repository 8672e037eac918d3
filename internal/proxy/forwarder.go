package proxy

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/maven-hub/internal/logging"
	"github.com/any-hub/maven-hub/internal/server"
)

// Forwarder 按 HubRoute.ModuleKey 选择模块 handler，未注册时回退到 defaultHandler。
// handler 内部的 panic 会被转换为 500 并记录日志，不影响其他请求。
type Forwarder struct {
	defaultHandler server.ProxyHandler
	logger         *logrus.Logger
}

func NewForwarder(defaultHandler server.ProxyHandler, logger *logrus.Logger) *Forwarder {
	return &Forwarder{
		defaultHandler: defaultHandler,
		logger:         logger,
	}
}

// Handle 实现 server.ProxyHandler。
func (f *Forwarder) Handle(c fiber.Ctx, route *server.HubRoute) error {
	requestID := server.RequestID(c)
	handler := f.lookup(route)
	if handler == nil {
		f.logModuleError(route, "module_handler_missing", nil, requestID)
		setRequestIDHeader(c, requestID)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "module_handler_missing"})
	}
	return f.invoke(c, route, handler, requestID)
}

func (f *Forwarder) invoke(c fiber.Ctx, route *server.HubRoute, handler server.ProxyHandler, requestID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			f.logModuleError(route, "module_handler_panic", fmt.Errorf("panic: %v", r), requestID)
			setRequestIDHeader(c, requestID)
			err = c.Status(fiber.StatusInternalServerError).
				JSON(fiber.Map{"error": "module_handler_panic"})
		}
	}()
	return handler.Handle(c, route)
}

func (f *Forwarder) lookup(route *server.HubRoute) server.ProxyHandler {
	if route != nil {
		if handler := lookupModuleHandler(route.ModuleKey); handler != nil {
			return handler
		}
	}
	return f.defaultHandler
}

func setRequestIDHeader(c fiber.Ctx, requestID string) {
	if requestID != "" {
		c.Set(headerRequestID, requestID)
	}
}

func (f *Forwarder) logModuleError(route *server.HubRoute, code string, err error, requestID string) {
	if f.logger == nil {
		return
	}
	fields := logrus.Fields{"hub": "", "module_key": "", "cache_hit": logging.CacheMiss}
	if route != nil {
		fields = logging.RequestFields(route.Config, route.ModuleKey, logging.CacheMiss)
	}
	fields["action"] = "proxy"
	fields["error_code"] = code
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		f.logger.WithFields(fields).WithError(err).Error(code)
		return
	}
	f.logger.WithFields(fields).Error(code)
}
