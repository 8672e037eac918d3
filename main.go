package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/maven-hub/internal/cache"
	"github.com/any-hub/maven-hub/internal/config"
	"github.com/any-hub/maven-hub/internal/hubmodule"
	"github.com/any-hub/maven-hub/internal/logging"
	"github.com/any-hub/maven-hub/internal/metrics"
	"github.com/any-hub/maven-hub/internal/proxy"
	"github.com/any-hub/maven-hub/internal/server"
	"github.com/any-hub/maven-hub/internal/server/routes"
	"github.com/any-hub/maven-hub/internal/upstream"
	"github.com/any-hub/maven-hub/internal/version"
)

const (
	configEnv         = "MAVEN_HUB_CONFIG"
	defaultConfigPath = "config.toml"
	negativeCacheSize = 4096
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	initOnly    bool
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		fmt.Fprintln(stdOut, version.Full())
		return 0
	}

	if opts.initOnly {
		written, err := config.WriteDefault(opts.configPath)
		if err != nil {
			fmt.Fprintf(stdErr, "写入默认配置失败: %v\n", err)
			return 1
		}
		if written {
			fmt.Fprintf(stdOut, "已写入默认配置: %s\n", opts.configPath)
		} else {
			fmt.Fprintf(stdOut, "配置已存在，未覆盖: %s\n", opts.configPath)
		}
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["hubs"] = len(cfg.Hubs)
		fields["credentials"] = config.CredentialModes(cfg.Hubs)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("config_valid")
		return 0
	}

	svc, err := buildApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}
	svc.registerModules()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["hubs"] = len(cfg.Hubs)
	fields["listen"] = cfg.Global.ListenAddress()
	fields["tls"] = cfg.Global.TLSEnabled()
	fields["credentials"] = config.CredentialModes(cfg.Hubs)
	fields["modules"] = proxy.RegisteredModules()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("config_loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, svc.app, cfg.Global, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

type service struct {
	app     *fiber.App
	handler *proxy.Handler
}

// buildApp 按“配置 → HubRegistry → 磁盘/内存缓存 → Fetcher → Fiber”顺序装配服务，
// 所有 Hub 共享同一份缓存、负缓存与指标实例。
func buildApp(cfg *config.Config, logger *logrus.Logger) (*service, error) {
	registry, err := server.NewHubRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("构建 Hub 注册表失败: %w", err)
	}

	disk, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}
	store, err := cache.NewMemoryStore(disk, cfg.Global.MaxMemoryCache, cache.DefaultMemoryItemBytes)
	if err != nil {
		return nil, fmt.Errorf("初始化内存缓存失败: %w", err)
	}
	negative, err := cache.NewNegativeCache(negativeCacheSize, cfg.Global.NotFoundTTL.DurationValue())
	if err != nil {
		return nil, fmt.Errorf("初始化负缓存失败: %w", err)
	}

	recorder := metrics.New()
	fetcher := upstream.NewFetcher(server.NewUpstreamClient(cfg), upstream.Options{
		MaxRetries:     cfg.Global.MaxRetries,
		InitialBackoff: cfg.Global.InitialBackoff.DurationValue(),
		Logger:         logger,
		Observer: func(hub string, target upstream.Target, status string) {
			recorder.ObserveUpstream(hub, target.Name, status)
		},
	})

	handler := proxy.NewHandler(proxy.Options{
		Fetcher:           fetcher,
		Store:             store,
		Negative:          negative,
		Metrics:           recorder,
		Logger:            logger,
		ServeStaleOnError: cfg.Global.ServeStaleOnError,
	})
	forwarder := proxy.NewForwarder(handler, logger)

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      forwarder,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterModuleRoutes(app, registry)
	routes.RegisterDiagnosticsRoutes(app, routes.DiagnosticsOptions{
		Registry:   registry,
		Store:      store,
		Negative:   negative,
		Metrics:    recorder,
		AdminToken: cfg.Global.AdminToken,
		Logger:     logger,
	})
	return &service{app: app, handler: handler}, nil
}

// registerModules 让每个已注册的仓库模块都由同一个 Handler 服务。
func (s *service) registerModules() {
	for _, key := range hubmodule.Keys() {
		proxy.MustRegisterModule(proxy.ModuleRegistration{Key: key, Handler: s.handler})
	}
}

// serve 监听直到 ctx 结束，随后在 ShutdownTimeout 内等待进行中的请求完成。
func serve(ctx context.Context, app *fiber.App, global config.GlobalConfig, logger *logrus.Logger) error {
	listenCfg := fiber.ListenConfig{DisableStartupMessage: true}
	if global.TLSEnabled() {
		listenCfg.CertFile = global.TLSCertFile
		listenCfg.CertKeyFile = global.TLSKeyFile
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   global.ListenAddress(),
		"tls":    global.TLSEnabled(),
	}).Info("server_listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(global.ListenAddress(), listenCfg)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := global.ShutdownTimeout.DurationValue()
	logger.WithFields(logrus.Fields{
		"action":  "shutdown",
		"timeout": timeout.String(),
	}).Info("server_shutting_down")
	if err := app.ShutdownWithTimeout(timeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("maven-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		initOnly   bool
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 "+configEnv+" 覆盖）")
	fs.BoolVar(&initOnly, "init", false, "配置文件不存在时写入默认配置后退出")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv(configEnv)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = defaultConfigPath
	}

	return cliOptions{
		configPath:  path,
		initOnly:    initOnly,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}
