package application

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/discord-shim-go/internal/admin"
	"github.com/lk2023060901/discord-shim-go/internal/chat/discord"
	"github.com/lk2023060901/discord-shim-go/internal/healthcheck"
	"github.com/lk2023060901/discord-shim-go/internal/network/acceptor"
	"github.com/lk2023060901/discord-shim-go/internal/network/session"
	"github.com/lk2023060901/discord-shim-go/internal/relay"
	zlog "github.com/lk2023060901/discord-shim-go/pkg/log"
	"github.com/lk2023060901/discord-shim-go/pkg/metrics"
)

// Application 为进程的运行容器，持有配置并负责组装各组件。
type Application struct {
	cfg *Config
}

// New 加载配置并初始化全局日志。configPath 为空时按 ResolveConfigPath 的规则查找。
func New(configPath string) (*Application, error) {
	cfg, err := LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, err
	}
	a := &Application{cfg: cfg}
	if err := a.initLogging(); err != nil {
		return nil, err
	}
	return a, nil
}

// Config 返回已加载的配置。
func (a *Application) Config() *Config {
	return a.cfg
}

// Serve 运行中继，直到 ctx 取消或任一组件返回错误。
//
// 启动顺序：连接聊天平台并等待就绪，随后开始接受设备连接；
// 配置了 admin.listen-address 时同时启动运维 HTTP 服务。
func (a *Application) Serve(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	logger := zlog.L().With(zap.String("component", "application"))

	metrics.Register(prometheus.DefaultRegisterer)

	client, err := discord.New(discord.Config{
		Token:           cfg.Discord.Token,
		ControlChannel:  cfg.Discord.ControlChannel,
		DownloadWorkers: cfg.Discord.DownloadWorkers,
	})
	if err != nil {
		return err
	}

	sessions := session.NewManager()
	router := relay.NewRouter(relay.Config{
		CloudServer:       cfg.Relay.CloudServer,
		AttachmentCeiling: cfg.Relay.AttachmentCeiling,
	}, sessions, client)
	client.Bind(router)

	if err := client.Open(); err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close discord client", zap.Error(err))
		}
	}()

	select {
	case <-client.Ready():
	case <-ctx.Done():
		return nil
	}

	acc, err := acceptor.NewTCPAcceptor(cfg.Relay.ListenAddress, acceptor.Config{
		MaxFrameSize: cfg.Relay.MaxFrameSize,
		WriteTimeout: cfg.Relay.WriteTimeout,
	}, sessions)
	if err != nil {
		return err
	}
	logger.Info("relay listening",
		zap.Stringer("addr", acc.Addr()),
		zap.Bool("cloudServer", cfg.Relay.CloudServer))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return acc.Serve(gctx, router)
	})
	if addr := cfg.Admin.ListenAddress; addr != "" {
		srv := admin.NewServer(addr, router, prometheus.DefaultGatherer)
		g.Go(func() error {
			return srv.Serve(gctx)
		})
	}

	err = g.Wait()
	logger.Info("relay stopped", zap.Error(err))
	return err
}

// HealthCheck 以设备身份对运行中的中继做一次端到端检查。
func (a *Application) HealthCheck(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.ValidateHealthCheck(); err != nil {
		return err
	}
	probe, err := healthcheck.NewProbe(healthcheck.Config{
		Address: cfg.HealthCheck.Address,
		Channel: cfg.Discord.ControlChannel,
		Timeout: cfg.HealthCheck.Timeout,
	})
	if err != nil {
		return err
	}
	return probe.Run(ctx)
}

// initLogging 按配置初始化全局日志。
func (a *Application) initLogging() error {
	logger, props, err := zlog.InitLogger(&a.cfg.Log)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}
