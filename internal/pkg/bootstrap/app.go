// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/config"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/nacos"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/tracing"
)

// AppCtx 传递给业务代码的运行时句柄
type AppCtx struct {
	Mux   *http.ServeMux
	Nacos *nacos.Client
}

// AppInfo 包含了启动一个微服务所需的所有特定信息
type AppInfo struct {
	ServiceName string
	Port        int
	// RegisterHandlers 允许每个服务注册自己独特的 HTTP 路由
	RegisterHandlers func(appCtx AppCtx)
	// Run 启动服务的后台任务（消费者、Relay、清扫循环），ctx 取消即应退出
	Run func(ctx context.Context, appCtx AppCtx) error
	// OnShutdown 在关停流程中执行服务特定的清理
	OnShutdown func(ctx context.Context)
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑
func StartService(info AppInfo) {
	cfg := config.MustLoad()
	logger.Init(info.ServiceName)
	baseCtx := context.Background()

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Ctx(baseCtx).Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. Nacos 注册
	namingClient, err := nacos.NewClient(cfg.Infra.Nacos)
	if err != nil {
		logger.Ctx(baseCtx).Fatal().Err(err).Msg("failed to initialize nacos client")
	}
	ip, err := outboundIP()
	if err != nil {
		logger.Ctx(baseCtx).Fatal().Err(err).Msg("failed to get outbound IP address")
	}
	if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		logger.Ctx(baseCtx).Fatal().Err(err).Msg("failed to register service with nacos")
	}

	appCtx := AppCtx{Mux: http.NewServeMux(), Nacos: namingClient}
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(appCtx)
	}

	// 3. HTTP Server
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: appCtx.Mux}
	go func() {
		logger.Ctx(baseCtx).Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Ctx(baseCtx).Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 4. 后台任务
	runCtx, cancelRun := context.WithCancel(baseCtx)
	g, gCtx := errgroup.WithContext(runCtx)
	if info.Run != nil {
		g.Go(func() error {
			return info.Run(gCtx, appCtx)
		})
	}

	// 5. 阻塞主 goroutine，直到接收到退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Ctx(baseCtx).Info().Msgf("Shutting down service %s...", info.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(baseCtx, 10*time.Second)
	defer cancel()

	// 6. 按顺序执行清理操作 (后进先出)
	cancelRun()
	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Ctx(baseCtx).Error().Err(err).Msg("background task exited with error")
	}

	if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		logger.Ctx(baseCtx).Error().Err(err).Msg("Error deregistering from Nacos")
	}

	if info.OnShutdown != nil {
		info.OnShutdown(shutdownCtx)
	}

	// 关闭 Tracer Provider，确保缓冲中的 Span 都被发送出去
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Ctx(baseCtx).Error().Err(err).Msg("Error shutting down tracer provider")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Ctx(baseCtx).Error().Err(err).Msg("Error shutting down http server")
	}

	logger.Ctx(baseCtx).Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// outboundIP 获取本机用于注册的出口 IP
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("failed to determine outbound ip: %w", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
