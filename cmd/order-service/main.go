// cmd/order-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/bootstrap"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/config"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/database"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/httpclient"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/idempotency"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/mq"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/redis"
	invdomain "github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/application"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/application/saga"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/infrastructure"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/infrastructure/adapter"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/interfaces"
	paydomain "github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
)

const (
	serviceName = "order-service"
	servicePort = 8081
)

func main() {
	cfg := config.MustLoad()
	ctx := context.Background()
	tracer := otel.Tracer(serviceName)

	db, err := database.Open(cfg.Infra.MySQL)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to connect to mysql")
	}
	repo := infrastructure.NewGormRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to migrate schema")
	}

	redisClient, err := redis.NewClient(cfg.Infra.Redis)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to connect to redis")
	}
	dedup := idempotency.NewRedisDeduplicator(redisClient, cfg.App.DedupWindow)

	orchestrator := saga.NewOrchestrator(repo, tracer)

	relay := outbox.NewRelay(
		outbox.NewGormStore(db),
		outbox.NewKafkaPublisher(cfg.Infra.Kafka.Brokers),
		cfg.App.OutboxPollInterval, 0)

	// Saga 的输入跨三个主题：自己的 OrderCreated、库存事件、支付事件
	consumers := []*interfaces.EventConsumerAdapter{
		interfaces.NewEventConsumerAdapter(
			mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, domain.TopicOrderEvents, "order-service-group"),
			orchestrator, dedup),
		interfaces.NewEventConsumerAdapter(
			mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, invdomain.TopicInventoryEvents, "order-service-group"),
			orchestrator, dedup),
		interfaces.NewEventConsumerAdapter(
			mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, paydomain.TopicPaymentEvents, "order-service-group"),
			orchestrator, dedup),
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			// 同步预检查走 Nacos 发现的下游 HTTP 端点
			client := httpclient.NewClient(tracer)
			stockChecker := adapter.NewInventoryHTTPAdapter(client, appCtx.Nacos, cfg.App.PrecheckTimeout)
			preAuthorizer := adapter.NewPaymentHTTPAdapter(client, appCtx.Nacos, cfg.App.PrecheckTimeout)

			service := application.NewOrderApplicationService(repo, stockChecker, preAuthorizer, tracer)
			interfaces.NewOrderHandler(service).RegisterRoutes(appCtx.Mux)
		},
		Run: func(runCtx context.Context, _ bootstrap.AppCtx) error {
			for _, c := range consumers {
				c.Start(runCtx)
			}
			g, gCtx := errgroup.WithContext(runCtx)
			g.Go(func() error { relay.Start(gCtx); return nil })
			return g.Wait()
		},
		OnShutdown: func(shutdownCtx context.Context) {
			for _, c := range consumers {
				c.Stop(shutdownCtx)
			}
			redisClient.Close()
		},
	})
}
