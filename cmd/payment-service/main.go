// cmd/payment-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/bootstrap"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/config"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/database"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/idempotency"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/mq"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/redis"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/zookeeper"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/application"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/infrastructure"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/interfaces"
)

const (
	serviceName = "payment-service"
	servicePort = 8083
)

func main() {
	cfg := config.MustLoad()
	ctx := context.Background()

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

	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to connect to zookeeper")
	}
	elector := zookeeper.NewZkElector(zkConn, "payment-janitor")

	gateway := infrastructure.NewSimulatedGateway(0)
	service := application.NewPaymentApplicationService(repo, gateway, otel.Tracer(serviceName))
	janitor := application.NewStuckPaymentJanitor(repo, elector,
		cfg.App.SweepInterval, cfg.App.PaymentStuckTimeout)

	relay := outbox.NewRelay(
		outbox.NewGormStore(db),
		outbox.NewKafkaPublisher(cfg.Infra.Kafka.Brokers),
		cfg.App.OutboxPollInterval, 0)

	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, domain.TopicPaymentCommands, "payment-service-group")
	consumer := interfaces.NewCommandConsumerAdapter(reader, service, dedup)

	handler := interfaces.NewPaymentHandler(service)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Run: func(runCtx context.Context, _ bootstrap.AppCtx) error {
			consumer.Start(runCtx)
			g, gCtx := errgroup.WithContext(runCtx)
			g.Go(func() error { relay.Start(gCtx); return nil })
			g.Go(func() error { janitor.Start(gCtx); return nil })
			return g.Wait()
		},
		OnShutdown: func(shutdownCtx context.Context) {
			consumer.Stop(shutdownCtx)
			redisClient.Close()
			zkConn.Close()
		},
	})
}
