// Worker drains the audit outbox to the broker and, when the broker is Kafka, archives the audit
// topic into the OpenTelemetry log pipeline.
// GRPC_ADDR is required by config but unused (e.g. set to :0).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"identity-core/internal/audit"
	"identity-core/internal/audit/broker"
	auditrepo "identity-core/internal/audit/repository"
	"identity-core/internal/config"
	"identity-core/internal/db"
	"identity-core/internal/logging"
	otelsetup "identity-core/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	logger = logger.Named("worker")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName + "-worker",
		Environment: cfg.Env,
		Insecure:    cfg.OTelInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer pool.Close()

	pub, name, err := broker.Open(broker.Settings{
		Kind:         cfg.AuditBroker,
		KafkaBrokers: cfg.KafkaBrokersList(),
		KafkaTopic:   cfg.AuditKafkaTopic,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AuditAMQPExchange,
		LogProvider:  providers.LoggerProvider,
	})
	if err != nil {
		logger.Fatal("audit broker", zap.Error(err))
	}
	defer pub.Close()

	var wg sync.WaitGroup
	relay := audit.NewRelay(auditrepo.NewPostgresOutbox(pool), pub, logger, cfg.OutboxBatchSize)
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("relaying audit outbox", zap.String("broker", name), zap.Duration("interval", cfg.RelayInterval()))
		_ = relay.Run(ctx, cfg.RelayInterval())
	}()

	if name == broker.NameKafka {
		reader := broker.NewKafkaReader(cfg.KafkaBrokersList(), cfg.AuditKafkaTopic, cfg.KafkaGroupID)
		defer reader.Close()
		archiver := audit.NewArchiver(reader, broker.NewLogPublisher(providers.LoggerProvider), logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("archiving audit topic", zap.String("topic", cfg.AuditKafkaTopic), zap.String("group", cfg.KafkaGroupID))
			_ = archiver.Run(ctx)
		}()
	}

	wg.Wait()
	logger.Info("stopped")
}
