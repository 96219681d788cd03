package main

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"identity-core/internal/audit"
	"identity-core/internal/audit/broker"
	auditrepo "identity-core/internal/audit/repository"
	authservice "identity-core/internal/auth/service"
	"identity-core/internal/cache"
	"identity-core/internal/config"
	"identity-core/internal/credential"
	"identity-core/internal/db"
	healthhandler "identity-core/internal/health/handler"
	"identity-core/internal/mfa"
	"identity-core/internal/mfa/challenge"
	mfadomain "identity-core/internal/mfa/domain"
	mfarepo "identity-core/internal/mfa/repository"
	"identity-core/internal/notification"
	policyengine "identity-core/internal/policy/engine"
	principaldomain "identity-core/internal/principal/domain"
	principalrepo "identity-core/internal/principal/repository"
	"identity-core/internal/ratelimit"
	"identity-core/internal/security"
	"identity-core/internal/telemetry"
	otelsetup "identity-core/internal/telemetry/otel"
	tokenrepo "identity-core/internal/token/repository"
	tokenservice "identity-core/internal/token/service"
)

// app is the assembled server graph and the resources it owns.
type app struct {
	auth   *authservice.Service
	tokens *tokenservice.Engine
	devOTP *notification.DevStore
	checks []healthhandler.Check
	closer []func(context.Context) error
	logger *zap.Logger
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](ctx); err != nil {
			a.logger.Warn("shutdown", zap.Error(err))
		}
	}
}

func build(ctx context.Context, cfg *config.Config, providers *otelsetup.Providers, metrics *telemetry.Metrics, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}
	fail := func(err error) (*app, error) {
		a.close(context.Background())
		return nil, err
	}

	privateKey, publicKey, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return fail(errors.Wrap(err, "jwt keys"))
	}
	tokens, err := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		return fail(errors.Wrap(err, "token provider"))
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	a.closer = append(a.closer, func(context.Context) error { pool.Close(); return nil })
	rdb, err := cache.Open(ctx, cfg.RedisURL)
	if err != nil {
		return fail(err)
	}
	a.closer = append(a.closer, func(context.Context) error { return rdb.Close() })

	policy, err := policyengine.LoadLoginPolicy(ctx, cfg.PolicyRegoPath, logger)
	if err != nil {
		return fail(err)
	}

	emitter, err := newEmitter(cfg, pool, providers, metrics, logger)
	if err != nil {
		return fail(err)
	}
	a.closer = append(a.closer, emitter.Close)

	notifier, err := a.newNotifier(cfg, logger)
	if err != nil {
		return fail(err)
	}

	a.tokens = tokenservice.NewEngine(tokenrepo.NewPostgresRepository(pool), tokenrepo.NewRedisDenylist(rdb), tokens, logger)
	lockout := principaldomain.LockoutPolicy{
		Threshold: cfg.LockoutThreshold,
		Window:    cfg.LockoutWindowDuration(),
		Duration:  cfg.LockoutDurationValue(),
	}
	a.auth = authservice.NewService(authservice.Deps{
		Credentials: credential.NewAdapter(principalrepo.NewPostgresRepository(pool), security.NewHasher(cfg.BcryptCost),
			lockout, cfg.StoreTimeoutDuration(), logger),
		Limiter: newLimiter(cfg, rdb, metrics, logger),
		MFA: mfa.NewService(mfarepo.NewPostgresRepository(pool), challenge.NewStore(rdb), notifier, mfa.Config{
			ChallengeTTL: cfg.ChallengeTTL(),
			MaxAttempts:  cfg.MFAMaxAttempts,
			TOTPIssuer:   cfg.TOTPIssuer,
		}, logger),
		Tokens:  a.tokens,
		Policy:  policy,
		Audit:   emitter,
		Metrics: metrics,
	}, logger)

	a.checks = []healthhandler.Check{
		{Name: "postgres", Fn: pool.Ping},
		{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		{Name: "policy", Fn: policy.HealthCheck},
	}
	return a, nil
}

func newLimiter(cfg *config.Config, rdb *redis.Client, metrics *telemetry.Metrics, logger *zap.Logger) *ratelimit.Limiter {
	window := cfg.RateLimitWindowDuration()
	budget := func(limit int64) ratelimit.Budget { return ratelimit.Budget{Limit: limit, Window: window} }
	return ratelimit.New(rdb,
		ratelimit.WithBudget(ratelimit.ActionLogin, ratelimit.ScopePrincipal, budget(cfg.RateLimitLoginPrincipal)),
		ratelimit.WithBudget(ratelimit.ActionLogin, ratelimit.ScopeSource, budget(cfg.RateLimitLoginSource)),
		ratelimit.WithBudget(ratelimit.ActionRefresh, ratelimit.ScopeSource, budget(cfg.RateLimitRefreshSource)),
		ratelimit.WithBudget(ratelimit.ActionMFAVerify, ratelimit.ScopeSource, budget(cfg.RateLimitMFASource)),
		ratelimit.WithBudget(ratelimit.ActionMFAVerify, ratelimit.ScopePrincipal, budget(cfg.RateLimitMFAPrincipal)),
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(metrics),
	)
}

func newEmitter(cfg *config.Config, pool *pgxpool.Pool, providers *otelsetup.Providers, metrics *telemetry.Metrics, logger *zap.Logger) (*audit.Emitter, error) {
	pub, name, err := broker.Open(broker.Settings{
		Kind:         cfg.AuditBroker,
		KafkaBrokers: cfg.KafkaBrokersList(),
		KafkaTopic:   cfg.AuditKafkaTopic,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AuditAMQPExchange,
		LogProvider:  providers.LoggerProvider,
	})
	if err != nil {
		return nil, errors.Wrap(err, "audit broker")
	}
	logger.Info("audit publisher", zap.String("broker", name))
	return audit.NewEmitter(pub, name, auditrepo.NewPostgresOutbox(pool), metrics, logger, audit.Config{
		Workers:    cfg.AuditWorkers,
		QueueSize:  cfg.AuditQueueSize,
		MaxRetries: cfg.AuditMaxRetries,
	}), nil
}

// newNotifier routes one-time codes: SMS through the gateway, email through the notification
// queue, or everything into the dev store when codes are returned to the client.
func (a *app) newNotifier(cfg *config.Config, logger *zap.Logger) (*notification.Router, error) {
	if cfg.OTPReturnToClient {
		a.devOTP = notification.NewDevStore()
		return notification.NewRouter(logger, notification.WithDevStore(a.devOTP)), nil
	}
	var opts []notification.RouterOption
	if cfg.SMSGatewayURL != "" {
		opts = append(opts, notification.WithSender(mfadomain.FactorSMSOTP,
			notification.NewSMSGateway(cfg.SMSGatewayAPIKey, cfg.SMSGatewayURL, cfg.SMSSender, cfg.SMSRatePerSecond)))
	} else {
		logger.Warn("SMS_GATEWAY_URL not set; SMS codes will not be delivered")
	}
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, errors.Wrap(err, "notification queue: connect")
		}
		a.closer = append(a.closer, func(context.Context) error { return conn.Close() })
		ch, err := conn.Channel()
		if err != nil {
			return nil, errors.Wrap(err, "notification queue: channel")
		}
		mailer, err := notification.NewQueueMailer(ch, cfg.NotifyAMQPQueue)
		if err != nil {
			return nil, err
		}
		opts = append(opts, notification.WithSender(mfadomain.FactorEmailOTP, mailer))
	} else {
		logger.Warn("AMQP_URL not set; email codes will not be delivered")
	}
	return notification.NewRouter(logger, opts...), nil
}
