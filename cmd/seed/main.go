// seed inserts development principals for local testing. Run via go run ./cmd/seed.
// Idempotent: existing principals are left untouched.
package main

import (
	"context"
	"log"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"identity-core/internal/config"
	"identity-core/internal/credential"
	"identity-core/internal/db"
	"identity-core/internal/logging"
	principaldomain "identity-core/internal/principal/domain"
	principalrepo "identity-core/internal/principal/repository"
	"identity-core/internal/security"
)

const devPassword = "Dev-Password-123"

var devPrincipals = []string{
	"dev@bank.test",
	"member@bank.test",
	"ops@bank.test",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Env == "production" {
		log.Fatal("seed: refusing to run with APP_ENV=production")
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer pool.Close()

	lockout := principaldomain.LockoutPolicy{
		Threshold: cfg.LockoutThreshold,
		Window:    cfg.LockoutWindowDuration(),
		Duration:  cfg.LockoutDurationValue(),
	}
	store := credential.NewAdapter(principalrepo.NewPostgresRepository(pool), security.NewHasher(cfg.BcryptCost),
		lockout, cfg.StoreTimeoutDuration(), logger)

	now := time.Now().UTC()
	for _, id := range devPrincipals {
		err := store.Create(ctx, id, []byte(devPassword), now)
		switch {
		case errors.Is(err, principaldomain.ErrPrincipalExists):
			logger.Info("principal already seeded", zap.String("principal_id", id))
		case err != nil:
			logger.Fatal("create principal", zap.String("principal_id", id), zap.Error(err))
		default:
			logger.Info("seeded principal", zap.String("principal_id", id))
		}
	}
	logger.Info("seed complete; set OPERATOR_PRINCIPALS=ops@bank.test to allow account status changes",
		zap.String("password", devPassword))
}
