// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"net/netip"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN for principals, enrollments, refresh tokens, and the audit outbox.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the shared cache (rate-limit counters, challenges, token denylist), e.g. redis://localhost:6379/0.
	RedisURL string `mapstructure:"REDIS_URL"`
	// StoreTimeout bounds a single credential-store call (e.g. "2s"); one retry follows a timeout.
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// LockoutThreshold is the number of failed logins within LockoutWindow that locks an account.
	LockoutThreshold int    `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutWindow    string `mapstructure:"LOCKOUT_WINDOW"`
	LockoutDuration  string `mapstructure:"LOCKOUT_DURATION"`

	// RateLimitWindow is the fixed window shared by all admission budgets (e.g. "1m").
	RateLimitWindow         string `mapstructure:"RATE_LIMIT_WINDOW"`
	RateLimitLoginPrincipal int64  `mapstructure:"RATE_LIMIT_LOGIN_PRINCIPAL"`
	RateLimitLoginSource    int64  `mapstructure:"RATE_LIMIT_LOGIN_SOURCE"`
	RateLimitRefreshSource  int64  `mapstructure:"RATE_LIMIT_REFRESH_SOURCE"`
	RateLimitMFASource      int64  `mapstructure:"RATE_LIMIT_MFA_SOURCE"`
	RateLimitMFAPrincipal   int64  `mapstructure:"RATE_LIMIT_MFA_PRINCIPAL"`

	// MFAChallengeTTL is how long a challenge stays verifiable (e.g. "5m").
	MFAChallengeTTL string `mapstructure:"MFA_CHALLENGE_TTL"`
	// MFAMaxAttempts is the attempt ceiling per challenge.
	MFAMaxAttempts int    `mapstructure:"MFA_MAX_ATTEMPTS"`
	TOTPIssuer     string `mapstructure:"TOTP_ISSUER"`

	// AuditBroker selects the audit publisher: "kafka", "amqp", or empty to log-only.
	AuditBroker       string `mapstructure:"AUDIT_BROKER"`
	KafkaBrokers      string `mapstructure:"KAFKA_BROKERS"`
	AuditKafkaTopic   string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	KafkaGroupID      string `mapstructure:"KAFKA_GROUP_ID"`
	AMQPURL           string `mapstructure:"AMQP_URL"`
	AuditAMQPExchange string `mapstructure:"AUDIT_AMQP_EXCHANGE"`
	// NotifyAMQPQueue is the queue that carries one-time codes to the notification service (email factor).
	NotifyAMQPQueue string `mapstructure:"NOTIFY_AMQP_QUEUE"`
	AuditWorkers    int    `mapstructure:"AUDIT_WORKERS"`
	AuditQueueSize  int    `mapstructure:"AUDIT_QUEUE_SIZE"`
	AuditMaxRetries int    `mapstructure:"AUDIT_MAX_RETRIES"`
	// OutboxRelayInterval is how often the worker drains the audit outbox (e.g. "5s").
	OutboxRelayInterval string `mapstructure:"OUTBOX_RELAY_INTERVAL"`
	OutboxBatchSize     int    `mapstructure:"OUTBOX_BATCH_SIZE"`

	// SMSGatewayURL is the SMS gateway endpoint for SMS-OTP delivery.
	SMSGatewayURL    string  `mapstructure:"SMS_GATEWAY_URL"`
	SMSGatewayAPIKey string  `mapstructure:"SMS_GATEWAY_API_KEY"`
	SMSSender        string  `mapstructure:"SMS_SENDER"`
	SMSRatePerSecond float64 `mapstructure:"SMS_RATE_PER_SECOND"`

	// OTPReturnToClient when true keeps one-time codes in memory for dev retrieval instead of delivering them.
	// Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// PolicyRegoPath optionally points at a Rego file overriding the default login policy.
	PolicyRegoPath string `mapstructure:"POLICY_REGO_PATH"`
	// OperatorPrincipals is a comma-separated list of principals allowed to change account status.
	OperatorPrincipals string `mapstructure:"OPERATOR_PRINCIPALS"`
	// HealthCheckInterval is how often readiness checks are re-run (e.g. "10s").
	HealthCheckInterval string `mapstructure:"HEALTH_CHECK_INTERVAL"`
	LogLevel            string `mapstructure:"LOG_LEVEL"`
	// TrustedProxies is a comma-separated list of proxy IPs or CIDRs whose x-forwarded-for and
	// x-real-ip headers are honoured. Empty means the transport peer is always the client address.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("STORE_TIMEOUT", "2s")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "identity-core")
	v.SetDefault("JWT_AUDIENCE", "banking-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_WINDOW", "15m")
	v.SetDefault("LOCKOUT_DURATION", "30m")
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_LOGIN_PRINCIPAL", 10)
	v.SetDefault("RATE_LIMIT_LOGIN_SOURCE", 60)
	v.SetDefault("RATE_LIMIT_REFRESH_SOURCE", 120)
	v.SetDefault("RATE_LIMIT_MFA_SOURCE", 30)
	v.SetDefault("RATE_LIMIT_MFA_PRINCIPAL", 10)
	v.SetDefault("MFA_CHALLENGE_TTL", "5m")
	v.SetDefault("MFA_MAX_ATTEMPTS", 3)
	v.SetDefault("TOTP_ISSUER", "identity-core")
	v.SetDefault("AUDIT_BROKER", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "identity-audit")
	v.SetDefault("KAFKA_GROUP_ID", "identity-audit-relay")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AUDIT_AMQP_EXCHANGE", "identity.audit")
	v.SetDefault("NOTIFY_AMQP_QUEUE", "identity.notifications.otp")
	v.SetDefault("AUDIT_WORKERS", 8)
	v.SetDefault("AUDIT_QUEUE_SIZE", 1024)
	v.SetDefault("AUDIT_MAX_RETRIES", 5)
	v.SetDefault("OUTBOX_RELAY_INTERVAL", "5s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("SMS_GATEWAY_URL", "")
	v.SetDefault("SMS_GATEWAY_API_KEY", "")
	v.SetDefault("SMS_SENDER", "")
	v.SetDefault("SMS_RATE_PER_SECOND", 20.0)
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("POLICY_REGO_PATH", "")
	v.SetDefault("OPERATOR_PRINCIPALS", "")
	v.SetDefault("HEALTH_CHECK_INTERVAL", "10s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "identity-core")
}

// Validate checks cross-field rules. Load calls it; tests may call it on hand-built configs.
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.OTPReturnToClient && c.Env == "production" {
		return errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.LockoutThreshold <= 0 {
		return errors.New("config: LOCKOUT_THRESHOLD must be positive")
	}
	if c.MFAMaxAttempts <= 0 {
		return errors.New("config: MFA_MAX_ATTEMPTS must be positive")
	}
	switch c.AuditBroker {
	case "", "kafka", "amqp":
	default:
		return errors.Newf("config: AUDIT_BROKER must be kafka, amqp, or empty, got %q", c.AuditBroker)
	}
	if c.AuditBroker == "kafka" && len(c.KafkaBrokersList()) == 0 {
		return errors.New("config: KAFKA_BROKERS must be set when AUDIT_BROKER=kafka")
	}
	if c.AuditBroker == "amqp" && c.AMQPURL == "" {
		return errors.New("config: AMQP_URL must be set when AUDIT_BROKER=amqp")
	}
	for _, p := range c.TrustedProxyList() {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return errors.Newf("config: TRUSTED_PROXIES entry %q is not an IP or CIDR", p)
		}
	}
	return nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// StoreTimeoutDuration returns the per-call credential store timeout. Returns 2s if unset or invalid.
func (c *Config) StoreTimeoutDuration() time.Duration {
	return parseDuration(c.StoreTimeout, 2*time.Second)
}

// LockoutWindowDuration returns the failure-counting window. Returns 15m if unset or invalid.
func (c *Config) LockoutWindowDuration() time.Duration {
	return parseDuration(c.LockoutWindow, 15*time.Minute)
}

// LockoutDurationValue returns how long an automatic lock lasts. Returns 30m if unset or invalid.
func (c *Config) LockoutDurationValue() time.Duration {
	return parseDuration(c.LockoutDuration, 30*time.Minute)
}

// RateLimitWindowDuration returns the admission window. Returns 1m if unset or invalid.
func (c *Config) RateLimitWindowDuration() time.Duration {
	return parseDuration(c.RateLimitWindow, time.Minute)
}

// ChallengeTTL returns the MFA challenge lifetime. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	return parseDuration(c.MFAChallengeTTL, 5*time.Minute)
}

// RelayInterval returns the outbox relay period. Returns 5s if unset or invalid.
func (c *Config) RelayInterval() time.Duration {
	return parseDuration(c.OutboxRelayInterval, 5*time.Second)
}

// HealthInterval returns the readiness re-check period. Returns 10s if unset or invalid.
func (c *Config) HealthInterval() time.Duration {
	return parseDuration(c.HealthCheckInterval, 10*time.Second)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// TrustedProxyList returns the TRUSTED_PROXIES entries.
func (c *Config) TrustedProxyList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
