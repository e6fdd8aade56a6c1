package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/creditkeeper/internal/flagx"
	"github.com/joho/godotenv"
)

// loadDotEnv seeds the process environment from the -env file, or from
// ./.env when present. Variables already set in the environment win.
var loadDotEnv = func() error {
	path := flagx.EnvFileFlags()
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}
	return godotenv.Load(path)
}

// parseEnv overlays Config with environment variables. Durations accept Go
// duration strings; malformed values panic like malformed JSON does.
func parseEnv(config *Config) {
	if err := loadDotEnv(); err != nil {
		panic(err)
	}

	envString("HTTP_ADDR", &config.EndpointAddrHTTP)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("SESSION_SECRET", &config.SessionSecret)
	envString("PAYMENT_WEBHOOK_SECRET", &config.PaymentWebhookSecret)
	envString("IDENTITY_WEBHOOK_SECRET", &config.IdentityWebhookSecret)
	envString("IDENTITY_API_URL", &config.IdentityAPIURL)
	envString("IDENTITY_API_KEY", &config.IdentityAPIKey)
	envDuration("WEBHOOK_TOLERANCE", &config.WebhookTolerance)
	envDuration("REQUEST_TIMEOUT", &config.RequestTimeout)
	envDuration("RECONCILE_INTERVAL", &config.ReconcileInterval)
	envString("REVIEW_SINKS", &config.ReviewSinks)
	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_BUCKET", &config.S3Bucket)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	envString("REDIS_ADDR", &config.RedisAddr)
	envString("REDIS_PASSWORD", &config.RedisPassword)
	envInt("REDIS_DB", &config.RedisDB)
	envString("REDIS_REVIEW_KEY", &config.RedisReviewKey)
	envString("LOG_LEVEL", &config.LogLevel)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(err)
	}
	*dst = n
}
