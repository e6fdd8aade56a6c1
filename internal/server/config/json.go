package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/creditkeeper/internal/flagx"
	"github.com/dmitrijs2005/creditkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Duration fields
// use timex.Duration so both "30s" and integer nanoseconds are accepted.
// Zero values leave the corresponding Config field untouched.
type JsonConfig struct {
	EndpointAddrHTTP      string         `json:"endpoint_addr_http"`
	DatabaseDSN           string         `json:"database_dsn"`
	SessionSecret         string         `json:"session_secret"`
	PaymentWebhookSecret  string         `json:"payment_webhook_secret"`
	IdentityWebhookSecret string         `json:"identity_webhook_secret"`
	IdentityAPIURL        string         `json:"identity_api_url"`
	IdentityAPIKey        string         `json:"identity_api_key"`
	WebhookTolerance      timex.Duration `json:"webhook_tolerance"`
	RequestTimeout        timex.Duration `json:"request_timeout"`
	ReconcileInterval     timex.Duration `json:"reconcile_interval"`
	ReviewSinks           string         `json:"review_sinks"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
	RedisAddr             string         `json:"redis_addr"`
	RedisPassword         string         `json:"redis_password"`
	RedisDB               int            `json:"redis_db"`
	RedisReviewKey        string         `json:"redis_review_key"`
	LogLevel              string         `json:"log_level"`
}

// parseJson loads the file named by -c/-config into config. Without the
// flag nothing happens; an unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SessionSecret, c.SessionSecret)
	setString(&config.PaymentWebhookSecret, c.PaymentWebhookSecret)
	setString(&config.IdentityWebhookSecret, c.IdentityWebhookSecret)
	setString(&config.IdentityAPIURL, c.IdentityAPIURL)
	setString(&config.IdentityAPIKey, c.IdentityAPIKey)
	if c.WebhookTolerance.Duration != 0 {
		config.WebhookTolerance = c.WebhookTolerance.Duration
	}
	if c.RequestTimeout.Duration != 0 {
		config.RequestTimeout = c.RequestTimeout.Duration
	}
	if c.ReconcileInterval.Duration != 0 {
		config.ReconcileInterval = c.ReconcileInterval.Duration
	}
	setString(&config.ReviewSinks, c.ReviewSinks)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != 0 {
		config.RedisDB = c.RedisDB
	}
	setString(&config.RedisReviewKey, c.RedisReviewKey)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
