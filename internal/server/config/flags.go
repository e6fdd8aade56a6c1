package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/creditkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   session JWT HMAC secret
//	-w string   payment webhook signing secret
//	-i string   identity webhook signing secret
//	-u string   identity provider API base URL
//	-k string   identity provider API key
//	-t int      webhook timestamp tolerance, minutes
//	-r int      handle sync sweep interval, seconds (0 disables)
//	-q string   review sinks, comma separated
//	-l string   log level
//
// Flags are filtered out of os.Args with flagx.FilterArgs first, so the
// -c/-config and -env flags parsed elsewhere do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-w", "-i", "-u", "-k", "-t", "-r", "-q", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SessionSecret, "s", config.SessionSecret, "session secret key")
	fs.StringVar(&config.PaymentWebhookSecret, "w", config.PaymentWebhookSecret, "payment webhook secret")
	fs.StringVar(&config.IdentityWebhookSecret, "i", config.IdentityWebhookSecret, "identity webhook secret")
	fs.StringVar(&config.IdentityAPIURL, "u", config.IdentityAPIURL, "identity provider API URL")
	fs.StringVar(&config.IdentityAPIKey, "k", config.IdentityAPIKey, "identity provider API key")

	webhookTolerance := fs.Int("t", int(config.WebhookTolerance.Minutes()), "webhook tolerance (in minutes)")
	reconcileInterval := fs.Int("r", int(config.ReconcileInterval.Seconds()), "handle sync interval (in seconds)")

	fs.StringVar(&config.ReviewSinks, "q", config.ReviewSinks, "review sinks")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// Whole-unit flags only override when given, so finer JSON or env
	// durations survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.WebhookTolerance = time.Duration(*webhookTolerance) * time.Minute
		case "r":
			config.ReconcileInterval = time.Duration(*reconcileInterval) * time.Second
		}
	})
}
