// Package redis provides Redis client initialization and health
// checking for the distributed rate limit store.
//
// The package wraps the go-redis client with connection validation and
// retry logic. Connect validates the URL, dials with retries and
// verifies connectivity with a ping before returning the client, so a
// returned client is known-good.
//
// # Configuration
//
// All configuration is handled through the Config struct with
// environment variable mapping:
//
//	type Config struct {
//		ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"`
//		RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
//		ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
//	}
//
// Both redis:// and rediss:// (TLS) URL schemes are supported.
//
// # Usage Example
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	store := ratelimit.NewRedisStore(client)
//	opt, err := channelkit.New(channelkit.WithRateLimitStore(store))
//
// # Health Checking
//
// Healthcheck returns a check function suitable for readiness probes:
//
//	check := redis.Healthcheck(client)
//	if err := check(ctx); err != nil {
//		// Redis is unreachable
//	}
package redis
