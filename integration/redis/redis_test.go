package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/channelkit/integration/redis"
)

func TestConnect_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty URL", func(t *testing.T) {
		t.Parallel()

		_, err := redis.Connect(ctx, redis.Config{})
		assert.ErrorIs(t, err, redis.ErrEmptyConnectionURL)
	})

	t.Run("malformed URL", func(t *testing.T) {
		t.Parallel()

		_, err := redis.Connect(ctx, redis.Config{ConnectionURL: "http://not-redis"})
		assert.ErrorIs(t, err, redis.ErrFailedToParseConnURL)
	})

	t.Run("unreachable server exhausts retries", func(t *testing.T) {
		t.Parallel()

		_, err := redis.Connect(ctx, redis.Config{
			// Reserved TEST-NET address, nothing listens there.
			ConnectionURL:  "redis://192.0.2.1:6379/0",
			RetryAttempts:  2,
			RetryInterval:  10 * time.Millisecond,
			ConnectTimeout: 500 * time.Millisecond,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, redis.ErrNotReady)
	})
}

func TestHealthcheck_NilClient(t *testing.T) {
	t.Parallel()

	check := redis.Healthcheck(nil)
	assert.ErrorIs(t, check(context.Background()), redis.ErrHealthcheckFailed)
}
