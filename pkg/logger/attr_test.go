package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/channelkit/pkg/logger"
)

func TestGroup(t *testing.T) {
	t.Parallel()

	attr := logger.Group("send", slog.String("channel", "c1"), slog.Int("n", 2))
	require.Equal(t, "send", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	assert.Len(t, attr.Value.Group(), 2)
}

func TestError(t *testing.T) {
	t.Parallel()

	t.Run("nil error yields empty attr", func(t *testing.T) {
		t.Parallel()
		assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	})

	t.Run("non-nil error", func(t *testing.T) {
		t.Parallel()
		attr := logger.Error(errors.New("boom"))
		assert.Equal(t, "error", attr.Key)
	})
}

func TestErrors(t *testing.T) {
	t.Parallel()

	t.Run("all nil yields empty attr", func(t *testing.T) {
		t.Parallel()
		assert.True(t, logger.Errors(nil, nil).Equal(slog.Attr{}))
	})

	t.Run("skips nils and preserves order", func(t *testing.T) {
		t.Parallel()
		attr := logger.Errors(errors.New("first"), nil, errors.New("third"))
		require.Equal(t, "errors", attr.Key)
		g := attr.Value.Group()
		require.Len(t, g, 2)
		assert.Equal(t, "0", g[0].Key)
		assert.Equal(t, "2", g[1].Key)
	})
}

func TestTimingAttrs(t *testing.T) {
	t.Parallel()

	attr := logger.Duration(time.Second)
	assert.Equal(t, "duration", attr.Key)
	assert.Equal(t, time.Second, attr.Value.Duration())

	elapsed := logger.Elapsed(time.Now().Add(-time.Millisecond))
	assert.Equal(t, "elapsed", elapsed.Key)
	assert.GreaterOrEqual(t, elapsed.Value.Duration(), time.Millisecond)
}

func TestDeliveryAttrs(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.Channel("").Equal(slog.Attr{}))
	assert.Equal(t, "channel", logger.Channel("user:42").Key)
	assert.Equal(t, "priority", logger.Priority("urgent").Key)
	assert.Equal(t, "score", logger.Score(80).Key)
	assert.Equal(t, "batch_size", logger.BatchSize(10).Key)
	assert.Equal(t, "bytes", logger.Bytes(1024).Key)
}

func TestGenericAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "component", logger.Component("pool").Key)
	assert.Equal(t, "event", logger.Event("evicted").Key)

	count := logger.Count("queued", 7)
	assert.Equal(t, "queued", count.Key)
	assert.Equal(t, int64(7), count.Value.Int64())

	assert.True(t, logger.Key("meta", nil).Equal(slog.Attr{}))
	assert.Equal(t, "meta", logger.Key("meta", "v").Key)
}
