package transport_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/channelkit/core/transport"
)

func TestError(t *testing.T) {
	t.Parallel()

	t.Run("formats op and channel", func(t *testing.T) {
		t.Parallel()

		err := transport.NewError(transport.OpSend, "user:1", errors.New("broken pipe"))
		assert.Equal(t, `transport send "user:1": broken pipe`, err.Error())
	})

	t.Run("unwraps to the cause", func(t *testing.T) {
		t.Parallel()

		err := transport.NewError(transport.OpProbe, "user:2", transport.ErrChannelClosed)
		assert.ErrorIs(t, err, transport.ErrChannelClosed)

		var terr *transport.Error
		require.ErrorAs(t, fmt.Errorf("probing: %w", err), &terr)
		assert.Equal(t, transport.OpProbe, terr.Op)
		assert.Equal(t, "user:2", terr.Channel)
	})
}
