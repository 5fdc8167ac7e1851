// ABOUTME: Tests for gateway delivery plumbing
// ABOUTME: Covers offline recipients, session buffering, and frame construction

package gateway

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_RecipientOffline(t *testing.T) {
	tg := newTestGateway(t)

	_, err := tg.gw.Send(context.Background(), 42, "hello", "")
	assert.ErrorIs(t, err, ErrRecipientOffline)

	_, err = tg.gw.SendInvitation(context.Background(), 42, 7, "invite")
	assert.ErrorIs(t, err, ErrRecipientOffline)

	err = tg.gw.Retract(context.Background(), 42, "msg-1")
	assert.ErrorIs(t, err, ErrRecipientOffline)
}

func TestSessionEnqueue_BufferFull(t *testing.T) {
	tg := newTestGateway(t)

	// No pumps running: frames pile up in the buffer.
	s := newSession(tg.gw, 1, "user", nil)
	for i := 0; i < sessionBufferSize; i++ {
		require.NoError(t, s.enqueue(&Frame{Type: FrameNotice, Text: fmt.Sprintf("n-%d", i)}))
	}

	err := s.enqueue(&Frame{Type: FrameNotice, Text: "overflow"})
	assert.Error(t, err)
}

func TestUserLabel(t *testing.T) {
	assert.Equal(t, "user #7", userLabel(7))
}
