package infrastructure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/server/modules/session/domain"
)

func TestMemoryRegistry_TransitionToFinalizing_FiresAtMostOnce(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	s := domain.NewSession("sess-1", "client-1", "user-1")
	require.NoError(t, r.Create(ctx, s))

	ok, err := r.TransitionToFinalizing(ctx, "sess-1", domain.ReasonUserStopped)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TransitionToFinalizing(ctx, "sess-1", domain.ReasonWebsocketDisconnect)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalizing, got.Status)
	assert.Equal(t, domain.ReasonUserStopped, got.CompletionReason)
}

func TestMemoryRegistry_CurrentConversationSignal_SetAndClear(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	require.NoError(t, r.Create(ctx, domain.NewSession("sess-1", "c", "u")))

	require.NoError(t, r.SetCurrentConversation(ctx, "sess-1", "conv-1"))
	id, ok, err := r.CurrentConversation(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "conv-1", id)

	require.NoError(t, r.ClearCurrentConversation(ctx, "sess-1"))
	_, ok, err = r.CurrentConversation(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
