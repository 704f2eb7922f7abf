package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/server/modules/conversation/domain/entities"
	"chronicle/server/modules/conversation/infrastructure/repositories"
	sessiondomain "chronicle/server/modules/session/domain"
	sessioninfra "chronicle/server/modules/session/infrastructure"
	"chronicle/server/modules/transcription/domain/streaming"
	"chronicle/server/seedwork/infrastructure/bus"
)

func silentSamples(n int) []byte {
	return make([]byte, n*2)
}

func TestWorker_Run_WritesConversationAudioAndPublishesPath(t *testing.T) {
	dir := t.TempDir()
	b := bus.NewMemoryBus()
	registry := sessioninfra.NewMemoryRegistry()
	store := repositories.NewMemoryConversationRepository()
	ctx := context.Background()

	sess := sessiondomain.NewSession("sess-1", "client-1", "user-1")
	require.NoError(t, registry.Create(ctx, sess))

	conv := entities.New("sess-1", "user-1", "client-1")
	require.NoError(t, store.Insert(ctx, conv))
	require.NoError(t, registry.SetCurrentConversation(ctx, "sess-1", conv.GetID()))

	bytesStream, _ := bus.StreamNames("sess-1")
	_, err := b.Append(ctx, bytesStream, streaming.EncodeChunk(streaming.Chunk{Data: silentSamples(1600), SampleRate: 16000}))
	require.NoError(t, err)
	_, err = b.Append(ctx, bytesStream, streaming.EncodeChunk(streaming.Chunk{Data: silentSamples(1600), SampleRate: 16000}))
	require.NoError(t, err)

	_, err = registry.TransitionToFinalizing(ctx, "sess-1", sessiondomain.ReasonUserStopped)
	require.NoError(t, err)
	require.NoError(t, registry.Complete(ctx, "sess-1", 60))

	w := NewWorker(b, registry, store, dir, 16000)
	require.NoError(t, w.Run(ctx, "sess-1"))

	path, ok, err := registry.AudioFile(ctx, conv.GetID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, sanitizeFilename(conv.GetID())+".wav"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away on finalize")
}

func TestWorker_Run_DiscardsScratchBeforeConversationOpens(t *testing.T) {
	dir := t.TempDir()
	b := bus.NewMemoryBus()
	registry := sessioninfra.NewMemoryRegistry()
	store := repositories.NewMemoryConversationRepository()
	ctx := context.Background()

	sess := sessiondomain.NewSession("sess-2", "client-1", "user-1")
	require.NoError(t, registry.Create(ctx, sess))

	bytesStream, _ := bus.StreamNames("sess-2")
	_, err := b.Append(ctx, bytesStream, streaming.EncodeChunk(streaming.Chunk{Data: silentSamples(800), SampleRate: 16000}))
	require.NoError(t, err)

	_, err = registry.TransitionToFinalizing(ctx, "sess-2", sessiondomain.ReasonUserStopped)
	require.NoError(t, err)
	require.NoError(t, registry.Complete(ctx, "sess-2", 60))

	w := NewWorker(b, registry, store, dir, 16000)
	require.NoError(t, w.Run(ctx, "sess-2"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no conversation ever opened, so nothing should be written to disk")
}

func TestWorker_Rotate_ClosesPriorFileAndOpensNextOnConversationChange(t *testing.T) {
	dir := t.TempDir()
	b := bus.NewMemoryBus()
	registry := sessioninfra.NewMemoryRegistry()
	store := repositories.NewMemoryConversationRepository()
	ctx := context.Background()

	convA := entities.New("sess-3", "user-1", "client-1")
	convB := entities.New("sess-3", "user-1", "client-1")
	require.NoError(t, store.Insert(ctx, convA))
	require.NoError(t, store.Insert(ctx, convB))

	w := NewWorker(b, registry, store, dir, 16000)

	var st rotationState
	entryA := bus.Entry{ID: "1-0", Payload: streaming.EncodeChunk(streaming.Chunk{Data: silentSamples(800), SampleRate: 16000})}
	require.NoError(t, registry.SetCurrentConversation(ctx, "sess-3", convA.GetID()))
	require.NoError(t, w.handleEntry(ctx, "sess-3", &st, entryA))
	assert.Equal(t, convA.GetID(), st.conversationID)

	// Conversation pointer flips to B; the next entry must close A's file
	// (publishing its path) before opening B's.
	require.NoError(t, registry.SetCurrentConversation(ctx, "sess-3", convB.GetID()))
	entryB := bus.Entry{ID: "2-0", Payload: streaming.EncodeChunk(streaming.Chunk{Data: silentSamples(800), SampleRate: 16000})}
	require.NoError(t, w.handleEntry(ctx, "sess-3", &st, entryB))
	assert.Equal(t, convB.GetID(), st.conversationID)

	w.closeCurrent(ctx, &st)

	pathA, okA, err := registry.AudioFile(ctx, convA.GetID())
	require.NoError(t, err)
	require.True(t, okA)
	pathB, okB, err := registry.AudioFile(ctx, convB.GetID())
	require.NoError(t, err)
	require.True(t, okB)
	assert.NotEqual(t, pathA, pathB)

	for _, p := range []string{pathA, pathB} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}
