package livetranscription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessiondomain "chronicle/server/modules/session/domain"
	sessioninfra "chronicle/server/modules/session/infrastructure"
	"chronicle/server/modules/transcription/domain/streaming"
	"chronicle/server/seedwork/infrastructure/bus"
)

type fakeStreamSession struct {
	results []streaming.Result
	idx     int
	final   streaming.Result
}

func (f *fakeStreamSession) ProcessChunk(chunk []byte) (streaming.Result, bool, error) {
	if f.idx >= len(f.results) {
		return streaming.Result{}, false, nil
	}
	r := f.results[f.idx]
	f.idx++
	return r, true, nil
}

func (f *fakeStreamSession) EndStream() (streaming.Result, error) {
	return f.final, nil
}

type fakeProvider struct {
	session *fakeStreamSession
}

func (f *fakeProvider) StartStream(ctx context.Context, clientID string, sampleRate int, diarize bool) (streaming.StreamSession, error) {
	return f.session, nil
}
func (f *fakeProvider) Name() string { return "fake-streaming" }

func TestWorker_Run_PublishesOnlyFinalResults(t *testing.T) {
	b := bus.NewMemoryBus()
	registry := sessioninfra.NewMemoryRegistry()
	ctx := context.Background()

	sess := sessiondomain.NewSession("sess-1", "client-1", "user-1")
	require.NoError(t, registry.Create(ctx, sess))

	session := &fakeStreamSession{results: []streaming.Result{
		{Text: "interim", IsFinal: false},
		{Text: "hello world", IsFinal: true},
	}}
	provider := &fakeProvider{session: session}

	bytesStream, resultsStream := bus.StreamNames("sess-1")
	_, err := b.Append(ctx, bytesStream, streaming.EncodeChunk(streaming.Chunk{Data: make([]byte, 10), SampleRate: 16000}))
	require.NoError(t, err)
	_, err = b.Append(ctx, bytesStream, streaming.EncodeChunk(streaming.Chunk{Data: make([]byte, 10), SampleRate: 16000}))
	require.NoError(t, err)

	_, err = registry.TransitionToFinalizing(ctx, "sess-1", sessiondomain.ReasonUserStopped)
	require.NoError(t, err)
	require.NoError(t, registry.Complete(ctx, "sess-1", 60))

	w := NewWorker(b, provider, registry, 16000, true)
	require.NoError(t, w.Run(ctx, "sess-1", "client-1"))

	entries, err := b.Read(ctx, resultsStream, "", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello world", entries[0].Payload["text"])
}

func TestWorker_Run_FlushesTrailingFinalFromEndStream(t *testing.T) {
	b := bus.NewMemoryBus()
	registry := sessioninfra.NewMemoryRegistry()
	ctx := context.Background()

	sess := sessiondomain.NewSession("sess-2", "client-1", "user-1")
	require.NoError(t, registry.Create(ctx, sess))

	session := &fakeStreamSession{final: streaming.Result{Text: "trailing final"}}
	provider := &fakeProvider{session: session}

	_, err := registry.TransitionToFinalizing(ctx, "sess-2", sessiondomain.ReasonUserStopped)
	require.NoError(t, err)
	require.NoError(t, registry.Complete(ctx, "sess-2", 60))

	w := NewWorker(b, provider, registry, 16000, false)
	require.NoError(t, w.Run(ctx, "sess-2", "client-1"))

	_, resultsStream := bus.StreamNames("sess-2")
	entries, err := b.Read(ctx, resultsStream, "", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "trailing final", entries[0].Payload["text"])
}
