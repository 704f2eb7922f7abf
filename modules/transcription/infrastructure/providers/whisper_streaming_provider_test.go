package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentPCM(samples int) []byte {
	return make([]byte, samples*2)
}

func loudPCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		buf[i*2] = 0xff
		buf[i*2+1] = 0x7f // int16 32767, well above the silence threshold
	}
	return buf
}

func newFakeWhisperServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/inference", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(struct {
			Text string `json:"text"`
		}{Text: text}))
	}))
}

func TestWhisperStreamingProvider_FlushesOnTrailingSilence(t *testing.T) {
	server := newFakeWhisperServer(t, "hello there")
	defer server.Close()

	provider := NewWhisperStreamingProvider(server.URL)
	provider.SilenceThresholdMs = 100

	ctx := context.Background()
	session, err := provider.StartStream(ctx, "client-1", 16000, false)
	require.NoError(t, err)

	result, ok, err := session.ProcessChunk(loudPCM(1600))
	require.NoError(t, err)
	assert.False(t, ok, "speech chunk alone must not flush")

	result, ok, err = session.ProcessChunk(silentPCM(1600 + 100))
	require.NoError(t, err)
	require.True(t, ok, "enough trailing silence must trigger a flush")
	assert.True(t, result.IsFinal)
	assert.Equal(t, "hello there", result.Text)
}

func TestWhisperStreamingProvider_LeadingSilenceNeverFlushes(t *testing.T) {
	server := newFakeWhisperServer(t, "should never be called")
	defer server.Close()

	provider := NewWhisperStreamingProvider(server.URL)
	ctx := context.Background()
	session, err := provider.StartStream(ctx, "client-1", 16000, false)
	require.NoError(t, err)

	_, ok, err := session.ProcessChunk(silentPCM(4800))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWhisperStreamingProvider_EndStreamFlushesPendingSpeech(t *testing.T) {
	server := newFakeWhisperServer(t, "trailing utterance")
	defer server.Close()

	provider := NewWhisperStreamingProvider(server.URL)
	ctx := context.Background()
	session, err := provider.StartStream(ctx, "client-1", 16000, false)
	require.NoError(t, err)

	_, ok, err := session.ProcessChunk(loudPCM(1600))
	require.NoError(t, err)
	assert.False(t, ok)

	result, err := session.EndStream()
	require.NoError(t, err)
	assert.True(t, result.IsFinal)
	assert.Equal(t, "trailing utterance", result.Text)
}
