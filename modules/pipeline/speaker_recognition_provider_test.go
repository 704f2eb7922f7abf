package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/server/modules/conversation/domain/entities"
)

func TestHTTPSpeakerRecognitionService_Recognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/recognize", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(recognizeResponse{
			Mapping: map[string]string{"SPEAKER_00": "Alice"},
		}))
	}))
	defer server.Close()

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "conv.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("fake-audio-bytes"), 0o644))

	svc := NewHTTPSpeakerRecognitionService(server.URL, "test-key")
	mapping, err := svc.Recognize(context.Background(), "user-1", audioPath, []entities.Segment{
		{Start: 0, End: 1.5, Speaker: "SPEAKER_00"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", mapping["SPEAKER_00"])
}

func TestHTTPSpeakerRecognitionService_Recognize_MissingAudioIsUnavailable(t *testing.T) {
	svc := NewHTTPSpeakerRecognitionService("http://example.invalid", "test-key")
	_, err := svc.Recognize(context.Background(), "user-1", "/no/such/file.wav", nil)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
