package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownmixToMono_AveragesInterleavedStereoPairs(t *testing.T) {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 16000},
		Data:   []int{100, 200, 300, 400}, // two stereo frames
	}

	mono := downmixToMono(buf)

	assert.Equal(t, []int{150, 350}, mono)
}

func TestDownmixToMono_LeavesMonoUnchanged(t *testing.T) {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:   []int{1, 2, 3},
	}

	assert.Equal(t, buf.Data, downmixToMono(buf))
}

func TestWriteMonoWAV_ProducesReadableMonoFile(t *testing.T) {
	dir := t.TempDir()
	samples := []int{10, -10, 20, -20, 30, -30}

	path, err := writeMonoWAV(dir, "upload-1", samples, 16000)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "upload-1.wav"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	decoder := wav.NewDecoder(f)
	got, err := decoder.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, 1, got.Format.NumChannels)
	assert.Equal(t, 16000, got.Format.SampleRate)
	assert.Equal(t, samples, got.Data)
}
