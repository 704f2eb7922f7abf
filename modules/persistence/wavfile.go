package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// fileWriter wraps an in-progress WAV encode: samples are written
// incrementally as chunks arrive and the header is only finalized (and
// the file renamed into its destination path) on finalize, per §4.C's
// "readers must recover a valid WAV header on finalize".
type fileWriter struct {
	tmpPath, destPath string
	f                 *os.File
	enc               *wav.Encoder
	sampleRate        int
	numChannels        int
}

func newFileWriter(chunkDir, conversationID string, sampleRate, numChannels int) (*fileWriter, error) {
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure chunk dir: %w", err)
	}
	destPath := filepath.Join(chunkDir, sanitizeFilename(conversationID)+".wav")
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create wav file: %w", err)
	}
	enc := wav.NewEncoder(f, sampleRate, bitDepth, numChannels, 1)
	return &fileWriter{
		tmpPath:     tmpPath,
		destPath:    destPath,
		f:           f,
		enc:         enc,
		sampleRate:  sampleRate,
		numChannels: numChannels,
	}, nil
}

// writeChunk appends one chunk of little-endian PCM16 samples.
func (w *fileWriter) writeChunk(pcm []byte, sampleRate int) error {
	rate := sampleRate
	if rate == 0 {
		rate = w.sampleRate
	}
	buf := pcm16ToIntBuffer(pcm, rate, w.numChannels)
	return w.enc.Write(buf)
}

// finalize closes the WAV encoder (writing its header) and atomically
// renames the temp file into destPath.
func (w *fileWriter) finalize() (string, error) {
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		os.Remove(w.tmpPath)
		return "", fmt.Errorf("close wav encoder: %w", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmpPath)
		return "", fmt.Errorf("close wav file: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.destPath); err != nil {
		return "", fmt.Errorf("rename wav into place: %w", err)
	}
	return w.destPath, nil
}

// discard abandons the in-progress file without renaming it into
// place, used after a write failure exhausts its retry budget.
func (w *fileWriter) discard() {
	w.enc.Close()
	w.f.Close()
	os.Remove(w.tmpPath)
}

func pcm16ToIntBuffer(pcm []byte, sampleRate, numChannels int) *audio.IntBuffer {
	n := len(pcm) / 2
	data := make([]int, n)
	for i := 0; i < n; i++ {
		lo := uint16(pcm[i*2])
		hi := uint16(pcm[i*2+1])
		data[i] = int(int16(lo | hi<<8))
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// sanitizeFilename replaces everything but word characters and dashes
// with underscores so
// a conversation id can never escape the chunk directory or collide
// with a reserved filename.
func sanitizeFilename(id string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(id, "_")
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}
