package streaming

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// Chunk is one raw PCM payload appended to a session's byte stream
// (§4.A), consumed independently by the Audio Persistence Worker (§4.C)
// and the Live Transcription Worker (§4.D).
type Chunk struct {
	Data       []byte
	SampleRate int
}

// EncodeChunk serializes a Chunk into the flat string payload the bus
// stores, matching EncodeResult's convention for the result stream.
func EncodeChunk(c Chunk) map[string]string {
	return map[string]string{
		"data":        base64.StdEncoding.EncodeToString(c.Data),
		"sample_rate": strconv.Itoa(c.SampleRate),
	}
}

// DecodeChunk reverses EncodeChunk.
func DecodeChunk(payload map[string]string) (Chunk, error) {
	raw, err := base64.StdEncoding.DecodeString(payload["data"])
	if err != nil {
		return Chunk{}, fmt.Errorf("decode chunk data: %w", err)
	}
	sampleRate, _ := strconv.Atoi(payload["sample_rate"])
	return Chunk{Data: raw, SampleRate: sampleRate}, nil
}
