// Package streaming defines the provider capability interfaces consumed
// by the Live Transcription Worker (§4.D) and the batch post-processing
// jobs (§4.I), plus the Results Aggregator (§4.E).
package streaming

import (
	"context"
	"time"
)

// Word is one recognized word with timing and confidence, per §3's
// TranscriptionResult.words shape.
type Word struct {
	Text       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Segment is one speaker turn, per §3's TranscriptionResult.segments shape.
type Segment struct {
	Start      time.Duration
	End        time.Duration
	Speaker    string
	Text       string
	Confidence float64
}

// Result is one emission on the result stream: a TranscriptionResult.
type Result struct {
	Text             string
	Words            []Word
	Segments         []Segment
	ChunkCountAtEmit int
	IsFinal          bool
}

// BatchTranscriptionProvider transcribes a complete audio file, used by
// job T (§4.I) and the batch-upload path (§6).
type BatchTranscriptionProvider interface {
	Transcribe(ctx context.Context, audio []byte, sampleRate int, diarize bool) (Result, error)
	Name() string
}

// StreamingTranscriptionProvider incrementally transcribes a live PCM
// stream, used by the Live Transcription Worker (§4.D).
type StreamingTranscriptionProvider interface {
	StartStream(ctx context.Context, clientID string, sampleRate int, diarize bool) (StreamSession, error)
	Name() string
}

// StreamSession is a single live transcription session opened against a
// StreamingTranscriptionProvider.
type StreamSession interface {
	// ProcessChunk forwards one chunk of raw PCM and returns an interim
	// result if the provider has one ready, or ok=false if not.
	ProcessChunk(chunk []byte) (result Result, ok bool, err error)
	// EndStream flushes any buffered audio and returns the final result.
	EndStream() (Result, error)
}

// DiarizationProvider runs diarization independently of transcription,
// producing an opaque Annotation the core never interprets (§6).
type DiarizationProvider interface {
	Diarize(ctx context.Context, audio []byte, sampleRate int) (Annotation, error)
}

// Annotation is an opaque diarization payload carried alongside a
// transcript version (SPEC_FULL §3 supplemented field).
type Annotation map[string]any
