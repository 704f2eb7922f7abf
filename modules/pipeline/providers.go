// Package pipeline implements the five post-processing jobs (§4.I):
// batch transcription, speaker recognition, cropping, memory extraction,
// and title/summary. Each handler loads a Conversation, appends a new
// version (or, for S/X/U, mutates fields §4.I calls out as in-place), and
// reports back to the Job Scheduler so the dependency graph can advance.
package pipeline

import (
	"context"
	"time"

	"chronicle/server/modules/conversation/domain/entities"
)

// SpeakerRecognitionService is the external collaborator behind job S.
// If the service is unavailable, S is specified to succeed as a no-op
// rather than fail the chain — callers signal that by returning
// ErrServiceUnavailable.
type SpeakerRecognitionService interface {
	// Recognize returns a mapping from the raw diarization labels in
	// segments (e.g. "SPEAKER_00") to recognized identities, using
	// audioPath and any enrollment data the implementation holds for
	// userID.
	Recognize(ctx context.Context, userID, audioPath string, segments []entities.Segment) (map[string]string, error)
}

// ErrServiceUnavailable signals S's no-op path (§4.I).
var ErrServiceUnavailable = errUnavailable{}

type errUnavailable struct{}

func (errUnavailable) Error() string { return "speaker recognition service unavailable" }

// Fact is one atomic memory extracted from a conversation (§4.I, §6).
type Fact struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// MemoryProvider is the external collaborator behind job M: extracts
// facts from a transcript, enriches them, and upserts them into its own
// store, returning the upserted facts.
type MemoryProvider interface {
	Extract(ctx context.Context, userID, transcript string, segments []entities.Segment) ([]Fact, error)
	Name() string
}

// PrimarySpeakers resolves a user's configured primary-speaker allowlist
// for M's skip-if-absent check (§4.I). A nil/empty result means no
// filter is configured and M always runs.
type PrimarySpeakers interface {
	PrimarySpeakers(ctx context.Context, userID string) ([]string, error)
}

// LLMClient is the collaborator behind U's three parallel calls.
type LLMClient interface {
	ShortTitle(ctx context.Context, transcript string) (string, error)
	ShortSummary(ctx context.Context, transcript string) (string, error)
	DetailedSummary(ctx context.Context, transcript string) (string, error)
}

// Cropper builds a speech-only WAV from segments (job X).
type Cropper interface {
	Crop(ctx context.Context, sourcePath string, segments []entities.Segment, contextPadding, minSegmentDuration time.Duration) (destPath string, err error)
}

// AudioMirror copies a finalized local audio file to durable remote
// storage after job X produces it, returning the remote object's
// location. A deployment with no remote storage configured runs X
// without a mirror — see Handlers.Mirror.
type AudioMirror interface {
	Mirror(ctx context.Context, userID, conversationID, localPath string) (remoteLocation string, err error)
}
