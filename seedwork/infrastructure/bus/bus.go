// Package bus implements the Stream Bus (§4.A): two logical streams per
// session — an append-only byte stream read by independent consumer
// groups, and a result stream read wholesale by the aggregator.
package bus

import (
	"context"
	"time"
)

// Entry is one message read off a stream: an opaque id assigned by the
// bus and the payload that was appended.
type Entry struct {
	ID      string
	Payload map[string]string
}

// Bus is the contract every stream-bus implementation satisfies. Tests
// substitute an in-memory fake; production uses Redis Streams.
type Bus interface {
	// Append adds payload to stream, returning the assigned entry id.
	Append(ctx context.Context, stream string, payload map[string]string) (string, error)

	// Read reads up to maxBatch entries from stream for consumer group
	// group/consumer, blocking up to block for new entries when none are
	// pending. Passing group="" reads the whole stream from the start
	// with no group bookkeeping (used by the Results Aggregator, §4.E).
	Read(ctx context.Context, stream, group, consumer string, maxBatch int64, block time.Duration) ([]Entry, error)

	// Ack acknowledges delivery of ids within group on stream.
	Ack(ctx context.Context, stream, group string, ids ...string) error

	// Len reports the number of entries currently on stream.
	Len(ctx context.Context, stream string) (int64, error)

	// Delete removes stream entirely (used on conversation cleanup).
	Delete(ctx context.Context, stream string) error

	// ClaimIdle reclaims entries pending in group for longer than idle,
	// assigning them to consumer. Used by the maintenance routine to reap
	// stuck consumers (§4.A failure semantics).
	ClaimIdle(ctx context.Context, stream, group, consumer string, idle time.Duration) ([]Entry, error)

	// EnsureGroup creates group on stream if it does not already exist.
	EnsureGroup(ctx context.Context, stream, group string) error
}

// StreamNames returns the canonical stream names for a session, matching
// §4.A and §6's persisted-state layout.
func StreamNames(sessionID string) (bytes, results string) {
	return "audio.bytes." + sessionID, "transcription.results." + sessionID
}
