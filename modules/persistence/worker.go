// Package persistence implements the Audio Persistence Worker (§4.C): a
// per-session drain of the byte stream's "persistence" consumer group
// that maintains one open WAV file per current conversation, rotating
// on every conversation.current change and on session termination.
package persistence

import (
	"context"
	"fmt"
	"time"

	"chronicle/server/modules/conversation/domain/entities"
	sessiondomain "chronicle/server/modules/session/domain"
	"chronicle/server/modules/transcription/domain/streaming"
	"chronicle/server/seedwork/infrastructure/bus"
)

// Registry is the narrow slice of the Audio Session Registry (§4.B) the
// worker depends on: observing where audio should currently be routed
// and publishing where a finished conversation's audio ended up.
type Registry interface {
	CurrentConversation(ctx context.Context, sessionID string) (string, bool, error)
	PublishAudioFile(ctx context.Context, conversationID, path string) error
	Get(ctx context.Context, sessionID string) (*sessiondomain.Session, error)
}

// ConversationRepository is the narrow seam used to soft-delete a
// conversation whose audio file could never be written (§4.C failure
// semantics).
type ConversationRepository interface {
	FindByID(ctx context.Context, id string) (*entities.Conversation, error)
	Save(ctx context.Context, c *entities.Conversation) error
}

const consumerGroup = "persistence"

// Worker drains one session's byte stream and writes conversation audio
// to disk.
type Worker struct {
	Bus      bus.Bus
	Registry Registry
	Store    ConversationRepository

	ChunkDir        string
	SampleRate      int
	NumChannels     int
	ScratchMaxBytes int

	MaxBatch  int64
	BlockFor  time.Duration
	MaxRetries int
	RetryBase time.Duration

	Consumer string
}

// NewWorker builds a Worker with the spec's stated defaults: mono PCM16
// at the session's advertised rate, a 10MB pre-conversation scratch
// bound, and a 5-attempt exponential backoff on write failure.
func NewWorker(b bus.Bus, registry Registry, store ConversationRepository, chunkDir string, sampleRate int) *Worker {
	return &Worker{
		Bus:             b,
		Registry:        registry,
		Store:           store,
		ChunkDir:        chunkDir,
		SampleRate:      sampleRate,
		NumChannels:     1,
		ScratchMaxBytes: 10 << 20,
		MaxBatch:        64,
		BlockFor:        2 * time.Second,
		MaxRetries:      5,
		RetryBase:       200 * time.Millisecond,
		Consumer:        "persistence-worker",
	}
}

// rotationState tracks the worker's view of which conversation it is
// currently writing, across Run's read loop.
type rotationState struct {
	conversationID string
	writer         *fileWriter
	scratchBytes   int
}

// Run drains sessionID's byte stream until ctx is cancelled or the
// session reaches a terminal status, always leaving behind either a
// finalized WAV (renamed into place) or nothing — never a half-written
// file at the destination path.
func (w *Worker) Run(ctx context.Context, sessionID string) error {
	bytesStream, _ := bus.StreamNames(sessionID)
	if err := w.Bus.EnsureGroup(ctx, bytesStream, consumerGroup); err != nil {
		return fmt.Errorf("ensure persistence group: %w", err)
	}

	var st rotationState
	defer w.closeCurrent(ctx, &st)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := w.Bus.Read(ctx, bytesStream, consumerGroup, w.Consumer, w.MaxBatch, w.BlockFor)
		if err != nil {
			return fmt.Errorf("read byte stream: %w", err)
		}

		for _, e := range entries {
			if err := w.handleEntry(ctx, sessionID, &st, e); err != nil {
				return err
			}
			if err := w.Bus.Ack(ctx, bytesStream, consumerGroup, e.ID); err != nil {
				return fmt.Errorf("ack entry %s: %w", e.ID, err)
			}
		}

		terminal, err := w.sessionTerminal(ctx, sessionID)
		if err != nil {
			return err
		}
		if terminal {
			return nil
		}
	}
}

func (w *Worker) sessionTerminal(ctx context.Context, sessionID string) (bool, error) {
	s, err := w.Registry.Get(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("get session: %w", err)
	}
	return s.IsTerminal(), nil
}

func (w *Worker) handleEntry(ctx context.Context, sessionID string, st *rotationState, e bus.Entry) error {
	chunk, err := streaming.DecodeChunk(e.Payload)
	if err != nil {
		// A corrupt entry is dropped rather than retried forever.
		return nil
	}

	currentConv, ok, err := w.Registry.CurrentConversation(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("read current conversation: %w", err)
	}
	target := ""
	if ok {
		target = currentConv
	}
	if target != st.conversationID {
		if err := w.rotate(ctx, st, target); err != nil {
			return err
		}
	}

	if st.writer == nil {
		st.scratchBytes += len(chunk.Data)
		if st.scratchBytes > w.ScratchMaxBytes {
			st.scratchBytes = w.ScratchMaxBytes
		}
		return nil
	}

	sampleRate := chunk.SampleRate
	if sampleRate == 0 {
		sampleRate = w.SampleRate
	}
	return w.writeWithRetry(ctx, st, chunk.Data, sampleRate)
}

// rotate closes the current file (if any), publishing its path, then
// opens a new one for newConversationID (or none, if the pointer was
// cleared — audio reverts to being discarded).
func (w *Worker) rotate(ctx context.Context, st *rotationState, newConversationID string) error {
	w.closeCurrent(ctx, st)
	st.conversationID = newConversationID
	st.scratchBytes = 0
	if newConversationID == "" {
		return nil
	}

	fw, err := w.openWithRetry(ctx, newConversationID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.markAudioFileNotReady(ctx, newConversationID)
		st.conversationID = ""
		return nil
	}
	st.writer = fw
	return nil
}

func (w *Worker) closeCurrent(ctx context.Context, st *rotationState) {
	if st.writer == nil {
		return
	}
	path, err := st.writer.finalize()
	conversationID := st.conversationID
	st.writer = nil
	if err != nil {
		w.markAudioFileNotReady(ctx, conversationID)
		return
	}
	if err := w.Registry.PublishAudioFile(ctx, conversationID, path); err != nil {
		w.markAudioFileNotReady(ctx, conversationID)
	}
}

func (w *Worker) markAudioFileNotReady(ctx context.Context, conversationID string) {
	if conversationID == "" {
		return
	}
	c, err := w.Store.FindByID(ctx, conversationID)
	if err != nil {
		return
	}
	c.SoftDelete(entities.DeletionAudioFileNotReady)
	_ = w.Store.Save(ctx, c)
}

func (w *Worker) openWithRetry(ctx context.Context, conversationID string) (*fileWriter, error) {
	var fw *fileWriter
	err := withBackoff(ctx, w.MaxRetries, w.RetryBase, func() error {
		f, err := newFileWriter(w.ChunkDir, conversationID, w.SampleRate, w.NumChannels)
		if err != nil {
			return err
		}
		fw = f
		return nil
	})
	return fw, err
}

func (w *Worker) writeWithRetry(ctx context.Context, st *rotationState, pcm []byte, sampleRate int) error {
	err := withBackoff(ctx, w.MaxRetries, w.RetryBase, func() error {
		return st.writer.writeChunk(pcm, sampleRate)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		st.writer.discard()
		st.writer = nil
		conversationID := st.conversationID
		st.conversationID = ""
		w.markAudioFileNotReady(ctx, conversationID)
	}
	return nil
}

// withBackoff retries fn up to attempts times with exponential backoff
// starting at base, matching §4.C's "retries with exponential backoff
// up to a cap" failure policy.
func withBackoff(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}
