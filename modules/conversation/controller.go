// Package conversation implements the Conversation Controller (§4.G):
// the per-conversation long-running task that owns a conversation's
// lifetime from creation through post-processing enqueue and cleanup.
package conversation

import (
	"context"
	"time"

	"chronicle/server/errs"
	"chronicle/server/modules/conversation/domain/entities"
	"chronicle/server/modules/conversation/domain/repositories"
	"chronicle/server/modules/transcription/domain/streaming"
	"chronicle/server/seedwork/infrastructure/metrics"
)

// SessionView is the narrow slice of the Audio Session Registry the
// controller needs: reading status and mutating the signal keys it owns.
type SessionView interface {
	Status(ctx context.Context, sessionID string) (active bool, reason string, err error)
	SetCurrentConversation(ctx context.Context, sessionID, conversationID string) error
	ClearCurrentConversation(ctx context.Context, sessionID string) error
	AudioFile(ctx context.Context, conversationID string) (path string, ok bool, err error)
	IncrementConversationCount(ctx context.Context, sessionID string) (int, error)
	DeleteResultsStream(ctx context.Context, sessionID string) error
	CompleteSessionRecord(ctx context.Context, sessionID string) error
	SessionStillActive(ctx context.Context, sessionID string) (bool, error)
}

// Aggregator computes the current merged transcript view for a session.
type Aggregator interface {
	Compute(ctx context.Context, sessionID string) (streaming.Aggregate, error)
}

// JobEnqueuer is the seam onto the Job Scheduler (§4.H); the controller
// only ever enqueues by identifier, never holds a scheduler reference.
type JobEnqueuer interface {
	// EnqueuePostProcessingChain enqueues T -> S -> X -> (M ∥ U) with the
	// given meta cascaded to every job, per §4.G's post-loop action 4.
	// Returns the enqueued jobs' ids keyed by function name, used by the
	// batch upload endpoint's per-file response (§6).
	EnqueuePostProcessingChain(ctx context.Context, conversationID string, meta map[string]any) (jobIDs map[string]string, err error)

	// SelfZombied reports whether this controller's own job record has
	// been purged by the scheduler — the zombie check, §4.G.a.
	SelfZombied(ctx context.Context, jobID string) (bool, error)

	// UpdateMeta persists progress fields onto this controller's own job
	// record, per §4.G.e.
	UpdateMeta(ctx context.Context, jobID string, meta map[string]any) error

	// RearmSpeechDetection enqueues a fresh Speech-Detection Controller
	// for sessionID, per §4.G's cleanup action.
	RearmSpeechDetection(ctx context.Context, sessionID string) error
}

// Config holds the controller's timing parameters (§4.G, §5).
type Config struct {
	TickInterval        time.Duration
	MaxRuntime          time.Duration
	InactivityThreshold time.Duration
	AudioFileWait       time.Duration
	WaitForQueueDrain   bool
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:        time.Second,
		MaxRuntime:          3*time.Hour - 60*time.Second,
		InactivityThreshold: 60 * time.Second,
		AudioFileWait:       30 * time.Second,
	}
}

// QueueDepth reports the persistence queue's pending-entry count, used
// only by "test drain mode" (§9) to defer the inactivity timeout.
type QueueDepth interface {
	PendingCount(ctx context.Context, sessionID string) (int, error)
}

// Controller runs one conversation's state machine end to end.
type Controller struct {
	Store      repositories.ConversationRepository
	Session    SessionView
	Aggregator Aggregator
	Jobs       JobEnqueuer
	Queue      QueueDepth
	Config     Config
}

// Run executes the full lifecycle for conversation C against sessionID:
// initial actions, main loop, post-loop actions, and cleanup (always).
// jobID identifies this controller's own job record for the zombie check
// and meta updates.
func (ctl *Controller) Run(ctx context.Context, c *entities.Conversation, sessionID, jobID string) error {
	// Initial actions (§4.G).
	if err := ctl.Store.Insert(ctx, c); err != nil {
		return errs.Wrap(errs.Transient, "insert conversation", err)
	}
	if err := ctl.Session.SetCurrentConversation(ctx, sessionID, c.GetID()); err != nil {
		return errs.Wrap(errs.Transient, "publish conversation.current", err)
	}

	start := time.Now()
	lastSpeechTime := start
	hadSpeech := false
	lastWordCount := 0

	ticker := time.NewTicker(ctl.Config.TickInterval)
	defer ticker.Stop()

mainLoop:
	for {
		select {
		case <-ctx.Done():
			c.Complete(entities.EndWebsocketDisconnect)
			break mainLoop
		case <-ticker.C:
		}

		// a. Zombie check.
		zombied, err := ctl.Jobs.SelfZombied(ctx, jobID)
		if err != nil {
			return errs.Wrap(errs.Transient, "zombie check", err)
		}
		if zombied {
			return errs.New(errs.Zombie, "controller job record purged")
		}

		// b. Session status.
		active, reason, err := ctl.Session.Status(ctx, sessionID)
		if err != nil {
			return errs.Wrap(errs.Transient, "read session status", err)
		}
		if !active {
			if reason == "websocket_disconnect" {
				c.Complete(entities.EndWebsocketDisconnect)
			} else if c.EndReason == "" {
				c.Complete(entities.EndUserStopped)
			}
			break mainLoop
		}

		// c. Max runtime.
		if time.Since(start) >= ctl.Config.MaxRuntime {
			c.Complete(entities.EndMaxDuration)
			break mainLoop
		}

		// d. Aggregate + last-speech-time tracking.
		agg, err := ctl.Aggregator.Compute(ctx, sessionID)
		if err != nil {
			return errs.Wrap(errs.Transient, "compute aggregate", err)
		}
		wc := agg.WordCount()
		if wc > lastWordCount {
			lastWordCount = wc
			lastSpeechTime = time.Now()
			hadSpeech = true
		}

		// e. Progress meta.
		speakers := speakerSet(agg.Segments)
		_ = ctl.Jobs.UpdateMeta(ctx, jobID, map[string]any{
			"transcript":          preview(agg.Text, 200),
			"transcript_length":   len(agg.Text),
			"speakers":            speakers,
			"word_count":          wc,
			"duration_seconds":    time.Since(start).Seconds(),
			"has_speech":          hadSpeech,
			"chunks_processed":    agg.ChunkCount,
			"inactivity_seconds":  time.Since(lastSpeechTime).Seconds(),
			"last_update":         time.Now().Unix(),
		})

		// f. Inactivity.
		if time.Since(lastSpeechTime) >= ctl.Config.InactivityThreshold {
			if ctl.Config.WaitForQueueDrain && ctl.Queue != nil {
				pending, qerr := ctl.Queue.PendingCount(ctx, sessionID)
				if qerr == nil && pending > 0 {
					continue
				}
			}
			c.Complete(entities.EndInactivityTimeout)
			break mainLoop
		}
	}

	metrics.SessionsEndedTotal.WithLabelValues(string(c.EndReason)).Inc()

	runErr := ctl.postLoop(ctx, c, sessionID, hadSpeech)
	cleanupErr := ctl.cleanup(ctx, c, sessionID)
	if runErr != nil {
		return runErr
	}
	return cleanupErr
}

func (ctl *Controller) postLoop(ctx context.Context, c *entities.Conversation, sessionID string, hadSpeech bool) error {
	// 1. A conversation that never accumulated qualifying speech is
	// soft-deleted regardless of which main-loop break fired.
	if !hadSpeech {
		c.EndReason = ""
		c.CompletedAt = nil
		c.SoftDelete(entities.DeletionNoMeaningfulSpeech)
		return ctl.Store.Save(ctx, c)
	}

	// 2. Wait up to AudioFileWait for audio.file[C].
	deadline := time.Now().Add(ctl.Config.AudioFileWait)
	var path string
	for {
		p, ok, err := ctl.Session.AudioFile(ctx, c.GetID())
		if err != nil {
			return errs.Wrap(errs.Transient, "poll audio file", err)
		}
		if ok {
			path = p
			break
		}
		if time.Now().After(deadline) {
			c.SoftDelete(entities.DeletionAudioFileNotReady)
			return ctl.Store.Save(ctx, c)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	// 3. Set audio_path.
	c.AudioPath = path

	if err := ctl.Store.Save(ctx, c); err != nil {
		return errs.Wrap(errs.Transient, "save conversation", err)
	}

	// 4. Enqueue the post-processing chain.
	meta := map[string]any{
		"audio_uuid":      sessionID,
		"conversation_id": c.GetID(),
		"client_id":       c.ClientID,
	}
	if _, err := ctl.Jobs.EnqueuePostProcessingChain(ctx, c.GetID(), meta); err != nil {
		return errs.Wrap(errs.Transient, "enqueue post-processing chain", err)
	}
	return nil
}

func (ctl *Controller) cleanup(ctx context.Context, c *entities.Conversation, sessionID string) error {
	_ = ctl.Session.DeleteResultsStream(ctx, sessionID)
	_ = ctl.Session.ClearCurrentConversation(ctx, sessionID)

	if !c.Deleted {
		if _, err := ctl.Session.IncrementConversationCount(ctx, sessionID); err != nil {
			return errs.Wrap(errs.Transient, "increment conversation count", err)
		}
	}

	if err := ctl.Store.Save(ctx, c); err != nil {
		return errs.Wrap(errs.Transient, "persist end_reason/completed_at", err)
	}

	// The registry's session status is owned by the connection handler,
	// not by a single conversation's lifecycle: it must stay active
	// across conversations under the same connection so a rearmed F can
	// qualify a second one (§3, Scenario 2). Only mark the session record
	// complete once the connection itself is gone.
	stillActive, err := ctl.Session.SessionStillActive(ctx, sessionID)
	if err != nil {
		return errs.Wrap(errs.Transient, "check session still active", err)
	}
	if stillActive {
		if err := ctl.Jobs.RearmSpeechDetection(ctx, sessionID); err != nil {
			return errs.Wrap(errs.Transient, "rearm speech detection", err)
		}
		return nil
	}

	if err := ctl.Session.CompleteSessionRecord(ctx, sessionID); err != nil {
		return errs.Wrap(errs.Transient, "complete session record", err)
	}
	return nil
}

func speakerSet(segments []streaming.Segment) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range segments {
		if s.Speaker == "" || seen[s.Speaker] {
			continue
		}
		seen[s.Speaker] = true
		out = append(out, s.Speaker)
	}
	return out
}

func preview(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}
