package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"chronicle/server/modules/conversation"
	"chronicle/server/modules/conversation/domain/entities"
	"chronicle/server/modules/conversation/domain/repositories"
	sessiondomain "chronicle/server/modules/session/domain"
	"chronicle/server/modules/speech"
	"chronicle/server/modules/transcription/domain/streaming"
	"chronicle/server/seedwork/infrastructure/bus"
)

// aggregatorAdapter exposes streaming.Compute as the Aggregator seam
// shared by the Speech-Detection Controller and the Conversation
// Controller, so both read the same merged result-stream view.
type aggregatorAdapter struct{ Bus bus.Bus }

func (a aggregatorAdapter) Compute(ctx context.Context, sessionID string) (streaming.Aggregate, error) {
	return streaming.Compute(ctx, a.Bus, sessionID)
}

// sessionStatusAdapter exposes the registry's session status as the
// boolean speech.SessionStatus the Speech-Detection Controller polls.
type sessionStatusAdapter struct{ Registry sessiondomain.Registry }

func (a sessionStatusAdapter) IsActive(ctx context.Context, sessionID string) (bool, error) {
	s, err := a.Registry.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return s.Status == sessiondomain.StatusActive, nil
}

// speechDetectArgs is the payload RearmSpeechDetection (§4.G cleanup,
// §4.H) enqueues for FuncSpeechDetect.
type speechDetectArgs struct {
	SessionID string `json:"session_id"`
	JobID     string `json:"job_id"`
}

// SpeechDetectHandler implements the Speech-Detection Controller (§4.F)
// as a single asynq task that, on qualification, hands off in the same
// goroutine to the Conversation Controller (§4.G) — see DESIGN.md for
// why both stages share one job ledger row (args.JobID): the zombie
// check and progress meta the Conversation Controller reports against
// are the same ledger entry this task itself runs under.
type SpeechDetectHandler struct {
	Bus             bus.Bus
	SessionRegistry sessiondomain.Registry
	SessionView     conversation.SessionView
	ConvStore       repositories.ConversationRepository
	JobEnqueuer     conversation.JobEnqueuer
	ConvConfig      conversation.Config
	Thresholds      speech.Thresholds
}

// Handle runs the detection wait, then — if it qualifies before the
// session ends — the full conversation lifecycle, returning only once
// the conversation this invocation spawned has run to completion (or
// the session ended without ever qualifying).
func (h *SpeechDetectHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var args speechDetectArgs
	if err := json.Unmarshal(t.Payload(), &args); err != nil {
		return fmt.Errorf("unmarshal speech-detect args: %w", err)
	}
	if args.SessionID == "" {
		return fmt.Errorf("speech-detect args missing session_id")
	}

	sess, err := h.SessionRegistry.Get(ctx, args.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	agg := aggregatorAdapter{Bus: h.Bus}
	status := sessionStatusAdapter{Registry: h.SessionRegistry}

	onQualify := func(ctx context.Context, sessionID string, _ streaming.Aggregate) error {
		c := entities.New(sessionID, sess.UserID, sess.ClientID)
		ctl := &conversation.Controller{
			Store:      h.ConvStore,
			Session:    h.SessionView,
			Aggregator: agg,
			Jobs:       h.JobEnqueuer,
			Config:     h.ConvConfig,
		}
		return ctl.Run(ctx, c, sessionID, args.JobID)
	}

	controller := speech.NewController(agg, status, h.Thresholds, onQualify)
	return controller.Run(ctx, args.SessionID)
}
