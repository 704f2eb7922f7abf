package infrastructure

import (
	"context"
	"fmt"

	"chronicle/server/jobs/domain"
	"chronicle/server/modules/conversation"
	"chronicle/server/seedwork/infrastructure/config"
)

// Known post-processing function names (§4.I).
const (
	FuncTranscribeBatch  = "transcribe_batch"
	FuncSpeakerRecognize = "speaker_recognize"
	FuncCrop             = "crop"
	FuncMemoryExtract    = "memory_extract"
	FuncTitleSummary     = "title_summary"
	FuncSpeechDetect     = "speech_detect"
)

// ConversationAdapter implements the conversation.JobEnqueuer and
// speech.SessionStatus-adjacent seams the Conversation Controller and
// Speech-Detection Controller depend on, backed by a Scheduler.
type ConversationAdapter struct {
	Scheduler *Scheduler
	Jobs      config.JobsConfig
}

func NewConversationAdapter(s *Scheduler, jobs config.JobsConfig) *ConversationAdapter {
	return &ConversationAdapter{Scheduler: s, Jobs: jobs}
}

// EnqueuePostProcessingChain builds T -> S -> X -> (M ∥ U), cascading
// conversationID/audio_uuid/client_id through every stage, and returns
// each job's id keyed by function name for callers (the batch upload
// endpoint, §6) that need to report them back to the caller.
func (a *ConversationAdapter) EnqueuePostProcessingChain(ctx context.Context, conversationID string, meta map[string]any) (map[string]string, error) {
	m := domain.Meta{
		AudioUUID:      stringField(meta, "audio_uuid"),
		ConversationID: conversationID,
		ClientID:       stringField(meta, "client_id"),
	}

	t := newJob(domain.QueueTranscription, FuncTranscribeBatch, conversationID, m, nil)
	t.Timeout = a.Jobs.TranscribeTimeout
	t.MaxRetries = a.Jobs.MaxRetries
	t.ResultTTL = a.Jobs.ResultTTL

	s := newJob(domain.QueueTranscription, FuncSpeakerRecognize, conversationID, m, []string{t.GetID()})
	s.Timeout = a.Jobs.SpeakerRecognizeTimeout
	s.MaxRetries = a.Jobs.MaxRetries
	s.ResultTTL = a.Jobs.ResultTTL

	x := newJob(domain.QueueDefault, FuncCrop, conversationID, m, []string{s.GetID()})
	x.Timeout = a.Jobs.CropTimeout
	x.MaxRetries = a.Jobs.MaxRetries
	x.ResultTTL = a.Jobs.ResultTTL

	mem := newJob(domain.QueueMemory, FuncMemoryExtract, conversationID, m, []string{x.GetID()})
	mem.Timeout = a.Jobs.MemoryTimeout
	mem.MaxRetries = a.Jobs.MaxRetries
	mem.ResultTTL = a.Jobs.ResultTTL

	u := newJob(domain.QueueDefault, FuncTitleSummary, conversationID, m, []string{x.GetID()})
	u.Timeout = a.Jobs.TitleSummaryTimeout
	u.MaxRetries = a.Jobs.MaxRetries
	u.ResultTTL = a.Jobs.ResultTTL

	jobs := []*domain.Job{t, s, x, mem, u}
	for _, j := range jobs {
		if err := a.Scheduler.Submit(ctx, j); err != nil {
			return nil, fmt.Errorf("submit %s: %w", j.Function, err)
		}
	}

	ids := make(map[string]string, len(jobs))
	for _, j := range jobs {
		ids[j.Function] = j.GetID()
	}
	return ids, nil
}

func (a *ConversationAdapter) SelfZombied(ctx context.Context, jobID string) (bool, error) {
	return a.Scheduler.SelfZombied(ctx, jobID)
}

func (a *ConversationAdapter) UpdateMeta(ctx context.Context, jobID string, meta map[string]any) error {
	return a.Scheduler.UpdateMeta(ctx, jobID, meta)
}

// RearmSpeechDetection enqueues a fresh, dependency-free speech-detection
// job for sessionID so a still-active session gets a new detection pass
// after its current conversation's controller exits (§4.G cleanup).
func (a *ConversationAdapter) RearmSpeechDetection(ctx context.Context, sessionID string) error {
	j := domain.New(domain.QueueDefault, FuncSpeechDetect, map[string]any{"session_id": sessionID}, domain.Meta{AudioUUID: sessionID}, nil)
	j.Args["job_id"] = j.GetID()
	j.Timeout = a.Jobs.SpeechDetectTimeout
	return a.Scheduler.Submit(ctx, j)
}

// newJob creates a post-processing job and stamps its own ledger id onto
// Args as "job_id" so the pipeline handler that dequeues it can report
// back to the Scheduler (see modules/pipeline's taskArgs).
func newJob(queue domain.Queue, function, conversationID string, m domain.Meta, dependencyIDs []string) *domain.Job {
	j := domain.New(queue, function, map[string]any{"conversation_id": conversationID}, m, dependencyIDs)
	j.Args["job_id"] = j.GetID()
	return j
}

var _ conversation.JobEnqueuer = (*ConversationAdapter)(nil)

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
