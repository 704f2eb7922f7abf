package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"chronicle/server/modules/conversation/domain/entities"
	"chronicle/server/modules/conversation/domain/repositories"
	"chronicle/server/modules/transcription/domain/streaming"
	"chronicle/server/seedwork/infrastructure/config"
)

// Scheduler is the narrow slice of jobs.Scheduler the handlers need to
// advance the dependency graph after a job finishes.
type Scheduler interface {
	OnComplete(ctx context.Context, jobID string) error
	OnFail(ctx context.Context, jobID, message string) error
}

// Handlers wires the five post-processing functions (§4.I) as asynq
// task handlers over a Conversation Store and the provider collaborators
// each job calls.
type Handlers struct {
	Store      repositories.ConversationRepository
	Scheduler  Scheduler
	Jobs       config.JobsConfig
	Batch      streaming.BatchTranscriptionProvider
	Speaker    SpeakerRecognitionService
	Memory     MemoryProvider
	Primary    PrimarySpeakers
	LLM        LLMClient
	Crop       Cropper

	// Mirror is left nil when no remote storage is configured (§6's
	// "Storage" section leaves GCS mirroring optional); HandleCrop skips
	// it in that case rather than failing the job.
	Mirror AudioMirror

	// ReadAudio loads the finalized WAV bytes for T. Defaults to
	// os.ReadFile; overridable in tests so they don't touch disk.
	ReadAudio func(path string) ([]byte, error)
}

func (h *Handlers) readAudio(path string) ([]byte, error) {
	if h.ReadAudio != nil {
		return h.ReadAudio(path)
	}
	return os.ReadFile(path)
}

// taskArgs is the payload every post-processing task carries. JobID is
// the ledger row's own id (domain.Job.GetID()) so handlers can report
// back to the Scheduler without depending on asynq's own task-id
// plumbing, which the asynq package keeps unexported to callers outside
// the server loop.
type taskArgs struct {
	JobID          string `json:"job_id"`
	ConversationID string `json:"conversation_id"`
}

func parseArgs(t *asynq.Task) (taskArgs, error) {
	var a taskArgs
	if err := json.Unmarshal(t.Payload(), &a); err != nil {
		return a, fmt.Errorf("unmarshal task args: %w", err)
	}
	if a.ConversationID == "" {
		return a, fmt.Errorf("task args missing conversation_id")
	}
	if a.JobID == "" {
		return a, fmt.Errorf("task args missing job_id")
	}
	return a, nil
}

// HandleTranscribeBatch implements job T: fatal for the chain on error.
func (h *Handlers) HandleTranscribeBatch(ctx context.Context, t *asynq.Task) error {
	args, err := parseArgs(t)
	if err != nil {
		return err
	}
	c, err := h.Store.FindByID(ctx, args.ConversationID)
	if err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("load conversation: %w", err))
	}

	audioBytes, err := h.readAudio(c.AudioPath)
	if err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("read audio file: %w", err))
	}

	start := time.Now()
	result, err := h.Batch.Transcribe(ctx, audioBytes, 16000, true)
	if err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("batch transcribe: %w", err))
	}

	v := entities.TranscriptVersion{
		Transcript:            result.Text,
		Segments:              toEntitySegments(result.Segments),
		Provider:              h.Batch.Name(),
		ProcessingTimeSeconds: time.Since(start).Seconds(),
	}
	if err := c.AddTranscriptVersion(v, true); err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("add transcript version: %w", err))
	}
	if err := h.Store.Save(ctx, c); err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("save conversation: %w", err))
	}
	return h.complete(ctx, args.JobID)
}

// HandleSpeakerRecognize implements job S: unavailable service is a
// no-op success (§4.I), not a failure.
func (h *Handlers) HandleSpeakerRecognize(ctx context.Context, t *asynq.Task) error {
	args, err := parseArgs(t)
	if err != nil {
		return err
	}
	c, err := h.Store.FindByID(ctx, args.ConversationID)
	if err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("load conversation: %w", err))
	}

	if h.Speaker == nil {
		return h.complete(ctx, args.JobID)
	}
	segments := c.Segments()
	mapping, err := h.Speaker.Recognize(ctx, c.UserID, c.AudioPath, segments)
	if err != nil {
		if errors.Is(err, ErrServiceUnavailable) {
			return h.complete(ctx, args.JobID)
		}
		return h.fail(ctx, args.JobID, fmt.Errorf("speaker recognize: %w", err))
	}
	if err := c.RenameSpeakers(mapping); err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("rename speakers: %w", err))
	}
	if err := h.Store.Save(ctx, c); err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("save conversation: %w", err))
	}
	return h.complete(ctx, args.JobID)
}

// HandleCrop implements job X.
func (h *Handlers) HandleCrop(ctx context.Context, t *asynq.Task) error {
	args, err := parseArgs(t)
	if err != nil {
		return err
	}
	c, err := h.Store.FindByID(ctx, args.ConversationID)
	if err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("load conversation: %w", err))
	}

	path, err := h.Crop.Crop(ctx, c.AudioPath, c.Segments(), 500*time.Millisecond, 10*time.Second)
	if err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("crop: %w", err))
	}
	if err := c.SetCroppedAudioPath(path); err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("set cropped audio path: %w", err))
	}
	if h.Mirror != nil {
		// Best-effort: the local cropped file is the source of truth, so a
		// failed mirror doesn't fail the crop job itself.
		_, _ = h.Mirror.Mirror(ctx, c.UserID, c.GetID(), path)
	}
	if err := h.Store.Save(ctx, c); err != nil {
		return h.fail(ctx, args.JobID, fmt.Errorf("save conversation: %w", err))
	}
	return h.complete(ctx, args.JobID)
}

// HandleMemoryExtract implements job M: failures are non-fatal per §4.I
// — the task returns nil (success) even when extraction itself failed,
// recording failure metadata instead of cascading it to dependents.
func (h *Handlers) HandleMemoryExtract(ctx context.Context, t *asynq.Task) error {
	args, err := parseArgs(t)
	if err != nil {
		return err
	}
	c, err := h.Store.FindByID(ctx, args.ConversationID)
	if err != nil {
		return h.completeNonFatal(ctx, args.JobID, fmt.Errorf("load conversation: %w", err))
	}

	if h.Primary != nil {
		primaries, err := h.Primary.PrimarySpeakers(ctx, c.UserID)
		if err == nil && len(primaries) > 0 && !anySpeakerPresent(c.Segments(), primaries) {
			h.updateMeta(ctx, args.JobID, map[string]any{"skipped": true})
			return h.complete(ctx, args.JobID)
		}
	}

	if h.Memory == nil {
		return h.completeNonFatal(ctx, args.JobID, errors.New("no memory provider configured"))
	}
	facts, err := h.Memory.Extract(ctx, c.UserID, c.Transcript(), c.Segments())
	if err != nil {
		return h.completeNonFatal(ctx, args.JobID, fmt.Errorf("memory extract: %w", err))
	}

	ids := make([]string, 0, len(facts))
	for _, f := range facts {
		ids = append(ids, f.ID)
	}
	v := entities.MemoryVersion{
		MemoryCount:         len(facts),
		TranscriptVersionID: c.ActiveTranscriptVersion,
		Provider:            h.Memory.Name(),
		Metadata:            map[string]any{"memory_ids": ids},
	}
	if err := c.AddMemoryVersion(v, true); err != nil {
		return h.completeNonFatal(ctx, args.JobID, fmt.Errorf("add memory version: %w", err))
	}
	if err := h.Store.Save(ctx, c); err != nil {
		return h.completeNonFatal(ctx, args.JobID, fmt.Errorf("save conversation: %w", err))
	}
	return h.complete(ctx, args.JobID)
}

// HandleTitleSummary implements job U: three LLM calls fanned out
// concurrently. Failures are non-fatal per §4.I.
func (h *Handlers) HandleTitleSummary(ctx context.Context, t *asynq.Task) error {
	args, err := parseArgs(t)
	if err != nil {
		return err
	}
	c, err := h.Store.FindByID(ctx, args.ConversationID)
	if err != nil {
		return h.completeNonFatal(ctx, args.JobID, fmt.Errorf("load conversation: %w", err))
	}

	transcript := c.Transcript()
	var wg sync.WaitGroup
	var title, shortSummary, detailed string
	var titleErr, summaryErr, detailedErr error
	wg.Add(3)
	go func() { defer wg.Done(); title, titleErr = h.LLM.ShortTitle(ctx, transcript) }()
	go func() { defer wg.Done(); shortSummary, summaryErr = h.LLM.ShortSummary(ctx, transcript) }()
	go func() { defer wg.Done(); detailed, detailedErr = h.LLM.DetailedSummary(ctx, transcript) }()
	wg.Wait()

	if err := errors.Join(titleErr, summaryErr, detailedErr); err != nil {
		return h.completeNonFatal(ctx, args.JobID, fmt.Errorf("title/summary: %w", err))
	}
	if err := c.SetTitleSummary(title, shortSummary, detailed); err != nil {
		return h.completeNonFatal(ctx, args.JobID, fmt.Errorf("set title/summary: %w", err))
	}
	if err := h.Store.Save(ctx, c); err != nil {
		return h.completeNonFatal(ctx, args.JobID, fmt.Errorf("save conversation: %w", err))
	}
	return h.complete(ctx, args.JobID)
}

func (h *Handlers) complete(ctx context.Context, jobID string) error {
	return h.Scheduler.OnComplete(ctx, jobID)
}

// completeNonFatal reports success to the scheduler (so dependents still
// run) and records err as the job's "error" metadata rather than
// cascading it — used by M and U, whose failures must never fail the
// chain (§4.I).
func (h *Handlers) completeNonFatal(ctx context.Context, jobID string, err error) error {
	h.updateMeta(ctx, jobID, map[string]any{"error": err.Error()})
	return h.complete(ctx, jobID)
}

// updateMeta records meta on jobID's ledger row when the Scheduler
// supports it (jobs.Scheduler does); otherwise it does nothing.
func (h *Handlers) updateMeta(ctx context.Context, jobID string, meta map[string]any) {
	if m, ok := h.Scheduler.(interface {
		UpdateMeta(ctx context.Context, jobID string, meta map[string]any) error
	}); ok {
		_ = m.UpdateMeta(ctx, jobID, meta)
	}
}

func (h *Handlers) fail(ctx context.Context, jobID string, err error) error {
	_ = h.Scheduler.OnFail(ctx, jobID, err.Error())
	return err
}

func toEntitySegments(segs []streaming.Segment) []entities.Segment {
	out := make([]entities.Segment, 0, len(segs))
	for _, s := range segs {
		out = append(out, entities.Segment{
			Start:      s.Start.Seconds(),
			End:        s.End.Seconds(),
			Speaker:    s.Speaker,
			Text:       s.Text,
			Confidence: s.Confidence,
		})
	}
	return out
}

func anySpeakerPresent(segments []entities.Segment, primaries []string) bool {
	set := make(map[string]bool, len(primaries))
	for _, p := range primaries {
		set[p] = true
	}
	for _, s := range segments {
		if set[s.Speaker] {
			return true
		}
	}
	return false
}
