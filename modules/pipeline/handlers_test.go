package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/server/modules/conversation/domain/entities"
	"chronicle/server/modules/conversation/infrastructure/repositories"
	"chronicle/server/modules/transcription/domain/streaming"
)

type fakeBatchProvider struct {
	result streaming.Result
	err    error
}

func (f *fakeBatchProvider) Transcribe(ctx context.Context, audio []byte, sampleRate int, diarize bool) (streaming.Result, error) {
	return f.result, f.err
}
func (f *fakeBatchProvider) Name() string { return "fake-batch" }

type fakeSpeakerService struct {
	mapping map[string]string
	err     error
}

func (f *fakeSpeakerService) Recognize(ctx context.Context, userID, audioPath string, segments []entities.Segment) (map[string]string, error) {
	return f.mapping, f.err
}

type fakeMemoryProvider struct {
	facts []Fact
	err   error
}

func (f *fakeMemoryProvider) Extract(ctx context.Context, userID, transcript string, segments []entities.Segment) ([]Fact, error) {
	return f.facts, f.err
}
func (f *fakeMemoryProvider) Name() string { return "fake-memory" }

type fakeLLM struct{}

func (fakeLLM) ShortTitle(ctx context.Context, transcript string) (string, error)      { return "Title", nil }
func (fakeLLM) ShortSummary(ctx context.Context, transcript string) (string, error)    { return "Summary", nil }
func (fakeLLM) DetailedSummary(ctx context.Context, transcript string) (string, error) { return "Detailed", nil }

type fakeScheduler struct {
	completed []string
	failed    []string
}

func (f *fakeScheduler) OnComplete(ctx context.Context, jobID string) error {
	f.completed = append(f.completed, jobID)
	return nil
}
func (f *fakeScheduler) OnFail(ctx context.Context, jobID, message string) error {
	f.failed = append(f.failed, jobID)
	return nil
}

func newTask(t *testing.T, conversationID string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(taskArgs{JobID: "job-1", ConversationID: conversationID})
	require.NoError(t, err)
	return asynq.NewTask("transcription:transcribe_batch", payload, asynq.TaskID("job-1"))
}

func TestHandleTranscribeBatch_AppendsActiveTranscriptVersionAndCompletes(t *testing.T) {
	store := repositories.NewMemoryConversationRepository()
	c := entities.New("sess-1", "user-1", "client-1")
	c.AudioPath = "/tmp/does-not-need-to-exist.wav"
	require.NoError(t, store.Insert(context.Background(), c))

	sched := &fakeScheduler{}
	h := &Handlers{
		Store:     store,
		Scheduler: sched,
		Batch:     &fakeBatchProvider{result: streaming.Result{Text: "hello world"}},
		ReadAudio: func(path string) ([]byte, error) { return []byte("fake-pcm"), nil },
	}

	task := newTask(t, c.GetID())
	err := h.HandleTranscribeBatch(context.Background(), task)
	require.NoError(t, err)

	got, err := store.FindByID(context.Background(), c.GetID())
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Transcript())
	assert.NotEmpty(t, got.ActiveTranscriptVersion)
}

func TestHandleSpeakerRecognize_ServiceUnavailableIsNoOpSuccess(t *testing.T) {
	store := repositories.NewMemoryConversationRepository()
	c := entities.New("sess-1", "user-1", "client-1")
	require.NoError(t, c.AddTranscriptVersion(entities.TranscriptVersion{
		Segments: []entities.Segment{{Speaker: "SPEAKER_00", Text: "hi"}},
	}, true))
	require.NoError(t, store.Insert(context.Background(), c))

	sched := &fakeScheduler{}
	h := &Handlers{
		Store:     store,
		Scheduler: sched,
		Speaker:   &fakeSpeakerService{err: ErrServiceUnavailable},
	}

	task := newTask(t, c.GetID())
	err := h.HandleSpeakerRecognize(context.Background(), task)
	require.NoError(t, err)
	assert.Empty(t, sched.failed)
	assert.Len(t, sched.completed, 1)
}

func TestHandleMemoryExtract_FailureIsNonFatal(t *testing.T) {
	store := repositories.NewMemoryConversationRepository()
	c := entities.New("sess-1", "user-1", "client-1")
	require.NoError(t, c.AddTranscriptVersion(entities.TranscriptVersion{Transcript: "hello"}, true))
	require.NoError(t, store.Insert(context.Background(), c))

	sched := &fakeScheduler{}
	h := &Handlers{
		Store:     store,
		Scheduler: sched,
		Memory:    &fakeMemoryProvider{err: assertErr("memory provider down")},
	}

	task := newTask(t, c.GetID())
	err := h.HandleMemoryExtract(context.Background(), task)
	require.NoError(t, err)
	assert.Empty(t, sched.failed)
}

func TestHandleTitleSummary_WritesAllThreeFields(t *testing.T) {
	store := repositories.NewMemoryConversationRepository()
	c := entities.New("sess-1", "user-1", "client-1")
	require.NoError(t, c.AddTranscriptVersion(entities.TranscriptVersion{Transcript: "hello"}, true))
	require.NoError(t, store.Insert(context.Background(), c))

	sched := &fakeScheduler{}
	h := &Handlers{Store: store, Scheduler: sched, LLM: fakeLLM{}}

	task := newTask(t, c.GetID())
	require.NoError(t, h.HandleTitleSummary(context.Background(), task))

	got, err := store.FindByID(context.Background(), c.GetID())
	require.NoError(t, err)
	assert.Equal(t, "Title", got.Title)
	assert.Equal(t, "Summary", got.Summary)
	assert.Equal(t, "Detailed", got.DetailedSummary)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
