package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/server/modules/conversation/domain/entities"
	"chronicle/server/modules/conversation/infrastructure/repositories"
	"chronicle/server/modules/transcription/domain/streaming"
)

type fakeSession struct {
	mu              sync.Mutex
	active          bool
	reason          string
	currentConv     map[string]string
	audioFiles      map[string]string
	incrementCalls  int
	rearmCalled     bool
	stillActiveFlag bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		active:      true,
		currentConv: make(map[string]string),
		audioFiles:  make(map[string]string),
	}
}

func (f *fakeSession) Status(ctx context.Context, sessionID string) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.reason, nil
}
func (f *fakeSession) SetCurrentConversation(ctx context.Context, sessionID, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentConv[sessionID] = conversationID
	return nil
}
func (f *fakeSession) ClearCurrentConversation(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.currentConv, sessionID)
	return nil
}
func (f *fakeSession) AudioFile(ctx context.Context, conversationID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.audioFiles[conversationID]
	return p, ok, nil
}
func (f *fakeSession) IncrementConversationCount(ctx context.Context, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incrementCalls++
	return f.incrementCalls, nil
}
func (f *fakeSession) DeleteResultsStream(ctx context.Context, sessionID string) error { return nil }
func (f *fakeSession) CompleteSessionRecord(ctx context.Context, sessionID string) error { return nil }
func (f *fakeSession) SessionStillActive(ctx context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stillActiveFlag, nil
}

type fakeAggregator struct {
	mu  sync.Mutex
	agg streaming.Aggregate
}

func (f *fakeAggregator) Compute(ctx context.Context, sessionID string) (streaming.Aggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agg, nil
}

type fakeJobs struct {
	mu               sync.Mutex
	chainEnqueued    bool
	chainMeta        map[string]any
	rearmed          bool
}

func (f *fakeJobs) EnqueuePostProcessingChain(ctx context.Context, conversationID string, meta map[string]any) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainEnqueued = true
	f.chainMeta = meta
	return map[string]string{"transcribe_batch": "job-t", "speaker_recognize": "job-s", "memory_extract": "job-m"}, nil
}
func (f *fakeJobs) SelfZombied(ctx context.Context, jobID string) (bool, error) { return false, nil }
func (f *fakeJobs) UpdateMeta(ctx context.Context, jobID string, meta map[string]any) error { return nil }
func (f *fakeJobs) RearmSpeechDetection(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rearmed = true
	return nil
}

func fastConfig() Config {
	return Config{
		TickInterval:        time.Millisecond,
		MaxRuntime:          time.Hour,
		InactivityThreshold: 5 * time.Millisecond,
		AudioFileWait:       50 * time.Millisecond,
	}
}

func TestController_InactivityTimeout_EnqueuesChainAndRearmsSpeechDetection(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewMemoryConversationRepository()
	session := newFakeSession()
	session.stillActiveFlag = true
	session.audioFiles["will-be-set"] = "" // placeholder; set below once conversation id is known

	agg := &fakeAggregator{agg: streaming.Aggregate{Text: "one two three four five"}}
	jobs := &fakeJobs{}

	c := entities.New("sess-1", "user-1", "client-1")
	session.audioFiles[c.GetID()] = "sess-1/" + c.GetID() + ".wav"

	ctl := &Controller{Store: store, Session: session, Aggregator: agg, Jobs: jobs, Config: fastConfig()}

	err := ctl.Run(ctx, c, "sess-1", "job-1")
	require.NoError(t, err)

	assert.Equal(t, entities.EndInactivityTimeout, c.EndReason)
	assert.NotNil(t, c.CompletedAt)
	assert.True(t, jobs.chainEnqueued)
	assert.Equal(t, "sess-1", jobs.chainMeta["audio_uuid"])
	assert.True(t, jobs.rearmed)
}

func TestController_NoAudioFileWithinDeadline_SoftDeletesAudioFileNotReady(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewMemoryConversationRepository()
	session := newFakeSession()
	agg := &fakeAggregator{agg: streaming.Aggregate{Text: "one two three four five"}}
	jobs := &fakeJobs{}

	c := entities.New("sess-1", "user-1", "client-1")
	// No audio file is ever published for this conversation id.

	ctl := &Controller{Store: store, Session: session, Aggregator: agg, Jobs: jobs, Config: fastConfig()}

	err := ctl.Run(ctx, c, "sess-1", "job-1")
	require.NoError(t, err)

	assert.True(t, c.Deleted)
	assert.Equal(t, entities.DeletionAudioFileNotReady, c.DeletionReason)
	assert.False(t, jobs.chainEnqueued)
}

func TestController_UserStopWithoutSpeech_SoftDeletesNoMeaningfulSpeech(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewMemoryConversationRepository()
	session := newFakeSession()
	agg := &fakeAggregator{} // never accumulates speech

	go func() {
		time.Sleep(3 * time.Millisecond)
		session.mu.Lock()
		session.active = false
		session.reason = "user_stopped"
		session.mu.Unlock()
	}()

	jobs := &fakeJobs{}
	c := entities.New("sess-1", "user-1", "client-1")
	ctl := &Controller{Store: store, Session: session, Aggregator: agg, Jobs: jobs, Config: fastConfig()}

	err := ctl.Run(ctx, c, "sess-1", "job-1")
	require.NoError(t, err)

	assert.True(t, c.Deleted)
	assert.Equal(t, entities.DeletionNoMeaningfulSpeech, c.DeletionReason)
}
