package infrastructure

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"chronicle/server/jobs/domain"
)

func newTestScheduler(t *testing.T) (*Scheduler, *MemoryRepository) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewMemoryRepository()
	return NewScheduler(repo, client), repo
}

func TestScheduler_SubmitChain_HeadDispatchesTailStaysDeferred(t *testing.T) {
	ctx := context.Background()
	sched, repo := newTestScheduler(t)

	head := domain.New(domain.QueueTranscription, FuncTranscribeBatch, nil, domain.Meta{AudioUUID: "sess-1"}, nil)
	tail := domain.New(domain.QueueTranscription, FuncSpeakerRecognize, nil, domain.Meta{}, nil)

	require.NoError(t, sched.SubmitChain(ctx, []*domain.Job{head, tail}))

	got, err := repo.FindByID(ctx, head.GetID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, got.Status)
	require.NotEmpty(t, got.AsynqTaskID)

	gotTail, err := repo.FindByID(ctx, tail.GetID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusDeferred, gotTail.Status)
	require.Equal(t, "sess-1", gotTail.AudioUUID)
}

func TestScheduler_OnComplete_PromotesReadyDependentAndCascadesMeta(t *testing.T) {
	ctx := context.Background()
	sched, repo := newTestScheduler(t)

	head := domain.New(domain.QueueTranscription, FuncTranscribeBatch, nil, domain.Meta{AudioUUID: "sess-1", ConversationID: "conv-1"}, nil)
	tail := domain.New(domain.QueueTranscription, FuncSpeakerRecognize, nil, domain.Meta{}, []string{head.GetID()})

	require.NoError(t, repo.Insert(ctx, head))
	require.NoError(t, repo.Insert(ctx, tail))

	require.NoError(t, sched.OnComplete(ctx, head.GetID()))

	gotHead, err := repo.FindByID(ctx, head.GetID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, gotHead.Status)

	gotTail, err := repo.FindByID(ctx, tail.GetID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, gotTail.Status)
	require.Equal(t, "conv-1", gotTail.ConversationID)
	require.NotEmpty(t, gotTail.AsynqTaskID)
}

func TestScheduler_OnFail_DefersDependentsForeverTransitively(t *testing.T) {
	ctx := context.Background()
	sched, repo := newTestScheduler(t)

	t0 := domain.New(domain.QueueTranscription, FuncTranscribeBatch, nil, domain.Meta{}, nil)
	s1 := domain.New(domain.QueueTranscription, FuncSpeakerRecognize, nil, domain.Meta{}, []string{t0.GetID()})
	x2 := domain.New(domain.QueueDefault, FuncCrop, nil, domain.Meta{}, []string{s1.GetID()})

	require.NoError(t, repo.Insert(ctx, t0))
	require.NoError(t, repo.Insert(ctx, s1))
	require.NoError(t, repo.Insert(ctx, x2))

	require.NoError(t, sched.OnFail(ctx, t0.GetID(), "provider unavailable"))

	gotS1, err := repo.FindByID(ctx, s1.GetID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusDeferredForever, gotS1.Status)

	gotX2, err := repo.FindByID(ctx, x2.GetID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusDeferredForever, gotX2.Status)
}

func TestScheduler_OnComplete_PromotesEveryDependentOfCompletedJob(t *testing.T) {
	ctx := context.Background()
	sched, repo := newTestScheduler(t)

	x := domain.New(domain.QueueDefault, FuncCrop, nil, domain.Meta{}, nil)
	mem := domain.New(domain.QueueMemory, FuncMemoryExtract, nil, domain.Meta{}, []string{x.GetID()})
	u := domain.New(domain.QueueDefault, FuncTitleSummary, nil, domain.Meta{}, []string{x.GetID()})

	require.NoError(t, repo.Insert(ctx, x))
	require.NoError(t, repo.Insert(ctx, mem))
	require.NoError(t, repo.Insert(ctx, u))

	require.NoError(t, sched.OnComplete(ctx, x.GetID()))

	gotMem, err := repo.FindByID(ctx, mem.GetID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, gotMem.Status)

	gotU, err := repo.FindByID(ctx, u.GetID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, gotU.Status)
}
