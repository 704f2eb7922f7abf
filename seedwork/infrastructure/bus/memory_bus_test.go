package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_AppendAndReadGroup_DeliversEachEntryOnce(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	_, err := b.Append(ctx, "audio.bytes.s1", map[string]string{"seq": "1"})
	require.NoError(t, err)
	_, err = b.Append(ctx, "audio.bytes.s1", map[string]string{"seq": "2"})
	require.NoError(t, err)

	entries, err := b.Read(ctx, "audio.bytes.s1", "persistence", "c1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// A second read from the same group sees nothing new: group-scoped
	// reads never redeliver; unacked entries come back only via ClaimIdle.
	entries, err = b.Read(ctx, "audio.bytes.s1", "persistence", "c1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryBus_IndependentConsumerGroups_BothSeeAllEntries(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	_, _ = b.Append(ctx, "audio.bytes.s1", map[string]string{"seq": "1"})

	persistence, err := b.Read(ctx, "audio.bytes.s1", "persistence", "c1", 10, 0)
	require.NoError(t, err)
	transcription, err := b.Read(ctx, "audio.bytes.s1", "transcription", "c1", 10, 0)
	require.NoError(t, err)

	assert.Len(t, persistence, 1)
	assert.Len(t, transcription, 1)
}

func TestMemoryBus_ClaimIdle_ReclaimsUnackedEntriesPastThreshold(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	_, _ = b.Append(ctx, "audio.bytes.s1", map[string]string{"seq": "1"})
	_, err := b.Read(ctx, "audio.bytes.s1", "persistence", "c1", 10, 0)
	require.NoError(t, err)

	reclaimed, err := b.ClaimIdle(ctx, "audio.bytes.s1", "persistence", "c2", -time.Second)
	require.NoError(t, err)
	assert.Len(t, reclaimed, 1)

	// Reclaimed entries are ack'd by ClaimIdle, so a second claim finds none.
	reclaimed, err = b.ClaimIdle(ctx, "audio.bytes.s1", "persistence", "c2", -time.Second)
	require.NoError(t, err)
	assert.Empty(t, reclaimed)
}

func TestMemoryBus_Delete_RemovesStreamAndPending(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	_, _ = b.Append(ctx, "transcription.results.s1", map[string]string{"text": "hi"})

	require.NoError(t, b.Delete(ctx, "transcription.results.s1"))

	length, err := b.Len(ctx, "transcription.results.s1")
	require.NoError(t, err)
	assert.Zero(t, length)
}
