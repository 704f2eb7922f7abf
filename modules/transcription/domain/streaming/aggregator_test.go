package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/server/seedwork/infrastructure/bus"
)

func TestCompute_ConcatenatesTextWordsAndSegmentsInStreamOrder(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemoryBus()
	_, resultsStream := bus.StreamNames("sess-1")

	first := Result{Text: "hello", Words: []Word{{Text: "hello", Start: 0, End: time.Second}}, IsFinal: true}
	second := Result{Text: "world", Words: []Word{{Text: "world", Start: time.Second, End: 2 * time.Second}}, IsFinal: true}

	p1, err := EncodeResult(first)
	require.NoError(t, err)
	p2, err := EncodeResult(second)
	require.NoError(t, err)

	_, err = b.Append(ctx, resultsStream, p1)
	require.NoError(t, err)
	_, err = b.Append(ctx, resultsStream, p2)
	require.NoError(t, err)

	agg, err := Compute(ctx, b, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "hello world", agg.Text)
	assert.Len(t, agg.Words, 2)
	assert.Equal(t, 2, agg.ChunkCount)
}

func TestAggregate_WordCount_SplitsOnWhitespaceOnly(t *testing.T) {
	a := Aggregate{Text: "  the quick\tbrown fox  "}
	assert.Equal(t, 4, a.WordCount())
}

func TestAggregate_WordCount_EmptyTextIsZero(t *testing.T) {
	a := Aggregate{Text: ""}
	assert.Equal(t, 0, a.WordCount())
}
