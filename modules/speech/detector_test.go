package speech

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chronicle/server/modules/transcription/domain/streaming"
)

func TestIsMeaningful_WordLevelData_RequiresCountAndDurationSpan(t *testing.T) {
	thresholds := Defaults()

	agg := streaming.Aggregate{Words: wordsAt(0, 1, 2, 3, 4, 12)} // spans 12s, 6 qualifying words
	assert.True(t, IsMeaningful(agg, thresholds))

	short := streaming.Aggregate{Words: wordsAt(0, 1, 2, 3, 4)} // 5 words but 4s span
	assert.False(t, IsMeaningful(short, thresholds))
}

func TestIsMeaningful_LowConfidenceWordsAreExcludedFromCount(t *testing.T) {
	thresholds := Defaults()
	words := wordsAt(0, 1, 2, 3, 4, 12)
	words[0].Confidence = 0.1 // below C_MIN: with words[1] also excluded, 4 qualifying words remain
	words[1].Confidence = 0.1
	agg := streaming.Aggregate{Words: words}
	assert.False(t, IsMeaningful(agg, thresholds))
}

func TestIsMeaningful_TextOnlyFallback_UsesWordCount(t *testing.T) {
	thresholds := Defaults()
	agg := streaming.Aggregate{Text: "one two three four five"}
	assert.True(t, IsMeaningful(agg, thresholds))

	agg = streaming.Aggregate{Text: "one two"}
	assert.False(t, IsMeaningful(agg, thresholds))
}

func wordsAt(seconds ...int) []streaming.Word {
	out := make([]streaming.Word, len(seconds))
	for i, s := range seconds {
		out[i] = streaming.Word{Text: "w", End: time.Duration(s) * time.Second, Confidence: 0.9}
	}
	return out
}
