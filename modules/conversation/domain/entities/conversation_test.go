package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTranscriptVersion_SetActive_UpdatesPointerAndProjections(t *testing.T) {
	c := New("sess-1", "user-1", "client-1")

	err := c.AddTranscriptVersion(TranscriptVersion{Transcript: "hello world"}, true)
	require.NoError(t, err)

	assert.NotEmpty(t, c.ActiveTranscriptVersion)
	assert.Equal(t, "hello world", c.Transcript())
	assert.Equal(t, 1, c.TranscriptVersionCount())
}

func TestAddMemoryVersion_RejectsUnknownTranscriptVersionID(t *testing.T) {
	c := New("sess-1", "user-1", "client-1")

	err := c.AddMemoryVersion(MemoryVersion{TranscriptVersionID: "does-not-exist"}, true)
	assert.ErrorIs(t, err, errUnknownTranscriptID)
}

func TestAddMemoryVersion_AcceptsKnownTranscriptVersionID(t *testing.T) {
	c := New("sess-1", "user-1", "client-1")
	require.NoError(t, c.AddTranscriptVersion(TranscriptVersion{Transcript: "hi"}, true))

	err := c.AddMemoryVersion(MemoryVersion{TranscriptVersionID: c.ActiveTranscriptVersion, MemoryCount: 2}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, c.MemoryCount())
}

func TestSetActiveTranscriptVersion_RejectsUnknownID(t *testing.T) {
	c := New("sess-1", "user-1", "client-1")
	err := c.SetActiveTranscriptVersion("bogus")
	assert.ErrorIs(t, err, errUnknownVersion)
}

func TestSoftDelete_IsIdempotentAndBlocksFurtherMutation(t *testing.T) {
	c := New("sess-1", "user-1", "client-1")
	c.SoftDelete(DeletionNoMeaningfulSpeech)
	assert.True(t, c.Deleted)
	assert.NotNil(t, c.DeletedAt)

	firstDeletedAt := c.DeletedAt
	c.SoftDelete(DeletionAudioFileNotReady) // second call must not override reason/time
	assert.Equal(t, DeletionNoMeaningfulSpeech, c.DeletionReason)
	assert.Equal(t, firstDeletedAt, c.DeletedAt)

	err := c.AddTranscriptVersion(TranscriptVersion{Transcript: "late"}, true)
	assert.ErrorIs(t, err, errDeleted)
}

func TestReprocess_AppendsNewVersionWithoutMutatingPrevious(t *testing.T) {
	c := New("sess-1", "user-1", "client-1")
	require.NoError(t, c.AddTranscriptVersion(TranscriptVersion{Transcript: "v1"}, true))
	firstID := c.ActiveTranscriptVersion

	require.NoError(t, c.AddTranscriptVersion(TranscriptVersion{Transcript: "v2"}, true))

	assert.Len(t, c.TranscriptVersions, 2)
	assert.NotEqual(t, firstID, c.ActiveTranscriptVersion)
	assert.Equal(t, "v1", c.TranscriptVersions[0].Transcript)
	assert.Equal(t, "v2", c.Transcript())
}
