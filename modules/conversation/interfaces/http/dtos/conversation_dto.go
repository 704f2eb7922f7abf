// Package dtos declares the HTTP request/response shapes for the
// Conversation Store's read/CRUD/version surface (§6), following the
// teacher's `modules/meeting/interfaces/http/dtos` convention of one
// file per module holding request structs plus To*Response converters.
package dtos

import (
	"time"

	"chronicle/server/modules/conversation/domain/entities"
)

// ConversationResponse is the read projection returned by the list/get
// endpoints: the active transcript/memory plus version counts, not the
// full version history (see VersionsResponse for that).
type ConversationResponse struct {
	ID               string              `json:"id"`
	AudioUUID        string              `json:"audio_uuid"`
	UserID           string              `json:"user_id"`
	ClientID         string              `json:"client_id"`
	Title            string              `json:"title,omitempty"`
	Summary          string              `json:"summary,omitempty"`
	DetailedSummary  string              `json:"detailed_summary,omitempty"`
	EndReason        entities.EndReason  `json:"end_reason,omitempty"`
	Deleted          bool                `json:"deleted"`
	Transcript       string              `json:"transcript,omitempty"`
	Segments         []entities.Segment  `json:"segments,omitempty"`
	SegmentCount     int                 `json:"segment_count"`
	MemoryCount      int                 `json:"memory_count"`
	TranscriptCount  int                 `json:"transcript_version_count"`
	MemoryVersionNum int                 `json:"memory_version_count"`
	AudioPath        string              `json:"audio_path,omitempty"`
	CroppedAudioPath string              `json:"cropped_audio_path,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// ConversationsListResponse wraps a page of ConversationResponse.
type ConversationsListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	Total         int                    `json:"total"`
}

// VersionsResponse is the full transcript/memory version history for
// GET /conversations/{id}/versions.
type VersionsResponse struct {
	TranscriptVersions      []entities.TranscriptVersion `json:"transcript_versions"`
	MemoryVersions          []entities.MemoryVersion     `json:"memory_versions"`
	ActiveTranscriptVersion string                       `json:"active_transcript_version,omitempty"`
	ActiveMemoryVersion     string                       `json:"active_memory_version,omitempty"`
}

// UploadResponseItem is the per-file response shape the batch upload
// protocol (§6) returns.
type UploadResponseItem struct {
	ConversationID   string  `json:"conversation_id"`
	TranscriptJobID  string  `json:"transcript_job_id"`
	SpeakerJobID     string  `json:"speaker_job_id"`
	MemoryJobID      string  `json:"memory_job_id"`
	DurationSeconds  float64 `json:"duration_seconds"`
	Status           string  `json:"status"`
}

// ToConversationResponse projects an entities.Conversation into its
// read-surface DTO.
func ToConversationResponse(c *entities.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:               c.GetID(),
		AudioUUID:        c.AudioUUID,
		UserID:           c.UserID,
		ClientID:         c.ClientID,
		Title:            c.Title,
		Summary:          c.Summary,
		DetailedSummary:  c.DetailedSummary,
		EndReason:        c.EndReason,
		Deleted:          c.Deleted,
		Transcript:       c.Transcript(),
		Segments:         c.Segments(),
		SegmentCount:     c.SegmentCount(),
		MemoryCount:      c.MemoryCount(),
		TranscriptCount:  c.TranscriptVersionCount(),
		MemoryVersionNum: c.MemoryVersionCount(),
		AudioPath:        c.AudioPath,
		CroppedAudioPath: c.CroppedAudioPath,
		CompletedAt:      c.CompletedAt,
		CreatedAt:        c.GetCreatedAt(),
		UpdatedAt:        c.GetUpdatedAt(),
	}
}

// ToConversationsListResponse projects a slice of conversations.
func ToConversationsListResponse(cs []*entities.Conversation) ConversationsListResponse {
	out := make([]ConversationResponse, len(cs))
	for i, c := range cs {
		out[i] = ToConversationResponse(c)
	}
	return ConversationsListResponse{Conversations: out, Total: len(out)}
}

// ToVersionsResponse projects a conversation's full version history.
func ToVersionsResponse(c *entities.Conversation) VersionsResponse {
	return VersionsResponse{
		TranscriptVersions:      c.TranscriptVersions,
		MemoryVersions:          c.MemoryVersions,
		ActiveTranscriptVersion: c.ActiveTranscriptVersion,
		ActiveMemoryVersion:     c.ActiveMemoryVersion,
	}
}
