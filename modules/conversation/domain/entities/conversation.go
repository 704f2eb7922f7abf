package entities

import (
	"fmt"
	"time"

	"chronicle/server/seedwork/domain"
)

// EndReason is the closed set of ways a conversation can conclude
// healthily (§4.G, §7).
type EndReason string

const (
	EndUserStopped         EndReason = "user_stopped"
	EndInactivityTimeout   EndReason = "inactivity_timeout"
	EndWebsocketDisconnect EndReason = "websocket_disconnect"
	EndMaxDuration         EndReason = "max_duration"
)

// DeletionReason is the closed set of reasons a conversation is
// soft-deleted instead of reaching a healthy end_reason (§4.G, §7).
type DeletionReason string

const (
	DeletionNoMeaningfulSpeech DeletionReason = "no_meaningful_speech"
	DeletionAudioFileNotReady  DeletionReason = "audio_file_not_ready"
	DeletionInvariantViolation DeletionReason = "invariant_violation"
	DeletionUserRequested      DeletionReason = "user_requested"
)

// TranscriptVersion is one immutable transcription run, per §3.
type TranscriptVersion struct {
	VersionID             string         `json:"version_id"`
	Transcript            string         `json:"transcript"`
	Segments              []Segment      `json:"segments"`
	Provider              string         `json:"provider"`
	Model                 string         `json:"model,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	// DiarizationAnnotation carries an optional independent diarization
	// pass's opaque output (SPEC_FULL §3 supplemented field), restored
	// from the original source's separate diarization step.
	DiarizationAnnotation map[string]any `json:"diarization_annotation,omitempty"`
}

// Segment is one speaker turn within a transcript version.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// MemoryVersion is one immutable memory-extraction run, per §3.
type MemoryVersion struct {
	VersionID             string         `json:"version_id"`
	MemoryCount           int            `json:"memory_count"`
	TranscriptVersionID    string        `json:"transcript_version_id"`
	Provider              string         `json:"provider"`
	Model                 string         `json:"model,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// Conversation is the versioned document described in §3. Its version,
// active-pointer and soft-delete methods enforce invariants 1-4 at a
// single choke point; New fixes invariant 5 (audio_uuid is the session
// id). Invariant 6 concerns the session's conversation counter and is
// not tracked by this type.
type Conversation struct {
	domain.BaseEntity

	AudioUUID  string `json:"audio_uuid" gorm:"column:audio_uuid;index;not null"` // == session_id, invariant 5
	UserID     string `json:"user_id" gorm:"column:user_id;index;not null"`
	ClientID   string `json:"client_id" gorm:"column:client_id;not null"`

	// Supplemented fields (SPEC_FULL §3), present in the original source
	// but dropped by the distillation.
	Language   string `json:"language,omitempty" gorm:"column:language"`
	DeviceName string `json:"device_name,omitempty" gorm:"column:device_name"`

	AudioPath        string `json:"audio_path,omitempty" gorm:"column:audio_path"`
	CroppedAudioPath string `json:"cropped_audio_path,omitempty" gorm:"column:cropped_audio_path"`

	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`

	Deleted        bool           `json:"deleted" gorm:"column:deleted;not null;default:false"`
	DeletionReason DeletionReason `json:"deletion_reason,omitempty" gorm:"column:deletion_reason"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty" gorm:"column:deleted_at"`

	Title           string    `json:"title,omitempty" gorm:"column:title"`
	Summary         string    `json:"summary,omitempty" gorm:"column:summary"`
	DetailedSummary string    `json:"detailed_summary,omitempty" gorm:"column:detailed_summary"`
	EndReason       EndReason `json:"end_reason,omitempty" gorm:"column:end_reason"`

	TranscriptVersions []TranscriptVersion `json:"transcript_versions" gorm:"column:transcript_versions;type:jsonb;serializer:json"`
	MemoryVersions     []MemoryVersion     `json:"memory_versions" gorm:"column:memory_versions;type:jsonb;serializer:json"`

	ActiveTranscriptVersion string `json:"active_transcript_version,omitempty" gorm:"column:active_transcript_version"`
	ActiveMemoryVersion     string `json:"active_memory_version,omitempty" gorm:"column:active_memory_version"`
}

// TableName sets the table name for GORM.
func (Conversation) TableName() string { return "conversations" }

// New creates a conversation row with placeholder title/summary, owned
// by sessionID (its audio_uuid, invariant 5).
func New(sessionID, userID, clientID string) *Conversation {
	c := &Conversation{
		AudioUUID: sessionID,
		UserID:    userID,
		ClientID:  clientID,
	}
	c.SetID(domain.GenerateID())
	return c
}

var (
	errDeleted             = fmt.Errorf("conversation is deleted")
	errUnknownVersion      = fmt.Errorf("version id does not name an existing version")
	errUnknownTranscriptID = fmt.Errorf("memory version references an unknown transcript version")
)

// AddTranscriptVersion appends v, enforcing invariant 1 if setActive.
func (c *Conversation) AddTranscriptVersion(v TranscriptVersion, setActive bool) error {
	if c.Deleted {
		return errDeleted
	}
	if v.VersionID == "" {
		v.VersionID = domain.GenerateID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	c.TranscriptVersions = append(c.TranscriptVersions, v)
	if setActive {
		c.ActiveTranscriptVersion = v.VersionID
	}
	return nil
}

// AddMemoryVersion appends v, enforcing invariant 3 (its
// TranscriptVersionID must name an existing transcript version).
func (c *Conversation) AddMemoryVersion(v MemoryVersion, setActive bool) error {
	if c.Deleted {
		return errDeleted
	}
	if !c.hasTranscriptVersion(v.TranscriptVersionID) {
		return errUnknownTranscriptID
	}
	if v.VersionID == "" {
		v.VersionID = domain.GenerateID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	c.MemoryVersions = append(c.MemoryVersions, v)
	if setActive {
		c.ActiveMemoryVersion = v.VersionID
	}
	return nil
}

// SetActiveTranscriptVersion flips the active pointer, enforcing
// invariant 1.
func (c *Conversation) SetActiveTranscriptVersion(versionID string) error {
	if c.Deleted {
		return errDeleted
	}
	if !c.hasTranscriptVersion(versionID) {
		return errUnknownVersion
	}
	c.ActiveTranscriptVersion = versionID
	return nil
}

// SetActiveMemoryVersion flips the active pointer, enforcing invariant 2.
func (c *Conversation) SetActiveMemoryVersion(versionID string) error {
	if c.Deleted {
		return errDeleted
	}
	for _, v := range c.MemoryVersions {
		if v.VersionID == versionID {
			c.ActiveMemoryVersion = versionID
			return nil
		}
	}
	return errUnknownVersion
}

// SoftDelete marks the conversation deleted, per invariant 4. Further
// mutation through this type's methods is rejected thereafter.
func (c *Conversation) SoftDelete(reason DeletionReason) {
	if c.Deleted {
		return
	}
	c.Deleted = true
	c.DeletionReason = reason
	now := time.Now()
	c.DeletedAt = &now
}

// Complete sets end_reason and completed_at, the terminal healthy path.
func (c *Conversation) Complete(reason EndReason) {
	c.EndReason = reason
	now := time.Now()
	c.CompletedAt = &now
}

func (c *Conversation) hasTranscriptVersion(id string) bool {
	for _, v := range c.TranscriptVersions {
		if v.VersionID == id {
			return true
		}
	}
	return false
}

// ActiveTranscript is the computed projection over ActiveTranscriptVersion.
func (c *Conversation) ActiveTranscript() (TranscriptVersion, bool) {
	for _, v := range c.TranscriptVersions {
		if v.VersionID == c.ActiveTranscriptVersion {
			return v, true
		}
	}
	return TranscriptVersion{}, false
}

// ActiveMemory is the computed projection over ActiveMemoryVersion.
func (c *Conversation) ActiveMemory() (MemoryVersion, bool) {
	for _, v := range c.MemoryVersions {
		if v.VersionID == c.ActiveMemoryVersion {
			return v, true
		}
	}
	return MemoryVersion{}, false
}

// Transcript is the computed projection: the active transcript's text.
func (c *Conversation) Transcript() string {
	if v, ok := c.ActiveTranscript(); ok {
		return v.Transcript
	}
	return ""
}

// Segments is the computed projection: the active transcript's segments.
func (c *Conversation) Segments() []Segment {
	if v, ok := c.ActiveTranscript(); ok {
		return v.Segments
	}
	return nil
}

func (c *Conversation) SegmentCount() int { return len(c.Segments()) }

func (c *Conversation) MemoryCount() int {
	if v, ok := c.ActiveMemory(); ok {
		return v.MemoryCount
	}
	return 0
}

func (c *Conversation) HasMemory() bool { return c.MemoryCount() > 0 }

func (c *Conversation) TranscriptVersionCount() int { return len(c.TranscriptVersions) }

func (c *Conversation) MemoryVersionCount() int { return len(c.MemoryVersions) }

// IsTerminal reports whether the conversation has reached a healthy end
// or been soft-deleted.
func (c *Conversation) IsTerminal() bool {
	return c.Deleted || c.EndReason != ""
}

// RenameSpeakers rewrites speaker labels on the active transcript
// version's segments in place (§4.I's first-listed policy for S: mutate
// the active version rather than emit a new one — see DESIGN.md). A
// label absent from mapping is left untouched.
func (c *Conversation) RenameSpeakers(mapping map[string]string) error {
	if c.Deleted {
		return errDeleted
	}
	for i := range c.TranscriptVersions {
		if c.TranscriptVersions[i].VersionID != c.ActiveTranscriptVersion {
			continue
		}
		segs := c.TranscriptVersions[i].Segments
		for j := range segs {
			if renamed, ok := mapping[segs[j].Speaker]; ok {
				segs[j].Speaker = renamed
			}
		}
		return nil
	}
	return errUnknownVersion
}

// SetCroppedAudioPath records X's output, per §4.I.
func (c *Conversation) SetCroppedAudioPath(path string) error {
	if c.Deleted {
		return errDeleted
	}
	c.CroppedAudioPath = path
	return nil
}

// SetTitleSummary records U's three LLM outputs, per §4.I.
func (c *Conversation) SetTitleSummary(title, summary, detailedSummary string) error {
	if c.Deleted {
		return errDeleted
	}
	c.Title = title
	c.Summary = summary
	c.DetailedSummary = detailedSummary
	return nil
}
