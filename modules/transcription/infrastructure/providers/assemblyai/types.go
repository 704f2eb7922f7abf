package assemblyai

import (
	"fmt"
)

// APIError represents an error response from the AssemblyAI API
type APIError struct {
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("AssemblyAI API error (status %d): %s", e.StatusCode, e.Message)
}

// TranscriptStatus represents the status of a transcript
type TranscriptStatus string

const (
	StatusQueued     TranscriptStatus = "queued"
	StatusProcessing TranscriptStatus = "processing"
	StatusCompleted  TranscriptStatus = "completed"
	StatusError      TranscriptStatus = "error"
)

// TranscriptRequest represents a request to create a transcript. Only the
// fields the batch provider sets are kept; AssemblyAI ignores the rest of
// its request schema when absent.
type TranscriptRequest struct {
	AudioURL      string `json:"audio_url"`
	Punctuate     *bool  `json:"punctuate,omitempty"`
	FormatText    *bool  `json:"format_text,omitempty"`
	SpeakerLabels *bool  `json:"speaker_labels,omitempty"`
}

// Transcript represents a transcript response. Only the fields the batch
// provider reads are kept; json.Unmarshal silently drops the rest of
// AssemblyAI's response body.
type Transcript struct {
	ID         string           `json:"id"`
	Status     TranscriptStatus `json:"status"`
	Text       *string          `json:"text"`
	Words      []Word           `json:"words"`
	Utterances []Utterance      `json:"utterances"`
	Error      *string          `json:"error"`
}

// Word represents a word in the transcript
type Word struct {
	Confidence float64 `json:"confidence"`
	End        int     `json:"end"`
	Start      int     `json:"start"`
	Text       string  `json:"text"`
}

// Utterance represents a speaker-labeled utterance in the transcript
type Utterance struct {
	Confidence float64 `json:"confidence"`
	End        int     `json:"end"`
	Start      int     `json:"start"`
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker"`
}

// UploadResponse represents the response from uploading a file
type UploadResponse struct {
	UploadURL string `json:"upload_url"`
}
