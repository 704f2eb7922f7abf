package assemblyai

// Bool returns a pointer to the bool value, for AssemblyAI's
// present/absent-vs-false optional request fields.
func Bool(v bool) *bool {
	return &v
}

// NewTranscriptRequest creates a new TranscriptRequest with common defaults
func NewTranscriptRequest(audioURL string) *TranscriptRequest {
	return &TranscriptRequest{
		AudioURL:   audioURL,
		Punctuate:  Bool(true),
		FormatText: Bool(true),
	}
}

// WithSpeakerLabels enables speaker labels for the transcript request
func (tr *TranscriptRequest) WithSpeakerLabels(enabled bool) *TranscriptRequest {
	tr.SpeakerLabels = Bool(enabled)
	return tr
}
