package providers

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"chronicle/server/modules/transcription/domain/streaming"
	"chronicle/server/modules/transcription/infrastructure/providers/assemblyai"
)

// AssemblyAIBatchProvider implements streaming.BatchTranscriptionProvider
// (job T, §4.I) by uploading a finalized conversation's audio straight to
// AssemblyAI and waiting for the transcript, using the local assemblyai
// client package. Unlike the teacher's AssemblyAIProvider, it never
// touches Firebase Storage — audio already lives on local/GCS storage
// (§6's Conversation Store concern), so there is nothing to re-upload
// before handing the bytes to AssemblyAI.
type AssemblyAIBatchProvider struct {
	client *assemblyai.Client
}

// NewAssemblyAIBatchProvider builds a provider against AssemblyAI's
// default (US) API endpoint.
func NewAssemblyAIBatchProvider(apiKey string) *AssemblyAIBatchProvider {
	return &AssemblyAIBatchProvider{client: assemblyai.NewClient(apiKey)}
}

func (p *AssemblyAIBatchProvider) Name() string { return "assemblyai" }

// Transcribe uploads audio, requests a diarized transcript when diarize
// is set, and blocks until AssemblyAI finishes processing it.
func (p *AssemblyAIBatchProvider) Transcribe(ctx context.Context, audio []byte, sampleRate int, diarize bool) (streaming.Result, error) {
	upload, err := p.client.UploadFile(ctx, bytes.NewReader(audio))
	if err != nil {
		return streaming.Result{}, fmt.Errorf("upload audio to assemblyai: %w", err)
	}

	request := assemblyai.NewTranscriptRequest(upload.UploadURL).WithSpeakerLabels(diarize)
	created, err := p.client.CreateTranscript(ctx, request)
	if err != nil {
		return streaming.Result{}, fmt.Errorf("create assemblyai transcript: %w", err)
	}

	transcript, err := p.client.WaitForTranscript(ctx, created.ID, 0)
	if err != nil {
		return streaming.Result{}, fmt.Errorf("wait for assemblyai transcript: %w", err)
	}

	return toResult(transcript), nil
}

func toResult(t *assemblyai.Transcript) streaming.Result {
	var result streaming.Result
	if t.Text != nil {
		result.Text = *t.Text
	}
	result.IsFinal = true

	for _, w := range t.Words {
		result.Words = append(result.Words, streaming.Word{
			Text:       w.Text,
			Start:      msToDuration(w.Start),
			End:        msToDuration(w.End),
			Confidence: w.Confidence,
		})
	}

	for _, u := range t.Utterances {
		speaker := u.Speaker
		if speaker == "" {
			speaker = "Speaker Unknown"
		}
		result.Segments = append(result.Segments, streaming.Segment{
			Start:      msToDuration(u.Start),
			End:        msToDuration(u.End),
			Speaker:    speaker,
			Text:       u.Text,
			Confidence: u.Confidence,
		})
	}

	return result
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
