package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"chronicle/server/modules/conversation/domain/entities"
)

// HTTPSpeakerRecognitionService implements SpeakerRecognitionService
// against an internal speaker-recognition microservice: it reads the
// audio file at audioPath, posts it and the diarization segments to the
// service's /recognize endpoint, and maps the returned speaker-label
// mapping back for job S to apply. If the service cannot be reached at
// all, Recognize reports ErrServiceUnavailable so the caller keeps
// segments unlabeled rather than failing the dependency chain.
type HTTPSpeakerRecognitionService struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPSpeakerRecognitionService builds a client against baseURL
// (e.g. "http://speaker-recognition.internal").
func NewHTTPSpeakerRecognitionService(baseURL, apiKey string) *HTTPSpeakerRecognitionService {
	return &HTTPSpeakerRecognitionService{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type recognizeSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

type recognizeRequest struct {
	UserID   string             `json:"user_id"`
	Segments []recognizeSegment `json:"segments"`
}

type recognizeResponse struct {
	Mapping map[string]string `json:"mapping"`
}

func (s *HTTPSpeakerRecognitionService) Recognize(ctx context.Context, userID, audioPath string, segments []entities.Segment) (map[string]string, error) {
	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	defer audio.Close()

	reqPayload := recognizeRequest{UserID: userID}
	for _, seg := range segments {
		reqPayload.Segments = append(reqPayload.Segments, recognizeSegment{
			Start:   seg.Start,
			End:     seg.End,
			Speaker: seg.Speaker,
		})
	}
	metadata, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal recognize request: %w", err)
	}

	var body bytes.Buffer
	body.Write(metadata)
	body.WriteByte('\n')
	if _, err := io.Copy(&body, audio); err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/recognize", &body)
	if err != nil {
		return nil, fmt.Errorf("create recognize request: %w", err)
	}
	req.Header.Set("Authorization", s.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, ErrServiceUnavailable
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("speaker recognition service returned HTTP %d: %s", resp.StatusCode, string(data))
	}

	var result recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode recognize response: %w", err)
	}
	return result.Mapping, nil
}
