package assemblyai

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// CreateTranscript creates a new transcript
func (c *Client) CreateTranscript(ctx context.Context, request *TranscriptRequest) (*Transcript, error) {
	resp, err := c.makeRequest(ctx, http.MethodPost, "/transcript", request)
	if err != nil {
		return nil, err
	}

	var transcript Transcript
	if err := c.handleResponse(resp, &transcript); err != nil {
		return nil, err
	}

	return &transcript, nil
}

// GetTranscript retrieves a transcript by ID
func (c *Client) GetTranscript(ctx context.Context, transcriptID string) (*Transcript, error) {
	endpoint := fmt.Sprintf("/transcript/%s", transcriptID)
	resp, err := c.makeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var transcript Transcript
	if err := c.handleResponse(resp, &transcript); err != nil {
		return nil, err
	}

	return &transcript, nil
}

// WaitForTranscript polls a transcript until it completes or errors,
// defaulting to a 3s poll interval.
func (c *Client) WaitForTranscript(ctx context.Context, transcriptID string, pollInterval time.Duration) (*Transcript, error) {
	if pollInterval == 0 {
		pollInterval = 3 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			transcript, err := c.GetTranscript(ctx, transcriptID)
			if err != nil {
				return nil, err
			}

			switch transcript.Status {
			case StatusCompleted:
				return transcript, nil
			case StatusError:
				if transcript.Error != nil {
					return nil, fmt.Errorf("transcript failed: %s", *transcript.Error)
				}
				return nil, fmt.Errorf("transcript failed with unknown error")
			case StatusQueued, StatusProcessing:
				continue
			default:
				return nil, fmt.Errorf("unknown transcript status: %s", transcript.Status)
			}
		}
	}
}
