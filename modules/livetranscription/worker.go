// Package livetranscription implements the Live Transcription Worker
// (§4.D): a per-session drain of the byte stream's "transcription"
// consumer group, independent of the Audio Persistence Worker's
// "persistence" group on the same stream, forwarding chunks to a
// StreamingTranscriptionProvider and publishing its final emissions to
// the result stream the Results Aggregator (§4.E) reads.
package livetranscription

import (
	"context"
	"fmt"
	"time"

	sessiondomain "chronicle/server/modules/session/domain"
	"chronicle/server/modules/transcription/domain/streaming"
	"chronicle/server/seedwork/infrastructure/bus"
)

// Registry is the narrow seam used to decide when to stop draining.
type Registry interface {
	Get(ctx context.Context, sessionID string) (*sessiondomain.Session, error)
}

const consumerGroup = "transcription"

// Worker drains one session's byte stream through a live provider
// session and republishes its final results.
type Worker struct {
	Bus      bus.Bus
	Provider streaming.StreamingTranscriptionProvider
	Registry Registry

	SampleRate int
	Diarize    bool

	MaxBatch int64
	BlockFor time.Duration
	Consumer string
}

// NewWorker builds a Worker with the engine's default poll batching.
func NewWorker(b bus.Bus, provider streaming.StreamingTranscriptionProvider, registry Registry, sampleRate int, diarize bool) *Worker {
	return &Worker{
		Bus:        b,
		Provider:   provider,
		Registry:   registry,
		SampleRate: sampleRate,
		Diarize:    diarize,
		MaxBatch:   64,
		BlockFor:   2 * time.Second,
		Consumer:   "transcription-worker",
	}
}

// Run opens one provider stream session for clientID and forwards every
// chunk on sessionID's byte stream to it until ctx is cancelled or the
// session reaches a terminal status, at which point the stream is
// flushed via EndStream and its trailing final result (if any) is
// published before returning.
//
// Backpressure between interim and final results (§4.D) is left to the
// provider: Worker forwards every chunk unconditionally and only ever
// republishes IsFinal results, so a provider that drops its own interim
// buffer under load never causes Worker to drop a final.
func (w *Worker) Run(ctx context.Context, sessionID, clientID string) error {
	bytesStream, resultsStream := bus.StreamNames(sessionID)
	if err := w.Bus.EnsureGroup(ctx, bytesStream, consumerGroup); err != nil {
		return fmt.Errorf("ensure transcription group: %w", err)
	}

	stream, err := w.Provider.StartStream(ctx, clientID, w.SampleRate, w.Diarize)
	if err != nil {
		return fmt.Errorf("start provider stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return w.flush(ctx, resultsStream, stream, ctx.Err())
		default:
		}

		entries, err := w.Bus.Read(ctx, bytesStream, consumerGroup, w.Consumer, w.MaxBatch, w.BlockFor)
		if err != nil {
			return fmt.Errorf("read byte stream: %w", err)
		}

		for _, e := range entries {
			if err := w.handleEntry(ctx, resultsStream, stream, e); err != nil {
				return err
			}
			if err := w.Bus.Ack(ctx, bytesStream, consumerGroup, e.ID); err != nil {
				return fmt.Errorf("ack entry %s: %w", e.ID, err)
			}
		}

		terminal, err := w.sessionTerminal(ctx, sessionID)
		if err != nil {
			return err
		}
		if terminal {
			return w.flush(ctx, resultsStream, stream, nil)
		}
	}
}

func (w *Worker) sessionTerminal(ctx context.Context, sessionID string) (bool, error) {
	s, err := w.Registry.Get(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("get session: %w", err)
	}
	return s.IsTerminal(), nil
}

func (w *Worker) handleEntry(ctx context.Context, resultsStream string, stream streaming.StreamSession, e bus.Entry) error {
	chunk, err := streaming.DecodeChunk(e.Payload)
	if err != nil {
		// A corrupt entry is dropped rather than retried forever.
		return nil
	}
	result, ok, err := stream.ProcessChunk(chunk.Data)
	if err != nil {
		return fmt.Errorf("process chunk: %w", err)
	}
	if !ok || !result.IsFinal {
		return nil
	}
	return w.publish(ctx, resultsStream, result)
}

func (w *Worker) publish(ctx context.Context, resultsStream string, result streaming.Result) error {
	payload, err := streaming.EncodeResult(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if _, err := w.Bus.Append(ctx, resultsStream, payload); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

func (w *Worker) flush(ctx context.Context, resultsStream string, stream streaming.StreamSession, runErr error) error {
	result, err := stream.EndStream()
	if err != nil {
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("end provider stream: %w", err)
	}
	if result.Text != "" || len(result.Words) > 0 || len(result.Segments) > 0 {
		result.IsFinal = true
		if pubErr := w.publish(ctx, resultsStream, result); pubErr != nil && runErr == nil {
			return pubErr
		}
	}
	return runErr
}
