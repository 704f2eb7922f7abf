package streaming

import (
	"context"
	"encoding/json"
	"strconv"

	"chronicle/server/seedwork/infrastructure/bus"
)

// Aggregate is the merged view computed by the Results Aggregator (§4.E).
type Aggregate struct {
	Text       string
	Words      []Word
	Segments   []Segment
	ChunkCount int
}

// WordCount returns the number of space/tab/newline-separated tokens in
// Text, used by the text-only fallback in §4.F's meaningful-speech test.
func (a Aggregate) WordCount() int {
	count := 0
	inWord := false
	for _, r := range a.Text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}

// Compute reads every entry currently on the session's result stream
// and merges them in stream order: concatenate text, concatenate words
// preserving timing, concatenate segments. It never acks — it is a
// read-only, idempotent view, per §4.E.
func Compute(ctx context.Context, b bus.Bus, sessionID string) (Aggregate, error) {
	_, resultsStream := bus.StreamNames(sessionID)
	entries, err := b.Read(ctx, resultsStream, "", "", 0, 0)
	if err != nil {
		return Aggregate{}, err
	}

	var out Aggregate
	out.ChunkCount = len(entries)
	for _, e := range entries {
		r, err := decodeResult(e.Payload)
		if err != nil {
			continue
		}
		if out.Text == "" {
			out.Text = r.Text
		} else if r.Text != "" {
			out.Text += " " + r.Text
		}
		out.Words = append(out.Words, r.Words...)
		out.Segments = append(out.Segments, r.Segments...)
	}
	return out, nil
}

// EncodeResult serializes a Result into the flat string payload appended
// to the result stream.
func EncodeResult(r Result) (map[string]string, error) {
	words, err := json.Marshal(r.Words)
	if err != nil {
		return nil, err
	}
	segments, err := json.Marshal(r.Segments)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"text":     r.Text,
		"words":    string(words),
		"segments": string(segments),
		"final":    strconv.FormatBool(r.IsFinal),
	}, nil
}

func decodeResult(payload map[string]string) (Result, error) {
	var r Result
	r.Text = payload["text"]
	if w := payload["words"]; w != "" {
		if err := json.Unmarshal([]byte(w), &r.Words); err != nil {
			return Result{}, err
		}
	}
	if s := payload["segments"]; s != "" {
		if err := json.Unmarshal([]byte(s), &r.Segments); err != nil {
			return Result{}, err
		}
	}
	r.IsFinal, _ = strconv.ParseBool(payload["final"])
	return r, nil
}
