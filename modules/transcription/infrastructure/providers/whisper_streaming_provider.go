package providers

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"chronicle/server/modules/transcription/domain/streaming"
)

// whisperBitsPerSample is fixed: the Live Transcription Worker always
// forwards 16-bit signed little-endian PCM (§4.D).
const whisperBitsPerSample = 16

// whisperSilenceRMS is the energy level (in 16-bit PCM units) below which
// a chunk is treated as silence. 32767 is the ceiling for 16-bit audio.
const whisperSilenceRMS = 300.0

// WhisperStreamingProvider implements streaming.StreamingTranscriptionProvider
// against a running whisper.cpp server (the `whisper-server` binary, which
// exposes POST /inference). whisper.cpp transcribes in batches, not
// incrementally, so the provider simulates streaming by buffering audio
// and flushing an utterance to the server once trailing silence or a
// buffer-size cap is hit.
type WhisperStreamingProvider struct {
	ServerURL           string
	Model               string
	SilenceThresholdMs  int
	MaxBufferDurationMs int
	HTTPClient          *http.Client
}

// NewWhisperStreamingProvider builds a provider against a whisper.cpp
// server at serverURL (e.g. "http://localhost:8080").
func NewWhisperStreamingProvider(serverURL string) *WhisperStreamingProvider {
	return &WhisperStreamingProvider{
		ServerURL:           serverURL,
		SilenceThresholdMs:  500,
		MaxBufferDurationMs: 10_000,
		HTTPClient:          &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *WhisperStreamingProvider) Name() string { return "whisper.cpp" }

func (p *WhisperStreamingProvider) StartStream(ctx context.Context, clientID string, sampleRate int, diarize bool) (streaming.StreamSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &whisperSession{
		provider:   p,
		sampleRate: sampleRate,
		channels:   1,
	}, nil
}

// whisperSession accumulates PCM audio and flushes utterances to the
// whisper.cpp server once trailing silence or the buffer cap is hit.
// Because ProcessChunk has no side channel for "I haven't decided yet",
// every chunk that does not trigger a flush returns ok=false; every
// flush (silence-triggered or forced by EndStream) is reported IsFinal,
// matching the worker's "only republish finals" contract (§4.D) — there
// is no meaningful partial to emit without a second inference call per
// chunk, which the server does not support.
type whisperSession struct {
	provider   *WhisperStreamingProvider
	sampleRate int
	channels   int

	buffer    []byte
	hadSpeech bool
	silenceMs int
}

func (s *whisperSession) ProcessChunk(chunk []byte) (streaming.Result, bool, error) {
	rms := computeRMS(chunk)
	chunkMs := chunkDurationMs(chunk, s.sampleRate, s.channels)

	if rms < whisperSilenceRMS {
		if !s.hadSpeech {
			return streaming.Result{}, false, nil
		}
		s.silenceMs += chunkMs
		s.buffer = append(s.buffer, chunk...)
		if s.silenceMs >= s.provider.SilenceThresholdMs {
			return s.flush()
		}
		return streaming.Result{}, false, nil
	}

	s.hadSpeech = true
	s.silenceMs = 0
	s.buffer = append(s.buffer, chunk...)

	bytesPerMs := s.sampleRate * s.channels * (whisperBitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	if s.provider.MaxBufferDurationMs > 0 && len(s.buffer) >= s.provider.MaxBufferDurationMs*bytesPerMs {
		return s.flush()
	}
	return streaming.Result{}, false, nil
}

func (s *whisperSession) EndStream() (streaming.Result, error) {
	result, ok, err := s.flush()
	if err != nil {
		return streaming.Result{}, err
	}
	if !ok {
		return streaming.Result{}, nil
	}
	return result, nil
}

func (s *whisperSession) flush() (streaming.Result, bool, error) {
	if len(s.buffer) == 0 || !s.hadSpeech {
		s.reset()
		return streaming.Result{}, false, nil
	}
	pcm := s.buffer
	s.reset()

	text, err := s.provider.infer(context.Background(), pcm, s.sampleRate, s.channels)
	if err != nil {
		return streaming.Result{}, false, fmt.Errorf("whisper inference: %w", err)
	}
	if text == "" {
		return streaming.Result{}, false, nil
	}
	return streaming.Result{Text: text, IsFinal: true}, true, nil
}

func (s *whisperSession) reset() {
	s.buffer = nil
	s.hadSpeech = false
	s.silenceMs = 0
}

func (p *WhisperStreamingProvider) infer(ctx context.Context, pcm []byte, sampleRate, channels int) (string, error) {
	wavBytes := encodeWAV(pcm, sampleRate, channels)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(wavBytes); err != nil {
		return "", fmt.Errorf("write wav data: %w", err)
	}
	if p.Model != "" {
		if err := mw.WriteField("model", p.Model); err != nil {
			return "", fmt.Errorf("write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ServerURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parse json response: %w", err)
	}
	return result.Text, nil
}

// encodeWAV wraps raw 16-bit signed little-endian PCM in a minimal
// RIFF/WAV container suitable for a multipart upload.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * whisperBitsPerSample / 8
	blockAlign := channels * whisperBitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(whisperBitsPerSample))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func chunkDurationMs(chunk []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * (whisperBitsPerSample / 8)
	if bytesPerSec == 0 {
		return 0
	}
	return len(chunk) * 1000 / bytesPerSec
}
