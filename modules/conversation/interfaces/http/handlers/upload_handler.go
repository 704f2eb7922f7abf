package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"chronicle/server/modules/conversation"
	"chronicle/server/modules/conversation/domain/entities"
	"chronicle/server/modules/conversation/domain/repositories"
	"chronicle/server/modules/conversation/interfaces/http/dtos"
	"chronicle/server/modules/user/interfaces/http/middleware"
	"chronicle/server/seedwork/domain"
)

const uploadBitDepth = 16

// UploadHandlers implements the batch upload protocol (§6): one or more
// WAV files plus a device_name, each validated, persisted, turned into
// a Conversation immediately (no Speech-Detection Controller involved —
// a file upload is a priori meaningful speech), and enqueued for
// post-processing starting from T.
type UploadHandlers struct {
	Store    repositories.ConversationRepository
	Jobs     conversation.JobEnqueuer
	ChunkDir string
}

func NewUploadHandlers(store repositories.ConversationRepository, jobs conversation.JobEnqueuer, chunkDir string) *UploadHandlers {
	return &UploadHandlers{Store: store, Jobs: jobs, ChunkDir: chunkDir}
}

// UploadAudio handles POST /audio/upload.
// @Router /audio/upload [post]
func (h *UploadHandlers) UploadAudio(c *gin.Context) {
	principal, ok := middleware.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart form"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}
	deviceName := ""
	if v := form.Value["device_name"]; len(v) > 0 {
		deviceName = v[0]
	}

	results := make([]dtos.UploadResponseItem, 0, len(files))
	for _, fh := range files {
		item, err := h.processUpload(c, fh, principal.UserID, principal.ClientID, deviceName)
		if err != nil {
			results = append(results, dtos.UploadResponseItem{Status: "error: " + err.Error()})
			continue
		}
		results = append(results, item)
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *UploadHandlers) processUpload(c *gin.Context, fh *multipart.FileHeader, userID, clientID, deviceName string) (dtos.UploadResponseItem, error) {
	src, err := fh.Open()
	if err != nil {
		return dtos.UploadResponseItem{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	decoder := wav.NewDecoder(src)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return dtos.UploadResponseItem{}, fmt.Errorf("invalid WAV file: %w", err)
	}
	if buf.SourceBitDepth != uploadBitDepth {
		return dtos.UploadResponseItem{}, fmt.Errorf("only 16-bit PCM WAV is supported")
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.NumChannels > 2 {
		return dtos.UploadResponseItem{}, fmt.Errorf("only mono or stereo WAV is supported")
	}
	sampleRate := buf.Format.SampleRate
	mono := downmixToMono(buf)

	audioUUID := domain.GenerateID()
	c2 := entities.New(audioUUID, userID, clientID)
	c2.DeviceName = deviceName

	path, err := writeMonoWAV(h.ChunkDir, audioUUID, mono, sampleRate)
	if err != nil {
		return dtos.UploadResponseItem{}, fmt.Errorf("persist audio: %w", err)
	}
	c2.AudioPath = path
	c2.Complete(entities.EndUserStopped)

	if err := h.Store.Insert(c.Request.Context(), c2); err != nil {
		return dtos.UploadResponseItem{}, fmt.Errorf("create conversation: %w", err)
	}

	meta := map[string]any{"audio_uuid": audioUUID, "client_id": clientID}
	jobIDs, err := h.Jobs.EnqueuePostProcessingChain(c.Request.Context(), c2.GetID(), meta)
	if err != nil {
		return dtos.UploadResponseItem{}, fmt.Errorf("enqueue post-processing: %w", err)
	}

	duration := 0.0
	if sampleRate > 0 {
		duration = float64(len(mono)) / float64(sampleRate)
	}

	return dtos.UploadResponseItem{
		ConversationID:  c2.GetID(),
		TranscriptJobID: jobIDs["transcribe_batch"],
		SpeakerJobID:    jobIDs["speaker_recognize"],
		MemoryJobID:     jobIDs["memory_extract"],
		DurationSeconds: duration,
		Status:          "processing",
	}, nil
}

// downmixToMono averages interleaved channels down to one, matching
// §6's "stereo auto-downmixed" validation rule. Already-mono input is
// returned unchanged.
func downmixToMono(buf *audio.IntBuffer) []int {
	channels := buf.Format.NumChannels
	if channels <= 1 {
		return buf.Data
	}
	frames := len(buf.Data) / channels
	mono := make([]int, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += buf.Data[i*channels+ch]
		}
		mono[i] = sum / channels
	}
	return mono
}

// writeMonoWAV encodes mono PCM16 samples straight to <chunkDir>/<id>.wav.
// Unlike fileWriter (modules/persistence/wavfile.go) it writes the
// destination path directly, with no temp file and no rename.
func writeMonoWAV(chunkDir, id string, mono []int, sampleRate int) (string, error) {
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure chunk dir: %w", err)
	}
	destPath := filepath.Join(chunkDir, id+".wav")
	f, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create wav file: %w", err)
	}
	enc := wav.NewEncoder(f, sampleRate, uploadBitDepth, 1, 1)
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           mono,
		SourceBitDepth: uploadBitDepth,
	}
	if err := enc.Write(ib); err != nil {
		f.Close()
		os.Remove(destPath)
		return "", fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(destPath)
		return "", fmt.Errorf("close wav encoder: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close wav file: %w", err)
	}
	return destPath, nil
}
