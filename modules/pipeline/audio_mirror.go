package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
)

// GCSAudioMirror implements AudioMirror against a Google Cloud Storage
// bucket, adapted from firebase_uploader.go's FirebaseStorageUploader:
// same client/bucket/object-writer shape, generalized from a meeting's
// raw audio upload to mirroring a conversation's cropped WAV after job X.
type GCSAudioMirror struct {
	client *storage.Client
	bucket string
}

// NewGCSAudioMirror builds a mirror against bucket using application
// default credentials (the deployment's service account), following the
// teacher's pattern of a long-lived *storage.Client held for the life of
// the process rather than reopened per upload.
func NewGCSAudioMirror(ctx context.Context, bucket string) (*GCSAudioMirror, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSAudioMirror{client: client, bucket: bucket}, nil
}

// Mirror uploads the file at localPath to
// "conversations/<conversationID>/audio/<timestamp>.wav" and returns its
// gs:// location.
func (m *GCSAudioMirror) Mirror(ctx context.Context, userID, conversationID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open local audio file: %w", err)
	}
	defer f.Close()

	objectName := fmt.Sprintf("conversations/%s/audio/%d.wav", conversationID, time.Now().Unix())
	obj := m.client.Bucket(m.bucket).Object(objectName)

	w := obj.NewWriter(ctx)
	w.ContentType = "audio/wav"
	w.Metadata = map[string]string{
		"user_id":         userID,
		"conversation_id": conversationID,
	}

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", fmt.Errorf("write audio to bucket: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close bucket writer: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", m.bucket, objectName), nil
}

// Close releases the underlying storage client.
func (m *GCSAudioMirror) Close() error {
	return m.client.Close()
}

var _ AudioMirror = (*GCSAudioMirror)(nil)
