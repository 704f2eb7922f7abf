package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"chronicle/server/modules/conversation/domain/entities"
)

// WAVCropper implements Cropper by decoding the full source WAV into
// memory, merging segments within minSegmentDuration of each other
// (after expanding each by contextPadding), and writing the kept spans
// back out as one new WAV, per §4.I's definition of job X.
type WAVCropper struct{}

func (WAVCropper) Crop(ctx context.Context, sourcePath string, segments []entities.Segment, contextPadding, minSegmentDuration time.Duration) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("crop: no segments to keep")
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("open source wav: %w", err)
	}
	defer src.Close()

	decoder := wav.NewDecoder(src)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return "", fmt.Errorf("decode source wav: %w", err)
	}
	sampleRate := buf.Format.SampleRate
	numChannels := buf.Format.NumChannels

	spans := mergeSpans(segments, contextPadding, minSegmentDuration)

	out := &audio.IntBuffer{
		Format:         buf.Format,
		SourceBitDepth: buf.SourceBitDepth,
	}
	for _, sp := range spans {
		startSample := clampSample(int(sp.start.Seconds()*float64(sampleRate))*numChannels, len(buf.Data))
		endSample := clampSample(int(sp.end.Seconds()*float64(sampleRate))*numChannels, len(buf.Data))
		if endSample <= startSample {
			continue
		}
		out.Data = append(out.Data, buf.Data[startSample:endSample]...)
	}
	if len(out.Data) == 0 {
		return "", fmt.Errorf("crop: no samples survived span merge")
	}

	destPath := croppedPath(sourcePath)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure cropped dir: %w", err)
	}
	tmp := destPath + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create cropped wav: %w", err)
	}
	enc := wav.NewEncoder(dst, sampleRate, buf.SourceBitDepth, numChannels, 1)
	if err := enc.Write(out); err != nil {
		dst.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write cropped wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		dst.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("close wav encoder: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close cropped file: %w", err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return "", fmt.Errorf("rename cropped file into place: %w", err)
	}
	return destPath, nil
}

type span struct{ start, end time.Duration }

// mergeSpans expands each segment by padding on both sides, sorts, and
// merges any two spans whose gap is shorter than minGap.
func mergeSpans(segments []entities.Segment, padding, minGap time.Duration) []span {
	spans := make([]span, 0, len(segments))
	for _, s := range segments {
		start := time.Duration(s.Start*float64(time.Second)) - padding
		end := time.Duration(s.End*float64(time.Second)) + padding
		if start < 0 {
			start = 0
		}
		spans = append(spans, span{start: start, end: end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start-last.end < minGap {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func clampSample(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

func croppedPath(sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	base := sourcePath[:len(sourcePath)-len(ext)]
	return base + ".cropped" + ext
}

var _ Cropper = WAVCropper{}
