package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"podcast-transcriber/pkg/httpclient"
)

var (
	ErrEmptyAudioURL = errors.New("audio URL is empty")
	ErrEmptyAudio    = errors.New("downloaded audio is empty")
)

// Clip is a bounded-duration local audio sample, owned by the pipeline stage
// that produced it. Close removes the backing file and is safe to call more
// than once.
type Clip struct {
	Path     string
	Duration time.Duration

	closed bool
}

// Close releases the clip's temporary file.
func (c *Clip) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	if c.Path == "" {
		return nil
	}
	return os.Remove(c.Path)
}

// Downloader downloads podcast audio and extracts bounded-duration samples.
// It shells out to ffprobe/ffmpeg for duration inspection and window cutting.
type Downloader struct {
	client *httpclient.HTTPClient

	// FFmpegBin and FFprobeBin override the binaries, mainly for tests.
	FFmpegBin  string
	FFprobeBin string

	// randStart picks the window start; replaced in tests for determinism.
	randStart func(max float64) float64
}

// NewDownloader creates a new audio downloader.
func NewDownloader() *Downloader {
	return &Downloader{
		client: httpclient.NewClient(httpclient.BrowserClient, 0),
		randStart: func(max float64) float64 {
			return rand.Float64() * max
		},
	}
}

// Sample downloads the audio at audioURL and returns a clip of at most
// duration seconds, cut from a random window of the source. When the source
// is shorter than the requested duration the whole audio becomes the sample.
// The caller owns the returned clip and must Close it. The context bounds
// both the download and the transcode.
func (d *Downloader) Sample(ctx context.Context, audioURL string, duration time.Duration) (*Clip, error) {
	audioURL = strings.TrimSpace(audioURL)
	if audioURL == "" {
		return nil, ErrEmptyAudioURL
	}

	fullPath, err := d.downloadToTemp(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	defer os.Remove(fullPath)

	total, err := d.probeDuration(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("probe audio duration: %w", err)
	}

	start, clipDur := sampleWindow(total, duration, d.randStart)

	samplePath := strings.TrimSuffix(fullPath, ".audio") + "_sample.wav"
	if err := d.cutWindow(ctx, fullPath, samplePath, start, clipDur); err != nil {
		os.Remove(samplePath)
		return nil, fmt.Errorf("cut audio sample: %w", err)
	}

	return &Clip{Path: samplePath, Duration: clipDur}, nil
}

// downloadToTemp streams the audio URL into a temporary file.
func (d *Downloader) downloadToTemp(ctx context.Context, audioURL string) (string, error) {
	resp, err := d.client.Get(ctx, audioURL)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("download audio: unexpected status code: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "podcast-*.audio")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download audio: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", closeErr)
	}
	if n == 0 {
		os.Remove(tmp.Name())
		return "", ErrEmptyAudio
	}

	return tmp.Name(), nil
}

// probeDuration asks ffprobe for the container duration.
func (d *Downloader) probeDuration(ctx context.Context, path string) (time.Duration, error) {
	bin := d.FFprobeBin
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin, "-v", "error", "-show_format", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", probe.Format.Duration, err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// cutWindow transcodes the selected window to mono 16kHz WAV, the input
// format transcription backends prefer.
func (d *Downloader) cutWindow(ctx context.Context, inPath, outPath string, start, dur time.Duration) error {
	bin := d.FFmpegBin
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(dur),
		"-i", inPath,
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// sampleWindow returns the window start and duration for sampling. When the
// source fits inside the requested duration the whole source is used.
func sampleWindow(total, want time.Duration, randStart func(max float64) float64) (start, dur time.Duration) {
	if want <= 0 || total <= want {
		return 0, total
	}
	maxStart := (total - want).Seconds()
	return time.Duration(randStart(maxStart) * float64(time.Second)), want
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
