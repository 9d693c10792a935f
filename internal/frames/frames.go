package frames

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"vidgif/internal/gifenc"
	"vidgif/internal/logging"
)

// ErrNoFrames is returned when ffmpeg produced no complete frame, typically
// because the input is not a decodable video.
var ErrNoFrames = errors.New("frames: no frames decoded from input")

// Options controls frame extraction.
type Options struct {
	// FPS is the sample rate in frames per second.
	FPS int
	// MaxDuration caps how much of the clip is decoded.
	MaxDuration time.Duration
	// MaxWidth caps the output width; height follows the aspect ratio.
	// Zero means keep the source width.
	MaxWidth int
	// MaxFrames aborts extraction when the decoded stream would exceed
	// this many frames. Zero means no cap.
	MaxFrames int
}

// VideoInfo describes the source video as reported by ffprobe.
type VideoInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Codec    string  `json:"codec"`
}

// Sequence is an ordered run of equal-sized frames plus the dimensions they
// share. Dimensions are always even.
type Sequence struct {
	Width  int
	Height int
	Frames []*gifenc.Frame
}

// Decoder extracts frame sequences from video files via ffmpeg.
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
}

// NewDecoder locates the ffmpeg and ffprobe binaries.
func NewDecoder() (*Decoder, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	logging.Debug("Using ffmpeg: %s, ffprobe: %s", ffmpegPath, ffprobePath)
	return &Decoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}, nil
}

// ffprobe JSON output shapes; only the fields we read.
type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns codec and dimension information for a video file.
func (d *Decoder) Probe(ctx context.Context, filePath string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}

	var probed probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &probed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	info.Duration, _ = strconv.ParseFloat(probed.Format.Duration, 64)
	for _, s := range probed.Streams {
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			info.Codec = s.CodecName
			break
		}
	}
	if info.Width == 0 || info.Height == 0 {
		return nil, errors.New("frames: input has no video stream")
	}
	return info, nil
}

// Extract decodes the video at filePath into an RGBA frame sequence at the
// requested sample rate, scaled down to at most opts.MaxWidth with even
// dimensions.
func (d *Decoder) Extract(ctx context.Context, filePath string, opts Options) (*Sequence, error) {
	info, err := d.Probe(ctx, filePath)
	if err != nil {
		return nil, err
	}

	width, height := targetDimensions(info.Width, info.Height, opts.MaxWidth)
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("frames: degenerate target dimensions for %dx%d source", info.Width, info.Height)
	}

	args := []string{"-i", filePath}
	if opts.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", opts.MaxDuration.Seconds()))
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = 10
	}
	args = append(args,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", fps, width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-an", "-sn",
		"-",
	)

	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("Extracting frames: %dx%d at %d fps from %s", width, height, fps, filePath)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg error: %w - %s", err, tail(stderr.String(), 400))
	}

	seq, err := splitFrames(stdout.Bytes(), width, height)
	if err != nil {
		return nil, err
	}
	if opts.MaxFrames > 0 && len(seq.Frames) > opts.MaxFrames {
		return nil, fmt.Errorf("frames: clip yields %d frames, cap is %d", len(seq.Frames), opts.MaxFrames)
	}
	logging.Debug("Extracted %d frames", len(seq.Frames))
	return seq, nil
}

// ExtractBytes writes the video bytes to a temporary file and extracts
// frames from it. ffmpeg needs a seekable input for most containers, so an
// on-disk file beats a stdin pipe here.
func (d *Decoder) ExtractBytes(ctx context.Context, data []byte, opts Options) (*Sequence, error) {
	tmp, err := os.CreateTemp("", "vidgif-src-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil {
			logging.Warn("failed to remove temp file %s: %v", tmp.Name(), err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	return d.Extract(ctx, tmp.Name(), opts)
}

// targetDimensions scales (srcW, srcH) down to fit maxWidth, preserving
// aspect ratio, and truncates both dimensions to even values.
func targetDimensions(srcW, srcH, maxWidth int) (int, int) {
	w, h := srcW, srcH
	if maxWidth > 0 && w > maxWidth {
		h = h * maxWidth / w
		w = maxWidth
	}
	return gifenc.EvenDimension(w), gifenc.EvenDimension(h)
}

// splitFrames cuts the raw rgba byte stream into fixed-size frames. A
// trailing partial frame is discarded.
func splitFrames(raw []byte, width, height int) (*Sequence, error) {
	frameSize := width * height * 4
	if frameSize == 0 {
		return nil, ErrNoFrames
	}

	n := len(raw) / frameSize
	if n == 0 {
		return nil, ErrNoFrames
	}

	seq := &Sequence{Width: width, Height: height, Frames: make([]*gifenc.Frame, n)}
	for i := 0; i < n; i++ {
		pix := make([]byte, frameSize)
		copy(pix, raw[i*frameSize:(i+1)*frameSize])
		seq.Frames[i] = &gifenc.Frame{Width: width, Height: height, Pix: pix}
	}
	return seq, nil
}

// tail returns at most the last n bytes of s, for compact error messages.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
