// Command vidgif-convert converts a local video or image file to an
// animated GIF without running the HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"vidgif/internal/frames"
	"vidgif/internal/gifenc"
	"vidgif/internal/workers"
)

func main() {
	var (
		output      = flag.String("o", "", "output file (default: input name with .gif extension)")
		fps         = flag.Int("fps", 10, "frame sample rate (1-30)")
		maxDuration = flag.Duration("duration", 10*time.Second, "maximum clip duration to convert")
		maxWidth    = flag.Int("width", 480, "maximum output width, height follows aspect ratio")
		maxFrames   = flag.Int("max-frames", 200, "abort when the clip would produce more frames")
		quiet       = flag.Bool("q", false, "suppress progress output")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <input file>\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	if *fps < 1 || *fps > 30 {
		fmt.Fprintln(os.Stderr, "Error: -fps must be between 1 and 30")
		os.Exit(2)
	}

	out := *output
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + ".gif"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	if err := run(ctx, input, out, *fps, *maxDuration, *maxWidth, *maxFrames, *quiet); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, input, output string, fps int, maxDuration time.Duration, maxWidth, maxFrames int, quiet bool) error {
	decoder, err := frames.NewDecoder()
	if err != nil {
		return fmt.Errorf("ffmpeg is required: %w", err)
	}

	start := time.Now()

	seq, err := decodeInput(ctx, decoder, input, frames.Options{
		FPS:         fps,
		MaxDuration: maxDuration,
		MaxWidth:    maxWidth,
		MaxFrames:   maxFrames,
	})
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Fprintf(os.Stderr, "Decoded %d frames at %dx%d\n", len(seq.Frames), seq.Width, seq.Height)
	}

	delayCS := 100 / fps
	if delayCS < 2 {
		delayCS = 2
	}

	encoder := gifenc.NewEncoder(workers.ForCPU(0))
	var onProgress func(float64)
	if !quiet {
		onProgress = func(fraction float64) {
			fmt.Fprintf(os.Stderr, "\rEncoding: %3.0f%%", fraction*100)
		}
	}

	data, err := encoder.Encode(ctx, seq.Frames, delayCS, onProgress)
	if err != nil {
		if !quiet {
			fmt.Fprintln(os.Stderr)
		}
		return err
	}
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}

	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	if !quiet {
		fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes) in %v\n", output, len(data), time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// decodeInput extracts frames from a video, falling back to the still image
// path when the file is not a video ffmpeg understands.
func decodeInput(ctx context.Context, decoder *frames.Decoder, input string, opts frames.Options) (*frames.Sequence, error) {
	switch strings.ToLower(filepath.Ext(input)) {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif":
		data, err := os.ReadFile(input)
		if err != nil {
			return nil, err
		}
		return decoder.DecodeStill(data, opts.MaxWidth)
	}
	return decoder.Extract(ctx, input, opts)
}
