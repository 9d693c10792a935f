package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"vidgif/internal/frames"
	"vidgif/internal/gifenc"
	"vidgif/internal/logging"
	"vidgif/internal/metrics"
	"vidgif/internal/retriever"
)

// ConvertRequest is the body of POST /api/convert.
type ConvertRequest struct {
	URL         string  `json:"url"`
	FPS         int     `json:"fps,omitempty"`
	MaxDuration float64 `json:"maxDuration,omitempty"` // seconds
	MaxWidth    int     `json:"maxWidth,omitempty"`
}

// Convert fetches the media behind a post URL, converts it to an animated
// GIF, and returns the GIF bytes. Results are cached by source URL, so a
// repeated request for the same post is served from disk.
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		writeJSONError(w, "url is required", http.StatusBadRequest)
		return
	}

	opts, err := h.conversionOptions(req)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Cached result first, before any locking or rate limiting.
	if entry, err := h.store.Get(ctx, req.URL); err != nil {
		logging.Warn("cache lookup for %s failed: %v", req.URL, err)
	} else if entry != nil {
		data, err := h.store.Read(entry)
		if err == nil {
			metrics.ConversionsTotal.WithLabelValues("cached").Inc()
			h.serveGIF(w, req.URL, data)
			return
		}
		logging.Warn("cached file for %s unreadable: %v", req.URL, err)
	}

	if !h.tryAcquire(req.URL) {
		writeJSONError(w, "conversion for this URL already in progress", http.StatusConflict)
		return
	}
	defer h.release(req.URL)

	if retryAfter, limited := h.checkRateLimit(ctx, req.URL); limited {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		writeJSONError(w, "provider fetch rate limit, retry later", http.StatusTooManyRequests)
		return
	}

	start := time.Now()
	metrics.ConversionsInFlight.Inc()
	defer metrics.ConversionsInFlight.Dec()

	data, seq, err := h.convert(ctx, req.URL, opts)
	if err != nil {
		h.writeConversionError(w, req.URL, err)
		return
	}

	metrics.ConversionsTotal.WithLabelValues("success").Inc()
	metrics.ConversionDuration.Observe(time.Since(start).Seconds())
	metrics.ConversionFrames.Observe(float64(len(seq.Frames)))
	metrics.ConversionOutputBytes.Observe(float64(len(data)))

	if _, err := h.store.Put(ctx, req.URL, data, len(seq.Frames), seq.Width, seq.Height); err != nil {
		logging.Warn("failed to cache conversion for %s: %v", req.URL, err)
	}

	logging.Info("converted %s: %d frames, %dx%d, %d bytes in %v",
		req.URL, len(seq.Frames), seq.Width, seq.Height, len(data), time.Since(start).Round(time.Millisecond))

	h.serveGIF(w, req.URL, data)
}

// conversionOptions merges request parameters with configured defaults and
// clamps them to the configured caps.
func (h *Handlers) conversionOptions(req ConvertRequest) (frames.Options, error) {
	opts := frames.Options{
		FPS:         h.config.DefaultFPS,
		MaxDuration: h.config.MaxDuration,
		MaxWidth:    h.config.MaxWidth,
		MaxFrames:   h.config.MaxFrames,
	}

	if req.FPS != 0 {
		if req.FPS < 1 || req.FPS > 30 {
			return opts, fmt.Errorf("fps must be between 1 and 30")
		}
		opts.FPS = req.FPS
	}
	if req.MaxDuration != 0 {
		if req.MaxDuration < 0 {
			return opts, fmt.Errorf("maxDuration must be positive")
		}
		d := time.Duration(req.MaxDuration * float64(time.Second))
		if d > h.config.MaxDuration {
			d = h.config.MaxDuration
		}
		opts.MaxDuration = d
	}
	if req.MaxWidth != 0 {
		if req.MaxWidth < 16 {
			return opts, fmt.Errorf("maxWidth must be at least 16")
		}
		if req.MaxWidth < opts.MaxWidth {
			opts.MaxWidth = req.MaxWidth
		}
	}

	return opts, nil
}

// checkRateLimit enforces the per-host minimum interval between provider
// fetches. It returns the suggested Retry-After seconds when limited.
func (h *Handlers) checkRateLimit(ctx context.Context, rawURL string) (int, bool) {
	if h.config.MinFetchInterval <= 0 {
		return 0, false
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return 0, false
	}

	last, err := h.store.LastFetch(ctx, u.Host)
	if err != nil {
		logging.Warn("rate limit lookup for %s failed: %v", u.Host, err)
		return 0, false
	}

	elapsed := time.Since(last)
	if !last.IsZero() && elapsed < h.config.MinFetchInterval {
		wait := h.config.MinFetchInterval - elapsed
		return int(wait.Seconds()) + 1, true
	}

	if err := h.store.RecordFetch(ctx, u.Host); err != nil {
		logging.Warn("failed to record fetch for %s: %v", u.Host, err)
	}
	return 0, false
}

// convert runs the full fetch, decode, encode pipeline for one URL.
func (h *Handlers) convert(ctx context.Context, rawURL string, opts frames.Options) ([]byte, *frames.Sequence, error) {
	media, err := h.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}

	var seq *frames.Sequence
	switch {
	case media.IsVideo():
		seq, err = h.extractor.ExtractBytes(ctx, media.Data, opts)
	case media.IsImage():
		seq, err = h.extractor.DecodeStill(media.Data, opts.MaxWidth)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported content type %q", retriever.ErrNoVideo, media.ContentType)
	}
	if err != nil {
		return nil, nil, err
	}

	delayCS := 100 / opts.FPS
	if delayCS < 2 {
		delayCS = 2
	}

	data, err := h.encoder.Encode(ctx, seq.Frames, delayCS, func(fraction float64) {
		logging.Debug("conversion %s: %.0f%%", rawURL, fraction*100)
	})
	if err != nil {
		return nil, nil, err
	}

	return data, seq, nil
}

// writeConversionError maps pipeline errors to HTTP responses and records
// the outcome metric.
func (h *Handlers) writeConversionError(w http.ResponseWriter, rawURL string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		metrics.ConversionsTotal.WithLabelValues("cancelled").Inc()
		logging.Info("conversion of %s cancelled: %v", rawURL, err)
		// The client is likely gone already, but answer in case it is not.
		writeJSONError(w, "conversion cancelled", http.StatusRequestTimeout)
		return
	}

	var dimErr *gifenc.DimensionError
	var encErr *gifenc.EncodingError

	switch {
	case errors.Is(err, retriever.ErrUnsupportedURL):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, retriever.ErrNoVideo):
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, retriever.ErrTooLarge):
		writeJSONError(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, frames.ErrNoFrames), errors.Is(err, gifenc.ErrEmptyInput):
		writeJSONError(w, "no frames could be decoded from the media", http.StatusUnprocessableEntity)
	case errors.As(err, &dimErr), errors.As(err, &encErr):
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSONError(w, "conversion failed", http.StatusInternalServerError)
	}

	metrics.ConversionsTotal.WithLabelValues("error").Inc()
	logging.Error("conversion of %s failed: %v", rawURL, err)
}

// serveGIF writes the finished GIF with download-friendly headers.
func (h *Handlers) serveGIF(w http.ResponseWriter, sourceURL string, data []byte) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", gifFilename(sourceURL)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Error("failed to write GIF response: %v", err)
	}
}

// gifFilename derives a stable download name from the post URL host.
func gifFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "conversion.gif"
	}
	return u.Host + ".gif"
}
