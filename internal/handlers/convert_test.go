package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image/gif"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vidgif/internal/cache"
	"vidgif/internal/frames"
	"vidgif/internal/gifenc"
	"vidgif/internal/retriever"
	"vidgif/internal/startup"
)

type fakeFetcher struct {
	media *retriever.Media
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*retriever.Media, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	m := *f.media
	m.SourceURL = rawURL
	return &m, nil
}

type fakeExtractor struct {
	seq          *frames.Sequence
	err          error
	extractCalls int
	stillCalls   int

	// When set, ExtractBytes signals entered then blocks until release
	// is closed. Used to hold a conversion in flight.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeExtractor) ExtractBytes(ctx context.Context, _ []byte, _ frames.Options) (*frames.Sequence, error) {
	f.extractCalls++
	if f.entered != nil {
		close(f.entered)
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.seq, nil
}

func (f *fakeExtractor) DecodeStill(_ []byte, _ int) (*frames.Sequence, error) {
	f.stillCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.seq, nil
}

func solidSequence(n, w, ht int) *frames.Sequence {
	fs := make([]*gifenc.Frame, n)
	for i := range fs {
		f := gifenc.NewFrame(w, ht)
		for p := 0; p < len(f.Pix); p += 4 {
			f.Pix[p] = byte(40*i + 20)
			f.Pix[p+1] = 60
			f.Pix[p+2] = 90
			f.Pix[p+3] = 255
		}
		fs[i] = f
	}
	return &frames.Sequence{Width: w, Height: ht, Frames: fs}
}

func testConfig(t *testing.T) *startup.Config {
	t.Helper()
	return &startup.Config{
		CacheDir:    t.TempDir(),
		DefaultFPS:  10,
		MaxDuration: 10 * time.Second,
		MaxWidth:    480,
		MaxFrames:   200,
	}
}

func testHandlers(t *testing.T, fetcher MediaFetcher, extractor FrameExtractor, config *startup.Config) *Handlers {
	t.Helper()
	store, err := cache.New(context.Background(), config.CacheDir)
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(fetcher, extractor, store, gifenc.NewEncoder(2), config)
}

func postConvert(t *testing.T, h *Handlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Convert(w, req)
	return w
}

func TestConvertVideoSuccess(t *testing.T) {
	fetcher := &fakeFetcher{media: &retriever.Media{
		Data:        []byte("fake-mp4"),
		ContentType: "video/mp4",
	}}
	extractor := &fakeExtractor{seq: solidSequence(3, 8, 6)}
	h := testHandlers(t, fetcher, extractor, testConfig(t))

	w := postConvert(t, h, `{"url":"https://social.example/post/1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/gif" {
		t.Errorf("Content-Type = %q", ct)
	}
	if extractor.extractCalls != 1 || extractor.stillCalls != 0 {
		t.Errorf("extract calls = %d/%d, want 1/0", extractor.extractCalls, extractor.stillCalls)
	}

	g, err := gif.DecodeAll(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("response is not a decodable GIF: %v", err)
	}
	if len(g.Image) != 3 {
		t.Errorf("decoded %d frames, want 3", len(g.Image))
	}
	if g.Config.Width != 8 || g.Config.Height != 6 {
		t.Errorf("dimensions = %dx%d, want 8x6", g.Config.Width, g.Config.Height)
	}
}

func TestConvertSecondRequestServedFromCache(t *testing.T) {
	fetcher := &fakeFetcher{media: &retriever.Media{
		Data:        []byte("fake-mp4"),
		ContentType: "video/mp4",
	}}
	extractor := &fakeExtractor{seq: solidSequence(2, 4, 4)}
	h := testHandlers(t, fetcher, extractor, testConfig(t))

	first := postConvert(t, h, `{"url":"https://social.example/post/2"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first request: %d %s", first.Code, first.Body.String())
	}

	second := postConvert(t, h, `{"url":"https://social.example/post/2"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("second request: %d %s", second.Code, second.Body.String())
	}

	if fetcher.calls != 1 {
		t.Errorf("fetcher called %d times, want 1 (second request should hit cache)", fetcher.calls)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Error("cached response differs from original")
	}
}

func TestConvertImageFallsBackToStillDecode(t *testing.T) {
	fetcher := &fakeFetcher{media: &retriever.Media{
		Data:        []byte("fake-png"),
		ContentType: "image/png",
	}}
	extractor := &fakeExtractor{seq: solidSequence(1, 4, 4)}
	h := testHandlers(t, fetcher, extractor, testConfig(t))

	w := postConvert(t, h, `{"url":"https://social.example/post/still"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if extractor.stillCalls != 1 || extractor.extractCalls != 0 {
		t.Errorf("extract calls = %d/%d, want 0 extract and 1 still", extractor.extractCalls, extractor.stillCalls)
	}
}

func TestConvertRequestValidation(t *testing.T) {
	h := testHandlers(t, &fakeFetcher{}, &fakeExtractor{}, testConfig(t))

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{{{`},
		{"missing url", `{}`},
		{"fps too high", `{"url":"https://a.example/p","fps":60}`},
		{"fps negative", `{"url":"https://a.example/p","fps":-1}`},
		{"width too small", `{"url":"https://a.example/p","maxWidth":4}`},
		{"negative duration", `{"url":"https://a.example/p","maxDuration":-3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postConvert(t, h, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestConvertErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		fetchErr   error
		extractErr error
		mediaType  string
		wantStatus int
	}{
		{"unsupported URL", retriever.ErrUnsupportedURL, nil, "", http.StatusBadRequest},
		{"no video found", retriever.ErrNoVideo, nil, "", http.StatusUnprocessableEntity},
		{"media too large", retriever.ErrTooLarge, nil, "", http.StatusRequestEntityTooLarge},
		{"no frames decoded", nil, frames.ErrNoFrames, "video/mp4", http.StatusUnprocessableEntity},
		{"unsupported content type", nil, nil, "text/plain", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{
				media: &retriever.Media{Data: []byte("x"), ContentType: tt.mediaType},
				err:   tt.fetchErr,
			}
			extractor := &fakeExtractor{err: tt.extractErr, seq: solidSequence(1, 4, 4)}
			h := testHandlers(t, fetcher, extractor, testConfig(t))

			w := postConvert(t, h, `{"url":"https://social.example/post/err"}`)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}

			var resp map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("error response is not JSON: %v", err)
			}
			if resp["error"] == "" {
				t.Error("error response missing error field")
			}
		})
	}
}

func TestConvertDuplicateInFlight(t *testing.T) {
	fetcher := &fakeFetcher{media: &retriever.Media{
		Data:        []byte("fake-mp4"),
		ContentType: "video/mp4",
	}}
	extractor := &fakeExtractor{
		seq:     solidSequence(1, 4, 4),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	h := testHandlers(t, fetcher, extractor, testConfig(t))

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- postConvert(t, h, `{"url":"https://social.example/post/busy"}`)
	}()

	<-extractor.entered

	dup := postConvert(t, h, `{"url":"https://social.example/post/busy"}`)
	if dup.Code != http.StatusConflict {
		t.Errorf("duplicate request status = %d, want 409", dup.Code)
	}

	close(extractor.release)
	first := <-done
	if first.Code != http.StatusOK {
		t.Errorf("original request status = %d, want 200", first.Code)
	}
}

func TestConvertRateLimited(t *testing.T) {
	config := testConfig(t)
	config.MinFetchInterval = time.Minute

	fetcher := &fakeFetcher{media: &retriever.Media{
		Data:        []byte("fake-mp4"),
		ContentType: "video/mp4",
	}}
	extractor := &fakeExtractor{seq: solidSequence(1, 4, 4)}
	h := testHandlers(t, fetcher, extractor, config)

	first := postConvert(t, h, `{"url":"https://video.example/post/a"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first request: %d %s", first.Code, first.Body.String())
	}

	// Different post on the same host inside the interval.
	second := postConvert(t, h, `{"url":"https://video.example/post/b"}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}

func TestConvertCancelledRequest(t *testing.T) {
	fetcher := &fakeFetcher{media: &retriever.Media{
		Data:        []byte("fake-mp4"),
		ContentType: "video/mp4",
	}}
	extractor := &fakeExtractor{
		seq:     solidSequence(1, 4, 4),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	h := testHandlers(t, fetcher, extractor, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/convert",
		strings.NewReader(`{"url":"https://social.example/post/cancel"}`)).WithContext(ctx)
	w := httptest.NewRecorder()

	go func() {
		<-extractor.entered
		cancel()
	}()

	h.Convert(w, req)
	if w.Code != http.StatusRequestTimeout {
		t.Errorf("status = %d, want 408", w.Code)
	}
}

func TestConversionOptions(t *testing.T) {
	h := testHandlers(t, &fakeFetcher{}, &fakeExtractor{}, testConfig(t))

	opts, err := h.conversionOptions(ConvertRequest{URL: "u"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.FPS != 10 || opts.MaxWidth != 480 || opts.MaxDuration != 10*time.Second {
		t.Errorf("defaults not applied: %+v", opts)
	}

	opts, err = h.conversionOptions(ConvertRequest{URL: "u", FPS: 5, MaxWidth: 120, MaxDuration: 3})
	if err != nil {
		t.Fatal(err)
	}
	if opts.FPS != 5 || opts.MaxWidth != 120 || opts.MaxDuration != 3*time.Second {
		t.Errorf("overrides not applied: %+v", opts)
	}

	// Requests cannot raise the configured caps.
	opts, err = h.conversionOptions(ConvertRequest{URL: "u", MaxWidth: 4000, MaxDuration: 3600})
	if err != nil {
		t.Fatal(err)
	}
	if opts.MaxWidth != 480 {
		t.Errorf("MaxWidth = %d, want capped at 480", opts.MaxWidth)
	}
	if opts.MaxDuration != 10*time.Second {
		t.Errorf("MaxDuration = %s, want capped at 10s", opts.MaxDuration)
	}
}

func TestGifFilename(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://social.example/post/1", "social.example.gif"},
		{"not a url", "conversion.gif"},
		{"", "conversion.gif"},
	}

	for _, tt := range tests {
		if got := gifFilename(tt.url); got != tt.want {
			t.Errorf("gifFilename(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
