package handlers

import (
	"context"
	"sync"
	"time"

	"vidgif/internal/cache"
	"vidgif/internal/frames"
	"vidgif/internal/gifenc"
	"vidgif/internal/retriever"
	"vidgif/internal/startup"
)

// MediaFetcher resolves a post URL to its media attachment.
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*retriever.Media, error)
}

// FrameExtractor turns fetched media bytes into a frame sequence.
type FrameExtractor interface {
	ExtractBytes(ctx context.Context, data []byte, opts frames.Options) (*frames.Sequence, error)
	DecodeStill(data []byte, maxWidth int) (*frames.Sequence, error)
}

type Handlers struct {
	fetcher   MediaFetcher
	extractor FrameExtractor
	store     *cache.Store
	encoder   *gifenc.Encoder
	config    *startup.Config
	started   time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(fetcher MediaFetcher, extractor FrameExtractor, store *cache.Store, encoder *gifenc.Encoder, config *startup.Config) *Handlers {
	return &Handlers{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		encoder:   encoder,
		config:    config,
		started:   time.Now(),
		inFlight:  make(map[string]struct{}),
	}
}

// tryAcquire marks url as in flight. It returns false when a conversion for
// the same url is already running.
func (h *Handlers) tryAcquire(url string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inFlight[url]; busy {
		return false
	}
	h.inFlight[url] = struct{}{}
	return true
}

func (h *Handlers) release(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inFlight, url)
}

func (h *Handlers) inFlightCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inFlight)
}
