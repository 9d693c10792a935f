package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"vidgif/internal/logging"
	"vidgif/internal/metrics"
)

// Sentinel errors for fetch outcomes.
var (
	// ErrUnsupportedURL indicates the post URL is not something we fetch
	// (bad scheme, no host, or not parseable).
	ErrUnsupportedURL = errors.New("retriever: unsupported URL")

	// ErrNoVideo indicates the post was reachable but no video (or image)
	// attachment could be resolved from it.
	ErrNoVideo = errors.New("retriever: no video found at URL")

	// ErrTooLarge indicates the attachment exceeds the configured size cap.
	ErrTooLarge = errors.New("retriever: media exceeds size limit")
)

// Media is one fetched attachment: the raw bytes plus enough metadata for
// the caller to choose a decode path.
type Media struct {
	Data        []byte
	ContentType string
	SourceURL   string // post URL the media was resolved from
	MediaURL    string // URL the bytes were actually fetched from
}

// IsVideo reports whether the payload looks like a video container.
func (m *Media) IsVideo() bool {
	return strings.HasPrefix(m.ContentType, "video/") ||
		m.ContentType == "application/octet-stream"
}

// IsImage reports whether the payload looks like a still image.
func (m *Media) IsImage() bool {
	return strings.HasPrefix(m.ContentType, "image/")
}

// Retriever fetches post attachments over HTTP.
type Retriever struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// New creates a Retriever with the given per-request timeout and payload
// size cap in bytes.
func New(timeout time.Duration, maxBytes int64) *Retriever {
	return &Retriever{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  maxBytes,
		userAgent: "vidgif/1.0 (+https://github.com/vidgif/vidgif)",
	}
}

// og:video and og:image meta tags, in either attribute order.
var (
	ogVideoRe = regexp.MustCompile(`<meta[^>]+(?:property|name)=["']og:video(?::(?:secure_)?url)?["'][^>]+content=["']([^"']+)["']|<meta[^>]+content=["']([^"']+)["'][^>]+(?:property|name)=["']og:video(?::(?:secure_)?url)?["']`)
	ogImageRe = regexp.MustCompile(`<meta[^>]+(?:property|name)=["']og:image["'][^>]+content=["']([^"']+)["']|<meta[^>]+content=["']([^"']+)["'][^>]+(?:property|name)=["']og:image["']`)
)

// Fetch resolves and downloads the media attached to the post at rawURL.
// The post page itself and the media are both subject to the size cap.
func (r *Retriever) Fetch(ctx context.Context, rawURL string) (*Media, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrUnsupportedURL
	}

	start := time.Now()
	body, contentType, err := r.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	// A direct media URL needs no resolution step.
	if isMediaContentType(contentType) {
		metrics.FetchDuration.Observe(time.Since(start).Seconds())
		metrics.FetchBytes.Add(float64(len(body)))
		return &Media{Data: body, ContentType: contentType, SourceURL: rawURL, MediaURL: rawURL}, nil
	}

	if !strings.HasPrefix(contentType, "text/html") {
		return nil, fmt.Errorf("%w (content type %q)", ErrNoVideo, contentType)
	}

	mediaURL := resolveMetaTag(string(body))
	if mediaURL == "" {
		return nil, ErrNoVideo
	}
	mediaURL = absoluteURL(u, mediaURL)
	logging.Debug("Resolved post %s to media %s", rawURL, mediaURL)

	body, contentType, err = r.get(ctx, mediaURL)
	if err != nil {
		return nil, err
	}
	if !isMediaContentType(contentType) {
		return nil, fmt.Errorf("%w (resolved content type %q)", ErrNoVideo, contentType)
	}

	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	metrics.FetchBytes.Add(float64(len(body)))
	return &Media{Data: body, ContentType: contentType, SourceURL: rawURL, MediaURL: mediaURL}, nil
}

// get performs one size-capped GET request.
func (r *Retriever) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("failed to close response body for %s: %v", rawURL, err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch failed: status %d from %s", resp.StatusCode, rawURL)
	}
	if resp.ContentLength > r.maxBytes {
		return nil, "", ErrTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > r.maxBytes {
		return nil, "", ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return body, contentType, nil
}

func isMediaContentType(ct string) bool {
	return strings.HasPrefix(ct, "video/") ||
		strings.HasPrefix(ct, "image/") ||
		ct == "application/octet-stream"
}

// resolveMetaTag extracts the first og:video URL from an HTML page, falling
// back to og:image.
func resolveMetaTag(html string) string {
	for _, re := range []*regexp.Regexp{ogVideoRe, ogImageRe} {
		if m := re.FindStringSubmatch(html); m != nil {
			if m[1] != "" {
				return m[1]
			}
			return m[2]
		}
	}
	return ""
}

// absoluteURL resolves ref against the post URL when the meta tag carried a
// relative path.
func absoluteURL(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
