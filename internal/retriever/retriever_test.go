package retriever

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestRetriever(maxBytes int64) *Retriever {
	return New(5*time.Second, maxBytes)
}

func TestFetchDirectVideo(t *testing.T) {
	payload := []byte("fake-mp4-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(payload)
	}))
	defer srv.Close()

	m, err := newTestRetriever(1 << 20).Fetch(context.Background(), srv.URL+"/clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsVideo() {
		t.Errorf("IsVideo() = false for content type %q", m.ContentType)
	}
	if string(m.Data) != string(payload) {
		t.Error("payload mismatch")
	}
	if m.MediaURL != srv.URL+"/clip.mp4" {
		t.Errorf("MediaURL = %q", m.MediaURL)
	}
}

func TestFetchResolvesOGVideo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head>
			<meta property="og:title" content="a post" />
			<meta property="og:video" content="/media/clip.mp4" />
		</head></html>`))
	})
	mux.HandleFunc("/media/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("resolved-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, err := newTestRetriever(1 << 20).Fetch(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatal(err)
	}
	if string(m.Data) != "resolved-bytes" {
		t.Error("resolved payload mismatch")
	}
	if m.SourceURL != srv.URL+"/post" {
		t.Errorf("SourceURL = %q", m.SourceURL)
	}
	if !strings.HasSuffix(m.MediaURL, "/media/clip.mp4") {
		t.Errorf("MediaURL = %q", m.MediaURL)
	}
}

func TestFetchFallsBackToOGImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<meta content="/pic.png" property="og:image">`))
	})
	mux.HandleFunc("/pic.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, err := newTestRetriever(1 << 20).Fetch(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsImage() {
		t.Errorf("IsImage() = false for content type %q", m.ContentType)
	}
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/novideo":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body>no media here</body></html>"))
		case "/big":
			w.Header().Set("Content-Type", "video/mp4")
			w.Write(make([]byte, 2048))
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("{}"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := newTestRetriever(1024)

	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"bad scheme", "ftp://example.com/clip", ErrUnsupportedURL},
		{"no host", "https:///nope", ErrUnsupportedURL},
		{"html without og tags", srv.URL + "/novideo", ErrNoVideo},
		{"payload over cap", srv.URL + "/big", ErrTooLarge},
		{"non-media content type", srv.URL + "/json", ErrNoVideo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Fetch(context.Background(), tt.url)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	if _, err := newTestRetriever(1024).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestResolveMetaTag(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"property first",
			`<meta property="og:video" content="https://cdn.example/v.mp4">`,
			"https://cdn.example/v.mp4",
		},
		{
			"content first",
			`<meta content="https://cdn.example/v.mp4" property="og:video">`,
			"https://cdn.example/v.mp4",
		},
		{
			"secure url variant",
			`<meta property="og:video:secure_url" content="https://cdn.example/s.mp4">`,
			"https://cdn.example/s.mp4",
		},
		{
			"video preferred over image",
			`<meta property="og:image" content="https://cdn.example/p.png">
			 <meta property="og:video" content="https://cdn.example/v.mp4">`,
			"https://cdn.example/v.mp4",
		},
		{"nothing", `<html></html>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveMetaTag(tt.html); got != tt.want {
				t.Errorf("resolveMetaTag = %q, want %q", got, tt.want)
			}
		})
	}
}
