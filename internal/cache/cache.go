package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"vidgif/internal/logging"
	"vidgif/internal/metrics"
)

// Default timeout for store operations.
const defaultTimeout = 5 * time.Second

// Conversion is one cached conversion result.
type Conversion struct {
	URLHash   string
	SourceURL string
	FilePath  string
	Bytes     int64
	Frames    int
	Width     int
	Height    int
	CreatedAt time.Time
}

// Store persists conversion results and rate-limit state.
type Store struct {
	db  *sql.DB
	dir string
}

// New opens (or creates) the store in dir. The directory must exist and be
// writable; startup.LoadConfig validates that before this is called.
func New(ctx context.Context, dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "conversions.db")
	logging.Info("Cache database path: %s", dbPath)

	// WAL mode and a busy timeout keep concurrent conversions from
	// tripping over "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dir: dir}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	s.refreshEntryCount(ctx)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversions (
		url_hash   TEXT PRIMARY KEY,
		source_url TEXT NOT NULL,
		file_path  TEXT NOT NULL,
		bytes      INTEGER NOT NULL,
		frames     INTEGER NOT NULL,
		width      INTEGER NOT NULL,
		height     INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_conversions_created_at ON conversions(created_at);

	-- Per-host fetch pacing. Explicit state instead of process globals so
	-- restarts and concurrent requests see the same clock.
	CREATE TABLE IF NOT EXISTS rate_limits (
		host       TEXT PRIMARY KEY,
		last_fetch INTEGER NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// hashURL derives the cache key for a source URL.
func hashURL(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached conversion for sourceURL, or nil when absent or
// when the backing file has disappeared (the stale row is removed).
func (s *Store) Get(ctx context.Context, sourceURL string) (*Conversion, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	hash := hashURL(sourceURL)
	row := s.db.QueryRowContext(ctx,
		`SELECT url_hash, source_url, file_path, bytes, frames, width, height, created_at
		 FROM conversions WHERE url_hash = ?`, hash)

	var c Conversion
	var createdAt int64
	err := row.Scan(&c.URLHash, &c.SourceURL, &c.FilePath, &c.Bytes, &c.Frames, &c.Width, &c.Height, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}
	c.CreatedAt = time.Unix(createdAt, 0)

	if _, err := os.Stat(c.FilePath); err != nil {
		logging.Warn("Cached file missing for %s, dropping row: %v", sourceURL, err)
		if _, err := s.db.ExecContext(ctx, `DELETE FROM conversions WHERE url_hash = ?`, hash); err != nil {
			logging.Warn("failed to drop stale cache row: %v", err)
		}
		metrics.CacheMisses.Inc()
		return nil, nil
	}

	metrics.CacheHits.Inc()
	return &c, nil
}

// Put stores a produced GIF on disk and records its metadata, replacing any
// previous entry for the same URL.
func (s *Store) Put(ctx context.Context, sourceURL string, gifData []byte, frames, width, height int) (*Conversion, error) {
	hash := hashURL(sourceURL)
	filePath := filepath.Join(s.dir, hash+".gif")

	if err := os.WriteFile(filePath, gifData, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write cached gif: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversions
		   (url_hash, source_url, file_path, bytes, frames, width, height, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		hash, sourceURL, filePath, int64(len(gifData)), frames, width, height, now.Unix())
	if err != nil {
		if rmErr := os.Remove(filePath); rmErr != nil {
			logging.Warn("failed to remove orphaned gif %s: %v", filePath, rmErr)
		}
		return nil, fmt.Errorf("failed to record conversion: %w", err)
	}

	s.refreshEntryCount(ctx)
	return &Conversion{
		URLHash:   hash,
		SourceURL: sourceURL,
		FilePath:  filePath,
		Bytes:     int64(len(gifData)),
		Frames:    frames,
		Width:     width,
		Height:    height,
		CreatedAt: now,
	}, nil
}

// Read loads the GIF bytes for a cached conversion.
func (s *Store) Read(c *Conversion) ([]byte, error) {
	data, err := os.ReadFile(c.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached gif: %w", err)
	}
	return data, nil
}

// Prune removes conversions older than maxAge along with their files,
// returning the number of entries removed.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cutoff := time.Now().Add(-maxAge).Unix()
	rows, err := s.db.QueryContext(ctx,
		`SELECT url_hash, file_path FROM conversions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune query failed: %w", err)
	}
	defer rows.Close()

	type victim struct{ hash, path string }
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.hash, &v.path); err != nil {
			return 0, fmt.Errorf("prune scan failed: %w", err)
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("prune rows failed: %w", err)
	}

	removed := 0
	for _, v := range victims {
		if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove expired gif %s: %v", v.path, err)
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM conversions WHERE url_hash = ?`, v.hash); err != nil {
			logging.Warn("failed to delete expired row %s: %v", v.hash, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logging.Info("Pruned %d expired conversions", removed)
		s.refreshEntryCount(ctx)
	}
	return removed, nil
}

// LastFetch returns the recorded time of the most recent fetch from host,
// or the zero time when the host has never been fetched.
func (s *Store) LastFetch(ctx context.Context, host string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_fetch FROM rate_limits WHERE host = ?`, host).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("rate limit lookup failed: %w", err)
	}
	return time.Unix(ts, 0), nil
}

// RecordFetch stores now as the last fetch time for host.
func (s *Store) RecordFetch(ctx context.Context, host string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rate_limits (host, last_fetch) VALUES (?, ?)`,
		host, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record fetch time: %w", err)
	}
	return nil
}

func (s *Store) refreshEntryCount(ctx context.Context) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversions`).Scan(&n); err != nil {
		logging.Debug("failed to count cache entries: %v", err)
		return
	}
	metrics.CacheEntries.Set(float64(n))
}
