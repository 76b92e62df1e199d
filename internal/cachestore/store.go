package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/mediarelay/internal/domain"
	"github.com/iconidentify/mediarelay/internal/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
    content_key TEXT NOT NULL,
    variant_key TEXT NOT NULL,
    kind TEXT NOT NULL,
    handle TEXT NOT NULL,
    handle_unique TEXT,
    width INTEGER,
    height INTEGER,
    duration INTEGER,
    size INTEGER,
    recipe_used TEXT,
    title TEXT,
    source_url TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (content_key, variant_key)
);
`

// Store is the durable variant cache: (content key, variant key) →
// previously produced artifact handle. Writes are last-write-wins
// upserts; the in-flight coordinator upstream guarantees at most one
// producer per key, and an internal mutex keeps writes serialized even
// if a caller bypasses it.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
	logger  *slog.Logger
}

// Open opens (and if needed creates) the cache database. A failure here
// is fatal for the service: without the cache the core cannot provide
// its dedup guarantee.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	// One writer connection, matching the serialized write model.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", domain.ErrCacheUnavailable, err)
	}

	logger.Info("variant cache opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get looks up the entry for an exact (content key, variant key) pair.
// Returns domain.ErrEntryNotFound on a miss.
func (s *Store) Get(ctx context.Context, key domain.ContentKey, variant domain.VariantKey) (*domain.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content_key, variant_key, kind, handle, handle_unique,
		       width, height, duration, size, recipe_used, title, source_url, created_at
		FROM cache WHERE content_key = ? AND variant_key = ?`,
		key.String(), variant.String(),
	)
	return scanEntry(row)
}

// GetAny looks up an entry tolerating extractor-case differences in
// rows written before key canonicalization was introduced. The probe is
// a bounded set of spellings, not a fuzzy match.
func (s *Store) GetAny(ctx context.Context, key domain.ContentKey, variant domain.VariantKey) (*domain.CacheEntry, error) {
	canonical := key.Canonical()
	entry, err := s.Get(ctx, canonical, variant)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, domain.ErrEntryNotFound) {
		return nil, err
	}

	for _, alt := range compatKeys(key) {
		if alt == canonical {
			continue
		}
		entry, err := s.Get(ctx, alt, variant)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, domain.ErrEntryNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrEntryNotFound
}

// compatKeys returns the legacy extractor-case spellings probed for
// rows that predate canonicalization.
func compatKeys(key domain.ContentKey) []domain.ContentKey {
	k := key.String()
	i := strings.Index(k, ":")
	if i < 0 {
		return nil
	}
	prefix, rest := k[:i], k[i+1:]

	seen := make(map[string]struct{})
	var alts []domain.ContentKey
	for _, p := range []string{
		strings.ToLower(prefix),
		capitalize(prefix),
		strings.ToUpper(prefix),
		"YouTube",
		"youtube",
	} {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		alts = append(alts, domain.ContentKey(p+":"+rest))
	}
	return alts
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// Put upserts an entry under its (content key, variant key) pair. The
// content key is canonicalized on the way in so all new rows share one
// spelling.
func (s *Store) Put(ctx context.Context, entry *domain.CacheEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache (
			content_key, variant_key, kind, handle, handle_unique,
			width, height, duration, size, recipe_used, title, source_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ContentKey.Canonical().String(),
		entry.VariantKey.String(),
		string(entry.Kind),
		entry.Handle.String(),
		entry.HandleUnique,
		entry.Width,
		entry.Height,
		entry.Duration,
		entry.Size,
		entry.RecipeUsed,
		entry.Title,
		entry.SourceURL,
	)
	if err != nil {
		return fmt.Errorf("%w: put %s [%s]: %v", domain.ErrCacheUnavailable, entry.ContentKey, entry.VariantKey, err)
	}

	metrics.CacheWrites.Inc()
	s.logger.Info("cache entry saved",
		"content_key", entry.ContentKey.Canonical(),
		"variant_key", entry.VariantKey,
		"handle", entry.Handle,
		"size", entry.Size,
	)
	return nil
}

func scanEntry(row *sql.Row) (*domain.CacheEntry, error) {
	var (
		entry        domain.CacheEntry
		contentKey   string
		variantKey   string
		kind         string
		handle       string
		handleUnique sql.NullString
		title        sql.NullString
		sourceURL    sql.NullString
		recipeUsed   sql.NullString
		createdAt    sql.NullString
	)

	err := row.Scan(
		&contentKey, &variantKey, &kind, &handle, &handleUnique,
		&entry.Width, &entry.Height, &entry.Duration, &entry.Size,
		&recipeUsed, &title, &sourceURL, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	entry.ContentKey = domain.ContentKey(contentKey)
	entry.VariantKey = domain.VariantKey(variantKey)
	entry.Kind = domain.MediaKind(kind)
	entry.Handle = domain.Handle(handle)
	entry.HandleUnique = handleUnique.String
	entry.RecipeUsed = recipeUsed.String
	entry.Title = title.String
	entry.SourceURL = sourceURL.String
	if createdAt.Valid {
		if ts, err := time.Parse("2006-01-02 15:04:05", createdAt.String); err == nil {
			entry.CreatedAt = ts
		}
	}
	return &entry, nil
}
