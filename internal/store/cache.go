package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// CacheKey derives a content-addressed cache key from its logical inputs.
// Parts are length-prefixed before hashing so that no two distinct part
// lists can produce the same digest.
func CacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CacheGet returns the cached value for key, or ok=false on a miss.
// Expired entries read as misses; expiry does not delete the row here,
// pruning is an explicit maintenance operation.
func (db *DB) CacheGet(key string) ([]byte, bool, error) {
	var value []byte
	var createdAt, ttlMillis int64
	err := db.conn.QueryRow(
		"SELECT value, created_at, ttl_ms FROM cache_entries WHERE key = ?", key,
	).Scan(&value, &createdAt, &ttlMillis)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	if expired(createdAt, ttlMillis, time.Now()) {
		return nil, false, nil
	}
	return value, true, nil
}

// CachePut stores value under key with the given TTL. A zero TTL means the
// entry never expires. An existing entry is overwritten (last writer wins).
func (db *DB) CachePut(key string, value []byte, ttl time.Duration) error {
	_, err := db.conn.Exec(`
INSERT INTO cache_entries (key, value, created_at, ttl_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    value = excluded.value,
    created_at = excluded.created_at,
    ttl_ms = excluded.ttl_ms`,
		key, value, time.Now().UnixMilli(), ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// CacheInvalidate removes a single entry.
func (db *DB) CacheInvalidate(key string) error {
	if _, err := db.conn.Exec("DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("invalidating cache entry: %w", err)
	}
	return nil
}

// CachePruneExpired deletes all expired entries and returns how many were removed.
func (db *DB) CachePruneExpired() (int64, error) {
	res, err := db.conn.Exec(
		"DELETE FROM cache_entries WHERE ttl_ms > 0 AND created_at + ttl_ms <= ?",
		time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning cache: %w", err)
	}
	return res.RowsAffected()
}

// CacheClear deletes every entry and returns how many were removed.
func (db *DB) CacheClear() (int64, error) {
	res, err := db.conn.Exec("DELETE FROM cache_entries")
	if err != nil {
		return 0, fmt.Errorf("clearing cache: %w", err)
	}
	return res.RowsAffected()
}

// CacheStats counts live and expired entries.
func (db *DB) CacheStats() (live, stale int, err error) {
	now := time.Now().UnixMilli()
	err = db.conn.QueryRow(`
SELECT
    COUNT(CASE WHEN ttl_ms = 0 OR created_at + ttl_ms > ? THEN 1 END),
    COUNT(CASE WHEN ttl_ms > 0 AND created_at + ttl_ms <= ? THEN 1 END)
FROM cache_entries`, now, now).Scan(&live, &stale)
	if err != nil {
		return 0, 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return live, stale, nil
}

func expired(createdAt, ttlMillis int64, now time.Time) bool {
	if ttlMillis <= 0 {
		return false
	}
	return now.UnixMilli() >= createdAt+ttlMillis
}
