package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"

	"github.com/marcus/nhatky/internal/models"
)

// PutCachedResponse stores the raw body of a remote response under its
// request URL. The most recent write for a URL wins.
func (db *DB) PutCachedResponse(ctx context.Context, url string, body []byte, capturedAt time.Time) error {
	compressed := snappy.Encode(nil, body)
	return db.withWriteLock(func() error {
		_, err := db.conn.ExecContext(ctx, `INSERT OR REPLACE INTO response_cache (url, body, captured_at) VALUES (?, ?, ?)`,
			url, compressed, capturedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("cache response %s: %w", url, err)
		}
		return nil
	})
}

// GetCachedResponse returns the cached response for url, or ErrNotFound.
func (db *DB) GetCachedResponse(ctx context.Context, url string) (*models.CachedResponse, error) {
	if err := db.readable(); err != nil {
		return nil, err
	}
	var compressed []byte
	var capturedAt int64
	err := db.conn.QueryRowContext(ctx, `SELECT body, captured_at FROM response_cache WHERE url = ?`, url).
		Scan(&compressed, &capturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	body, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decode cached response %s: %w", url, err)
	}
	return &models.CachedResponse{URL: url, Body: body, CapturedAt: time.Unix(0, capturedAt)}, nil
}
