// Package storage keeps a small bbolt database of past experiment runs so
// results can be compared across invocations without digging through the
// raw artifact files.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const bucketRuns = "runs"

// RunEntry is one recorded experiment invocation.
type RunEntry struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Experiment string            `json:"experiment"`
	Artifacts  []string          `json:"artifacts,omitempty"`
	Stats      map[string]string `json:"stats,omitempty"`
}

// Store wraps the history database.
type Store struct {
	db *bbolt.DB
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuns))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Save records one run. Keys are timestamp-prefixed so iteration order is
// chronological.
func (s *Store) Save(entry RunEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("run entry has no id")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal run entry: %w", err)
	}
	key := fmt.Sprintf("%s/%s", entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.ID)
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketRuns)).Put([]byte(key), data)
	})
}

// List returns the most recent entries, newest first, up to limit.
// limit <= 0 returns everything.
func (s *Store) List(limit int) ([]RunEntry, error) {
	var entries []RunEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var entry RunEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal run entry %s: %w", k, err)
			}
			entries = append(entries, entry)
			if limit > 0 && len(entries) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
