package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go-music-downloader/internal/models"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// ErrClosed is returned by operations on a closed database.
var ErrClosed = errors.New("database is closed")

const maxValueSize = 1 << 20

// DB wraps the bitcask instance and provides helper methods.
type DB struct {
	db *bitcask.Bitcask
	sync.RWMutex
	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// Open initializes and returns a DB instance.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := bitcask.Open(path, bitcask.WithMaxValueSize(maxValueSize))
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}

	log.Debugf("Database opened at %s", path)
	return &DB{db: db}, nil
}

// Close safely closes the database. Calling it more than once is harmless.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.Lock()
		defer d.Unlock()

		d.closeErr = d.db.Close()
		d.closed = true

		if d.closeErr != nil {
			log.Errorf("Error during database close operation: %v", d.closeErr)
		} else {
			log.Debug("Database closed successfully.")
		}
	})

	return d.closeErr
}

// Has checks if a key exists in the database.
func (d *DB) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return false
	}
	return d.db.Has(key)
}

// Get retrieves the value associated with a key.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	value, err := d.db.Get(key)
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error reading key %s: %w", key, err)
	}
	return value, nil
}

// Put stores value under key, replacing any previous value.
func (d *DB) Put(key []byte, value []byte) error {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return ErrClosed
	}

	if err := d.db.Put(key, value); err != nil {
		return fmt.Errorf("error writing key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key from the database.
func (d *DB) Delete(key []byte) error {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return ErrClosed
	}

	if !d.db.Has(key) {
		return ErrNotFound
	}
	if err := d.db.Delete(key); err != nil {
		return fmt.Errorf("error deleting key %s: %w", key, err)
	}
	return nil
}

// Fold iterates over all key-value pairs in key order and calls fn for each.
// Iteration stops at the first error returned by fn.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return ErrClosed
	}

	var keys [][]byte
	if err := d.db.Fold(func(key []byte) error {
		k := make([]byte, len(key))
		copy(k, key)
		keys = append(keys, k)
		return nil
	}); err != nil {
		return fmt.Errorf("error listing keys: %w", err)
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i]) < string(keys[j]) })

	for _, key := range keys {
		value, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error getting value for key %s", key)
			continue
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

// GetEntry loads the download record for videoID.
func (d *DB) GetEntry(videoID string) (models.DownloadEntry, error) {
	var entry models.DownloadEntry
	raw, err := d.Get([]byte(models.DatabaseKey(videoID)))
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, fmt.Errorf("error decoding entry for %s: %w", videoID, err)
	}
	return entry, nil
}

// PutEntry stores the download record under its video ID.
func (d *DB) PutEntry(entry models.DownloadEntry) error {
	if entry.VideoID == "" {
		return fmt.Errorf("entry has no video id")
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error encoding entry for %s: %w", entry.VideoID, err)
	}
	return d.Put([]byte(models.DatabaseKey(entry.VideoID)), raw)
}

// DeleteEntry removes the download record for videoID.
func (d *DB) DeleteEntry(videoID string) error {
	return d.Delete([]byte(models.DatabaseKey(videoID)))
}

// Entries returns every download record, ordered by key. Records that fail to
// decode are logged and skipped.
func (d *DB) Entries() ([]models.DownloadEntry, error) {
	var entries []models.DownloadEntry
	err := d.Fold(func(key []byte, value []byte) error {
		if len(key) < 2 || string(key[:2]) != "v_" {
			return nil
		}
		var entry models.DownloadEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Skipping unreadable entry %s", key)
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	return entries, err
}
