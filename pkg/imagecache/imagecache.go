// Package imagecache is the node agent's local record of images it has
// already pulled and unpacked, so a repeated CreateInstance for the
// same image skips the registry round trip (spec.md §5 "Image
// management"). It is bbolt-backed, one bucket keyed by image
// reference, following the same bucket-per-entity, JSON-value pattern
// the controller's predecessor used for its own local store.
package imagecache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/ridgeline/pkg/metrics"
)

var bucketImages = []byte("images")

// Entry records one image's last-known pull outcome.
type Entry struct {
	Ref       string    `json:"ref"`
	Digest    string    `json:"digest"`
	PulledAt  time.Time `json:"pulled_at"`
	SizeBytes int64     `json:"size_bytes"`
	PullCount int       `json:"pull_count"`
}

// Cache is a bbolt-backed manifest of locally-unpacked images.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the image cache database under dataDir.
func Open(dataDir string) (*Cache, error) {
	path := filepath.Join(dataDir, "imagecache.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("imagecache: failed to open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketImages)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("imagecache: failed to create bucket: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup returns the cached entry for ref, if present.
func (c *Cache) Lookup(ref string) (Entry, bool, error) {
	var entry Entry
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketImages).Get([]byte(ref))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("imagecache: lookup %s: %w", ref, err)
	}
	if found {
		metrics.ImageCacheHitsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.ImageCacheHitsTotal.WithLabelValues("miss").Inc()
	}
	return entry, found, nil
}

// Record stores or updates an entry after a successful pull, bumping
// PullCount if the image was already cached.
func (c *Cache) Record(ref, digest string, sizeBytes int64) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketImages)

		entry := Entry{Ref: ref, Digest: digest, PulledAt: time.Now(), SizeBytes: sizeBytes, PullCount: 1}
		if existing := b.Get([]byte(ref)); existing != nil {
			var prev Entry
			if err := json.Unmarshal(existing, &prev); err == nil {
				entry.PullCount = prev.PullCount + 1
			}
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(ref), data)
	})
}

// Forget removes ref from the cache, e.g. after a pull fails digest
// verification and the unpacked snapshot is discarded.
func (c *Cache) Forget(ref string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketImages).Delete([]byte(ref))
	})
}

// List returns every cached entry.
func (c *Cache) List() ([]Entry, error) {
	var entries []Entry
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketImages).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("imagecache: list: %w", err)
	}
	return entries, nil
}
