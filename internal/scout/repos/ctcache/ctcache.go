// Package ctcache is an on-disk cache of certificate-transparency query
// results, keyed by apex domain. crt.sh is slow and rate-limited; repeated
// scans of the same apex within the freshness window reuse the prior fetch.
package ctcache

import (
	"encoding/json"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/sdscout/sdscout/internal/scout/common/clock"
)

var bucketCT = []byte("ct")

// Entry is the stored value for one apex domain.
type Entry struct {
	FetchedAt  time.Time `json:"fetched_at"`
	Subdomains []string  `json:"subdomains"`
}

// Cache is a bbolt-backed CT result cache.
type Cache struct {
	db *bbolt.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCT)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close releases the database.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached subdomain list for domain if it was fetched
// within maxAge of now.
func (c *Cache) Get(domain string, maxAge time.Duration, now time.Time) ([]string, bool, error) {
	var entry Entry
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCT)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(domain))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &entry); err != nil {
			// A corrupt entry behaves like a miss.
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found || clock.Expired(now, entry.FetchedAt, maxAge) {
		return nil, false, nil
	}
	return entry.Subdomains, true, nil
}

// Put stores the subdomain list for domain, stamped with now.
func (c *Cache) Put(domain string, subdomains []string, now time.Time) error {
	value, err := json.Marshal(Entry{FetchedAt: now, Subdomains: subdomains})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketCT)
		if err != nil {
			return err
		}
		return b.Put([]byte(domain), value)
	})
}
