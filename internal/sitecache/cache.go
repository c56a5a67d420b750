// Package sitecache memoizes mailer site snapshots so that repeated form
// submissions for the same site do not hammer the remote API. Snapshots
// live in memory and optionally in a BoltDB file, both bounded by a TTL.
package sitecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/nordmail/formsync/internal/mailer"
	"github.com/nordmail/formsync/internal/metrics"
)

var bucketSnapshots = []byte("site_snapshots")

// Source provides the remote site metadata a snapshot is built from.
// *mailer.Connection satisfies it.
type Source interface {
	AccountSites(ctx context.Context) []mailer.Site
	Properties(ctx context.Context) []mailer.Property
	SiteConsents(ctx context.Context, domain string) []mailer.Consent
}

// entry is the cached form of one snapshot
type entry struct {
	FetchedAt time.Time    `json:"fetched_at"`
	Site      *mailer.Site `json:"site"`
}

// Cache caches site snapshots per domain. Concurrent populates for the
// same domain race benignly: last writer wins and staleness is bounded
// by the TTL.
type Cache struct {
	source Source
	ttl    time.Duration
	logger *slog.Logger
	db     *bolt.DB
	now    func() time.Time

	mu  sync.RWMutex
	mem map[string]entry
}

// New creates a snapshot cache. An empty path disables persistence.
func New(source Source, ttl time.Duration, path string, logger *slog.Logger) (*Cache, error) {
	c := &Cache{
		source: source,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		mem:    make(map[string]entry),
	}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to open cache database: %w", err)
		}
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
			return err
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create cache bucket: %w", err)
		}
		c.db = db
	}

	return c, nil
}

// Snapshot returns the site snapshot for a domain, fetching it from the
// mailer when no fresh cached copy exists. Returns nil when the domain
// cannot be resolved on the account or the mailer is unreachable.
func (c *Cache) Snapshot(ctx context.Context, domain string) *mailer.Site {
	if domain == "" {
		return nil
	}

	c.mu.RLock()
	e, ok := c.mem[domain]
	c.mu.RUnlock()
	if ok && c.fresh(e) {
		metrics.IncSnapshotHit()
		return e.Site
	}

	if e, ok := c.loadPersisted(domain); ok && c.fresh(e) {
		metrics.IncSnapshotHit()
		c.mu.Lock()
		c.mem[domain] = e
		c.mu.Unlock()
		return e.Site
	}

	metrics.IncSnapshotMiss()
	site := c.fetch(ctx, domain)
	if site == nil {
		return nil
	}

	e = entry{FetchedAt: c.now(), Site: site}
	c.mu.Lock()
	c.mem[domain] = e
	c.mu.Unlock()
	c.storePersisted(domain, e)

	return site
}

// Invalidate drops the cached snapshot for a domain
func (c *Cache) Invalidate(domain string) {
	c.mu.Lock()
	delete(c.mem, domain)
	c.mu.Unlock()

	if c.db == nil {
		return
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(domain))
	})
	if err != nil {
		c.logger.Warn("invalidating persisted snapshot failed", "domain", domain, "error", err)
	}
}

// Close closes the persisted cache, if any
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) fresh(e entry) bool {
	return e.Site != nil && c.now().Sub(e.FetchedAt) < c.ttl
}

// fetch builds a snapshot from the live account data. The sites endpoint
// omits the required and type attributes of properties, so they are
// merged in from the full customer property list.
func (c *Cache) fetch(ctx context.Context, domain string) *mailer.Site {
	sites := c.source.AccountSites(ctx)
	if len(sites) == 0 {
		return nil
	}

	var site *mailer.Site
	for i := range sites {
		if sites[i].Domain == domain {
			site = &sites[i]
			break
		}
	}
	if site == nil {
		c.logger.Warn("site not found on mailer account", "domain", domain)
		return nil
	}

	byHandle := make(map[mailer.Handle]mailer.Property)
	for _, p := range c.source.Properties(ctx) {
		byHandle[p.Handle] = p
	}
	for i := range site.Properties {
		if full, ok := byHandle[site.Properties[i].Handle]; ok {
			site.Properties[i].Required = full.Required
			site.Properties[i].Type = full.Type
		}
	}

	site.Consents = c.source.SiteConsents(ctx, domain)
	return site
}

func (c *Cache) loadPersisted(domain string) (entry, bool) {
	if c.db == nil {
		return entry{}, false
	}

	var e entry
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(domain))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		c.logger.Warn("reading persisted snapshot failed", "domain", domain, "error", err)
		return entry{}, false
	}
	return e, found
}

func (c *Cache) storePersisted(domain string, e entry) {
	if c.db == nil {
		return
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSnapshots).Put([]byte(domain), data)
	})
	if err != nil {
		c.logger.Warn("persisting snapshot failed", "domain", domain, "error", err)
	}
}
