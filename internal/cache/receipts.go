package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// ReceiptLoader resolves a stored receipt reference to a displayable URI.
type ReceiptLoader func(ctx context.Context, ref string) (string, bool)

// Receipts memoizes resolved receipt URIs. Concurrent lookups of the same
// reference share one load. Failed loads are not cached so a later
// connection can still resolve them.
type Receipts struct {
	lru   *LRUCache[string]
	group singleflight.Group
	load  ReceiptLoader
}

func NewReceipts(size int, ttl time.Duration, load ReceiptLoader) *Receipts {
	return &Receipts{lru: NewLRUCache[string](size, ttl), load: load}
}

// Resolve returns the cached URI for ref, loading it on a miss.
func (r *Receipts) Resolve(ctx context.Context, ref string) (string, bool) {
	if uri, ok := r.lru.Get(ref); ok {
		return uri, true
	}
	v, _, _ := r.group.Do(ref, func() (any, error) {
		uri, ok := r.load(ctx, ref)
		if !ok {
			return "", nil
		}
		r.lru.Set(ref, uri)
		return uri, nil
	})
	uri := v.(string)
	return uri, uri != ""
}

// Invalidate drops every cached URI, e.g. after the drive session changes.
func (r *Receipts) Invalidate() { r.lru.Purge() }

func (r *Receipts) CleanExpired() int { return r.lru.CleanExpired() }

func (r *Receipts) Size() int { return r.lru.Size() }
