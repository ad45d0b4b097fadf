package insights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"time"

	"golang.org/x/sync/singleflight"

	"lifescore/internal/cache"
)

// CacheRecorder observes cache lookups, typically to export hit ratios.
type CacheRecorder interface {
	CacheLookup(hit bool)
}

type noopRecorder struct{}

func (noopRecorder) CacheLookup(bool) {}

// CachedFacade memoises bundles by request fingerprint. Concurrent calls
// with the same fingerprint share a single computation.
type CachedFacade struct {
	next     Computer
	cache    *cache.LRUCache[Bundle]
	group    singleflight.Group
	recorder CacheRecorder
}

// NewCached wraps next with an LRU of size entries expiring after ttl. A nil
// recorder discards lookup events.
func NewCached(next Computer, size int, ttl time.Duration, recorder CacheRecorder) *CachedFacade {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &CachedFacade{
		next:     next,
		cache:    cache.NewLRUCache[Bundle](size, ttl),
		recorder: recorder,
	}
}

func (c *CachedFacade) CatalogVersion() int { return c.next.CatalogVersion() }

// Cache exposes the underlying LRU so a cache.Manager can sweep it.
func (c *CachedFacade) Cache() *cache.LRUCache[Bundle] { return c.cache }

// ComputeInsights returns a cached bundle when one exists for the request,
// otherwise computes it once no matter how many callers are waiting.
func (c *CachedFacade) ComputeInsights(ctx context.Context, req Request) (Bundle, error) {
	key := Fingerprint(c.next.CatalogVersion(), req)
	if b, ok := c.cache.Get(key); ok {
		c.recorder.CacheLookup(true)
		return b, nil
	}
	c.recorder.CacheLookup(false)

	v, err, _ := c.group.Do(key, func() (any, error) {
		if b, ok := c.cache.Get(key); ok {
			return b, nil
		}
		// The computation is shared, so one caller giving up must not
		// cancel it for the others.
		b, err := c.next.ComputeInsights(context.WithoutCancel(ctx), req)
		if err != nil {
			return Bundle{}, err
		}
		c.cache.Set(key, b)
		return b, nil
	})
	if err != nil {
		return Bundle{}, err
	}
	return v.(Bundle), nil
}

// Invalidate drops every cached bundle.
func (c *CachedFacade) Invalidate() {
	c.cache.Clear()
}

// Fingerprint hashes every input that can influence a bundle. Free-text
// fields are quoted so separators inside them cannot shift field boundaries.
func Fingerprint(catalogVersion int, req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "v%d|%q|%q|%q|%d|%t\n", catalogVersion, req.Window.From.String(), req.Window.To.String(),
		string(req.Policy), req.Options.Reducer, req.Options.IncludeFailed)
	for _, tx := range req.Transactions {
		fmt.Fprintf(h, "t|%q|%q|%q|%q|%q|%q|%q\n", tx.ID, tx.AccountID, tx.Merchant,
			tx.Category.Name, tx.Amount.String(), tx.Date.String(), string(tx.Status))
	}
	for _, a := range req.Accounts {
		fmt.Fprintf(h, "a|%q|%q|%q\n", a.ID, a.Balance.String(), a.Currency)
	}
	for _, aux := range req.Auxiliary {
		writeAux(h, aux)
	}
	for _, cr := range req.Correlations {
		fmt.Fprintf(h, "c|%q|%q|%q\n", string(cr.Context), cr.A, cr.B)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeAux(h hash.Hash, aux Auxiliary) {
	fmt.Fprintf(h, "x|%q|%d|%d\n", aux.Name, aux.Reducer, len(aux.Samples))
	for _, s := range aux.Samples {
		fmt.Fprintf(h, "%q=%g\n", s.Date.String(), s.Value)
	}
}
