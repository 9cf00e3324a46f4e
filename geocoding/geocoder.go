// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"log"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/jcodagnone/geosites/spatial"
	"github.com/jcodagnone/geosites/utils/textutils"
	"golang.org/x/sync/singleflight"
)

// Reason explains a Resolution.
type Reason string

const (
	ReasonResolved           Reason = "resolved"
	ReasonNoMatch            Reason = "no-match"
	ReasonTransientExhausted Reason = "transient-exhausted"
	ReasonRejected           Reason = "rejected"
	ReasonInvalid            Reason = "invalid"
	// ReasonCancelled is never cached: the caller gave up, not the provider.
	ReasonCancelled Reason = "cancelled"
)

// Resolution is the outcome of resolving a name. A nil Point means the name
// was not found.
type Resolution struct {
	Point       *spatial.Point `json:"point,omitempty"`
	Reason      Reason         `json:"reason"`
	DisplayName string         `json:"display_name,omitempty"`
	Cached      bool           `json:"cached"`
}

// Found reports whether the resolution carries a point.
func (r Resolution) Found() bool {
	return r.Point != nil
}

// Geocoder resolves place names. Implementations never fail: problems come
// back as a Resolution without a point.
type Geocoder interface {
	Resolve(ctx context.Context, name string, bias *spatial.Point) Resolution
}

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRetries   = 3
	DefaultBiasSanityKm = 500
	DefaultRateInterval = time.Second
)

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}

	jitter := time.Duration(rand.Int64N(int64(base) / 2))

	return base + jitter
}

// Options configures a CachedGeocoder. Cache and Limiter may be shared
// between geocoders; nil values get private instances.
type Options struct {
	Cache              *Cache
	Limiter            *Limiter
	Timeout            time.Duration
	MaxRetries         int
	BiasSanityKm       float64
	BiasCellResolution int
	Backoff            func(attempt int) time.Duration
}

// DefaultOptions returns options with the package defaults and fresh,
// unshared cache and limiter.
func DefaultOptions() Options {
	return Options{
		Cache:              NewCache(0),
		Limiter:            NewLimiter(DefaultRateInterval),
		Timeout:            DefaultTimeout,
		MaxRetries:         DefaultMaxRetries,
		BiasSanityKm:       DefaultBiasSanityKm,
		BiasCellResolution: DefaultBiasCellResolution,
		Backoff:            Backoff,
	}
}

// CachedGeocoder resolves names through a Provider, remembering every
// outcome and throttling outbound calls.
type CachedGeocoder struct {
	provider Provider
	cache    *Cache
	limiter  *Limiter
	opts     Options
	group    singleflight.Group
	calls    atomic.Int64
}

// NewCachedGeocoder returns a geocoder querying provider.
func NewCachedGeocoder(provider Provider, opts Options) *CachedGeocoder {
	if opts.Cache == nil {
		opts.Cache = NewCache(0)
	}

	if opts.Limiter == nil {
		opts.Limiter = NewLimiter(DefaultRateInterval)
	}

	if opts.Backoff == nil {
		opts.Backoff = Backoff
	}

	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &CachedGeocoder{
		provider: provider,
		cache:    opts.Cache,
		limiter:  opts.Limiter,
		opts:     opts,
	}
}

// Resolve implements Geocoder.
func (g *CachedGeocoder) Resolve(ctx context.Context, name string, bias *spatial.Point) Resolution {
	query := textutils.CollapseSpaces(name)
	if query == "" {
		return Resolution{Reason: ReasonNoMatch}
	}

	key := CacheKey(query, bias, g.opts.BiasCellResolution)

	if r, ok := g.cache.Get(key); ok {
		r.Cached = true

		return r
	}

	if ctx.Err() != nil {
		return Resolution{Reason: ReasonCancelled}
	}

	// the flight outlives whichever caller started it; each attempt is still
	// bounded by Options.Timeout
	flight := context.WithoutCancel(ctx)

	ch := g.group.DoChan(key, func() (any, error) {
		// a flight that finished just before this one may have filled it
		if r, ok := g.cache.peek(key); ok {
			r.Cached = true

			return r, nil
		}

		r := g.lookup(flight, query, bias)
		if r.Reason == ReasonCancelled {
			return r, nil
		}

		return g.cache.Put(key, r), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Resolution)
	case <-ctx.Done():
		return Resolution{Reason: ReasonCancelled}
	}
}

func (g *CachedGeocoder) lookup(ctx context.Context, query string, bias *spatial.Point) Resolution {
	var lastErr error

	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Resolution{Reason: ReasonCancelled}
			case <-time.After(g.opts.Backoff(attempt - 1)):
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return Resolution{Reason: ReasonCancelled}
		}

		candidates, err := g.search(ctx, query, bias)
		if err == nil {
			return g.pick(query, candidates, bias)
		}

		if ctx.Err() != nil {
			return Resolution{Reason: ReasonCancelled}
		}

		if !IsTransient(err) {
			log.Printf("geocoding %q rejected: %v", query, err)

			return Resolution{Reason: ReasonRejected}
		}

		lastErr = err
	}

	log.Printf("geocoding %q: giving up after %d attempts: %v", query, g.opts.MaxRetries+1, lastErr)

	return Resolution{Reason: ReasonTransientExhausted}
}

func (g *CachedGeocoder) search(ctx context.Context, query string, bias *spatial.Point) ([]Candidate, error) {
	g.calls.Add(1)

	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	return g.provider.Search(ctx, query, bias)
}

// pick chooses among candidates: the first valid one, or the nearest to the
// bias when there is one.
func (g *CachedGeocoder) pick(query string, candidates []Candidate, bias *spatial.Point) Resolution {
	if len(candidates) == 0 {
		return Resolution{Reason: ReasonNoMatch}
	}

	best, bestDistance := -1, math.Inf(1)

	for i, c := range candidates {
		if c.Point.Validate() != nil {
			continue
		}

		if bias == nil {
			best = i

			break
		}

		if d := bias.DistanceKm(c.Point); d < bestDistance {
			best, bestDistance = i, d
		}
	}

	if best < 0 {
		log.Printf("geocoding %q: provider returned only out-of-range points", query)

		return Resolution{Reason: ReasonInvalid}
	}

	if bias != nil && g.opts.BiasSanityKm > 0 && bestDistance > g.opts.BiasSanityKm {
		log.Printf("⚠️ geocoding %q: nearest match %s is %.0f km from the bias point", query, candidates[best].DisplayName, bestDistance)
	}

	p := candidates[best].Point

	return Resolution{Point: &p, Reason: ReasonResolved, DisplayName: candidates[best].DisplayName}
}

// Stats summarizes cache and provider usage.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Calls   int64 `json:"external_calls"`
}

// Stats returns the current counters.
func (g *CachedGeocoder) Stats() Stats {
	hits, misses := g.cache.Counters()

	return Stats{
		Entries: g.cache.Len(),
		Hits:    hits,
		Misses:  misses,
		Calls:   g.calls.Load(),
	}
}

// Reset clears the cache, the limiter and the call counter.
func (g *CachedGeocoder) Reset() {
	g.cache.Reset()
	g.limiter.Reset()
	g.calls.Store(0)
}
