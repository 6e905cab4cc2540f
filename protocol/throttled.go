package protocol

import (
	"context"
	"strings"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/hupe1980/segdag/model"
)

// Compile time check to ensure Throttled satisfies the RemoteService interface.
var _ RemoteService = (*Throttled)(nil)

// ThrottledOptions contains configuration for a Throttled service.
type ThrottledOptions struct {
	// RequestsPerSecond caps the round-trip rate. Zero means no rate
	// limit.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size.
	Burst int

	// MaxConcurrent caps in-flight round trips.
	MaxConcurrent int64
}

// DefaultThrottledOptions contains the default Throttled options.
var DefaultThrottledOptions = ThrottledOptions{
	Burst:         1,
	MaxConcurrent: 4,
}

// Throttled wraps a RemoteService with a request rate limit, an
// in-flight cap, and deduplication of identical concurrent lookups.
// Lazy graphs fan out lookups from many goroutines; the wrapper keeps
// that from overwhelming the remote.
type Throttled struct {
	inner   RemoteService
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	group   singleflight.Group
}

// NewThrottled wraps inner with the configured limits.
func NewThrottled(inner RemoteService, optFns ...func(o *ThrottledOptions)) *Throttled {
	opts := DefaultThrottledOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	t := &Throttled{
		inner: inner,
		sem:   semaphore.NewWeighted(opts.MaxConcurrent),
	}

	if opts.RequestsPerSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}

	return t
}

// ResolveNamesToPaths implements RemoteService.
func (t *Throttled) ResolveNamesToPaths(ctx context.Context, heads []model.Vertex, names []model.Vertex) ([]PathNames, error) {
	key := requestKey("n2p", len(heads)+len(names), func(b *strings.Builder) {
		for _, h := range heads {
			b.WriteString(h.Key())
			b.WriteByte(0)
		}
		b.WriteByte(1)
		for _, n := range names {
			b.WriteString(n.Key())
			b.WriteByte(0)
		}
	})

	return t.do(ctx, key, func(ctx context.Context) ([]PathNames, error) {
		return t.inner.ResolveNamesToPaths(ctx, heads, names)
	})
}

// ResolvePathsToNames implements RemoteService.
func (t *Throttled) ResolvePathsToNames(ctx context.Context, paths []AncestorPath) ([]PathNames, error) {
	key := requestKey("p2n", len(paths), func(b *strings.Builder) {
		for _, p := range paths {
			b.WriteString(p.String())
			b.WriteByte(0)
		}
	})

	return t.do(ctx, key, func(ctx context.Context) ([]PathNames, error) {
		return t.inner.ResolvePathsToNames(ctx, paths)
	})
}

func (t *Throttled) do(ctx context.Context, key string, fn func(ctx context.Context) ([]PathNames, error)) ([]PathNames, error) {
	v, err, _ := t.group.Do(key, func() (any, error) {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		if err := t.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer t.sem.Release(1)

		return fn(ctx)
	})
	if err != nil {
		return nil, err
	}

	return v.([]PathNames), nil
}

func requestKey(kind string, n int, write func(b *strings.Builder)) string {
	var b strings.Builder
	b.Grow(8 + n*16)
	b.WriteString(kind)
	b.WriteByte(0)
	write(&b)
	return b.String()
}
