package distance

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Pair is a directed cache key between two points.
type Pair struct {
	From string
	To   string
}

// Cache stores travel minutes per directed pair. Missing pairs are simply
// absent from GetMany's result.
type Cache interface {
	GetMany(ctx context.Context, pairs []Pair) (map[Pair]float64, error)
	PutMany(ctx context.Context, minutes map[Pair]float64) error
}

// CachedProvider answers from Cache when every off-diagonal pair is known
// and otherwise asks Next for the full matrix and stores it. Cache errors
// are logged and never fail the request.
type CachedProvider struct {
	Next  MatrixProvider
	Cache Cache
	Log   zerolog.Logger
}

func (c *CachedProvider) Matrix(ctx context.Context, pts []Point) (*mat.Dense, error) {
	n := len(pts)
	if n == 0 {
		return nil, errNoPoints
	}
	keys := make([]string, n)
	for i, p := range pts {
		keys[i] = p.Key()
	}
	pairs := make([]Pair, 0, n*(n-1))
	for i := range keys {
		for j := range keys {
			if keys[i] != keys[j] {
				pairs = append(pairs, Pair{keys[i], keys[j]})
			}
		}
	}

	hit, err := c.Cache.GetMany(ctx, pairs)
	if err != nil {
		c.Log.Warn().Err(err).Msg("travel cache read failed")
	} else if m, ok := fromPairs(keys, hit); ok {
		c.Log.Debug().Int("points", n).Msg("travel cache hit")
		return m, nil
	}

	m, err := c.Next.Matrix(ctx, pts)
	if err != nil {
		return nil, err
	}
	put := make(map[Pair]float64, len(pairs))
	for i := range keys {
		for j := range keys {
			if keys[i] != keys[j] {
				put[Pair{keys[i], keys[j]}] = m.At(i, j)
			}
		}
	}
	if err := c.Cache.PutMany(ctx, put); err != nil {
		c.Log.Warn().Err(err).Msg("travel cache write failed")
	}
	return m, nil
}

func fromPairs(keys []string, hit map[Pair]float64) (*mat.Dense, bool) {
	n := len(keys)
	m := mat.NewDense(n, n, nil)
	for i := range keys {
		for j := range keys {
			if keys[i] == keys[j] {
				continue
			}
			x, ok := hit[Pair{keys[i], keys[j]}]
			if !ok {
				return nil, false
			}
			m.Set(i, j, x)
		}
	}
	return m, true
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[Pair]float64
}

func NewMemoryCache() *MemoryCache { return &MemoryCache{m: map[Pair]float64{}} }

func (c *MemoryCache) GetMany(_ context.Context, pairs []Pair) (map[Pair]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[Pair]float64, len(pairs))
	for _, p := range pairs {
		if x, ok := c.m[p]; ok {
			out[p] = x
		}
	}
	return out, nil
}

func (c *MemoryCache) PutMany(_ context.Context, minutes map[Pair]float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p, x := range minutes {
		c.m[p] = x
	}
	return nil
}
