package distance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"visitplan/internal/config"
)

func TestHaversineOneDegree(t *testing.T) {
	h := HaversineProvider{SpeedKph: 60, Detour: 1}
	m, err := h.Matrix(context.Background(), []Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 0}})
	require.NoError(t, err)
	assert.InDelta(t, 111.19, m.At(0, 1), 0.05)
	assert.Equal(t, m.At(0, 1), m.At(1, 0))
	assert.Zero(t, m.At(0, 0))

	_, err = h.Matrix(context.Background(), nil)
	assert.Error(t, err)
}

func TestStaticProviderDims(t *testing.T) {
	s := StaticProvider{Minutes: [][]float64{{0, 5}, {6, 0}}}
	m, err := s.Matrix(context.Background(), make([]Point, 2))
	require.NoError(t, err)
	assert.Equal(t, 6.0, m.At(1, 0))

	_, err = s.Matrix(context.Background(), make([]Point, 3))
	assert.Error(t, err)
	_, err = StaticProvider{Minutes: [][]float64{{0}, {1, 0}}}.Matrix(context.Background(), make([]Point, 2))
	assert.Error(t, err)
}

func orsServer(t *testing.T, failures int32, durations [][]*float64) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/v2/matrix/driving-car", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		if n <= failures {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var req orsMatrixRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []float64{13.4, 52.5}, req.Locations[0], "lon,lat order")
		_ = json.NewEncoder(w).Encode(orsMatrixResponse{Durations: durations})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func f(x float64) *float64 { return &x }

func TestORSRetriesTransientFailures(t *testing.T) {
	srv, calls := orsServer(t, 1, [][]*float64{{f(0), f(600)}, {f(660), f(0)}})
	o := NewORSProvider(srv.URL, "", "secret", 0, time.Second)
	o.Backoff = time.Millisecond

	m, err := o.Matrix(context.Background(), []Point{{Lat: 52.5, Lon: 13.4}, {Lat: 52.52, Lon: 13.41}})
	require.NoError(t, err)
	assert.Equal(t, 10.0, m.At(0, 1))
	assert.Equal(t, 11.0, m.At(1, 0))
	assert.Equal(t, int32(2), calls.Load())
}

func TestORSUnroutable(t *testing.T) {
	srv, _ := orsServer(t, 0, [][]*float64{{f(0), nil}, {f(60), f(0)}})
	o := NewORSProvider(srv.URL, "", "secret", 0, time.Second)

	_, err := o.Matrix(context.Background(), []Point{{Lat: 52.5, Lon: 13.4}, {Lat: 52.52, Lon: 13.41}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnroutable))
}

func TestORSGivesUpOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()
	o := NewORSProvider(srv.URL, "", "secret", 0, time.Second)

	_, err := o.Matrix(context.Background(), []Point{{}, {Lat: 1}})
	require.Error(t, err)
	var he *httpStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusForbidden, he.Code)
	assert.Equal(t, int32(1), calls.Load())
}

type countingProvider struct {
	calls int
	last  int
	next  MatrixProvider
}

func (c *countingProvider) Matrix(ctx context.Context, pts []Point) (*mat.Dense, error) {
	c.calls++
	c.last = len(pts)
	return c.next.Matrix(ctx, pts)
}

func TestCachedProviderServesRepeatRequests(t *testing.T) {
	inner := &countingProvider{next: HaversineProvider{}}
	c := &CachedProvider{Next: inner, Cache: NewMemoryCache(), Log: zerolog.Nop()}
	pts := []Point{{Lat: 52.5, Lon: 13.4}, {Lat: 52.6, Lon: 13.5}, {Lat: 52.5, Lon: 13.4}}

	first, err := c.Matrix(context.Background(), pts)
	require.NoError(t, err)
	second, err := c.Matrix(context.Background(), pts)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.True(t, mat.EqualApprox(first, second, 1e-12))

	// One unknown point refetches the whole matrix.
	_, err = c.Matrix(context.Background(), append(pts, Point{Lat: 48.1, Lon: 11.6}))
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 4, inner.last)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(rdb, "", time.Hour)
	ctx := context.Background()

	a, b := Pair{"1,1", "2,2"}, Pair{"2,2", "1,1"}
	require.NoError(t, c.PutMany(ctx, map[Pair]float64{a: 12.5}))
	got, err := c.GetMany(ctx, []Pair{a, b})
	require.NoError(t, err)
	assert.Equal(t, map[Pair]float64{a: 12.5}, got)
	assert.True(t, mr.Exists("travel:1,1|2,2"))
	assert.Greater(t, mr.TTL("travel:1,1|2,2"), time.Duration(0))

	cached := &CachedProvider{Next: HaversineProvider{}, Cache: c, Log: zerolog.Nop()}
	pts := []Point{{Lat: 52.5, Lon: 13.4}, {Lat: 52.6, Lon: 13.5}}
	_, err = cached.Matrix(ctx, pts)
	require.NoError(t, err)
	assert.True(t, mr.Exists("travel:"+pts[0].Key()+"|"+pts[1].Key()))
}

func TestFromConfig(t *testing.T) {
	var dc config.DistanceConfig
	dc.SetDefaults()
	h, ok := FromConfig(dc).(HaversineProvider)
	require.True(t, ok)
	assert.Equal(t, 30.0, h.SpeedKph)
	assert.Equal(t, 1.3, h.Detour)

	dc.Provider = "ors"
	dc.ORSBaseURL = "http://ors.local"
	dc.ORSProfile = "driving-car"
	dc.ORSAPIKey = "k"
	o, ok := FromConfig(dc).(*ORSProvider)
	require.True(t, ok)
	assert.Equal(t, "driving-car", o.Profile)
	assert.Equal(t, 15*time.Second, o.Client.Timeout)
}
