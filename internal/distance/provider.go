// Package distance builds travel-time matrices, in minutes, between
// geocoded points.
package distance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"visitplan/internal/config"
)

// ErrUnroutable is returned when a provider cannot connect two points.
var ErrUnroutable = errors.New("distance: no route between points")

var errNoPoints = errors.New("distance: no points")

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Key identifies a point in caches. Five decimals is about one metre.
func (p Point) Key() string { return fmt.Sprintf("%.5f,%.5f", p.Lat, p.Lon) }

// MatrixProvider returns an n×n matrix of travel minutes where entry (i,j)
// is the time from pts[i] to pts[j].
type MatrixProvider interface {
	Matrix(ctx context.Context, pts []Point) (*mat.Dense, error)
}

// StaticProvider serves a fixed matrix. It is used when the caller already
// knows its travel times.
type StaticProvider struct {
	Minutes [][]float64
}

func (s StaticProvider) Matrix(_ context.Context, pts []Point) (*mat.Dense, error) {
	n := len(pts)
	if n == 0 {
		return nil, errNoPoints
	}
	if len(s.Minutes) != n {
		return nil, fmt.Errorf("static matrix: %d rows for %d points", len(s.Minutes), n)
	}
	m := mat.NewDense(n, n, nil)
	for i, row := range s.Minutes {
		if len(row) != n {
			return nil, fmt.Errorf("static matrix: row %d has %d entries, want %d", i, len(row), n)
		}
		for j, x := range row {
			m.Set(i, j, x)
		}
	}
	return m, nil
}

// FromConfig returns the uncached provider selected by dc.
func FromConfig(dc config.DistanceConfig) MatrixProvider {
	if dc.Provider == "ors" {
		return NewORSProvider(dc.ORSBaseURL, dc.ORSProfile, dc.ORSAPIKey, dc.ORSRPS, time.Duration(dc.TimeoutSec)*time.Second)
	}
	return HaversineProvider{SpeedKph: dc.SpeedKph, Detour: dc.Detour}
}
