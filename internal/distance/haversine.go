package distance

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	DefaultSpeedKph = 30.0
	DefaultDetour   = 1.3
)

// HaversineProvider estimates travel minutes from great-circle distance at
// a constant speed. Detour scales the straight line toward road distance.
type HaversineProvider struct {
	SpeedKph float64
	Detour   float64
}

func (h HaversineProvider) Matrix(ctx context.Context, pts []Point) (*mat.Dense, error) {
	if len(pts) == 0 {
		return nil, errNoPoints
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	speed, detour := h.SpeedKph, h.Detour
	if speed <= 0 {
		speed = DefaultSpeedKph
	}
	if detour < 1 {
		detour = DefaultDetour
	}
	n := len(pts)
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			km := haversineMeters(pts[i].Lat, pts[i].Lon, pts[j].Lat, pts[j].Lon) / 1000
			minutes := km * detour / speed * 60
			m.Set(i, j, minutes)
			m.Set(j, i, minutes)
		}
	}
	return m, nil
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
