package opt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// depotMatrix builds an arena matrix for stops sharing one depot: stopTT
// holds stop-to-stop minutes and every depot leg takes depot minutes.
func depotMatrix(stopTT [][]float64, depot float64, vehicles int) *mat.Dense {
	ns := len(stopTT)
	n := ns + 2*vehicles
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			switch {
			case i == j:
			case i < ns && j < ns:
				m.Set(i, j, stopTT[i][j])
			case i < ns || j < ns:
				m.Set(i, j, depot)
			}
		}
	}
	return m
}

func scenarioStops(middle Window) []Stop {
	return []Stop{
		{ID: "a", Window: Window{60, 120}, ServiceMin: 15},
		{ID: "b", Window: middle, ServiceMin: 30},
		{ID: "c", Window: Window{0, 480}, ServiceMin: 10},
	}
}

func scenarioVehicles() []Vehicle {
	return []Vehicle{
		{ID: "v1", BudgetMin: 480},
		{ID: "v2", BudgetMin: 480},
	}
}

var triangle = [][]float64{
	{0, 10, 14},
	{10, 0, 10},
	{14, 10, 0},
}

func scenario(t *testing.T, middle Window) *Problem {
	t.Helper()
	p, err := Build(scenarioStops(middle), scenarioVehicles(), depotMatrix(triangle, 10, 2))
	require.NoError(t, err)
	return p
}

// randomProblem draws integer coordinates on a grid so that every
// travel time and window bound is a whole minute.
func randomProblem(t *testing.T, seed int64, stops, vehicles int) *Problem {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	type pt struct{ x, y float64 }
	pts := make([]pt, 0, stops+2*vehicles)
	ss := make([]Stop, stops)
	for i := range ss {
		pts = append(pts, pt{float64(rng.Intn(60)), float64(rng.Intn(60))})
		open := float64(rng.Intn(300))
		ss[i] = Stop{
			ID:         string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Window:     Window{open, open + float64(60+rng.Intn(180))},
			ServiceMin: float64(5 + rng.Intn(30)),
		}
	}
	vs := make([]Vehicle, vehicles)
	for v := range vs {
		depot := pt{float64(rng.Intn(60)), float64(rng.Intn(60))}
		pts = append(pts, depot, depot)
		vs[v] = Vehicle{ID: string(rune('p' + v)), BudgetMin: float64(240 + 60*rng.Intn(5))}
	}
	n := len(pts)
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, math.Round(math.Hypot(pts[i].x-pts[j].x, pts[i].y-pts[j].y)))
		}
	}
	p, err := Build(ss, vs, m)
	require.NoError(t, err)
	return p
}

// requireLaws checks coverage, the window law and the duration cap on sol.
func requireLaws(t *testing.T, p *Problem, sol Solution) {
	t.Helper()
	seen := map[int]int{}
	for _, r := range sol.Routes {
		veh := p.Vehicles[r.Vehicle]
		sc := p.Propagate(r.Vehicle, r.Stops)
		require.True(t, sc.Feasible(), "route of %s infeasible", veh.ID)
		for k, s := range r.Stops {
			seen[s]++
			w := p.Stops[s].Window
			require.GreaterOrEqual(t, sc.Arrival[k], w.Earliest-eps)
			require.LessOrEqual(t, sc.Arrival[k], w.Latest+eps)
			require.InDelta(t, sc.Arrival[k]+p.Stops[s].ServiceMin, sc.Departure[k], 1e-9)
			require.Equal(t, ClassRoutable, p.Stops[s].Class)
		}
		if len(r.Stops) > 0 {
			last := r.Stops[len(r.Stops)-1]
			elapsed := sc.Departure[len(sc.Departure)-1] + p.Travel(last, p.endNode(r.Vehicle)) - sc.Start
			require.LessOrEqual(t, elapsed, veh.BudgetMin+eps)
		}
	}
	for _, s := range sol.Unassigned {
		seen[s]++
	}
	for _, s := range p.Routable {
		require.Equal(t, 1, seen[s], "stop %s must appear exactly once", p.Stops[s].ID)
	}
	require.Len(t, seen, len(p.Routable))
}

func routeIDs(p *Problem, r Route) []string {
	out := make([]string, len(r.Stops))
	for k, s := range r.Stops {
		out[k] = p.Stops[s].ID
	}
	return out
}
