package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropagateWaitsForWindow(t *testing.T) {
	p := scenario(t, Window{120, 180})

	sc := p.Propagate(0, []int{0, 1, 2})
	require.True(t, sc.Feasible())
	assert.Equal(t, []float64{60, 120, 160}, sc.Arrival)
	assert.Equal(t, []float64{75, 150, 170}, sc.Departure)
	assert.Equal(t, 180.0, sc.End)
	assert.Equal(t, 180.0, sc.Duration())
	assert.Equal(t, -1, sc.Violation)
	assert.Equal(t, 50.0, sc.Wait(p, 0, []int{0, 1, 2}, 0))
	assert.Equal(t, 35.0, sc.Wait(p, 0, []int{0, 1, 2}, 1))
	assert.Zero(t, sc.Wait(p, 0, []int{0, 1, 2}, 2))
}

func TestPropagateReportsViolations(t *testing.T) {
	p := scenario(t, Window{120, 180})

	sc := p.Propagate(0, []int{1, 0})
	assert.False(t, sc.TimeFeasible)
	assert.Equal(t, 1, sc.Violation)

	p.Vehicles[0].BudgetMin = 100
	sc = p.Propagate(0, []int{0, 1, 2})
	assert.True(t, sc.TimeFeasible)
	assert.False(t, sc.DurationFeasible)
	assert.False(t, sc.Feasible())
}

func TestPropagateEmptyAndZeroBudget(t *testing.T) {
	p := scenario(t, Window{120, 180})
	p.Vehicles[1].BudgetMin = 0

	sc := p.Propagate(1, nil)
	assert.True(t, sc.Feasible())
	assert.Zero(t, sc.Duration())

	assert.False(t, p.Propagate(1, []int{2}).Feasible())
	rs := p.newRouteState(1, nil)
	assert.False(t, p.canInsert(rs, 2, 0))
}

func TestPropagateShiftStart(t *testing.T) {
	p := scenario(t, Window{120, 180})
	p.Vehicles[0].ShiftStart = 115

	sc := p.Propagate(0, []int{2})
	assert.Equal(t, 115.0, sc.Start)
	assert.Equal(t, 125.0, sc.Arrival[0])
	assert.Equal(t, 145.0, sc.End)
	assert.Equal(t, 30.0, sc.Duration())
	assert.True(t, sc.Feasible())

	assert.False(t, p.Propagate(0, []int{0}).TimeFeasible)
}

func TestCanInsertMatchesPropagate(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		p := randomProblem(t, seed, 14, 2)
		for v := range p.Vehicles {
			rs := p.newRouteState(v, nil)
			for _, s := range p.Routable {
				for pos := 0; pos <= len(rs.stops); pos++ {
					want := p.Propagate(v, insertAt(rs.stops, pos, s)).Feasible()
					require.Equal(t, want, p.canInsert(rs, s, pos), "seed %d vehicle %d stop %d pos %d", seed, v, s, pos)
				}
				for pos := 0; pos <= len(rs.stops); pos++ {
					if p.canInsert(rs, s, pos) {
						p.insert(rs, s, pos)
						break
					}
				}
			}
			require.True(t, rs.sched.Feasible())
		}
	}
}

func TestTwoOptSwap(t *testing.T) {
	assert.Equal(t, []int{1, 4, 3, 2, 5}, twoOptSwap([]int{1, 2, 3, 4, 5}, 1, 3))
	assert.Equal(t, []int{2, 1}, twoOptSwap([]int{1, 2}, 0, 1))
}
