package opt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleScenario(t *testing.T) {
	stops := scenarioStops(Window{120, 180})
	stops = append(stops, Stop{ID: "phone", Window: Window{0, 480}, Class: ClassNonRoutable})
	tt := [][]float64{
		{0, 10, 14, 10},
		{10, 0, 10, 10},
		{14, 10, 0, 10},
		{10, 10, 10, 0},
	}
	p, err := Build(stops, scenarioVehicles(), depotMatrix(tt, 10, 2))
	require.NoError(t, err)
	res, err := solve(t, p, Options{MaxIterations: 50})
	require.NoError(t, err)

	origin := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	plan := Assemble(p, res, origin, "run-1")

	assert.Equal(t, "run-1", plan.RunID)
	assert.Equal(t, "solved", plan.Status)
	assert.True(t, plan.Heuristic)
	assert.Equal(t, "2024-03-04T08:00:00Z", plan.Origin)
	assert.Equal(t, []string{"phone"}, plan.Unscheduled)
	assert.Empty(t, plan.Unassignable)
	require.Len(t, plan.Routes, 2)

	r := plan.Routes[0]
	assert.Equal(t, "v1", r.VehicleID)
	require.Len(t, r.Visits, 3)
	assert.Equal(t, "a", r.Visits[0].StopID)
	assert.Equal(t, 1, r.Visits[0].Seq)
	assert.Equal(t, "2024-03-04T09:00:00Z", r.Visits[0].Arrival)
	assert.Equal(t, "2024-03-04T09:15:00Z", r.Visits[0].Departure)
	assert.Equal(t, 50.0, r.Visits[0].WaitMin)
	assert.Equal(t, 180.0, r.DurationMin)
	assert.Equal(t, "2024-03-04T11:00:00Z", r.End)
	assert.Equal(t, 40.0, r.TravelMin)
	assert.InDelta(t, 0.375, r.Utilization, 1e-9)

	empty := plan.Routes[1]
	assert.Empty(t, empty.Visits)
	assert.Zero(t, empty.Cost)
	assert.Zero(t, empty.Utilization)

	assert.Equal(t, 3, plan.Summary.ScheduledCount)
	assert.Equal(t, 40.0, plan.Summary.TotalCost)
	assert.InDelta(t, 0.1875, plan.Summary.MeanUtilization, 1e-9)
	assert.Greater(t, plan.Summary.UtilizationStdDev, 0.0)
}

func TestAssembleUnassignable(t *testing.T) {
	stops := []Stop{
		{ID: "x", Window: Window{0, 20}, ServiceMin: 50},
		{ID: "y", Window: Window{0, 20}, ServiceMin: 50},
	}
	p, err := Build(stops, []Vehicle{{ID: "solo", BudgetMin: 480}}, depotMatrix([][]float64{{0, 10}, {10, 0}}, 10, 1))
	require.NoError(t, err)
	res, err := solve(t, p, Options{MaxIterations: 10})
	require.NoError(t, err)

	plan := Assemble(p, res, time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC), "")
	assert.Equal(t, "infeasible", plan.Status)
	require.Len(t, plan.Unassignable, 1)
	assert.Equal(t, "y", plan.Unassignable[0].StopID)
	assert.Equal(t, ReasonConflict, plan.Unassignable[0].Reason)
	assert.Equal(t, []string{"x"}, plan.Unassignable[0].ConflictsWith)
	assert.Empty(t, plan.Unscheduled)
}

func TestRunStatsConversion(t *testing.T) {
	st := Stats{Iterations: 3, Moves: map[string]int{"relocate": 2}, Elapsed: 1500 * time.Millisecond, StopReason: StopIterations}
	w := RunStats(st)
	assert.Equal(t, int64(1500), w.ElapsedMs)
	assert.Equal(t, 2, w.Moves["relocate"])
	assert.Equal(t, StopIterations, w.StopReason)
}
