package opt

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"visitplan/internal/model"
)

// Assemble turns a solver result into the wire plan. Minute offsets are
// rendered as RFC3339 timestamps relative to origin.
func Assemble(p *Problem, res Result, origin time.Time, runID string) model.Plan {
	at := func(min float64) string {
		return origin.Add(time.Duration(math.Round(min*60)) * time.Second).Format(time.RFC3339)
	}
	plan := model.Plan{
		RunID:        runID,
		Status:       res.State.String(),
		Heuristic:    true,
		Origin:       origin.Format(time.RFC3339),
		Routes:       make([]model.RouteOut, 0, len(res.Solution.Routes)),
		Unscheduled:  []string{},
		Unassignable: []model.Unassignable{},
	}
	var util []float64
	for _, r := range res.Solution.Routes {
		veh := p.Vehicles[r.Vehicle]
		sc := r.Schedule
		out := model.RouteOut{
			VehicleID:   veh.ID,
			Start:       at(sc.Start),
			End:         at(sc.End),
			StartMin:    sc.Start,
			EndMin:      sc.End,
			DurationMin: sc.Duration(),
			BudgetMin:   veh.BudgetMin,
			TravelMin:   p.RouteTravel(r.Vehicle, r.Stops),
			Cost:        r.Cost,
			Visits:      make([]model.Visit, 0, len(r.Stops)),
		}
		if veh.BudgetMin > 0 {
			out.Utilization = out.DurationMin / veh.BudgetMin
			util = append(util, out.Utilization)
		}
		for k, st := range r.Stops {
			out.Visits = append(out.Visits, model.Visit{
				Seq:          k + 1,
				StopID:       p.Stops[st].ID,
				Arrival:      at(sc.Arrival[k]),
				Departure:    at(sc.Departure[k]),
				ArrivalMin:   sc.Arrival[k],
				DepartureMin: sc.Departure[k],
				WaitMin:      sc.Wait(p, r.Vehicle, r.Stops, k),
			})
		}
		plan.Summary.TotalCost += out.Cost
		plan.Summary.TotalTravelMin += out.TravelMin
		plan.Summary.ScheduledCount += len(r.Stops)
		plan.Routes = append(plan.Routes, out)
	}
	for _, i := range p.NonRoutable {
		plan.Unscheduled = append(plan.Unscheduled, p.Stops[i].ID)
	}
	for _, u := range res.Unassignable {
		w := model.Unassignable{StopID: p.Stops[u.Stop].ID, Reason: u.Reason, Detail: u.Detail}
		for _, c := range u.ConflictsWith {
			w.ConflictsWith = append(w.ConflictsWith, p.Stops[c].ID)
		}
		plan.Unassignable = append(plan.Unassignable, w)
	}
	if len(util) > 0 {
		plan.Summary.MeanUtilization = stat.Mean(util, nil)
	}
	if len(util) > 1 {
		plan.Summary.UtilizationStdDev = stat.StdDev(util, nil)
	}
	return plan
}

// RunStats converts solver statistics to their wire form.
func RunStats(st Stats) model.RunStats {
	return model.RunStats{
		Iterations:    st.Iterations,
		Improvements:  st.Improvements,
		Penalizations: st.Penalizations,
		Moves:         st.Moves,
		InitialCost:   st.InitialCost,
		BestCost:      st.BestCost,
		ElapsedMs:     st.Elapsed.Milliseconds(),
		StopReason:    st.StopReason,
	}
}
