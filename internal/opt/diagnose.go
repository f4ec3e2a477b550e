package opt

import (
	"fmt"
	"sort"
)

// Diagnose explains each unassigned stop of sol. A stop no vehicle can
// serve on its own is unreachable; a stop that cannot share any route with
// some scheduled stop, in either order, conflicts with it; anything else
// ran out of working time.
func (s *Solver) Diagnose(sol Solution) []Unassignable {
	p := s.p
	if len(sol.Unassigned) == 0 {
		return nil
	}
	var scheduled []int
	for _, r := range sol.Routes {
		scheduled = append(scheduled, r.Stops...)
	}
	sort.Ints(scheduled)

	out := make([]Unassignable, 0, len(sol.Unassigned))
	for _, u := range sol.Unassigned {
		if detail, ok := p.alone(u); !ok {
			out = append(out, Unassignable{Stop: u, Reason: ReasonUnreachable, Detail: detail})
			continue
		}
		var with []int
		for _, j := range scheduled {
			if !p.pairFeasible(u, j) {
				with = append(with, j)
			}
		}
		if len(with) > 0 {
			out = append(out, Unassignable{
				Stop:          u,
				Reason:        ReasonConflict,
				Detail:        fmt.Sprintf("cannot share a route with %d scheduled stop(s)", len(with)),
				ConflictsWith: with,
			})
			continue
		}
		out = append(out, Unassignable{Stop: u, Reason: ReasonCapacity, Detail: "no route has working time left"})
	}
	return out
}

// alone reports whether some vehicle can serve stop u as its only visit.
func (p *Problem) alone(u int) (string, bool) {
	working := false
	windowMiss := false
	for v, veh := range p.Vehicles {
		if veh.BudgetMin <= 0 {
			continue
		}
		working = true
		sc := p.Propagate(v, []int{u})
		if sc.Feasible() {
			return "", true
		}
		if !sc.TimeFeasible {
			windowMiss = true
		}
	}
	switch {
	case !working:
		return "no vehicle has working time", false
	case windowMiss:
		return "window closes before any vehicle can arrive", false
	}
	return "visit exceeds every working budget", false
}

func (p *Problem) pairFeasible(a, b int) bool {
	for v, veh := range p.Vehicles {
		if veh.BudgetMin <= 0 {
			continue
		}
		if p.Propagate(v, []int{a, b}).Feasible() || p.Propagate(v, []int{b, a}).Feasible() {
			return true
		}
	}
	return false
}
