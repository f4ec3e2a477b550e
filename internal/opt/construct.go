package opt

import (
	"context"
)

type insertion struct {
	stop, vehicle, pos int
	delta              float64
	ok                 bool
}

// construct repeatedly commits the cheapest feasible (stop, vehicle,
// position) insertion. Scanning stops, then vehicles, then positions in
// ascending order with a strict comparison breaks ties toward the lowest
// indices. A stop with no feasible slot is set aside as unassigned.
func (s *Solver) construct(ctx context.Context) error {
	pending := append([]int(nil), s.p.Routable...)
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		best := insertion{}
		keep := pending[:0]
		for _, st := range pending {
			c := s.cheapestInsertion(st)
			if !c.ok {
				s.unassigned = append(s.unassigned, st)
				continue
			}
			keep = append(keep, st)
			if !best.ok || c.delta < best.delta {
				best = c
			}
		}
		pending = keep
		if !best.ok {
			break
		}
		s.p.insert(s.routes[best.vehicle], best.stop, best.pos)
		pending = dropValue(pending, best.stop)
	}
	return nil
}

// cheapestInsertion finds the lowest real-cost feasible slot for stop st.
func (s *Solver) cheapestInsertion(st int) insertion {
	p := s.p
	best := insertion{stop: st}
	for v, rs := range s.routes {
		for pos := 0; pos <= len(rs.stops); pos++ {
			if !p.canInsert(rs, st, pos) {
				continue
			}
			d := p.insertDelta(v, rs.stops, st, pos)
			if !best.ok || d < best.delta {
				best = insertion{stop: st, vehicle: v, pos: pos, delta: d, ok: true}
			}
		}
	}
	return best
}

// reinsert places at most one unassigned stop at its cheapest feasible slot.
// Scheduling more stops always wins over cost.
func (s *Solver) reinsert() bool {
	for k, st := range s.unassigned {
		c := s.cheapestInsertion(st)
		if !c.ok {
			continue
		}
		s.p.insert(s.routes[c.vehicle], st, c.pos)
		s.unassigned = removeAt(s.unassigned, k)
		s.recost()
		s.stats.Moves["insert"]++
		return true
	}
	return false
}

// insertDelta is the real objective change of placing s before pos.
func (p *Problem) insertDelta(v int, route []int, s, pos int) float64 {
	if len(route) == 0 {
		return p.arcCost(v, p.startNode(v), s) + p.arcCost(v, s, p.endNode(v))
	}
	prev, next := p.nodeAt(v, route, pos-1), p.nodeAt(v, route, pos)
	return p.arcCost(v, prev, s) + p.arcCost(v, s, next) - p.arcCost(v, prev, next)
}

func dropValue(xs []int, x int) []int {
	for i, y := range xs {
		if y == x {
			return removeAt(xs, i)
		}
	}
	return xs
}
