package opt

import (
	"golang.org/x/sync/errgroup"
)

// bestMove returns the lowest augmented-delta feasible improving move.
// With Workers > 1 each source route is scanned concurrently; the reduction
// uses the same total order as the sequential scan.
func (s *Solver) bestMove() move {
	if s.opts.Workers <= 1 || len(s.routes) < 2 {
		best := move{}
		for ra := range s.routes {
			if m := s.scanFrom(ra); m.less(best) {
				best = m
			}
		}
		return best
	}
	found := make([]move, len(s.routes))
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for ra := range s.routes {
		g.Go(func() error {
			found[ra] = s.scanFrom(ra)
			return nil
		})
	}
	_ = g.Wait()
	best := move{}
	for _, m := range found {
		if m.less(best) {
			best = m
		}
	}
	return best
}

// scanFrom evaluates every move whose first route is ra. It only reads
// solver state.
func (s *Solver) scanFrom(ra int) move {
	best := move{}
	consider := func(m move) {
		if m.delta >= -eps || !m.less(best) {
			return
		}
		if s.feasible(m) {
			best = m
		}
	}
	a := s.routes[ra]
	n := len(a.stops)
	for i := 0; i < n; i++ {
		for rb, b := range s.routes {
			if rb == ra {
				if n < 2 {
					continue
				}
				for j := 0; j < n; j++ {
					if j == i {
						continue
					}
					consider(move{kind: moveRelocate, ra: ra, i: i, rb: rb, j: j, delta: s.relocateDelta(ra, i, rb, j), ok: true})
				}
				continue
			}
			if s.p.Vehicles[b.v].BudgetMin <= 0 {
				continue
			}
			for j := 0; j <= len(b.stops); j++ {
				consider(move{kind: moveRelocate, ra: ra, i: i, rb: rb, j: j, delta: s.relocateDelta(ra, i, rb, j), ok: true})
			}
			if rb > ra {
				for j := range b.stops {
					consider(move{kind: moveExchange, ra: ra, i: i, rb: rb, j: j, delta: s.exchangeDelta(ra, i, rb, j), ok: true})
				}
			}
		}
	}
	s.scanTwoOpt(ra, consider)
	return best
}

// scanTwoOpt reverses [i..k] of route ra. The reversed inner arcs are
// accumulated as k grows, which keeps asymmetric matrices exact.
func (s *Solver) scanTwoOpt(ra int, consider func(move)) {
	p := s.p
	a := s.routes[ra]
	v, r := a.v, a.stops
	for i := 0; i < len(r)-1; i++ {
		prev := p.nodeAt(v, r, i-1)
		inner := 0.0
		for k := i + 1; k < len(r); k++ {
			inner += s.arc(v, r[k], r[k-1]) - s.arc(v, r[k-1], r[k])
			next := p.nodeAt(v, r, k+1)
			d := s.arc(v, prev, r[k]) + s.arc(v, r[i], next) - s.arc(v, prev, r[i]) - s.arc(v, r[k], next) + inner
			consider(move{kind: moveTwoOpt, ra: ra, i: i, rb: ra, j: k, delta: d, ok: true})
		}
	}
}

// apply commits a move and refreshes the touched routes.
func (s *Solver) apply(m move) {
	ra, rb := s.candidates(m)
	s.routes[m.ra].stops = ra
	s.p.refresh(s.routes[m.ra])
	if rb != nil {
		s.routes[m.rb].stops = rb
		s.p.refresh(s.routes[m.rb])
	}
	s.recost()
	s.stats.Moves[m.kind.String()]++
}

// hasMoves reports whether the neighborhood is non-empty at all.
func (s *Solver) hasMoves() bool {
	used, open := 0, 0
	for _, rs := range s.routes {
		if len(rs.stops) >= 2 {
			return true
		}
		if len(rs.stops) > 0 {
			used++
		}
		if s.p.Vehicles[rs.v].BudgetMin > 0 {
			open++
		}
	}
	return used > 0 && open > 1
}
