package opt

import "math"

type arcFeature struct{ a, b int }

// penalize is the guided local search step taken at a local optimum: it
// raises the penalty of an arc with maximum utility cost/(1+penalty). The
// seeded RNG picks among ties. It reports false when no arc carries cost,
// in which case penalties cannot change the landscape.
func (s *Solver) penalize() bool {
	p := s.p
	var top []arcFeature
	maxU := 0.0
	arcs := 0
	for _, rs := range s.routes {
		if len(rs.stops) == 0 {
			continue
		}
		prev := p.startNode(rs.v)
		for k := 0; k <= len(rs.stops); k++ {
			next := p.nodeAt(rs.v, rs.stops, k)
			arcs++
			u := p.arcCost(rs.v, prev, next) / (1 + s.pen[prev*p.n+next])
			switch {
			case u > maxU+eps:
				maxU = u
				top = append(top[:0], arcFeature{prev, next})
			case u > eps && math.Abs(u-maxU) <= eps:
				top = append(top, arcFeature{prev, next})
			}
			prev = next
		}
	}
	if len(top) == 0 {
		return false
	}
	if s.lambda == 0 {
		s.lambda = s.opts.PenaltyFactor * s.cost / float64(arcs)
	}
	f := top[s.rng.Intn(len(top))]
	s.pen[f.a*p.n+f.b]++
	s.stats.Penalizations++
	return true
}
