package opt

// Neighborhood moves evaluated by the improvement phase.

type moveKind int

const (
	moveRelocate moveKind = iota
	moveExchange
	moveTwoOpt
)

func (k moveKind) String() string {
	switch k {
	case moveExchange:
		return "exchange"
	case moveTwoOpt:
		return "two_opt"
	}
	return "relocate"
}

// move is one candidate; for two_opt, rb == ra and [i..j] is reversed.
type move struct {
	kind  moveKind
	ra, i int
	rb, j int
	delta float64
	ok    bool
}

// less is the total order used to pick a single move, so the result does
// not depend on scan order.
func (m move) less(o move) bool {
	if !o.ok {
		return m.ok
	}
	if !m.ok {
		return false
	}
	if m.delta != o.delta {
		return m.delta < o.delta
	}
	for _, d := range [...][2]int{{int(m.kind), int(o.kind)}, {m.ra, o.ra}, {m.i, o.i}, {m.rb, o.rb}, {m.j, o.j}} {
		if d[0] != d[1] {
			return d[0] < d[1]
		}
	}
	return false
}

// arc is the augmented cost of vehicle v driving a->b.
func (s *Solver) arc(v, a, b int) float64 {
	c := s.p.arcCost(v, a, b)
	if s.lambda > 0 {
		c += s.lambda * s.pen[a*s.p.n+b]
	}
	return c
}

func (s *Solver) relocateDelta(ra, i, rb, j int) float64 {
	p := s.p
	a := s.routes[ra]
	v, st := a.v, a.stops[i]
	var rem float64
	if len(a.stops) == 1 {
		rem = -(s.arc(v, p.startNode(v), st) + s.arc(v, st, p.endNode(v)))
	} else {
		prev, next := p.nodeAt(v, a.stops, i-1), p.nodeAt(v, a.stops, i+1)
		rem = s.arc(v, prev, next) - s.arc(v, prev, st) - s.arc(v, st, next)
	}
	if ra != rb {
		b := s.routes[rb]
		w := b.v
		if len(b.stops) == 0 {
			return rem + s.arc(w, p.startNode(w), st) + s.arc(w, st, p.endNode(w))
		}
		prev, next := p.nodeAt(w, b.stops, j-1), p.nodeAt(w, b.stops, j)
		return rem + s.arc(w, prev, st) + s.arc(w, st, next) - s.arc(w, prev, next)
	}
	// j indexes the route with position i removed.
	reduced := func(r int) int {
		switch {
		case r < 0:
			return p.startNode(v)
		case r >= len(a.stops)-1:
			return p.endNode(v)
		case r < i:
			return a.stops[r]
		}
		return a.stops[r+1]
	}
	prev, next := reduced(j-1), reduced(j)
	return rem + s.arc(v, prev, st) + s.arc(v, st, next) - s.arc(v, prev, next)
}

func (s *Solver) exchangeDelta(ra, i, rb, j int) float64 {
	p := s.p
	a, b := s.routes[ra], s.routes[rb]
	s1, s2 := a.stops[i], b.stops[j]
	pa, na := p.nodeAt(a.v, a.stops, i-1), p.nodeAt(a.v, a.stops, i+1)
	pb, nb := p.nodeAt(b.v, b.stops, j-1), p.nodeAt(b.v, b.stops, j+1)
	da := s.arc(a.v, pa, s2) + s.arc(a.v, s2, na) - s.arc(a.v, pa, s1) - s.arc(a.v, s1, na)
	db := s.arc(b.v, pb, s1) + s.arc(b.v, s1, nb) - s.arc(b.v, pb, s2) - s.arc(b.v, s2, nb)
	return da + db
}

// candidates builds the routes a move would produce.
func (s *Solver) candidates(m move) (ra, rb []int) {
	a := s.routes[m.ra]
	switch m.kind {
	case moveRelocate:
		st := a.stops[m.i]
		if m.ra == m.rb {
			return insertAt(removeAt(a.stops, m.i), m.j, st), nil
		}
		return removeAt(a.stops, m.i), insertAt(s.routes[m.rb].stops, m.j, st)
	case moveExchange:
		b := s.routes[m.rb]
		ra = append([]int(nil), a.stops...)
		rb = append([]int(nil), b.stops...)
		ra[m.i], rb[m.j] = rb[m.j], ra[m.i]
		return ra, rb
	}
	return twoOptSwap(a.stops, m.i, m.j), nil
}

// feasible checks the routes a move would produce.
func (s *Solver) feasible(m move) bool {
	p := s.p
	if m.kind == moveRelocate && m.ra != m.rb {
		if !p.canInsert(s.routes[m.rb], s.routes[m.ra].stops[m.i], m.j) {
			return false
		}
		rest := removeAt(s.routes[m.ra].stops, m.i)
		return len(rest) == 0 || p.Propagate(s.routes[m.ra].v, rest).Feasible()
	}
	ra, rb := s.candidates(m)
	if !p.Propagate(s.routes[m.ra].v, ra).Feasible() {
		return false
	}
	return m.kind != moveExchange || p.Propagate(s.routes[m.rb].v, rb).Feasible()
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}
