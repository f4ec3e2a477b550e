package opt

const eps = 1e-9

// Schedule is the forward time propagation of one route. Arrival is the
// service start at each position, after any waiting for the window to open.
type Schedule struct {
	Start     float64
	End       float64
	Arrival   []float64
	Departure []float64

	TimeFeasible     bool
	DurationFeasible bool
	Violation        int // first position whose window is missed, -1 if none
}

func (s Schedule) Feasible() bool { return s.TimeFeasible && s.DurationFeasible }

func (s Schedule) Duration() float64 { return s.End - s.Start }

// Wait returns idle minutes before service at position k.
func (s Schedule) Wait(p *Problem, v int, route []int, k int) float64 {
	reach := s.Start + p.Travel(p.startNode(v), route[0])
	if k > 0 {
		reach = s.Departure[k-1] + p.Travel(route[k-1], route[k])
	}
	if w := s.Arrival[k] - reach; w > eps {
		return w
	}
	return 0
}

// Propagate computes the earliest schedule of route on vehicle v. It never
// mutates the problem and reports feasibility alongside the timestamps.
func (p *Problem) Propagate(v int, route []int) Schedule {
	veh := p.Vehicles[v]
	sc := Schedule{
		Start:        veh.ShiftStart,
		Arrival:      make([]float64, len(route)),
		Departure:    make([]float64, len(route)),
		TimeFeasible: true,
		Violation:    -1,
	}
	if len(route) == 0 {
		sc.End = sc.Start
		sc.DurationFeasible = true
		return sc
	}
	t := veh.ShiftStart
	prev := p.startNode(v)
	for k, s := range route {
		w := p.Stops[s].Window
		a := t + p.Travel(prev, s)
		if a < w.Earliest {
			a = w.Earliest
		}
		if a > w.Latest+eps && sc.TimeFeasible {
			sc.TimeFeasible = false
			sc.Violation = k
		}
		sc.Arrival[k] = a
		t = a + p.Stops[s].ServiceMin
		sc.Departure[k] = t
		prev = s
	}
	sc.End = t + p.Travel(prev, p.endNode(v))
	sc.DurationFeasible = veh.BudgetMin > 0 && sc.End-sc.Start <= veh.BudgetMin+eps
	return sc
}

// routeState caches a feasible route's schedule and, per position, the
// latest service start that keeps every later window and the end-depot
// deadline satisfied.
type routeState struct {
	v      int
	stops  []int
	sched  Schedule
	latest []float64
	cost   float64
}

func (p *Problem) newRouteState(v int, stops []int) *routeState {
	rs := &routeState{v: v, stops: stops}
	p.refresh(rs)
	return rs
}

// refresh re-propagates the route after a committed change.
func (p *Problem) refresh(rs *routeState) {
	rs.sched = p.Propagate(rs.v, rs.stops)
	rs.cost = p.RouteCost(rs.v, rs.stops)
	rs.latest = p.latestStarts(rs.v, rs.stops)
}

func (p *Problem) latestStarts(v int, route []int) []float64 {
	veh := p.Vehicles[v]
	latest := make([]float64, len(route))
	bound := veh.ShiftStart + veh.BudgetMin
	next := p.endNode(v)
	for k := len(route) - 1; k >= 0; k-- {
		s := route[k]
		l := bound - p.Travel(s, next) - p.Stops[s].ServiceMin
		if w := p.Stops[s].Window.Latest; w < l {
			l = w
		}
		latest[k] = l
		bound = l
		next = s
	}
	return latest
}

// canInsert reports in O(1) whether stop s fits before position pos of a
// feasible route.
func (p *Problem) canInsert(rs *routeState, s, pos int) bool {
	veh := p.Vehicles[rs.v]
	if veh.BudgetMin <= 0 || p.Stops[s].Class != ClassRoutable {
		return false
	}
	prev, dep := p.startNode(rs.v), veh.ShiftStart
	if pos > 0 {
		prev, dep = rs.stops[pos-1], rs.sched.Departure[pos-1]
	}
	w := p.Stops[s].Window
	a := dep + p.Travel(prev, s)
	if a < w.Earliest {
		a = w.Earliest
	}
	if a > w.Latest+eps {
		return false
	}
	d := a + p.Stops[s].ServiceMin
	if pos == len(rs.stops) {
		return d+p.Travel(s, p.endNode(rs.v))-veh.ShiftStart <= veh.BudgetMin+eps
	}
	return d+p.Travel(s, rs.stops[pos]) <= rs.latest[pos]+eps
}

// insert commits s at pos and re-propagates.
func (p *Problem) insert(rs *routeState, s, pos int) {
	rs.stops = insertAt(rs.stops, pos, s)
	p.refresh(rs)
}

// nodeAt maps position k of route to an arena node; -1 is the vehicle
// start and len(route) its end.
func (p *Problem) nodeAt(v int, route []int, k int) int {
	switch {
	case k < 0:
		return p.startNode(v)
	case k >= len(route):
		return p.endNode(v)
	}
	return route[k]
}

func insertAt(route []int, pos, s int) []int {
	out := make([]int, 0, len(route)+1)
	out = append(out, route[:pos]...)
	out = append(out, s)
	return append(out, route[pos:]...)
}

func removeAt(route []int, i int) []int {
	out := make([]int, 0, len(route)-1)
	out = append(out, route[:i]...)
	return append(out, route[i+1:]...)
}
