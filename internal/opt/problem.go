package opt

import (
	"math"
)

// Class tags whether a stop may enter a route.
type Class int

const (
	ClassRoutable Class = iota
	ClassNonRoutable
)

func (c Class) String() string {
	if c == ClassNonRoutable {
		return "non-routable"
	}
	return "routable"
}

// Location is a geocoded point.
type Location struct {
	Lat, Lng float64
}

// Window is an inclusive interval of permitted service start, in minutes
// from the run origin.
type Window struct {
	Earliest, Latest float64
}

type Stop struct {
	ID         string
	Location   Location
	Window     Window
	ServiceMin float64
	Class      Class
}

type Vehicle struct {
	ID          string
	Start       Location
	End         Location
	ShiftStart  float64 // minutes from origin at which the vehicle leaves Start
	BudgetMin   float64 // working time from ShiftStart to arrival at End
	CostPerHour float64 // optional objective weight; 0 means travel minutes
}

// TravelTimes is the subset of gonum's mat.Matrix the model reads.
type TravelTimes interface {
	Dims() (r, c int)
	At(i, j int) float64
}

// Problem is the immutable index arena one run searches over.
// Node i < len(Stops) is stop i; vehicle v starts at node len(Stops)+2v and
// ends at node len(Stops)+2v+1.
type Problem struct {
	Stops       []Stop
	Vehicles    []Vehicle
	Routable    []int
	NonRoutable []int

	n      int
	travel []float64
	weight []float64
}

// Locations returns the arena's points in node order.
func Locations(stops []Stop, vehicles []Vehicle) []Location {
	out := make([]Location, 0, len(stops)+2*len(vehicles))
	for _, s := range stops {
		out = append(out, s.Location)
	}
	for _, v := range vehicles {
		out = append(out, v.Start, v.End)
	}
	return out
}

// Build validates the inputs and caches the travel matrix.
func Build(stops []Stop, vehicles []Vehicle, tt TravelTimes) (*Problem, error) {
	if len(stops) == 0 {
		return nil, invalid("stops", "must not be empty")
	}
	if len(vehicles) == 0 {
		return nil, invalid("vehicles", "must not be empty")
	}
	seen := make(map[string]struct{}, len(stops))
	for i, s := range stops {
		if s.ID == "" {
			return nil, invalid("stops", "stop %d has empty id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, invalid("stops", "duplicate stop id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		if !finite(s.Window.Earliest) || !finite(s.Window.Latest) {
			return nil, invalid("stops", "stop %q window is not finite", s.ID)
		}
		if s.Window.Earliest > s.Window.Latest {
			return nil, invalid("stops", "stop %q window is inverted (%g > %g)", s.ID, s.Window.Earliest, s.Window.Latest)
		}
		if s.Window.Earliest < 0 {
			return nil, invalid("stops", "stop %q window starts before origin", s.ID)
		}
		if !finite(s.ServiceMin) || s.ServiceMin < 0 {
			return nil, invalid("stops", "stop %q service duration must be >= 0", s.ID)
		}
		if s.Class != ClassRoutable && s.Class != ClassNonRoutable {
			return nil, invalid("stops", "stop %q has unknown class %d", s.ID, int(s.Class))
		}
	}
	vseen := make(map[string]struct{}, len(vehicles))
	for i, v := range vehicles {
		if v.ID == "" {
			return nil, invalid("vehicles", "vehicle %d has empty id", i)
		}
		if _, dup := vseen[v.ID]; dup {
			return nil, invalid("vehicles", "duplicate vehicle id %q", v.ID)
		}
		vseen[v.ID] = struct{}{}
		if !finite(v.BudgetMin) || v.BudgetMin < 0 {
			return nil, invalid("vehicles", "vehicle %q working budget must be >= 0", v.ID)
		}
		if !finite(v.ShiftStart) || v.ShiftStart < 0 {
			return nil, invalid("vehicles", "vehicle %q shift start must be >= 0", v.ID)
		}
		if !finite(v.CostPerHour) || v.CostPerHour < 0 {
			return nil, invalid("vehicles", "vehicle %q cost per hour must be >= 0", v.ID)
		}
	}

	n := len(stops) + 2*len(vehicles)
	if tt == nil {
		return nil, invalid("travel", "matrix is nil")
	}
	if r, c := tt.Dims(); r != n || c != n {
		return nil, invalid("travel", "matrix is %dx%d, want %dx%d", r, c, n, n)
	}
	travel := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := tt.At(i, j)
			if !finite(x) || x < 0 {
				return nil, invalid("travel", "entry (%d,%d)=%g must be finite and >= 0", i, j, x)
			}
			if i != j {
				travel[i*n+j] = x
			}
		}
	}

	p := &Problem{
		Stops:    stops,
		Vehicles: vehicles,
		n:        n,
		travel:   travel,
		weight:   make([]float64, len(vehicles)),
	}
	for i, s := range stops {
		if s.Class == ClassNonRoutable {
			p.NonRoutable = append(p.NonRoutable, i)
		} else {
			p.Routable = append(p.Routable, i)
		}
	}
	for v, veh := range vehicles {
		p.weight[v] = 1
		if veh.CostPerHour > 0 {
			p.weight[v] = veh.CostPerHour / 60
		}
	}
	return p, nil
}

func (p *Problem) startNode(v int) int { return len(p.Stops) + 2*v }
func (p *Problem) endNode(v int) int   { return len(p.Stops) + 2*v + 1 }

// Travel returns travel minutes between two arena nodes.
func (p *Problem) Travel(a, b int) float64 { return p.travel[a*p.n+b] }

// Transit is the scheduling time from starting service at a to reaching b.
func (p *Problem) Transit(a, b int) float64 {
	return p.service(a) + p.Travel(a, b)
}

func (p *Problem) service(node int) float64 {
	if node < len(p.Stops) {
		return p.Stops[node].ServiceMin
	}
	return 0
}

// arcCost is the objective contribution of vehicle v driving a->b.
func (p *Problem) arcCost(v, a, b int) float64 {
	return p.Travel(a, b) * p.weight[v]
}

// RouteCost is the objective value of one route; an empty route is free.
func (p *Problem) RouteCost(v int, route []int) float64 {
	if len(route) == 0 {
		return 0
	}
	return p.RouteTravel(v, route) * p.weight[v]
}

// RouteTravel sums travel minutes from the vehicle start to its end.
func (p *Problem) RouteTravel(v int, route []int) float64 {
	if len(route) == 0 {
		return 0
	}
	prev := p.startNode(v)
	total := 0.0
	for _, s := range route {
		total += p.Travel(prev, s)
		prev = s
	}
	return total + p.Travel(prev, p.endNode(v))
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
