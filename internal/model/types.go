package model

// Wire types shared by the API, the CLI and the route assembler.

type StopIn struct {
	ID                 string   `json:"id" yaml:"id"`
	Lat                float64  `json:"lat" yaml:"lat"`
	Lon                float64  `json:"lon" yaml:"lon"`
	WindowStartMin     *float64 `json:"windowStartMin,omitempty" yaml:"windowStartMin,omitempty"`
	WindowEndMin       *float64 `json:"windowEndMin,omitempty" yaml:"windowEndMin,omitempty"`
	ServiceDurationMin *float64 `json:"serviceDurationMin,omitempty" yaml:"serviceDurationMin,omitempty"`
	Class              string   `json:"class,omitempty" yaml:"class,omitempty"`         // routable, non-routable
	VisitType          string   `json:"visitType,omitempty" yaml:"visitType,omitempty"` // HB, Neuaufnahme, TK
}

type VehicleIn struct {
	ID               string   `json:"id" yaml:"id"`
	Lat              float64  `json:"lat" yaml:"lat"`
	Lon              float64  `json:"lon" yaml:"lon"`
	EndLat           *float64 `json:"endLat,omitempty" yaml:"endLat,omitempty"`
	EndLon           *float64 `json:"endLon,omitempty" yaml:"endLon,omitempty"`
	WorkloadFraction float64  `json:"workloadFraction" yaml:"workloadFraction"`
	ShiftStartMin    float64  `json:"shiftStartMin,omitempty" yaml:"shiftStartMin,omitempty"`
	CostPerHour      float64  `json:"costPerHour,omitempty" yaml:"costPerHour,omitempty"`
}

type OptimizeRequest struct {
	RunID         string      `json:"runId,omitempty" yaml:"runId,omitempty"`
	Origin        string      `json:"origin,omitempty" yaml:"origin,omitempty"`   // RFC3339
	Weekday       string      `json:"weekday,omitempty" yaml:"weekday,omitempty"` // used when origin is empty
	Stops         []StopIn    `json:"stops" yaml:"stops"`
	Vehicles      []VehicleIn `json:"vehicles" yaml:"vehicles"`
	TimeBudgetSec float64     `json:"timeBudgetSec,omitempty" yaml:"timeBudgetSec,omitempty"`
	MaxIterations int         `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
	Seed          int64       `json:"seed,omitempty" yaml:"seed,omitempty"`
	RequireAll    bool        `json:"requireAll,omitempty" yaml:"requireAll,omitempty"`
	// TravelMinutes optionally replaces the distance provider with an explicit
	// matrix over the location arena (stops, then start/end per vehicle).
	TravelMinutes [][]float64 `json:"travelMinutes,omitempty" yaml:"travelMinutes,omitempty"`
}

// Plan is the frozen result of one optimization run.
type Plan struct {
	RunID        string         `json:"runId,omitempty"`
	Status       string         `json:"status"`
	Heuristic    bool           `json:"heuristic"`
	Origin       string         `json:"origin"`
	Routes       []RouteOut     `json:"routes"`
	Unscheduled  []string       `json:"unscheduled"`
	Unassignable []Unassignable `json:"unassignable"`
	Summary      Summary        `json:"summary"`
}

type RouteOut struct {
	VehicleID   string  `json:"vehicleId"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	StartMin    float64 `json:"startMin"`
	EndMin      float64 `json:"endMin"`
	DurationMin float64 `json:"durationMin"`
	BudgetMin   float64 `json:"budgetMin"`
	TravelMin   float64 `json:"travelMin"`
	Cost        float64 `json:"cost"`
	Utilization float64 `json:"utilization"`
	Visits      []Visit `json:"visits"`
}

type Visit struct {
	Seq          int     `json:"seq"`
	StopID       string  `json:"stopId"`
	Arrival      string  `json:"arrival"`
	Departure    string  `json:"departure"`
	ArrivalMin   float64 `json:"arrivalMin"`
	DepartureMin float64 `json:"departureMin"`
	WaitMin      float64 `json:"waitMin,omitempty"`
}

type Unassignable struct {
	StopID        string   `json:"stopId"`
	Reason        string   `json:"reason"` // unreachable, conflict, capacity
	Detail        string   `json:"detail,omitempty"`
	ConflictsWith []string `json:"conflictsWith,omitempty"`
}

type Summary struct {
	TotalCost         float64 `json:"totalCost"`
	TotalTravelMin    float64 `json:"totalTravelMin"`
	ScheduledCount    int     `json:"scheduledCount"`
	MeanUtilization   float64 `json:"meanUtilization"`
	UtilizationStdDev float64 `json:"utilizationStdDev"`
}

// RunStats mirrors solver statistics for API consumers.
type RunStats struct {
	Iterations    int            `json:"iterations"`
	Improvements  int            `json:"improvements"`
	Penalizations int            `json:"penalizations"`
	Moves         map[string]int `json:"moves,omitempty"`
	InitialCost   float64        `json:"initialCost"`
	BestCost      float64        `json:"bestCost"`
	ElapsedMs     int64          `json:"elapsedMs"`
	StopReason    string         `json:"stopReason"`
}

// ProgressEvent is published while a run improves its best solution.
type ProgressEvent struct {
	RunID      string  `json:"runId"`
	Phase      string  `json:"phase"`
	Iteration  int     `json:"iteration"`
	Cost       float64 `json:"cost"`
	Unassigned int     `json:"unassigned"`
	ElapsedMs  int64   `json:"elapsedMs"`
}
