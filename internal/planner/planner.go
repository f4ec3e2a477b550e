// Package planner turns one optimize request into a routed plan. Every call
// builds its own problem and solver; nothing is shared between requests
// except configuration and the distance provider.
package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"visitplan/internal/config"
	"visitplan/internal/distance"
	"visitplan/internal/model"
	"visitplan/internal/opt"
)

// ErrProvider marks a travel matrix lookup failure.
var ErrProvider = errors.New("travel matrix unavailable")

// WorkdayStartHour is the hour of day (UTC) minute zero maps to when the
// request names a weekday instead of an origin.
const WorkdayStartHour = 8

type Planner struct {
	opt      config.OptimizerConfig
	visits   config.VisitsConfig
	provider distance.MatrixProvider
	log      zerolog.Logger
	now      func() time.Time
}

func New(optCfg config.OptimizerConfig, visits config.VisitsConfig, provider distance.MatrixProvider, log zerolog.Logger) *Planner {
	return &Planner{opt: optCfg, visits: visits, provider: provider, log: log, now: time.Now}
}

// Request is the validated, request-scoped form of an optimize call.
type Request struct {
	RunID    string
	Origin   time.Time
	Stops    []opt.Stop
	Vehicles []opt.Vehicle
	Travel   [][]float64
	Options  opt.Options
}

// Result carries the plan with the solver statistics behind it.
type Result struct {
	Plan  model.Plan
	Stats opt.Stats
}

// Plan runs one optimization. A returned *opt.InfeasibleProblemError comes
// with a populated Result.
func (p *Planner) Plan(ctx context.Context, in model.OptimizeRequest, onProgress func(model.ProgressEvent)) (Result, error) {
	req, err := p.Prepare(in)
	if err != nil {
		return Result{}, err
	}
	log := p.log.With().Str("run_id", req.RunID).Logger()
	req.Options.Logger = log
	if onProgress != nil {
		relay := newProgressRelay(onProgress)
		defer relay.close()
		req.Options.OnProgress = func(pr opt.Progress) {
			relay.send(model.ProgressEvent{
				RunID:      req.RunID,
				Phase:      pr.Phase,
				Iteration:  pr.Iteration,
				Cost:       pr.Cost,
				Unassigned: pr.Unassigned,
				ElapsedMs:  pr.Elapsed.Milliseconds(),
			})
		}
	}

	tt, err := p.matrix(ctx, req)
	if err != nil {
		return Result{}, err
	}
	problem, err := opt.Build(req.Stops, req.Vehicles, tt)
	if err != nil {
		return Result{}, err
	}
	log.Info().
		Int("routable", len(problem.Routable)).
		Int("non_routable", len(problem.NonRoutable)).
		Int("vehicles", len(problem.Vehicles)).
		Msg("optimization started")

	res, err := opt.NewSolver(problem, req.Options).Solve(ctx)
	if err != nil && !errors.Is(err, opt.ErrInfeasible) {
		return Result{}, err
	}
	out := Result{Plan: opt.Assemble(problem, res, req.Origin, req.RunID), Stats: res.Stats}
	log.Info().
		Str("status", out.Plan.Status).
		Float64("cost", out.Plan.Summary.TotalCost).
		Int("unassignable", len(out.Plan.Unassignable)).
		Str("stop_reason", res.Stats.StopReason).
		Dur("elapsed", res.Stats.Elapsed).
		Msg("optimization finished")
	return out, err
}

func (p *Planner) matrix(ctx context.Context, req *Request) (*mat.Dense, error) {
	var provider distance.MatrixProvider = p.provider
	if req.Travel != nil {
		provider = distance.StaticProvider{Minutes: req.Travel}
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: no provider configured", ErrProvider)
	}
	locs := opt.Locations(req.Stops, req.Vehicles)
	pts := make([]distance.Point, len(locs))
	for i, l := range locs {
		pts[i] = distance.Point{Lat: l.Lat, Lon: l.Lng}
	}
	m, err := provider.Matrix(ctx, pts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return m, nil
}

// Prepare validates in and resolves every default.
func (p *Planner) Prepare(in model.OptimizeRequest) (*Request, error) {
	req := &Request{RunID: in.RunID}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	origin, err := p.origin(in.Origin, in.Weekday)
	if err != nil {
		return nil, err
	}
	req.Origin = origin

	day := p.opt.NominalDayMin
	req.Stops = make([]opt.Stop, 0, len(in.Stops))
	for i, s := range in.Stops {
		st, err := p.stop(i, s, day)
		if err != nil {
			return nil, err
		}
		req.Stops = append(req.Stops, st)
	}
	req.Vehicles = make([]opt.Vehicle, 0, len(in.Vehicles))
	for i, v := range in.Vehicles {
		veh, err := vehicle(i, v, day)
		if err != nil {
			return nil, err
		}
		req.Vehicles = append(req.Vehicles, veh)
	}

	if in.TravelMinutes != nil {
		n := len(req.Stops) + 2*len(req.Vehicles)
		if len(in.TravelMinutes) != n {
			return nil, invalid("travelMinutes", "has %d rows, want %d", len(in.TravelMinutes), n)
		}
		for i, row := range in.TravelMinutes {
			if len(row) != n {
				return nil, invalid("travelMinutes", "row %d has %d entries, want %d", i, len(row), n)
			}
		}
		req.Travel = in.TravelMinutes
	}

	req.Options = p.options(in)
	return req, nil
}

func (p *Planner) options(in model.OptimizeRequest) opt.Options {
	o := opt.Options{
		TimeBudget:        p.opt.TimeBudget(),
		MaxIterations:     p.opt.MaxIterations,
		Seed:              p.opt.Seed,
		Workers:           p.opt.Workers,
		GuidedLocalSearch: p.opt.Strategy != "local",
		PenaltyFactor:     p.opt.PenaltyFactor,
		RequireAll:        in.RequireAll,
	}
	if in.TimeBudgetSec > 0 {
		sec := math.Min(in.TimeBudgetSec, p.opt.MaxTimeBudgetSec)
		o.TimeBudget = time.Duration(sec * float64(time.Second))
	}
	if in.MaxIterations > 0 {
		o.MaxIterations = in.MaxIterations
		if in.TimeBudgetSec <= 0 {
			// An explicit iteration budget alone makes the run reproducible.
			o.TimeBudget = 0
		}
	}
	if in.Seed != 0 {
		o.Seed = in.Seed
	}
	return o
}

func (p *Planner) stop(i int, in model.StopIn, day float64) (opt.Stop, error) {
	field := fmt.Sprintf("stops[%d]", i)
	if err := checkCoord(field, in.Lat, in.Lon); err != nil {
		return opt.Stop{}, err
	}
	visitType := in.VisitType
	if visitType == "" {
		visitType = config.VisitHome
	}
	class, ok := visitClass(visitType)
	if !ok {
		return opt.Stop{}, invalid(field, "unknown visit type %q", in.VisitType)
	}
	switch strings.ToLower(in.Class) {
	case "":
	case "routable":
		class = opt.ClassRoutable
	case "non-routable", "nonroutable":
		class = opt.ClassNonRoutable
	default:
		return opt.Stop{}, invalid(field, "unknown class %q", in.Class)
	}
	st := opt.Stop{
		ID:         in.ID,
		Location:   opt.Location{Lat: in.Lat, Lng: in.Lon},
		Window:     opt.Window{Earliest: 0, Latest: day},
		ServiceMin: p.visits.ServiceMin[visitType],
		Class:      class,
	}
	if in.WindowStartMin != nil {
		st.Window.Earliest = *in.WindowStartMin
	}
	if in.WindowEndMin != nil {
		st.Window.Latest = *in.WindowEndMin
	}
	if in.ServiceDurationMin != nil {
		st.ServiceMin = *in.ServiceDurationMin
	}
	return st, nil
}

func vehicle(i int, in model.VehicleIn, day float64) (opt.Vehicle, error) {
	field := fmt.Sprintf("vehicles[%d]", i)
	if err := checkCoord(field, in.Lat, in.Lon); err != nil {
		return opt.Vehicle{}, err
	}
	if math.IsNaN(in.WorkloadFraction) || in.WorkloadFraction < 0 || in.WorkloadFraction > 1 {
		return opt.Vehicle{}, invalid(field, "workloadFraction %g outside [0,1]", in.WorkloadFraction)
	}
	v := opt.Vehicle{
		ID:          in.ID,
		Start:       opt.Location{Lat: in.Lat, Lng: in.Lon},
		End:         opt.Location{Lat: in.Lat, Lng: in.Lon},
		ShiftStart:  in.ShiftStartMin,
		BudgetMin:   in.WorkloadFraction * day,
		CostPerHour: in.CostPerHour,
	}
	if (in.EndLat == nil) != (in.EndLon == nil) {
		return opt.Vehicle{}, invalid(field, "endLat and endLon must be set together")
	}
	if in.EndLat != nil {
		if err := checkCoord(field, *in.EndLat, *in.EndLon); err != nil {
			return opt.Vehicle{}, err
		}
		v.End = opt.Location{Lat: *in.EndLat, Lng: *in.EndLon}
	}
	return v, nil
}

func visitClass(visitType string) (opt.Class, bool) {
	switch visitType {
	case config.VisitHome, config.VisitAdmission:
		return opt.ClassRoutable, true
	case config.VisitPhoneConsult:
		return opt.ClassNonRoutable, true
	}
	return 0, false
}

func checkCoord(field string, lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 || math.IsNaN(lon) || lon < -180 || lon > 180 {
		return invalid(field, "coordinate (%g,%g) out of range", lat, lon)
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return &opt.ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
