package opt

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// State is the solver lifecycle.
type State int

const (
	StateUnsolved State = iota
	StateConstructing
	StateImproving
	StateSolved
	StateInfeasible
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateImproving:
		return "improving"
	case StateSolved:
		return "solved"
	case StateInfeasible:
		return "infeasible"
	}
	return "unsolved"
}

// Stop reasons reported in Stats.
const (
	StopTimeBudget   = "time_budget"
	StopIterations   = "iterations"
	StopCancelled    = "cancelled"
	StopLocalOptimum = "local_optimum"
)

const (
	DefaultMaxIterations = 5000
	DefaultPenaltyFactor = 0.1
)

type Options struct {
	TimeBudget        time.Duration // improvement wall clock; 0 disables
	MaxIterations     int           // improvement iterations; 0 disables
	Seed              int64
	Workers           int // parallel move evaluation when > 1
	GuidedLocalSearch bool
	PenaltyFactor     float64 // GLS lambda coefficient
	RequireAll        bool    // report InfeasibleProblemError on any unassignable stop
	Logger            zerolog.Logger
	OnProgress        func(Progress)
}

type Progress struct {
	Phase      string
	Iteration  int
	Cost       float64
	Unassigned int
	Elapsed    time.Duration
}

type Stats struct {
	Iterations    int
	Improvements  int
	Penalizations int
	Moves         map[string]int
	InitialCost   float64
	BestCost      float64
	Elapsed       time.Duration
	StopReason    string
}

type Route struct {
	Vehicle  int
	Stops    []int
	Schedule Schedule
	Cost     float64
}

// Solution is a frozen snapshot: one route per vehicle plus the routable
// stops no route could take.
type Solution struct {
	Routes     []Route
	Unassigned []int
	Cost       float64
}

// Result is what Solve hands back to callers.
type Result struct {
	State        State
	Solution     Solution
	Unassignable []Unassignable
	Stats        Stats
}

type Solver struct {
	p    *Problem
	opts Options
	log  zerolog.Logger
	rng  *rand.Rand

	state      State
	routes     []*routeState
	unassigned []int
	cost       float64

	best     Solution
	hasBest  bool
	pen      []float64
	lambda   float64
	started  time.Time
	stats    Stats
	progress func(Progress)
}

func NewSolver(p *Problem, opts Options) *Solver {
	if opts.TimeBudget <= 0 && opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.PenaltyFactor <= 0 {
		opts.PenaltyFactor = DefaultPenaltyFactor
	}
	progress := opts.OnProgress
	if progress == nil {
		progress = func(Progress) {}
	}
	s := &Solver{
		p:        p,
		opts:     opts,
		log:      opts.Logger,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		pen:      make([]float64, p.n*p.n),
		progress: progress,
		stats:    Stats{Moves: map[string]int{}},
	}
	s.routes = make([]*routeState, len(p.Vehicles))
	for v := range p.Vehicles {
		s.routes[v] = p.newRouteState(v, nil)
	}
	return s
}

func (s *Solver) State() State { return s.state }

// Solve runs construction then improvement and classifies the outcome.
func (s *Solver) Solve(ctx context.Context) (Result, error) {
	s.started = time.Now()
	if err := s.Construct(ctx); err != nil {
		return Result{State: s.state}, err
	}
	if err := s.Improve(ctx); err != nil {
		return Result{State: s.state}, err
	}
	return s.Finish()
}

// Construct builds the initial solution by cheapest feasible insertion.
func (s *Solver) Construct(ctx context.Context) error {
	if s.state != StateUnsolved {
		return fmt.Errorf("construct: solver is %s", s.state)
	}
	if s.started.IsZero() {
		s.started = time.Now()
	}
	s.state = StateConstructing
	s.log.Debug().Int("routable", len(s.p.Routable)).Int("vehicles", len(s.p.Vehicles)).Msg("construction started")
	if err := s.construct(ctx); err != nil {
		return fmt.Errorf("construct: %w", err)
	}
	s.recost()
	s.stats.InitialCost = s.cost
	s.keepIfBest()
	s.state = StateImproving
	s.log.Debug().Float64("cost", s.cost).Int("unassigned", len(s.unassigned)).Msg("construction finished")
	s.emit("construct")
	return nil
}

// Improve runs local search until a budget is exhausted or ctx is done.
// It may be called again to resume from the current state.
func (s *Solver) Improve(ctx context.Context) error {
	if s.state == StateUnsolved {
		if err := s.Construct(ctx); err != nil {
			return err
		}
	}
	s.state = StateImproving
	var deadline time.Time
	if s.opts.TimeBudget > 0 {
		deadline = time.Now().Add(s.opts.TimeBudget)
	}
	start := s.stats.Iterations
	s.stats.StopReason = ""
	for {
		switch {
		case ctx.Err() != nil:
			s.stats.StopReason = StopCancelled
		case !deadline.IsZero() && !time.Now().Before(deadline):
			s.stats.StopReason = StopTimeBudget
		case s.opts.MaxIterations > 0 && s.stats.Iterations-start >= s.opts.MaxIterations:
			s.stats.StopReason = StopIterations
		}
		if s.stats.StopReason != "" {
			break
		}
		s.stats.Iterations++
		if s.reinsert() {
			s.keepIfBest()
			continue
		}
		m := s.bestMove()
		if m.ok && m.delta < -eps {
			s.apply(m)
			s.keepIfBest()
			continue
		}
		if !s.opts.GuidedLocalSearch || !s.hasMoves() || !s.penalize() {
			s.stats.StopReason = StopLocalOptimum
			break
		}
	}
	s.log.Debug().Str("reason", s.stats.StopReason).Int("iterations", s.stats.Iterations).Float64("best", s.best.Cost).Msg("improvement stopped")
	return nil
}

// Finish freezes the best solution and classifies the run.
func (s *Solver) Finish() (Result, error) {
	s.stats.BestCost = s.best.Cost
	s.stats.Elapsed = time.Since(s.started)
	res := Result{Solution: s.best, Stats: s.stats}
	res.Unassignable = s.Diagnose(s.best)
	if len(s.best.Unassigned) == 0 {
		s.state = StateSolved
	} else {
		s.state = StateInfeasible
	}
	res.State = s.state
	s.emit("done")
	if s.state == StateInfeasible && s.opts.RequireAll {
		return res, s.infeasibleError(res.Unassignable)
	}
	return res, nil
}

func (s *Solver) infeasibleError(un []Unassignable) error {
	e := &InfeasibleProblemError{}
	for _, u := range un {
		id := s.p.Stops[u.Stop].ID
		e.StopIDs = append(e.StopIDs, id)
		for _, c := range u.ConflictsWith {
			e.Conflicts = append(e.Conflicts, [2]string{id, s.p.Stops[c].ID})
		}
	}
	return e
}

// Best returns the best solution seen so far.
func (s *Solver) Best() Solution { return s.best }

func (s *Solver) recost() {
	total := 0.0
	for _, rs := range s.routes {
		total += rs.cost
	}
	s.cost = total
}

// keepIfBest snapshots the current state when it schedules more stops, or
// the same number at lower cost.
func (s *Solver) keepIfBest() {
	if s.hasBest {
		nb, nc := len(s.best.Unassigned), len(s.unassigned)
		if nc > nb || nc == nb && s.cost >= s.best.Cost-eps {
			return
		}
		s.stats.Improvements++
	}
	s.best = s.snapshot()
	s.hasBest = true
	if s.state == StateImproving {
		s.emit("improve")
	}
}

func (s *Solver) snapshot() Solution {
	sol := Solution{Routes: make([]Route, len(s.routes)), Cost: s.cost}
	for v, rs := range s.routes {
		sol.Routes[v] = Route{
			Vehicle:  rs.v,
			Stops:    append([]int(nil), rs.stops...),
			Schedule: s.p.Propagate(rs.v, rs.stops),
			Cost:     rs.cost,
		}
	}
	sol.Unassigned = append([]int(nil), s.unassigned...)
	sort.Ints(sol.Unassigned)
	return sol
}

func (s *Solver) emit(phase string) {
	s.progress(Progress{
		Phase:      phase,
		Iteration:  s.stats.Iterations,
		Cost:       s.best.Cost,
		Unassigned: len(s.best.Unassigned),
		Elapsed:    time.Since(s.started),
	})
}
