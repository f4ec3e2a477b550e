package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"

	"visitplan/internal/config"
	"visitplan/internal/distance"
	"visitplan/internal/logger"
	"visitplan/internal/model"
	"visitplan/internal/opt"
	"visitplan/internal/planner"
)

type solveFlags struct {
	out           string
	timeBudgetSec float64
	maxIterations int
	seed          int64
	requireAll    bool
	stats         bool
	verbose       bool
}

func newSolveCmd(cfgPath *string) *cobra.Command {
	var f solveFlags
	cmd := &cobra.Command{
		Use:   "solve <instance.yaml|instance.json>",
		Short: "Solve one instance and print the plan as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, *cfgPath, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.out, "out", "o", "", "write the plan to this file instead of stdout")
	fl.Float64Var(&f.timeBudgetSec, "time-budget", 0, "override the instance time budget in seconds")
	fl.IntVar(&f.maxIterations, "max-iterations", 0, "override the instance iteration budget")
	fl.Int64Var(&f.seed, "seed", 0, "override the random seed")
	fl.BoolVar(&f.requireAll, "require-all", false, "fail when a routable stop stays unscheduled")
	fl.BoolVar(&f.stats, "stats", false, "include search statistics in the output")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "log solver progress to stderr")
	return cmd
}

func runSolve(cmd *cobra.Command, cfgPath, instance string, f solveFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	req, err := readInstance(instance)
	if err != nil {
		return err
	}
	if f.timeBudgetSec > 0 {
		req.TimeBudgetSec = f.timeBudgetSec
	}
	if f.maxIterations > 0 {
		req.MaxIterations = f.maxIterations
	}
	if f.seed != 0 {
		req.Seed = f.seed
	}
	req.RequireAll = req.RequireAll || f.requireAll

	log := zerolog.Nop()
	if f.verbose {
		log = logger.NewWithWriter(cmd.ErrOrStderr(), "cli", cfg.Logging.Level)
	}
	provider := &distance.CachedProvider{
		Next:  distance.FromConfig(cfg.Distance),
		Cache: distance.NewMemoryCache(),
		Log:   log,
	}
	p := planner.New(cfg.Optimizer, cfg.Visits, provider, log)

	var onProgress func(model.ProgressEvent)
	if f.verbose {
		onProgress = func(e model.ProgressEvent) {
			log.Info().Str("phase", e.Phase).Int("iteration", e.Iteration).Float64("cost", e.Cost).Int("unassigned", e.Unassigned).Msg("progress")
		}
	}
	res, solveErr := p.Plan(ctx, req, onProgress)
	if solveErr != nil && !errors.Is(solveErr, opt.ErrInfeasible) {
		return solveErr
	}

	var body any = res.Plan
	if f.stats {
		body = struct {
			Plan  model.Plan     `json:"plan"`
			Stats model.RunStats `json:"stats"`
		}{res.Plan, opt.RunStats(res.Stats)}
	}
	if err := writeOutput(cmd.OutOrStdout(), f.out, body); err != nil {
		return err
	}
	return solveErr
}

// readInstance decodes a .json instance with encoding/json and anything
// else as YAML.
func readInstance(path string) (model.OptimizeRequest, error) {
	var req model.OptimizeRequest
	b, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read instance: %w", err)
	}
	decode := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		decode = json.Unmarshal
	}
	if err := decode(b, &req); err != nil {
		return req, fmt.Errorf("parse instance %s: %w", path, err)
	}
	return req, nil
}

func writeOutput(stdout io.Writer, path string, v any) error {
	w := stdout
	if path != "" {
		fh, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() { _ = fh.Close() }()
		w = fh
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
