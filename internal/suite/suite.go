// Package suite runs the full benchmark matrix: tasks x topologies, each
// condition through the learning loop. The single-agent baseline is computed
// once per task and shared across that task's conditions. With cross-topology
// transfer enabled the lesson memory flows from one topology to the next and
// conditions run sequentially; without it every condition gets an isolated
// clone and independent conditions may run concurrently.
package suite

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orgbench/internal/evaluator"
	"orgbench/internal/learning"
	"orgbench/internal/llm"
	"orgbench/internal/memory"
	"orgbench/internal/retrospective"
	"orgbench/internal/store"
	"orgbench/internal/task"
	"orgbench/internal/topology"
)

// Config selects the benchmark matrix and loop parameters.
type Config struct {
	TaskIDs       []string
	Topologies    []topology.Kind
	MaxIterations int
	Threshold     float64
	EvalRuns      int
	MaxLoops      int
	// Transfer shares lesson memory across a task's topologies, in order.
	Transfer bool
	// Parallel bounds concurrent conditions when Transfer is off. <=1 is
	// sequential.
	Parallel int
	// SeedMemory starts every organization with the default lessons.
	SeedMemory bool
	OutputDir  string
}

// Summary is the outcome of a whole suite run.
type Summary struct {
	Results    []*learning.Result `json:"results"`
	Conditions int                `json:"conditions"`
	MeanDelta  float64            `json:"mean_delta"`
}

// Runner owns the suite's shared collaborators.
type Runner struct {
	Generator llm.Client
	Judge     llm.Client
	// Store archives finished conditions when non-nil.
	Store  *store.Store
	Logger *zap.Logger
}

// Run executes every (task, topology) condition in cfg.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Summary, error) {
	if r.Generator == nil || r.Judge == nil {
		return nil, fmt.Errorf("suite: generator and judge clients are required")
	}
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	tasks := make([]task.Task, 0, len(cfg.TaskIDs))
	for _, id := range cfg.TaskIDs {
		t, err := task.ByID(id)
		if err != nil {
			return nil, fmt.Errorf("suite: %w", err)
		}
		tasks = append(tasks, t)
	}
	if len(tasks) == 0 || len(cfg.Topologies) == 0 {
		return nil, fmt.Errorf("suite: at least one task and one topology are required")
	}

	summary := &Summary{}
	for _, t := range tasks {
		log.Info("task baseline", zap.String("task", t.ID))
		baseline, err := learning.Baseline(ctx, r.Generator, t)
		if err != nil {
			return nil, err
		}

		results, err := r.runTask(ctx, cfg, t, baseline, log)
		if err != nil {
			return nil, err
		}
		summary.Results = append(summary.Results, results...)
	}

	summary.Conditions = len(summary.Results)
	var deltaSum float64
	for _, res := range summary.Results {
		deltaSum += res.FinalDelta
	}
	if summary.Conditions > 0 {
		summary.MeanDelta = deltaSum / float64(summary.Conditions)
	}

	if r.Store != nil {
		for _, res := range summary.Results {
			if _, err := r.Store.SaveResult(res); err != nil {
				return nil, fmt.Errorf("suite: archive %s/%s: %w", res.TaskID, res.Topology, err)
			}
		}
	}
	if cfg.OutputDir != "" {
		if err := writeSummary(summary, cfg.OutputDir); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

// runTask runs all topologies for one task against a shared baseline.
func (r *Runner) runTask(ctx context.Context, cfg Config, t task.Task, baseline string, log *zap.Logger) ([]*learning.Result, error) {
	newMemory := func() *memory.Memory {
		if cfg.SeedMemory {
			return memory.Seeded()
		}
		return memory.New()
	}

	results := make([]*learning.Result, len(cfg.Topologies))

	if cfg.Transfer {
		// One memory flows through every topology in order, so each
		// condition inherits what the previous ones learned.
		shared := newMemory()
		for i, kind := range cfg.Topologies {
			res, err := r.runCondition(ctx, cfg, t, kind, baseline, shared, log)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := cfg.Parallel
	if limit <= 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, kind := range cfg.Topologies {
		g.Go(func() error {
			res, err := r.runCondition(gctx, cfg, t, kind, baseline, newMemory(), log)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) runCondition(ctx context.Context, cfg Config, t task.Task, kind topology.Kind, baseline string, mem *memory.Memory, log *zap.Logger) (*learning.Result, error) {
	log.Info("condition start", zap.String("task", t.ID), zap.String("topology", string(kind)))

	runner, err := topology.New(kind, r.Generator, topology.Options{MaxLoops: cfg.MaxLoops, Logger: log})
	if err != nil {
		return nil, err
	}
	// Each condition gets its own evaluator so label randomization never
	// shares a rand source across goroutines.
	eval, err := evaluator.New(r.Judge, evaluator.Options{
		Runs:   cfg.EvalRuns,
		Rand:   rand.New(rand.NewSource(rand.Int63())),
		Logger: log,
	})
	if err != nil {
		return nil, err
	}
	retro, err := retrospective.NewEngine(r.Generator, log)
	if err != nil {
		return nil, err
	}

	loop := &learning.Loop{
		Generator:     r.Generator,
		Runner:        runner,
		Evaluator:     eval,
		Retro:         retro,
		MaxIterations: cfg.MaxIterations,
		Threshold:     cfg.Threshold,
		OutputDir:     cfg.OutputDir,
		Logger:        log,
	}
	res, err := loop.Run(ctx, t, baseline, mem)
	if err != nil {
		return nil, fmt.Errorf("condition %s/%s: %w", t.ID, kind, err)
	}
	log.Info("condition done",
		zap.String("task", t.ID),
		zap.String("topology", string(kind)),
		zap.Float64("final_delta", res.FinalDelta),
		zap.Bool("converged", res.Converged))
	return res, nil
}

func writeSummary(s *Summary, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal suite summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "suite_summary.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write suite summary: %w", err)
	}
	return nil
}

// FormatTable renders the final results table for the console.
func FormatTable(s *Summary) string {
	var b strings.Builder
	rule := strings.Repeat("=", 70)
	fmt.Fprintf(&b, "%s\n  FINAL RESULTS SUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(&b, "  %-25s %-15s %6s %6s %6s %6s\n", "Task", "Topology", "SA", "MA", "delta", "d")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, r := range s.Results {
		if len(r.Iterations) == 0 {
			continue
		}
		last := r.Iterations[len(r.Iterations)-1]
		mark := "~"
		if r.FinalDelta > 3 {
			mark = "+"
		} else if r.FinalDelta < -3 {
			mark = "-"
		}
		fmt.Fprintf(&b, "  %-25s %-15s %6.1f %6.1f %+6.1f %+6.2f  %s\n",
			r.TaskID, r.Topology, r.FinalBaselineScore, r.FinalOrgScore, r.FinalDelta, last.CohensD, mark)
	}
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "  %d condition(s), mean delta %+.1f\n", s.Conditions, s.MeanDelta)
	return b.String()
}
