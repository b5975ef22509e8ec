// Package learning implements the organizational learning loop: run the
// organization, evaluate it blind against the baseline, stop on convergence,
// otherwise run a retrospective and go again with the updated memory.
package learning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orgbench/internal/evaluator"
	"orgbench/internal/llm"
	"orgbench/internal/memory"
	"orgbench/internal/retrospective"
	"orgbench/internal/task"
	"orgbench/internal/topology"
)

const (
	// DefaultMaxIterations caps the loop when the config leaves it unset.
	DefaultMaxIterations = 5
	// DefaultThreshold is the delta at which the organization is considered
	// to have converged on beating the baseline.
	DefaultThreshold = 10.0

	baselineMaxTokens = 3000
)

// Evaluator scores a baseline/organization output pair.
type Evaluator interface {
	Evaluate(ctx context.Context, t task.Task, baselineOutput, orgOutput string) (*evaluator.Result, error)
}

// Retrospector analyzes a non-terminal iteration and updates memory.
type Retrospector interface {
	Run(ctx context.Context, t task.Task, baselineOutput, orgOutput string, eval *evaluator.Result, topologyName string, iteration int, mem *memory.Memory) (retrospective.FixProposal, error)
}

// IterationRecord captures one loop iteration's evaluation outcome.
type IterationRecord struct {
	Iteration     int              `json:"iteration"`
	Topology      string           `json:"topology"`
	BaselineScore float64          `json:"sa_score"`
	OrgScore      float64          `json:"ma_score"`
	Delta         float64          `json:"delta"`
	PValue        float64          `json:"p_value"`
	CohensD       float64          `json:"cohens_d"`
	BaselineStd   float64          `json:"sa_std"`
	OrgStd        float64          `json:"ma_std"`
	FailureMode   string           `json:"failure_mode"`
	ProtocolFix   string           `json:"protocol_fix"`
	Usage         llm.UsageSummary `json:"usage"`
	Timestamp     string           `json:"timestamp"`
}

// Result is the outcome of one (task, topology) condition.
type Result struct {
	TaskID             string            `json:"task_id"`
	Topology           string            `json:"topology"`
	Iterations         []IterationRecord `json:"iterations"`
	FinalDelta         float64           `json:"final_delta"`
	FinalBaselineScore float64           `json:"final_sa_score"`
	FinalOrgScore      float64           `json:"final_ma_score"`
	ConvergenceIter    int               `json:"convergence_iter"`
	LearningRate       float64           `json:"learning_rate"`
	Converged          bool              `json:"converged"`
	Memory             map[string]string `json:"org_memory"`
	TotalTime          time.Duration     `json:"total_time_ns"`
}

// computeLearningRate is the mean improvement in delta between consecutive
// iterations; 0 when fewer than two iterations ran.
func (r *Result) computeLearningRate() {
	if len(r.Iterations) < 2 {
		r.LearningRate = 0
		return
	}
	var sum float64
	for i := 1; i < len(r.Iterations); i++ {
		sum += r.Iterations[i].Delta - r.Iterations[i-1].Delta
	}
	r.LearningRate = sum / float64(len(r.Iterations)-1)
}

// Loop wires one condition's collaborators. Zero values for MaxIterations and
// Threshold take the defaults.
type Loop struct {
	Generator     llm.Client
	Runner        topology.Runner
	Evaluator     Evaluator
	Retro         Retrospector
	MaxIterations int
	Threshold     float64
	OutputDir     string
	Logger        *zap.Logger
}

// Baseline runs the single-agent baseline for a task.
func Baseline(ctx context.Context, gen llm.Client, t task.Task) (string, error) {
	prompt := fmt.Sprintf("You are an expert. %s\nBe comprehensive and technically specific.", t.Prompt)
	comp, err := gen.Complete(ctx, prompt, baselineMaxTokens)
	if err != nil {
		return "", fmt.Errorf("baseline for %s: %w", t.ID, err)
	}
	return comp.Text, nil
}

// Run executes the learning loop. A non-empty baselineOutput skips the
// baseline call so suites can share one baseline per task. The memory is
// mutated in place by retrospectives; pass a clone to isolate conditions.
func (l *Loop) Run(ctx context.Context, t task.Task, baselineOutput string, mem *memory.Memory) (*Result, error) {
	if l.Runner == nil || l.Evaluator == nil || l.Retro == nil {
		return nil, fmt.Errorf("learning loop: runner, evaluator, and retrospector are required")
	}
	log := l.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxIter := l.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	threshold := l.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if mem == nil {
		mem = memory.New()
	}

	kind := l.Runner.Kind()
	res := &Result{TaskID: t.ID, Topology: string(kind)}
	start := time.Now()

	if baselineOutput == "" {
		if l.Generator == nil {
			return nil, fmt.Errorf("learning loop: generator is required when no baseline is supplied")
		}
		var err error
		baselineOutput, err = Baseline(ctx, l.Generator, t)
		if err != nil {
			return nil, err
		}
		log.Info("baseline computed", zap.String("task", t.ID))
	}

	for iteration := 1; iteration <= maxIter; iteration++ {
		log.Info("iteration start",
			zap.String("task", t.ID),
			zap.String("topology", string(kind)),
			zap.Int("iteration", iteration),
			zap.Int("max_iterations", maxIter))

		topoRes, err := l.Runner.Run(ctx, t, mem)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration, err)
		}

		eval, err := l.Evaluator.Evaluate(ctx, t, baselineOutput, topoRes.FinalOutput)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration, err)
		}
		log.Info("evaluation done",
			zap.Int("iteration", iteration),
			zap.String("summary", evaluator.FormatSummary(eval)))

		record := IterationRecord{
			Iteration:     iteration,
			Topology:      string(kind),
			BaselineScore: eval.BaselineMean,
			OrgScore:      eval.OrgMean,
			Delta:         eval.DeltaMean,
			PValue:        eval.PValue,
			CohensD:       eval.CohensD,
			BaselineStd:   eval.BaselineStd,
			OrgStd:        eval.OrgStd,
			Timestamp:     time.Now().Format(time.RFC3339),
		}
		record.Usage.Merge(topoRes.Usage)
		record.Usage.Merge(eval.Usage)

		res.FinalDelta = eval.DeltaMean
		res.FinalBaselineScore = eval.BaselineMean
		res.FinalOrgScore = eval.OrgMean

		if eval.DeltaMean >= threshold || iteration >= maxIter {
			res.ConvergenceIter = iteration
			res.Converged = eval.DeltaMean >= threshold
			record.FailureMode = "converged"
			res.Iterations = append(res.Iterations, record)

			reason := "max iterations"
			if res.Converged {
				reason = fmt.Sprintf("delta=%.1f >= %.1f", eval.DeltaMean, threshold)
			}
			log.Info("stopping", zap.Int("iteration", iteration), zap.String("reason", reason))

			if err := l.saveSnapshot(res, mem, iteration); err != nil {
				log.Warn("snapshot write failed", zap.Error(err))
			}
			break
		}

		fix, err := l.Retro.Run(ctx, t, baselineOutput, topoRes.FinalOutput, eval, string(kind), iteration, mem)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration, err)
		}
		record.FailureMode = fix.FailureMode
		record.ProtocolFix = fix.ProtocolFix
		res.Iterations = append(res.Iterations, record)

		if err := l.saveSnapshot(res, mem, iteration); err != nil {
			log.Warn("snapshot write failed", zap.Error(err))
		}
	}

	res.TotalTime = time.Since(start)
	res.Memory = mem.Snapshot()
	res.computeLearningRate()
	return res, nil
}
