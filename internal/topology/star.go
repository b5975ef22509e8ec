package topology

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orgbench/internal/llm"
	"orgbench/internal/memory"
	"orgbench/internal/task"
)

// starRunner fans the task out to every specialist independently, then
// synthesizes. Specialists never see each other's work, so ParallelTime is
// the slowest specialist plus synthesis.
type starRunner struct {
	gen llm.Client
	log *zap.Logger
}

func (r *starRunner) Kind() Kind { return Star }

func (r *starRunner) Run(ctx context.Context, t task.Task, mem *memory.Memory) (*Result, error) {
	if mem == nil {
		mem = memory.New()
	}
	res := &Result{Kind: Star}
	var maxSpecialist time.Duration

	for _, role := range t.Roles {
		comp, err := r.gen.Complete(ctx, specialistPrompt(role, mem, ""), starSpecialistTokens)
		if err != nil {
			return nil, fmt.Errorf("star specialist %s: %w", role.Name, err)
		}
		r.log.Debug("specialist done",
			zap.String("topology", "star"),
			zap.String("role", role.Name),
			zap.Duration("elapsed", comp.Elapsed))

		res.Contributions = append(res.Contributions, Contribution{
			Role:    role.Name,
			Output:  comp.Text,
			Elapsed: comp.Elapsed,
		})
		res.Usage.Add(comp.Usage)
		res.TotalTime += comp.Elapsed
		if comp.Elapsed > maxSpecialist {
			maxSpecialist = comp.Elapsed
		}
	}

	synth, err := r.gen.Complete(ctx, synthesisPrompt(t, res.Contributions, mem), synthesisTokens)
	if err != nil {
		return nil, fmt.Errorf("star synthesis: %w", err)
	}
	res.Usage.Add(synth.Usage)
	res.FinalOutput = synth.Text
	res.TotalTime += synth.Elapsed
	res.ParallelTime = maxSpecialist + synth.Elapsed
	return res, nil
}
