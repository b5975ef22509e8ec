package topology

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"orgbench/internal/llm"
	"orgbench/internal/memory"
	"orgbench/internal/task"
)

// pipelineRunner chains the specialists: each sees the previous output and
// refines it, and the last specialist's output is the deliverable. There is
// no synthesis call and no parallelism to exploit.
type pipelineRunner struct {
	gen llm.Client
	log *zap.Logger
}

func (r *pipelineRunner) Kind() Kind { return Pipeline }

func (r *pipelineRunner) Run(ctx context.Context, t task.Task, mem *memory.Memory) (*Result, error) {
	if mem == nil {
		mem = memory.New()
	}
	res := &Result{Kind: Pipeline}
	current := ""

	for _, role := range t.Roles {
		comp, err := r.gen.Complete(ctx, specialistPrompt(role, mem, current), pipelineSpecialistTokens)
		if err != nil {
			return nil, fmt.Errorf("pipeline specialist %s: %w", role.Name, err)
		}
		r.log.Debug("specialist done",
			zap.String("topology", "pipeline"),
			zap.String("role", role.Name),
			zap.Duration("elapsed", comp.Elapsed))

		res.Contributions = append(res.Contributions, Contribution{
			Role:    role.Name,
			Output:  comp.Text,
			Elapsed: comp.Elapsed,
		})
		res.Usage.Add(comp.Usage)
		res.TotalTime += comp.Elapsed
		current = comp.Text
	}

	res.FinalOutput = current
	res.ParallelTime = res.TotalTime
	return res, nil
}
