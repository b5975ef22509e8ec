package topology

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"orgbench/internal/llm"
	"orgbench/internal/memory"
	"orgbench/internal/task"
)

// selfDecomposeRunner gives the organization no predefined roles: a first
// call invents 3-5 specialist roles for the task, each invented role is then
// executed, and a synthesis call integrates them. Tests organizational
// intelligence, not just assembly.
type selfDecomposeRunner struct {
	gen llm.Client
	log *zap.Logger
}

func (r *selfDecomposeRunner) Kind() Kind { return SelfDecompose }

func (r *selfDecomposeRunner) Run(ctx context.Context, t task.Task, mem *memory.Memory) (*Result, error) {
	res := &Result{Kind: SelfDecompose}

	decompPrompt := fmt.Sprintf(
		"You are an AI organization that must solve this task:\n\n%s\n\n"+
			"First, decide what specialist roles are needed. Output EXACTLY this JSON format:\n"+
			`{"roles": [{"name": "Role Name", "focus": "What this specialist should analyze"}]}`+"\n\n"+
			"Choose 3-5 roles. Each role should cover a distinct domain. "+
			"Do not overlap responsibilities. Be specific about each role's focus.",
		t.Prompt,
	)
	decomp, err := r.gen.Complete(ctx, decompPrompt, decomposeTokens)
	if err != nil {
		return nil, fmt.Errorf("self-decompose role planning: %w", err)
	}
	res.Usage.Add(decomp.Usage)
	res.TotalTime += decomp.Elapsed

	roles := parseRoles(decomp.Text)
	res.DecomposedRoles = roles
	r.log.Debug("roles decomposed", zap.Int("count", len(roles)))

	var maxSpecialist time.Duration
	for _, role := range roles {
		spPrompt := fmt.Sprintf(
			"You are the %s specialist. Your focus: %s\n\n"+
				"Task: %s\n\n"+
				"Be extremely specific with technical details. Use concrete engineering specs.",
			role.Name, role.Focus, t.Prompt,
		)
		comp, err := r.gen.Complete(ctx, spPrompt, decomposedRoleTokens)
		if err != nil {
			return nil, fmt.Errorf("self-decompose specialist %s: %w", role.Name, err)
		}
		res.Usage.Add(comp.Usage)
		res.TotalTime += comp.Elapsed
		if comp.Elapsed > maxSpecialist {
			maxSpecialist = comp.Elapsed
		}
		res.Contributions = append(res.Contributions, Contribution{
			Role:    role.Name,
			Focus:   role.Focus,
			Output:  comp.Text,
			Elapsed: comp.Elapsed,
		})
	}

	var parts []string
	for _, c := range res.Contributions {
		parts = append(parts, fmt.Sprintf("=== %s (%s) ===\n%s", c.Role, c.Focus, c.Output))
	}
	synthPrompt := fmt.Sprintf(
		"Integrate these specialist outputs into ONE unified response:\n\n"+
			"Task: %s\n\n%s\n\n"+
			"Preserve ALL technical specifics. Structure clearly.",
		t.Prompt, strings.Join(parts, "\n\n"),
	)
	synth, err := r.gen.Complete(ctx, synthPrompt, synthesisTokens)
	if err != nil {
		return nil, fmt.Errorf("self-decompose synthesis: %w", err)
	}
	res.Usage.Add(synth.Usage)
	res.FinalOutput = synth.Text
	res.TotalTime += synth.Elapsed
	res.ParallelTime = decomp.Elapsed + maxSpecialist + synth.Elapsed
	return res, nil
}
