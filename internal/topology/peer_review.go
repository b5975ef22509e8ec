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

// peerReviewRunner runs three phases: independent drafts, round-robin
// cross-critique (each specialist reviews the next two), and a synthesis that
// sees both drafts and critiques.
type peerReviewRunner struct {
	gen llm.Client
	log *zap.Logger
}

func (r *peerReviewRunner) Kind() Kind { return PeerReview }

func (r *peerReviewRunner) Run(ctx context.Context, t task.Task, mem *memory.Memory) (*Result, error) {
	if mem == nil {
		mem = memory.New()
	}
	res := &Result{Kind: PeerReview}

	// Phase 1: independent drafts.
	var drafts []Contribution
	var maxDraft time.Duration
	for _, role := range t.Roles {
		comp, err := r.gen.Complete(ctx, specialistPrompt(role, mem, ""), draftTokens)
		if err != nil {
			return nil, fmt.Errorf("peer review draft %s: %w", role.Name, err)
		}
		drafts = append(drafts, Contribution{
			Role:    role.Name,
			Phase:   "draft",
			Output:  comp.Text,
			Elapsed: comp.Elapsed,
		})
		res.Usage.Add(comp.Usage)
		res.TotalTime += comp.Elapsed
		if comp.Elapsed > maxDraft {
			maxDraft = comp.Elapsed
		}
	}

	// Phase 2: each reviewer critiques the next two drafts, round-robin.
	var critiques []Contribution
	var maxCritique time.Duration
	n := len(drafts)
	for i, reviewer := range drafts {
		targets := []int{(i + 1) % n, (i + 2) % n}
		var targetsText []string
		for _, j := range targets {
			targetsText = append(targetsText, fmt.Sprintf("=== %s draft ===\n%s", drafts[j].Role, truncate(drafts[j].Output, 800)))
		}
		critiquePrompt := fmt.Sprintf(
			"You are the %s. Critically review these 2 specialist drafts for the task: %s.\n\n%s\n\n"+
				"Identify: (1) technical errors or gaps, (2) missing edge cases, "+
				"(3) conflicts with your own domain expertise. Be specific and constructive. "+
				"Keep your critique under 300 words.",
			reviewer.Role, t.Name, strings.Join(targetsText, "\n\n"),
		)

		comp, err := r.gen.Complete(ctx, critiquePrompt, critiqueTokens)
		if err != nil {
			return nil, fmt.Errorf("peer review critique by %s: %w", reviewer.Role, err)
		}
		r.log.Debug("critique done",
			zap.String("topology", "peer_review"),
			zap.String("reviewer", reviewer.Role),
			zap.Duration("elapsed", comp.Elapsed))

		critiques = append(critiques, Contribution{
			Role:    reviewer.Role,
			Phase:   "critique",
			Output:  comp.Text,
			Elapsed: comp.Elapsed,
		})
		res.Usage.Add(comp.Usage)
		res.TotalTime += comp.Elapsed
		if comp.Elapsed > maxCritique {
			maxCritique = comp.Elapsed
		}
	}

	// Phase 3: synthesis aware of the critiques. Drafts and critiques are
	// clipped so the prompt stays inside the judge-comparable budget.
	var draftParts, critiqueParts []string
	for _, d := range drafts {
		draftParts = append(draftParts, fmt.Sprintf("=== %s ===\n%s", d.Role, d.Output))
	}
	for _, c := range critiques {
		critiqueParts = append(critiqueParts, fmt.Sprintf("[%s critique]: %s", c.Role, c.Output))
	}
	synthPrompt := fmt.Sprintf(
		"You are the Synthesis Agent. Integrate these specialist drafts "+
			"into ONE unified response, informed by the peer critiques.\n\n"+
			"TASK: %s\n\n"+
			"DRAFTS:\n%s\n\n"+
			"PEER CRITIQUES:\n%s\n\n"+
			"Address the critiques, resolve conflicts, and produce a technically precise unified response.",
		t.Prompt,
		truncate(strings.Join(draftParts, "\n\n"), 4000),
		truncate(strings.Join(critiqueParts, "\n\n"), 2000),
	)
	synth, err := r.gen.Complete(ctx, synthPrompt, synthesisTokens)
	if err != nil {
		return nil, fmt.Errorf("peer review synthesis: %w", err)
	}
	res.Usage.Add(synth.Usage)

	res.Contributions = append(drafts, critiques...)
	res.FinalOutput = synth.Text
	res.TotalTime += synth.Elapsed
	res.ParallelTime = maxDraft + maxCritique + synth.Elapsed
	return res, nil
}
