package topology

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"orgbench/internal/llm"
	"orgbench/internal/memory"
	"orgbench/internal/task"
)

// hrmRunner implements the Hierarchical Reasoning Model topology: a
// high-level coordinator alternates with low-level specialists. The
// coordinator assesses output quality each loop and either routes targeted
// refinement instructions back down or stops. Loop 1 never stops and the
// loop counter is hard-capped regardless of what the coordinator says.
type hrmRunner struct {
	gen      llm.Client
	log      *zap.Logger
	maxLoops int
}

func (r *hrmRunner) Kind() Kind { return HRM }

func (r *hrmRunner) Run(ctx context.Context, t task.Task, mem *memory.Memory) (*Result, error) {
	if mem == nil {
		mem = memory.New()
	}
	res := &Result{Kind: HRM}
	meta := &HRMMetadata{MaxLoopsConfigured: r.maxLoops}

	current := make(map[string]string) // role name to latest output
	var plans []Plan
	var loopParallel time.Duration
	var coordTotal time.Duration

	for loop := 1; loop <= r.maxLoops; loop++ {
		coordPrompt := coordinatorPrompt(t, loop, r.maxLoops, current, mem)
		coord, err := r.gen.Complete(ctx, coordPrompt, coordinatorTokens)
		if err != nil {
			return nil, fmt.Errorf("hrm coordinator loop %d: %w", loop, err)
		}
		res.Usage.Add(coord.Usage)
		res.TotalTime += coord.Elapsed
		coordTotal += coord.Elapsed

		plan := parsePlan(coord.Text, t)
		plans = append(plans, plan)
		meta.CoordinatorPlans = append(meta.CoordinatorPlans, CoordinatorPlan{
			Loop:              loop,
			Status:            plan.Status,
			RefinementFocus:   plan.RefinementFocus,
			QualityAssessment: plan.QualityAssessment,
			Elapsed:           coord.Elapsed,
		})
		r.log.Debug("coordinator plan",
			zap.Int("loop", loop),
			zap.String("status", plan.Status),
			zap.String("focus", plan.RefinementFocus))

		// DONE is only honored after loop 1: the first loop exists to
		// bootstrap the specialists.
		if plan.Status == planDone && loop > 1 {
			break
		}

		var loopMax time.Duration
		for _, role := range t.Roles {
			instruction := plan.SpecialistInstructions[role.Name]
			if instruction == "" {
				instruction = role.Instruction
			}
			spPrompt := hrmSpecialistPrompt(role, t, instruction, mem, current[role.Name], loop)
			comp, err := r.gen.Complete(ctx, spPrompt, hrmSpecialistTokens)
			if err != nil {
				return nil, fmt.Errorf("hrm specialist %s loop %d: %w", role.Name, loop, err)
			}
			res.Usage.Add(comp.Usage)
			res.TotalTime += comp.Elapsed
			if comp.Elapsed > loopMax {
				loopMax = comp.Elapsed
			}
			res.Contributions = append(res.Contributions, Contribution{
				Role:        role.Name,
				Loop:        loop,
				Instruction: instruction,
				Output:      comp.Text,
				Elapsed:     comp.Elapsed,
			})
			current[role.Name] = comp.Text
		}
		loopParallel += loopMax
	}

	meta.LoopCount = len(plans)

	synthPrompt := hrmSynthesisPrompt(t, meta.CoordinatorPlans, res.Contributions, mem)
	synth, err := r.gen.Complete(ctx, synthPrompt, synthesisTokens)
	if err != nil {
		return nil, fmt.Errorf("hrm synthesis: %w", err)
	}
	res.Usage.Add(synth.Usage)
	res.FinalOutput = synth.Text
	res.TotalTime += synth.Elapsed
	res.ParallelTime = loopParallel + coordTotal + synth.Elapsed
	res.HRM = meta
	return res, nil
}

// coordinatorPrompt builds the high-level coordinator prompt. On loop 1 there
// is no specialist output yet, so it asks for bootstrap instructions; later
// loops show truncated current outputs for gap analysis.
func coordinatorPrompt(t task.Task, loop, maxLoops int, current map[string]string, mem *memory.Memory) string {
	var outputs strings.Builder
	if len(current) > 0 {
		outputs.WriteString("\n\nCURRENT SPECIALIST OUTPUTS (assess these critically):\n")
		names := make([]string, 0, len(current))
		for name := range current {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&outputs, "\n--- %s ---\n%s\n[...truncated...]\n", name, strings.TrimRight(truncate(current[name], 700), " \n"))
		}
	} else {
		outputs.WriteString("\n\nThis is loop 1 - no specialist outputs yet. Issue comprehensive initial instructions.")
	}

	memSection := ""
	if mem.Len() > 0 {
		if data, err := json.MarshalIndent(mem.Snapshot(), "", "  "); err == nil {
			memSection = fmt.Sprintf("\n\nORG MEMORY (lessons from previous benchmark runs - apply these):\n%s", truncate(string(data), 600))
		}
	}

	finalLoopNote := ""
	if loop >= maxLoops {
		finalLoopNote = fmt.Sprintf("\nIMPORTANT: This is the FINAL loop (%d/%d). Output status=DONE. "+
			"In specialist_instructions, provide synthesis guidance summarising everything achieved.", loop, maxLoops)
	}

	return fmt.Sprintf(
		"You are the High-Level Coordinator (f_H) of a Hierarchical Reasoning Model.\n"+
			"Your role: strategic oversight, gap analysis, and specialist orchestration.\n\n"+
			"TASK:\n%s%s%s\n\n"+
			"CURRENT LOOP: %d of %d%s\n\n"+
			"YOUR RESPONSIBILITIES:\n"+
			"1. Assess what specialists have produced: what is STRONG, what is MISSING or too vague\n"+
			"2. Decide: if all hard constraints are covered with sufficient technical depth -> DONE\n"+
			"   Otherwise -> LOOP with targeted refinement instructions\n"+
			"3. Instructions must be SPECIFIC: say 'add exact RSI threshold and lookback period' "+
			"not 'improve technical depth'\n"+
			"4. On loop 1, always output LOOP with full bootstrap instructions for each specialist\n\n"+
			"OUTPUT FORMAT - respond with ONLY valid JSON, no other text:\n"+
			`{"status": "LOOP", "specialist_instructions": {"RoleName": "specific instruction"}, `+
			`"refinement_focus": "brief: what still needs work", "quality_assessment": "what was good"}`+"\n"+
			"OR\n"+
			`{"status": "DONE", "specialist_instructions": {}, `+
			`"refinement_focus": "", "quality_assessment": "summary of what was achieved"}`+"\n\n"+
			"RULES:\n"+
			"- specialist_instructions must cover ALL specialist roles by exact name\n"+
			"- Be concrete: reference specific missing values, formulas, or protocol names\n"+
			"- Loop 1: always LOOP; Final loop: always DONE",
		t.Prompt, outputs.String(), memSection, loop, maxLoops, finalLoopNote,
	)
}

// hrmSpecialistPrompt builds the low-level specialist prompt, carrying the
// coordinator's instruction and the specialist's own prior-loop output.
func hrmSpecialistPrompt(role task.SpecialistRole, t task.Task, instruction string, mem *memory.Memory, priorOutput string, loop int) string {
	lessons := ""
	if l := mem.Lesson(role.MemoryKey); l != "" {
		lessons = fmt.Sprintf("\n\nLESSONS FROM PREVIOUS BENCHMARK RUNS:\n%s\nApply these.\n", l)
	}

	prior := ""
	if priorOutput != "" {
		prior = fmt.Sprintf(
			"\n\nYOUR PREVIOUS OUTPUT (loop %d) - refine this, don't restart:\n%s\n"+
				"Focus on what the coordinator asked you to improve. Build on what's already good.\n",
			loop-1, truncate(priorOutput, 2000),
		)
	}

	return fmt.Sprintf(
		"You are the %s specialist in a hierarchical multi-agent system (loop %d).\n\n"+
			"TASK CONTEXT:\n%s\n\n"+
			"COORDINATOR INSTRUCTION FOR YOU:\n%s\n"+
			"%s%s\n"+
			"Be extremely specific: use concrete numbers, named protocols, exact formulas, "+
			"code-ready logic. Vague generalities are not acceptable.\n\n"+
			"Output a comprehensive JSON response:\n"+
			`{"role": "%s", "analysis": "...", "recommendations": [...], `+
			`"technical_specs": "...", "implementation_notes": "..."}`,
		role.Name, loop, truncate(t.Prompt, 600), instruction, prior, lessons, role.Name,
	)
}

// hrmSynthesisPrompt builds the final synthesis prompt with the full loop
// history for context; the last loop's outputs are the primary content.
func hrmSynthesisPrompt(t task.Task, plans []CoordinatorPlan, contributions []Contribution, mem *memory.Memory) string {
	lessons := ""
	if l := mem.Lesson("synthesis_protocol"); l != "" {
		lessons = fmt.Sprintf("\n\nSYNTHESIS LESSONS FROM PREVIOUS RUNS:\n%s\n", l)
	}

	byLoop := make(map[int][]Contribution)
	finalLoop := 1
	for _, c := range contributions {
		lp := c.Loop
		if lp == 0 {
			lp = 1
		}
		byLoop[lp] = append(byLoop[lp], c)
		if lp > finalLoop {
			finalLoop = lp
		}
	}
	loopNums := make([]int, 0, len(byLoop))
	for lp := range byLoop {
		loopNums = append(loopNums, lp)
	}
	sort.Ints(loopNums)

	divider := strings.Repeat("=", 40)
	var history strings.Builder
	for _, lp := range loopNums {
		focus := ""
		for _, p := range plans {
			if p.Loop == lp {
				focus = p.RefinementFocus
				break
			}
		}
		fmt.Fprintf(&history, "\n\n%s\nLOOP %d", divider, lp)
		if focus != "" {
			fmt.Fprintf(&history, " (coordinator focus: %s)", focus)
		}
		fmt.Fprintf(&history, "\n%s\n", divider)
		for _, c := range byLoop[lp] {
			fmt.Fprintf(&history, "\n--- %s ---\n%s\n", c.Role, truncate(c.Output, 600))
		}
	}

	var finalParts []string
	for _, c := range byLoop[finalLoop] {
		finalParts = append(finalParts, fmt.Sprintf("=== %s (final) ===\n%s", c.Role, c.Output))
	}
	finalText := strings.Join(finalParts, "\n\n")

	finalAssessment := ""
	if len(plans) > 0 {
		finalAssessment = plans[len(plans)-1].QualityAssessment
	}
	if finalAssessment == "" {
		finalAssessment = "see history below"
	}

	wideDivider := strings.Repeat("=", 50)
	return fmt.Sprintf(
		"You are the Synthesis Agent.\n\n"+
			"Integrate %d specialist outputs into ONE unified response for:\n\n"+
			"TASK:\n%s\n\n"+
			"This HRM ran %d coordinator loop(s). Final coordinator assessment: %s\n\n"+
			"SYNTHESIS RULES:\n"+
			"- Preserve ALL technical specifics (numbers, formulas, protocol names, token addresses)\n"+
			"- Do NOT replace concrete specs with abstract descriptions\n"+
			"- Resolve conflicts by noting both options with tradeoffs\n"+
			"- Structure output with clear sections for each required area\n"+
			"%s\n"+
			"FINAL SPECIALIST OUTPUTS:\n%s\n%s\n%s\n\n"+
			"FULL LOOP HISTORY (for context on refinements):\n%s\n\n"+
			"Produce a single, technically detailed, fully integrated response. "+
			"Include ALL concrete specs. This is the deliverable that gets evaluated.",
		len(byLoop[finalLoop]), t.Prompt, len(plans), finalAssessment, lessons,
		wideDivider, truncate(finalText, 5000), wideDivider, truncate(history.String(), 2000),
	)
}
