package topology

import (
	"fmt"
	"strings"

	"orgbench/internal/memory"
	"orgbench/internal/task"
)

// Per-call token budgets. Specialists get room for full technical drafts,
// critiques are deliberately tight, synthesis gets the largest budget so it
// never has to drop specialist content.
const (
	starSpecialistTokens     = 2500
	pipelineSpecialistTokens = 3000
	draftTokens              = 2000
	critiqueTokens           = 500
	coordinatorTokens        = 1000
	hrmSpecialistTokens      = 2500
	decomposeTokens          = 800
	decomposedRoleTokens     = 2500
	synthesisTokens          = 4000
)

// truncate clips s to at most n bytes. Prompt assembly clips inputs at fixed
// budgets so one verbose specialist cannot crowd out the rest.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func specialistPrompt(role task.SpecialistRole, mem *memory.Memory, priorOutput string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s for a 5-agent AI organization. Design the %s", role.Name, role.Instruction)

	if lessons := mem.Lesson(role.MemoryKey); lessons != "" {
		fmt.Fprintf(&b, "\n\nLESSONS FROM PREVIOUS RUNS:\n%s\nApply these lessons.\n", lessons)
	}
	if priorOutput != "" {
		fmt.Fprintf(&b, "\n\nPREVIOUS SPECIALIST OUTPUT TO REFINE:\n%s\n\nBuild on this, correct errors, and add your specialized perspective.\n", truncate(priorOutput, 2000))
	}

	b.WriteString("\nBe extremely specific with technical details. Use concrete engineering specs, not abstract metaphors.")
	return b.String()
}

func synthesisPrompt(t task.Task, contributions []Contribution, mem *memory.Memory) string {
	parts := make([]string, len(contributions))
	for i, c := range contributions {
		parts[i] = fmt.Sprintf("=== %s ===\n%s", c.Role, c.Output)
	}
	specialistsText := strings.Join(parts, "\n\n")

	lessons := ""
	if l := mem.Lesson("synthesis_protocol"); l != "" {
		lessons = fmt.Sprintf("\n\nLESSONS ON SYNTHESIS FROM PREVIOUS RUNS:\n%s\n", l)
	}

	divider := strings.Repeat("=", 40)
	return fmt.Sprintf(
		"You are the Synthesis Agent. Integrate these %d specialist outputs into ONE unified response for this task:\n\n%s\n\n"+
			"CRITICAL: Preserve ALL technical specifics (numbers, schemas, code snippets, protocol names, timing values). "+
			"Do NOT replace concrete specs with abstract metaphors. "+
			"If specialists conflict, note both options with tradeoffs.\n%s\n"+
			"SPECIALIST INPUTS:\n%s\n%s\n%s\n\n"+
			"Produce a single coherent, technically detailed response. "+
			"Include ALL concrete specs from the specialists. Structure with clear sections for each required area.",
		len(contributions), t.Prompt, lessons, divider, specialistsText, divider,
	)
}
