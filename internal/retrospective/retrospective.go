// Package retrospective turns one learning iteration's outcome into a
// structured FixProposal and new memory lessons. Extraction is tolerant:
// a retrospective that fails to parse yields empty fields, never an error,
// because a lost lesson must not abort the learning loop.
package retrospective

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"orgbench/internal/evaluator"
	"orgbench/internal/llm"
	"orgbench/internal/memory"
	"orgbench/internal/task"
)

const retroMaxTokens = 1000

// FixProposal is the structured outcome of one retrospective.
type FixProposal struct {
	FailureMode     string            `json:"failure_mode"`
	RootCause       string            `json:"root_cause"`
	ProtocolFix     string            `json:"protocol_fix"`
	DomainGrounding string            `json:"domain_grounding"`
	Lessons         map[string]string `json:"lessons"`
}

// Engine runs retrospectives with the generator client.
type Engine struct {
	gen llm.Client
	log *zap.Logger
}

// NewEngine builds a retrospective engine.
func NewEngine(gen llm.Client, logger *zap.Logger) (*Engine, error) {
	if gen == nil {
		return nil, fmt.Errorf("retrospective: generator client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{gen: gen, log: logger}, nil
}

// Run analyzes why the organization under- or over-performed on this
// iteration, merges the extracted lessons into memory under role memory keys,
// and returns the proposal. Only the model call can fail; parse problems
// degrade to empty fields.
func (e *Engine) Run(
	ctx context.Context,
	t task.Task,
	baselineOutput, orgOutput string,
	eval *evaluator.Result,
	topologyName string,
	iteration int,
	mem *memory.Memory,
) (FixProposal, error) {
	prompt := buildPrompt(t, baselineOutput, orgOutput, eval, topologyName, iteration, mem)

	comp, err := e.gen.Complete(ctx, prompt, retroMaxTokens)
	if err != nil {
		return FixProposal{}, fmt.Errorf("retrospective iteration %d: %w", iteration, err)
	}

	proposal := parseProposal(comp.Text, t)
	if proposal.FailureMode == "Unknown" {
		e.log.Warn("retrospective output did not parse cleanly", zap.Int("iteration", iteration))
	} else {
		e.log.Debug("retrospective parsed",
			zap.Int("iteration", iteration),
			zap.String("failure_mode", proposal.FailureMode),
			zap.Int("lessons", len(proposal.Lessons)))
	}

	mem.Merge(proposal.Lessons, iteration)
	return proposal, nil
}

func buildPrompt(t task.Task, baselineOutput, orgOutput string, eval *evaluator.Result, topologyName string, iteration int, mem *memory.Memory) string {
	memText := "None yet."
	if mem != nil && mem.Len() > 0 {
		if data, err := json.MarshalIndent(mem.Snapshot(), "", "  "); err == nil {
			memText = clip(string(data), 800)
		}
	}

	performance := "only marginally higher"
	if eval.DeltaMean < 0 {
		performance = "lower"
	}

	var roleBullets strings.Builder
	for _, role := range t.Roles {
		fmt.Fprintf(&roleBullets, "- %s: [lesson]\n", role.Name)
	}
	roleBullets.WriteString("- synthesis_protocol: [lesson for synthesizer]")

	return fmt.Sprintf(
		"BENCHMARK RETROSPECTIVE - Iteration %d\n"+
			"Task: %s\n"+
			"Topology: %s\n"+
			"SA score: %.1f ± %.1f\n"+
			"MA score: %.1f ± %.1f\n"+
			"Delta: %+.1f\n"+
			"Winner: %s\n\n"+
			"TASK: %s\n\n"+
			"SINGLE AGENT OUTPUT (truncated):\n%s\n\n"+
			"MULTI-AGENT OUTPUT (truncated):\n%s\n\n"+
			"EXISTING ORG MEMORY (what was already tried):\n%s\n\n"+
			"You are the Retrospective Agent. Analyze this benchmark run with precision.\n\n"+
			"Answer these questions concisely:\n"+
			"1. FAILURE_MODE: What specific weakness caused MA to score %s than SA?\n"+
			"2. ROOT_CAUSE: What is the underlying reason? (e.g., domain drift, synthesis loss, specialist overlap, abstraction instead of specifics)\n"+
			"3. PROTOCOL_FIX: What ONE concrete change to the specialist prompts or synthesis will fix this? Be very specific.\n"+
			"4. DOMAIN_GROUNDING: What phrase should be added to specialist prompts to prevent domain drift or bias?\n"+
			"5. MEMORY_LESSONS: For each specialist role, what is the ONE most important lesson from this run? (format: \"role_name: lesson\")\n\n"+
			"Output EXACTLY this format:\n"+
			"FAILURE_MODE: [one sentence]\n"+
			"ROOT_CAUSE: [one sentence]\n"+
			"PROTOCOL_FIX: [one or two sentences, very concrete]\n"+
			"DOMAIN_GROUNDING: [phrase to add to prompts]\n"+
			"MEMORY_LESSONS:\n%s",
		iteration, t.Name, topologyName,
		eval.BaselineMean, eval.BaselineStd,
		eval.OrgMean, eval.OrgStd,
		eval.DeltaMean, strings.ToUpper(eval.Winner),
		clip(t.Prompt, 500),
		clip(baselineOutput, 1200),
		clip(orgOutput, 1200),
		memText,
		performance,
		roleBullets.String(),
	)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

const fieldPattern = `%s:\s*(.+?)(?:\n[A-Z_]+:|\z)`

// parseProposal recovers the labeled fields and the lesson bullets. Lesson
// keys are mapped from role names to the role's memory key so the lesson is
// found again by the specialist prompt builder; keys that match no role
// (synthesis_protocol and any invented ones) pass through normalized.
func parseProposal(text string, t task.Task) FixProposal {
	p := FixProposal{
		FailureMode:     orUnknown(extractField(text, "FAILURE_MODE")),
		RootCause:       orUnknown(extractField(text, "ROOT_CAUSE")),
		ProtocolFix:     orUnknown(extractField(text, "PROTOCOL_FIX")),
		DomainGrounding: extractField(text, "DOMAIN_GROUNDING"),
		Lessons:         map[string]string{},
	}

	lessonsSection := ""
	if idx := strings.Index(text, "MEMORY_LESSONS:"); idx >= 0 {
		lessonsSection = text[idx+len("MEMORY_LESSONS:"):]
	}
	for rawKey, lesson := range parseLessonBullets(lessonsSection) {
		key := normalizeKey(rawKey)
		lesson = strings.TrimSpace(lesson)
		if key == "" || lesson == "" {
			continue
		}
		if memKey := roleMemoryKey(t, key); memKey != "" {
			key = memKey
		}
		p.Lessons[key] = lesson
	}
	return p
}

// parseLessonBullets scans "- Role: lesson" bullets. Non-bullet lines extend
// the previous bullet's lesson text; bullets without a colon are dropped.
func parseLessonBullets(section string) map[string]string {
	lessons := map[string]string{}
	lastKey := ""
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "-") {
			body := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
			key, val, ok := strings.Cut(body, ":")
			if !ok || strings.TrimSpace(key) == "" {
				lastKey = ""
				continue
			}
			lastKey = strings.TrimSpace(key)
			lessons[lastKey] = strings.TrimSpace(val)
		} else if lastKey != "" {
			lessons[lastKey] = lessons[lastKey] + " " + trimmed
		}
	}
	return lessons
}

func extractField(text, field string) string {
	re := regexp.MustCompile(`(?is)` + fmt.Sprintf(fieldPattern, regexp.QuoteMeta(field)))
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func normalizeKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// roleMemoryKey maps a normalized role name to that role's memory key, or ""
// when no role matches.
func roleMemoryKey(t task.Task, normalized string) string {
	for _, role := range t.Roles {
		if normalizeKey(role.Name) == normalized {
			return role.MemoryKey
		}
	}
	return ""
}
