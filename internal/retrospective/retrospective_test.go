package retrospective

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"orgbench/internal/evaluator"
	"orgbench/internal/llm"
	"orgbench/internal/memory"
	"orgbench/internal/task"
)

type mockGen struct {
	text    string
	err     error
	prompts []string
}

func (m *mockGen) Complete(_ context.Context, prompt string, _ int) (llm.Completion, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return llm.Completion{}, m.err
	}
	return llm.Completion{Text: m.text}, nil
}

func (m *mockGen) Model() string { return "mock" }

func retroTask() task.Task {
	return task.Task{
		ID:     "t",
		Name:   "Test Task",
		Prompt: "design the thing",
		Roles: []task.SpecialistRole{
			{Name: "Systems Architect", MemoryKey: "failure detection heartbeat protocols", Instruction: "detect failures"},
			{Name: "Network Analyst", MemoryKey: "post-incident learning knowledge capture", Instruction: "capture learning"},
		},
	}
}

func losingEval() *evaluator.Result {
	return &evaluator.Result{
		BaselineMean: 80, BaselineStd: 2,
		OrgMean: 72, OrgStd: 3,
		DeltaMean: -8, Winner: evaluator.WinnerBaseline,
	}
}

const wellFormed = `FAILURE_MODE: Synthesis dropped the concrete timeout values.
ROOT_CAUSE: Abstraction instead of specifics during integration.
PROTOCOL_FIX: Require synthesis to quote every numeric value verbatim.
DOMAIN_GROUNDING: This is a distributed agent system, not cybersecurity.
MEMORY_LESSONS:
- Systems Architect: always state heartbeat intervals in milliseconds
- Network Analyst: define the metric schema before writing prose
- synthesis_protocol: quote specialist numbers exactly`

func TestRunParsesAndMergesLessons(t *testing.T) {
	gen := &mockGen{text: wellFormed}
	e, err := NewEngine(gen, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	mem := memory.New()
	p, err := e.Run(context.Background(), retroTask(), "sa out", "ma out", losingEval(), "star", 2, mem)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if p.FailureMode != "Synthesis dropped the concrete timeout values." {
		t.Errorf("failure mode = %q", p.FailureMode)
	}
	if p.RootCause == "" || p.ProtocolFix == "" || p.DomainGrounding == "" {
		t.Errorf("missing fields: %+v", p)
	}

	// Role-name lessons land under the role's memory key so specialist
	// prompts will retrieve them.
	if got := mem.Lesson("failure detection heartbeat protocols"); got != "[Iter 2] always state heartbeat intervals in milliseconds" {
		t.Errorf("architect lesson = %q", got)
	}
	if got := mem.Lesson("synthesis_protocol"); got != "[Iter 2] quote specialist numbers exactly" {
		t.Errorf("synthesis lesson = %q", got)
	}
	if mem.Len() != 3 {
		t.Errorf("memory keys = %d, want 3", mem.Len())
	}
}

func TestRunPromptContents(t *testing.T) {
	gen := &mockGen{text: wellFormed}
	e, _ := NewEngine(gen, nil)

	mem := memory.New()
	mem.Append("synthesis_protocol", "earlier lesson", 1)
	if _, err := e.Run(context.Background(), retroTask(), "sa out", "ma out", losingEval(), "hrm", 3, mem); err != nil {
		t.Fatalf("Run: %v", err)
	}

	prompt := gen.prompts[0]
	for _, want := range []string{
		"Iteration 3",
		"Topology: hrm",
		"Delta: -8.0",
		"Winner: BASELINE",
		"score lower than SA",
		"earlier lesson",
		"- Systems Architect: [lesson]",
		"- synthesis_protocol: [lesson for synthesizer]",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestRunMalformedOutputDegradesGracefully(t *testing.T) {
	gen := &mockGen{text: "the model rambled about nothing structured"}
	e, _ := NewEngine(gen, nil)

	mem := memory.New()
	p, err := e.Run(context.Background(), retroTask(), "sa", "ma", losingEval(), "star", 1, mem)
	if err != nil {
		t.Fatalf("malformed output must not error: %v", err)
	}
	if p.FailureMode != "Unknown" || p.RootCause != "Unknown" || p.ProtocolFix != "Unknown" {
		t.Errorf("fields should default to Unknown: %+v", p)
	}
	if len(p.Lessons) != 0 || mem.Len() != 0 {
		t.Errorf("no lessons expected from garbage: %+v", p.Lessons)
	}
}

func TestRunPropagatesClientError(t *testing.T) {
	gen := &mockGen{err: fmt.Errorf("connection reset")}
	e, _ := NewEngine(gen, nil)
	if _, err := e.Run(context.Background(), retroTask(), "sa", "ma", losingEval(), "star", 1, memory.New()); err == nil {
		t.Fatal("expected client error to propagate")
	}
}

func TestExtractFieldStopsAtNextLabel(t *testing.T) {
	text := "FAILURE_MODE: first line\ncontinues here\nROOT_CAUSE: the cause"
	if got := extractField(text, "FAILURE_MODE"); got != "first line\ncontinues here" {
		t.Errorf("got %q", got)
	}
	if got := extractField(text, "ROOT_CAUSE"); got != "the cause" {
		t.Errorf("got %q", got)
	}
	if got := extractField(text, "PROTOCOL_FIX"); got != "" {
		t.Errorf("missing field should be empty, got %q", got)
	}
}

func TestParseLessonBullets(t *testing.T) {
	section := `
- Role One: lesson one
  spanning two lines
- Role Two: lesson two
- : dropped
- no colon bullet
`
	got := parseLessonBullets(section)
	if got["Role One"] != "lesson one spanning two lines" {
		t.Errorf("multi-line lesson = %q", got["Role One"])
	}
	if got["Role Two"] != "lesson two" {
		t.Errorf("lesson two = %q", got["Role Two"])
	}
	if len(got) != 2 {
		t.Errorf("lessons = %v", got)
	}
}

func TestLessonsAppendAcrossIterations(t *testing.T) {
	mem := memory.New()
	e, _ := NewEngine(&mockGen{text: wellFormed}, nil)

	for iter := 1; iter <= 2; iter++ {
		if _, err := e.Run(context.Background(), retroTask(), "sa", "ma", losingEval(), "star", iter, mem); err != nil {
			t.Fatalf("Run iter %d: %v", iter, err)
		}
	}

	got := mem.Lesson("synthesis_protocol")
	if !strings.Contains(got, "[Iter 1]") || !strings.Contains(got, "[Iter 2]") {
		t.Errorf("expected both iteration tags, got %q", got)
	}
	if strings.Index(got, "[Iter 1]") > strings.Index(got, "[Iter 2]") {
		t.Error("lessons out of chronological order")
	}
}
