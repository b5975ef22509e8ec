package evaluator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"orgbench/internal/llm"
	"orgbench/internal/task"
)

type mockJudge struct {
	respond func(call int, prompt string) (string, error)
	calls   int
}

func (m *mockJudge) Complete(_ context.Context, prompt string, _ int) (llm.Completion, error) {
	text, err := m.respond(m.calls, prompt)
	m.calls++
	if err != nil {
		return llm.Completion{}, err
	}
	return llm.Completion{Text: text}, nil
}

func (m *mockJudge) Model() string { return "mock-judge" }

func scoreBlock(prefix string, v int) string {
	var b strings.Builder
	for _, dim := range []string{"coverage", "technical_depth", "coherence", "implementability", "edge_cases"} {
		fmt.Fprintf(&b, "%s_%s: %d\n", prefix, dim, v)
	}
	fmt.Fprintf(&b, "%s_total: %d\n", prefix, v*5)
	return b.String()
}

func evalTask() task.Task {
	return task.Task{ID: "t", Name: "T", Prompt: "design it", Rubric: task.StandardRubric}
}

func TestParseScoresLastMatchWins(t *testing.T) {
	text := "Considering A_coverage: 5 initially, but on reflection...\n" +
		"A_coverage: 18\nA_technical_depth: 12\nA_coherence: 15\nA_implementability: 10\nA_edge_cases: 7\n"
	got := parseScores(text, "A")
	if got.Coverage != 18 {
		t.Errorf("coverage = %d, want last match 18", got.Coverage)
	}
	if got.Total() != 62 {
		t.Errorf("total = %d, want 62", got.Total())
	}
}

func TestParseScoresClampAndMissing(t *testing.T) {
	text := "B_coverage: 25\nB_technical_depth: 20\nb_coherence: 9"
	got := parseScores(text, "B")
	if got.Coverage != 20 {
		t.Errorf("coverage = %d, want clamped 20", got.Coverage)
	}
	if got.Coherence != 9 {
		t.Errorf("coherence = %d, case-insensitive match expected", got.Coherence)
	}
	if got.Implementability != 0 || got.EdgeCases != 0 {
		t.Errorf("missing dims should be 0: %+v", got)
	}
}

func TestParseScoresIgnoresStatedTotal(t *testing.T) {
	text := "A_coverage: 10\nA_technical_depth: 10\nA_coherence: 10\nA_implementability: 10\nA_edge_cases: 10\nA_total: 99\n"
	got := parseScores(text, "A")
	if got.Total() != 50 {
		t.Errorf("total = %d, want sum of dimensions 50, not the judge's stated 99", got.Total())
	}
}

// The judge always gives A 14s and B 17s. Blind mapping must route the scores
// to the correct identity no matter which side was labeled A.
func TestEvaluateBlindMapping(t *testing.T) {
	judge := &mockJudge{respond: func(_ int, prompt string) (string, error) {
		return scoreBlock("A", 14) + scoreBlock("B", 17), nil
	}}

	e, err := New(judge, Options{Runs: 20, Rand: rand.New(rand.NewSource(7))})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := e.Evaluate(context.Background(), evalTask(), "baseline text", "org text")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if res.NRuns != 20 {
		t.Fatalf("n_runs = %d", res.NRuns)
	}
	// Whoever is labeled A gets 70, B gets 85. With randomized labels both
	// identities should land on both values across 20 runs.
	sawBase70, sawBase85 := false, false
	for i := range res.BaselineScores {
		switch res.BaselineScores[i] {
		case 70:
			sawBase70 = true
			if res.OrgScores[i] != 85 {
				t.Errorf("run %d: pair (70,%d), want (70,85)", i, res.OrgScores[i])
			}
		case 85:
			sawBase85 = true
			if res.OrgScores[i] != 70 {
				t.Errorf("run %d: pair (85,%d), want (85,70)", i, res.OrgScores[i])
			}
		default:
			t.Errorf("run %d: unexpected baseline score %d", i, res.BaselineScores[i])
		}
	}
	if !sawBase70 || !sawBase85 {
		t.Error("label randomization never flipped across 20 runs")
	}
}

func TestEvaluateStats(t *testing.T) {
	// Scripted scores: baseline 68,70,72 and org 82,85,88 regardless of label
	// side. Force baseline=A every run by checking the prompt content.
	basePerRun := []int{68, 70, 72}
	orgPerRun := []int{82, 85, 88}

	judge := &mockJudge{}
	judge.respond = func(call int, prompt string) (string, error) {
		base := basePerRun[call]
		org := orgPerRun[call]
		// Baseline text appears before org text iff baseline was labeled A.
		baseIsA := strings.Index(prompt, "the baseline output") < strings.Index(prompt, "the organization output")
		var b strings.Builder
		writeDims := func(prefix string, total int) {
			// distribute total over 5 dims: 4 dims of total/5, remainder on coverage
			per := total / 5
			rem := total - per*5
			fmt.Fprintf(&b, "%s_coverage: %d\n", prefix, per+rem)
			for _, dim := range []string{"technical_depth", "coherence", "implementability", "edge_cases"} {
				fmt.Fprintf(&b, "%s_%s: %d\n", prefix, dim, per)
			}
		}
		if baseIsA {
			writeDims("A", base)
			writeDims("B", org)
		} else {
			writeDims("A", org)
			writeDims("B", base)
		}
		return b.String(), nil
	}

	e, err := New(judge, Options{Runs: 3, Rand: rand.New(rand.NewSource(42))})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := e.Evaluate(context.Background(), evalTask(), "the baseline output", "the organization output")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	approx := func(got, want float64) bool { return math.Abs(got-want) < 1e-6 }

	if !approx(res.BaselineMean, 70) || !approx(res.OrgMean, 85) {
		t.Errorf("means = %.2f/%.2f, want 70/85", res.BaselineMean, res.OrgMean)
	}
	if !approx(res.BaselineStd, 2) || !approx(res.OrgStd, 3) {
		t.Errorf("stds = %.2f/%.2f, want 2/3", res.BaselineStd, res.OrgStd)
	}
	if !approx(res.DeltaMean, 15) {
		t.Errorf("delta = %.2f, want 15", res.DeltaMean)
	}
	wantD := 15 / math.Sqrt((4.0+9.0)/2)
	if math.Abs(res.CohensD-wantD) > 1e-6 {
		t.Errorf("d = %.4f, want %.4f", res.CohensD, wantD)
	}
	if res.PValue != PlaceholderPValue {
		t.Errorf("p = %v, want placeholder %v", res.PValue, PlaceholderPValue)
	}
	if res.Winner != WinnerOrganization {
		t.Errorf("winner = %q", res.Winner)
	}
}

func TestWinnerDeadZone(t *testing.T) {
	// The boundaries are strict: exactly +-3 is still a tie.
	tests := []struct {
		delta  int
		winner string
	}{
		{3, WinnerTie},
		{4, WinnerOrganization},
		{-3, WinnerTie},
		{-4, WinnerBaseline},
		{0, WinnerTie},
	}
	for _, tt := range tests {
		r := &Result{
			BaselineScores: []int{50},
			OrgScores:      []int{50 + tt.delta},
		}
		r.computeStats()
		if r.Winner != tt.winner {
			t.Errorf("delta %d: winner = %q, want %q", tt.delta, r.Winner, tt.winner)
		}
	}
}

func TestComputeStatsEdgeCases(t *testing.T) {
	// n = 0: nothing computed, p-value stays at its initial value.
	empty := &Result{PValue: 1.0, Winner: WinnerTie}
	empty.computeStats()
	if empty.NRuns != 0 || empty.PValue != 1.0 || empty.Winner != WinnerTie {
		t.Errorf("empty result mutated: %+v", empty)
	}

	// n = 1: stds are 0, Cohen's d uses the pooled-std zero guard.
	one := &Result{BaselineScores: []int{70}, OrgScores: []int{80}}
	one.computeStats()
	if one.BaselineStd != 0 || one.OrgStd != 0 || one.DeltaStd != 0 {
		t.Errorf("single-run stds should be 0: %+v", one)
	}
	if one.CohensD != 10 {
		t.Errorf("d = %.2f, want delta/1 = 10 with zero-std guard", one.CohensD)
	}
	if one.Winner != WinnerOrganization {
		t.Errorf("winner = %q", one.Winner)
	}
}

func TestIdenticalOutputsScoreAsTie(t *testing.T) {
	r := &Result{
		BaselineScores: []int{75, 75, 75},
		OrgScores:      []int{75, 75, 75},
	}
	r.computeStats()
	if r.DeltaMean != 0 || r.Winner != WinnerTie || r.CohensD != 0 {
		t.Errorf("identical outputs: %+v", r)
	}
}

func TestFormatSummary(t *testing.T) {
	r := &Result{
		BaselineScores: []int{68, 70, 72},
		OrgScores:      []int{82, 85, 88},
	}
	r.computeStats()
	s := FormatSummary(r)
	if !strings.HasPrefix(s, "MA WINS") {
		t.Errorf("summary = %q", s)
	}
	// Placeholder p-value never earns significance stars.
	if strings.Contains(s, "MA WINS*") {
		t.Errorf("placeholder p-value must not produce stars: %q", s)
	}
	for _, want := range []string{"SA=70.0", "MA=85.0", "delta=+15.0", "p=0.500"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q: %q", want, s)
		}
	}
}

func TestEvaluatePropagatesJudgeError(t *testing.T) {
	judge := &mockJudge{respond: func(int, string) (string, error) {
		return "", fmt.Errorf("judge offline")
	}}
	e, _ := New(judge, Options{Runs: 3})
	if _, err := e.Evaluate(context.Background(), evalTask(), "a", "b"); err == nil {
		t.Fatal("expected judge error to propagate")
	}
}

func TestEvalPromptClipsOutputs(t *testing.T) {
	var captured string
	judge := &mockJudge{respond: func(_ int, prompt string) (string, error) {
		captured = prompt
		return scoreBlock("A", 10) + scoreBlock("B", 10), nil
	}}
	e, _ := New(judge, Options{Runs: 1})

	long := strings.Repeat("x", 5000)
	if _, err := e.Evaluate(context.Background(), evalTask(), long, long); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if strings.Contains(captured, strings.Repeat("x", 2001)) {
		t.Error("candidate outputs not clipped in judge prompt")
	}
}
