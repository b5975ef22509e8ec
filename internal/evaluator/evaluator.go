// Package evaluator implements the blind A/B scoring protocol. A judge model
// from a different family than the generator rates the baseline and the
// organization output under randomized labels across several runs, and the
// aggregate becomes paired statistics.
package evaluator

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"orgbench/internal/llm"
	"orgbench/internal/task"
)

// PlaceholderPValue is reported instead of a real significance test. No test
// is computed; downstream reporting must treat this value as "not measured",
// never as an actual probability.
const PlaceholderPValue = 0.5

// Winner labels for a single evaluation.
const (
	WinnerBaseline     = "baseline"
	WinnerOrganization = "organization"
	WinnerTie          = "tie"
)

// winnerDeadZone is the |delta| band inside which neither side wins.
const winnerDeadZone = 3.0

// evalPromptClip bounds each candidate output inside the judge prompt.
const evalPromptClip = 2000

// judgeMaxTokens is the per-evaluation token budget.
const judgeMaxTokens = 1200

// DimensionScore holds one judged output's five rubric scores, each 0-20.
type DimensionScore struct {
	Coverage         int `json:"coverage"`
	TechnicalDepth   int `json:"technical_depth"`
	Coherence        int `json:"coherence"`
	Implementability int `json:"implementability"`
	EdgeCases        int `json:"edge_cases"`
}

// Total sums the five dimensions. The judge's own stated total is ignored.
func (d DimensionScore) Total() int {
	return d.Coverage + d.TechnicalDepth + d.Coherence + d.Implementability + d.EdgeCases
}

// Result aggregates the paired scores of all evaluation runs.
type Result struct {
	BaselineScores    []int            `json:"baseline_scores"`
	OrgScores         []int            `json:"org_scores"`
	BaselineDimScores []DimensionScore `json:"baseline_dim_scores"`
	OrgDimScores      []DimensionScore `json:"org_dim_scores"`
	BaselineMean      float64          `json:"baseline_mean"`
	OrgMean           float64          `json:"org_mean"`
	BaselineStd       float64          `json:"baseline_std"`
	OrgStd            float64          `json:"org_std"`
	DeltaMean         float64          `json:"delta_mean"`
	DeltaStd          float64          `json:"delta_std"`
	PValue            float64          `json:"p_value"`
	CohensD           float64          `json:"cohens_d"`
	NRuns             int              `json:"n_runs"`
	Winner            string           `json:"winner"`
	Usage             llm.UsageSummary `json:"usage"`
}

// Evaluator runs the blind protocol with a judge client.
type Evaluator struct {
	judge llm.Client
	runs  int
	rng   *rand.Rand
	log   *zap.Logger
}

// Options tunes evaluator construction.
type Options struct {
	// Runs is the number of independent judge calls. Defaults to 3.
	Runs int
	// Rand supplies label randomization. Defaults to a time-seeded source;
	// tests inject a fixed seed.
	Rand   *rand.Rand
	Logger *zap.Logger
}

// New builds an evaluator.
func New(judge llm.Client, opts Options) (*Evaluator, error) {
	if judge == nil {
		return nil, fmt.Errorf("evaluator: judge client is required")
	}
	runs := opts.Runs
	if runs <= 0 {
		runs = 3
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{judge: judge, runs: runs, rng: rng, log: log}, nil
}

// Evaluate runs the blind protocol: each run independently shuffles which
// output is labeled A, asks the judge to score both, and maps the scores back
// to their true identities before aggregation.
func (e *Evaluator) Evaluate(ctx context.Context, t task.Task, baselineOutput, orgOutput string) (*Result, error) {
	res := &Result{PValue: 1.0, Winner: WinnerTie}

	for i := 0; i < e.runs; i++ {
		baselineIsA := e.rng.Float64() > 0.5
		a, b := baselineOutput, orgOutput
		if !baselineIsA {
			a, b = orgOutput, baselineOutput
		}

		comp, err := e.judge.Complete(ctx, buildEvalPrompt(a, b, t), judgeMaxTokens)
		if err != nil {
			return nil, fmt.Errorf("judge run %d/%d: %w", i+1, e.runs, err)
		}
		res.Usage.Add(comp.Usage)

		aScores := parseScores(comp.Text, "A")
		bScores := parseScores(comp.Text, "B")

		baseDim, orgDim := aScores, bScores
		if !baselineIsA {
			baseDim, orgDim = bScores, aScores
		}

		res.BaselineScores = append(res.BaselineScores, baseDim.Total())
		res.OrgScores = append(res.OrgScores, orgDim.Total())
		res.BaselineDimScores = append(res.BaselineDimScores, baseDim)
		res.OrgDimScores = append(res.OrgDimScores, orgDim)

		e.log.Debug("judge run scored",
			zap.Int("run", i+1),
			zap.Bool("baseline_is_a", baselineIsA),
			zap.Int("baseline", baseDim.Total()),
			zap.Int("org", orgDim.Total()))
	}

	res.computeStats()
	return res, nil
}

func buildEvalPrompt(outputA, outputB string, t task.Task) string {
	var rubric strings.Builder
	for i, dim := range task.StandardRubric {
		label := strings.ToUpper(strings.ReplaceAll(dim.Name, "_", " "))
		fmt.Fprintf(&rubric, "%d. %s (0-20): %s\n", i+1, label, dim.Description)
	}

	return fmt.Sprintf(
		"You are an expert technical evaluator. Rate two responses to this task:\n\n"+
			"TASK: %s\n\n"+
			"RUBRIC (score each 0-20, total 100):\n%s\n"+
			"OUTPUT A:\n%s\n\n"+
			"OUTPUT B:\n%s\n\n"+
			"Evaluate each output independently against the rubric. Think through each dimension carefully.\n"+
			"Then provide your scores in this EXACT format at the END of your response:\n\n"+
			"A_coverage: [0-20]\n"+
			"A_technical_depth: [0-20]\n"+
			"A_coherence: [0-20]\n"+
			"A_implementability: [0-20]\n"+
			"A_edge_cases: [0-20]\n"+
			"A_total: [0-100]\n"+
			"B_coverage: [0-20]\n"+
			"B_technical_depth: [0-20]\n"+
			"B_coherence: [0-20]\n"+
			"B_implementability: [0-20]\n"+
			"B_edge_cases: [0-20]\n"+
			"B_total: [0-100]",
		t.Prompt, rubric.String(), clip(outputA, evalPromptClip), clip(outputB, evalPromptClip),
	)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// parseScores scrapes "PREFIX_dimension: N" labels from judge output. The
// judge is told to put final scores at the end, so the LAST match wins over
// any numbers mentioned during reasoning. Missing labels score 0; parsed
// values are clamped to the 0-20 dimension range.
func parseScores(text, prefix string) DimensionScore {
	extract := func(key string) int {
		pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(prefix) + `_` + regexp.QuoteMeta(key) + `:\s*(\d+)`)
		matches := pattern.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			return 0
		}
		v, err := strconv.Atoi(matches[len(matches)-1][1])
		if err != nil {
			return 0
		}
		if v < 0 {
			return 0
		}
		if v > 20 {
			return 20
		}
		return v
	}

	return DimensionScore{
		Coverage:         extract("coverage"),
		TechnicalDepth:   extract("technical_depth"),
		Coherence:        extract("coherence"),
		Implementability: extract("implementability"),
		EdgeCases:        extract("edge_cases"),
	}
}
