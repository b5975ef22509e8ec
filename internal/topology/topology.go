// Package topology implements the five organizational structures the
// benchmark compares. Every topology consumes the same generator client and
// lesson memory and produces a Result with two independent clocks: TotalTime
// (sum of all call latencies) and ParallelTime (critical path if independent
// calls had run concurrently).
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

// Kind identifies a topology. The set is closed; ParseKind rejects anything
// else.
type Kind string

const (
	Star          Kind = "star"
	Pipeline      Kind = "pipeline"
	PeerReview    Kind = "peer_review"
	HRM           Kind = "hrm"
	SelfDecompose Kind = "self_decompose"
)

// Kinds returns all topology kinds in canonical order.
func Kinds() []Kind {
	return []Kind{Star, Pipeline, PeerReview, HRM, SelfDecompose}
}

// ParseKind validates a topology name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown topology %q", s)
}

// Contribution is one model call's output within a topology run, recorded in
// execution order.
type Contribution struct {
	Role        string        `json:"role"`
	Focus       string        `json:"focus,omitempty"`
	Phase       string        `json:"phase,omitempty"`
	Loop        int           `json:"loop,omitempty"`
	Instruction string        `json:"instruction,omitempty"`
	Output      string        `json:"output"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// CoordinatorPlan records one high-level coordinator decision in an HRM run.
type CoordinatorPlan struct {
	Loop              int           `json:"loop"`
	Status            string        `json:"status"`
	RefinementFocus   string        `json:"refinement_focus"`
	QualityAssessment string        `json:"quality_assessment"`
	Elapsed           time.Duration `json:"elapsed_ns"`
}

// HRMMetadata carries HRM loop history on the result.
type HRMMetadata struct {
	LoopCount          int               `json:"loop_count"`
	CoordinatorPlans   []CoordinatorPlan `json:"coordinator_plans"`
	MaxLoopsConfigured int               `json:"max_loops_configured"`
}

// RoleSpec is a self-invented specialist role from the self-decompose
// topology.
type RoleSpec struct {
	Name  string `json:"name"`
	Focus string `json:"focus"`
}

// Result is the outcome of one topology run.
type Result struct {
	Kind            Kind             `json:"topology"`
	FinalOutput     string           `json:"final_output"`
	Contributions   []Contribution   `json:"contributions"`
	TotalTime       time.Duration    `json:"total_time_ns"`
	ParallelTime    time.Duration    `json:"parallel_time_ns"`
	Usage           llm.UsageSummary `json:"usage"`
	HRM             *HRMMetadata     `json:"hrm,omitempty"`
	DecomposedRoles []RoleSpec       `json:"decomposed_roles,omitempty"`
}

// Runner executes a task under one organizational structure.
type Runner interface {
	Kind() Kind
	Run(ctx context.Context, t task.Task, mem *memory.Memory) (*Result, error)
}

// Options tunes runner construction.
type Options struct {
	// MaxLoops caps HRM coordinator iterations. Defaults to 3.
	MaxLoops int
	Logger   *zap.Logger
}

// DefaultMaxLoops is the HRM loop cap when Options leaves it unset.
const DefaultMaxLoops = 3

// New builds the runner for a kind.
func New(kind Kind, gen llm.Client, opts Options) (Runner, error) {
	if gen == nil {
		return nil, fmt.Errorf("topology %s: generator client is required", kind)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxLoops := opts.MaxLoops
	if maxLoops <= 0 {
		maxLoops = DefaultMaxLoops
	}

	switch kind {
	case Star:
		return &starRunner{gen: gen, log: log}, nil
	case Pipeline:
		return &pipelineRunner{gen: gen, log: log}, nil
	case PeerReview:
		return &peerReviewRunner{gen: gen, log: log}, nil
	case HRM:
		return &hrmRunner{gen: gen, log: log, maxLoops: maxLoops}, nil
	case SelfDecompose:
		return &selfDecomposeRunner{gen: gen, log: log}, nil
	default:
		return nil, fmt.Errorf("unknown topology %q", kind)
	}
}
