// Package task defines the benchmark task catalog: immutable problem
// descriptions, the specialist roles a topology staffs, and the rubric the
// blind evaluator scores against. Tasks are read-only input to the learning
// loop; nothing in the harness mutates them.
package task

// RubricDimension is one named scoring axis, worth 0-20 points.
type RubricDimension struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SpecialistRole is one perspective executed by a model call within a
// topology. MemoryKey is the lesson-store key consulted when building this
// role's prompt.
type SpecialistRole struct {
	Name        string `json:"name"`
	MemoryKey   string `json:"memory_key"`
	Instruction string `json:"instruction"`
}

// Task is an immutable problem definition.
type Task struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Prompt string            `json:"prompt"`
	Roles  []SpecialistRole  `json:"roles"`
	Rubric []RubricDimension `json:"rubric"`
}

// StandardRubric is the five-dimension rubric shared by every task unless the
// task carries a domain-specific one. The evaluator's score labels always use
// these five dimension names regardless of which rubric is attached; a
// task-specific rubric only changes the descriptions shown to the judge.
var StandardRubric = []RubricDimension{
	{Name: "coverage", Description: "Addresses ALL required areas completely"},
	{Name: "technical_depth", Description: "Specific mechanisms, numbers, schemas, named protocols"},
	{Name: "coherence", Description: "Logically consistent, well-structured, no contradictions"},
	{Name: "implementability", Description: "A dev team could actually build this from the spec"},
	{Name: "edge_cases", Description: "Handles failure modes, race conditions, degraded states"},
}
