package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgbench/internal/learning"
	"orgbench/internal/llm"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult() *learning.Result {
	return &learning.Result{
		TaskID:             "ai_incident_response",
		Topology:           "hrm",
		FinalDelta:         12.3,
		FinalBaselineScore: 70.0,
		FinalOrgScore:      82.3,
		ConvergenceIter:    2,
		LearningRate:       4.5,
		Converged:          true,
		Memory:             map[string]string{"synthesis_protocol": "[Iter 1] keep numbers"},
		TotalTime:          90 * time.Second,
		Iterations: []learning.IterationRecord{
			{
				Iteration: 1, Topology: "hrm",
				BaselineScore: 70, OrgScore: 74, Delta: 4,
				PValue: 0.5, CohensD: 1.2, BaselineStd: 2, OrgStd: 3,
				FailureMode: "synthesis loss", ProtocolFix: "quote numbers",
				Usage:     llm.UsageSummary{Calls: 9, PromptTokens: 900, CompletionTokens: 400},
				Timestamp: "2026-08-24T10:00:00Z",
			},
			{
				Iteration: 2, Topology: "hrm",
				BaselineScore: 70, OrgScore: 82.3, Delta: 12.3,
				PValue: 0.5, CohensD: 4.8, BaselineStd: 2, OrgStd: 2.5,
				FailureMode: "converged",
				Usage:       llm.UsageSummary{Calls: 9, PromptTokens: 950, CompletionTokens: 420},
				Timestamp:   "2026-08-24T10:05:00Z",
			},
		},
	}
}

func TestSaveAndListRoundTrip(t *testing.T) {
	s := testStore(t)

	id, err := s.SaveResult(sampleResult())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conds, err := s.ListConditions("")
	require.NoError(t, err)
	require.Len(t, conds, 1)

	c := conds[0]
	assert.Equal(t, id, c.ID)
	assert.Equal(t, "ai_incident_response", c.TaskID)
	assert.Equal(t, "hrm", c.Topology)
	assert.InDelta(t, 12.3, c.FinalDelta, 1e-9)
	assert.Equal(t, 2, c.ConvergenceIter)
	assert.True(t, c.Converged)

	iters, err := s.LoadIterations(id)
	require.NoError(t, err)
	require.Len(t, iters, 2)
	assert.Equal(t, "synthesis loss", iters[0].FailureMode)
	assert.Equal(t, "converged", iters[1].FailureMode)
	assert.InDelta(t, 12.3, iters[1].Delta, 1e-9)
	assert.Equal(t, 9, iters[0].Usage.Calls)
	assert.Equal(t, 950, iters[1].Usage.PromptTokens)
}

func TestListConditionsFilterByTask(t *testing.T) {
	s := testStore(t)

	r1 := sampleResult()
	_, err := s.SaveResult(r1)
	require.NoError(t, err)

	r2 := sampleResult()
	r2.TaskID = "software_architecture"
	_, err = s.SaveResult(r2)
	require.NoError(t, err)

	conds, err := s.ListConditions("software_architecture")
	require.NoError(t, err)
	require.Len(t, conds, 1)
	assert.Equal(t, "software_architecture", conds[0].TaskID)

	all, err := s.ListConditions("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLoadIterationsUnknownCondition(t *testing.T) {
	s := testStore(t)
	iters, err := s.LoadIterations("no-such-id")
	require.NoError(t, err)
	assert.Empty(t, iters)
}
