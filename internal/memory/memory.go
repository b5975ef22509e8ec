// Package memory implements the organizational lesson store. Lessons are
// keyed free text accumulated across learning iterations; merges only ever
// append, so earlier lessons survive verbatim and the record stays auditable.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// defaultLessons seed every fresh organization so known failure arcs from
// earlier benchmark runs are not repeated from scratch.
var defaultLessons = map[string]string{
	"synthesis_protocol": "CRITICAL: Specialists must output structured, specific content. " +
		"Synthesis must preserve ALL concrete values verbatim - never replace " +
		"specific numbers, schemas, or protocol names with abstract metaphors. " +
		"If a specialist says 'timeout_ms: 500', synthesis must keep '500', not 'standard timeout'.",

	"synthesis_truncation": "NEVER truncate specialist input for synthesis. A single synthesis call " +
		"with full specialist input is better than split calls with truncated input. " +
		"If the model hits token limits, retry with higher max_tokens.",

	"domain_grounding": "All specialist prompts must include explicit domain grounding. " +
		"LLMs pattern-match to their training data distribution - if the task " +
		"mentions 'incident response', specialists will drift to cybersecurity. " +
		"Always specify the actual domain context explicitly.",

	"output_structure": "Multi-agent output must follow a consistent phase structure matching " +
		"the task's required areas. Each required area must have a dedicated section. " +
		"Specialists should output JSON with clearly labeled sections.",
}

// Memory is a concurrency-safe lesson store. Writes come from a single
// retrospective per iteration; reads come from every specialist prompt
// builder, possibly concurrently.
type Memory struct {
	mu      sync.RWMutex
	lessons map[string]string
}

// New returns an empty memory.
func New() *Memory {
	return &Memory{lessons: make(map[string]string)}
}

// Seeded returns a memory preloaded with the default lessons.
func Seeded() *Memory {
	m := New()
	for k, v := range defaultLessons {
		m.lessons[k] = v
	}
	return m
}

// Lesson returns the accumulated lesson text for a key, or "" when none.
func (m *Memory) Lesson(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lessons[key]
}

// Append adds a lesson under key, tagged with the iteration that produced it.
// Existing text is never modified or replaced.
func (m *Memory) Append(key, lesson string, iteration int) {
	if key == "" || lesson == "" {
		return
	}
	tagged := fmt.Sprintf("[Iter %d] %s", iteration, lesson)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.lessons[key]; ok && existing != "" {
		m.lessons[key] = existing + "\n" + tagged
	} else {
		m.lessons[key] = tagged
	}
}

// Merge appends every lesson in the map under its key, tagged with iteration.
func (m *Memory) Merge(lessons map[string]string, iteration int) {
	for k, v := range lessons {
		m.Append(k, v, iteration)
	}
}

// Snapshot returns a copy of the current lesson map.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.lessons))
	for k, v := range m.lessons {
		out[k] = v
	}
	return out
}

// Clone returns an independent memory with the same lessons. Used when a
// condition must not share learning with its siblings.
func (m *Memory) Clone() *Memory {
	return &Memory{lessons: m.Snapshot()}
}

// Len returns the number of lesson keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lessons)
}

// WriteFile persists the lesson map as indented JSON, creating parent
// directories as needed.
func (m *Memory) WriteFile(path string) error {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write memory snapshot: %w", err)
	}
	return nil
}

// ReadFile loads a memory previously written with WriteFile.
func ReadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory snapshot: %w", err)
	}
	lessons := make(map[string]string)
	if err := json.Unmarshal(data, &lessons); err != nil {
		return nil, fmt.Errorf("failed to parse memory snapshot: %w", err)
	}
	return &Memory{lessons: lessons}, nil
}
