package learning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"orgbench/internal/memory"
)

// saveSnapshot persists the running result after an iteration so partial
// progress survives a crashed or interrupted run. No OutputDir disables
// snapshots.
func (l *Loop) saveSnapshot(res *Result, mem *memory.Memory, iteration int) error {
	if l.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(l.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	snap := *res
	snap.Memory = mem.Snapshot()
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("%s_%s_iter%02d.json", res.TaskID, res.Topology, iteration)
	if err := os.WriteFile(filepath.Join(l.OutputDir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
