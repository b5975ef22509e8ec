package memory

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendTagsAndOrders(t *testing.T) {
	m := New()
	m.Append("synthesis_protocol", "keep numbers verbatim", 1)
	m.Append("synthesis_protocol", "use labeled sections", 3)

	got := m.Lesson("synthesis_protocol")
	want := "[Iter 1] keep numbers verbatim\n[Iter 3] use labeled sections"
	if got != want {
		t.Errorf("lesson = %q, want %q", got, want)
	}
}

func TestAppendIgnoresEmpty(t *testing.T) {
	m := New()
	m.Append("", "lesson", 1)
	m.Append("key", "", 1)
	if m.Len() != 0 {
		t.Errorf("len = %d, want 0", m.Len())
	}
}

func TestAppendPreservesSeed(t *testing.T) {
	m := Seeded()
	seed := m.Lesson("domain_grounding")
	if seed == "" {
		t.Fatal("expected seed lesson")
	}
	m.Append("domain_grounding", "state the business domain in sentence one", 2)

	got := m.Lesson("domain_grounding")
	if !strings.HasPrefix(got, seed) {
		t.Error("append replaced seed text instead of extending it")
	}
	if !strings.HasSuffix(got, "[Iter 2] state the business domain in sentence one") {
		t.Errorf("appended lesson missing iteration tag: %q", got)
	}
}

func TestMerge(t *testing.T) {
	m := New()
	m.Merge(map[string]string{
		"a": "first",
		"b": "second",
	}, 4)
	if m.Lesson("a") != "[Iter 4] first" || m.Lesson("b") != "[Iter 4] second" {
		t.Errorf("merge result: a=%q b=%q", m.Lesson("a"), m.Lesson("b"))
	}
}

func TestCloneIsolation(t *testing.T) {
	m := Seeded()
	c := m.Clone()
	c.Append("synthesis_protocol", "clone-only lesson", 1)

	if strings.Contains(m.Lesson("synthesis_protocol"), "clone-only") {
		t.Error("clone write leaked into original")
	}
	if m.Len() != c.Len() {
		t.Errorf("len mismatch after same-key append: %d vs %d", m.Len(), c.Len())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	m := Seeded()
	snap := m.Snapshot()
	snap["synthesis_protocol"] = "clobbered"
	if m.Lesson("synthesis_protocol") == "clobbered" {
		t.Error("snapshot exposed internal map")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	m := Seeded()
	m.Append("output_structure", "one section per required area", 2)

	path := filepath.Join(t.TempDir(), "nested", "memory.json")
	if err := m.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Len() != m.Len() {
		t.Fatalf("len = %d, want %d", got.Len(), m.Len())
	}
	if got.Lesson("output_structure") != m.Lesson("output_structure") {
		t.Error("round trip changed lesson text")
	}
}
