package topology

import (
	"encoding/json"
	"strings"

	"orgbench/internal/task"
)

// Plan is the high-level coordinator's decision for one HRM loop.
type Plan struct {
	Status                 string            `json:"status"`
	SpecialistInstructions map[string]string `json:"specialist_instructions"`
	RefinementFocus        string            `json:"refinement_focus"`
	QualityAssessment      string            `json:"quality_assessment"`
}

const (
	planLoop = "LOOP"
	planDone = "DONE"
)

// parsePlan recovers a coordinator plan from raw model output. Attempt chain:
// strip markdown fences and parse directly, then extract the first balanced
// JSON object, then fall back to keyword detection with the task's static
// role instructions. It never fails; a garbage plan degrades to LOOP with
// defaults.
func parsePlan(raw string, t task.Task) Plan {
	cleaned := stripFences(raw)

	var plan Plan
	if err := json.Unmarshal([]byte(cleaned), &plan); err == nil && plan.Status != "" {
		return plan
	}

	if obj := extractJSONObject(cleaned); obj != "" {
		plan = Plan{}
		if err := json.Unmarshal([]byte(obj), &plan); err == nil && plan.Status != "" {
			return plan
		}
	}

	status := planLoop
	if strings.Contains(strings.ToUpper(raw), planDone) {
		status = planDone
	}
	defaults := make(map[string]string, len(t.Roles))
	for _, role := range t.Roles {
		defaults[role.Name] = role.Instruction
	}
	return Plan{
		Status:                 status,
		SpecialistInstructions: defaults,
		RefinementFocus:        "[coordinator JSON parse failed, using domain defaults]",
		QualityAssessment:      "",
	}
}

// parseRoles recovers the self-decompose role list. Malformed output falls
// back to three generic analysts; the list is capped at five roles.
func parseRoles(raw string) []RoleSpec {
	var decoded struct {
		Roles []RoleSpec `json:"roles"`
	}
	if obj := extractJSONObject(stripFences(raw)); obj != "" {
		_ = json.Unmarshal([]byte(obj), &decoded)
	}

	var roles []RoleSpec
	for _, r := range decoded.Roles {
		if r.Name != "" {
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		return []RoleSpec{
			{Name: "Analyst 1", Focus: "Primary analysis"},
			{Name: "Analyst 2", Focus: "Secondary analysis"},
			{Name: "Analyst 3", Focus: "Quality review"},
		}
	}
	if len(roles) > 5 {
		roles = roles[:5]
	}
	return roles
}

// stripFences removes markdown code fences around a JSON payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// extractJSONObject returns the first balanced top-level {...} block, or ""
// when none exists. Brace counting ignores braces inside JSON strings.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
