package llm

import (
	"encoding/json"
	"strings"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
)

// parsePlan extracts the JSON plan from a model response and validates it.
// Output the model got wrong is reported as a *domain.PlanError.
func parsePlan(result string) (*domain.Plan, error) {
	result = stripFences(result)

	start := strings.Index(result, "{")
	end := strings.LastIndex(result, "}")
	if start < 0 || end < start {
		return nil, &domain.PlanError{Reason: "model response contained no JSON plan"}
	}

	var raw domain.RawPlan
	if err := json.Unmarshal([]byte(result[start:end+1]), &raw); err != nil {
		return nil, &domain.PlanError{Reason: "model response is not a valid plan: " + err.Error()}
	}
	return domain.CompilePlan(raw)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
