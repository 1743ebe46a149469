package runner

import "github.com/abdul-hamid-achik/flowspec/packages/core/interpreter"

// RedactedValue replaces the site password in testcase results.
const RedactedValue = "[REDACTED]"

// redactor hides a secret in values copied into results. The interpreter
// still receives the real values.
type redactor struct {
	secret string
}

func (r redactor) value(v any) any {
	if r.secret == "" {
		return v
	}
	switch val := v.(type) {
	case string:
		if val == r.secret {
			return RedactedValue
		}
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = r.value(s).(string)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.value(item)
		}
		return out
	}
	return v
}

func (r redactor) mapping(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = r.value(v)
	}
	return out
}

// outputs copies the testcase outputs without the seeded credentials.
func (r redactor) outputs(all map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(all))
	for scenarioID, values := range all {
		if scenarioID == MainScenarioID {
			continue
		}
		out[scenarioID] = r.mapping(values)
	}
	return out
}

// scenario redacts the step data, assertion values and outputs of a result
// in place.
func (r redactor) scenario(sr *interpreter.ScenarioResult) {
	if sr == nil || r.secret == "" {
		return
	}
	for _, step := range sr.Steps {
		step.Data = r.value(step.Data)
		step.Output = r.value(step.Output)
		if a := step.Assertion; a != nil {
			a.Expected = r.value(a.Expected)
			a.Actual = r.value(a.Actual)
		}
	}
}
