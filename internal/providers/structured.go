package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// verdictSchema is the canonical shape of a Judge response. Model
// output is validated against it before being trusted.
const verdictSchema = `{
  "type": "object",
  "required": ["related", "strength"],
  "properties": {
    "related": {"type": "boolean"},
    "strength": {"type": "number", "minimum": 0, "maximum": 1},
    "explanation": {"type": "string"}
  },
  "additionalProperties": false
}`

var compiledVerdictSchema = mustCompileSchema(verdictSchema)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("verdict.json", bytes.NewReader([]byte(raw))); err != nil {
		panic(fmt.Sprintf("invalid verdict schema: %v", err))
	}
	schema, err := compiler.Compile("verdict.json")
	if err != nil {
		panic(fmt.Sprintf("failed to compile verdict schema: %v", err))
	}
	return schema
}

// ParseVerdict extracts a verdict from model output, tolerating
// markdown code fences and surrounding prose, and validates it.
func ParseVerdict(content string) (*Verdict, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode verdict: %w", err)
	}
	if err := compiledVerdictSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("verdict does not match schema: %w", err)
	}

	var v Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode verdict: %w", err)
	}
	return &v, nil
}

// extractJSON finds the JSON object in model output, with lightweight
// recovery for code fences and surrounding text.
func extractJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty model output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			candidates = append(candidates, content[start:end+1])
		}
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, fmt.Errorf("no valid JSON found in model output")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
