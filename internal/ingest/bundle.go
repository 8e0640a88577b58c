package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// chunkBundleSchema validates the external chunker's output before any
// of it reaches the database. The chunker runs in a foreign coordinate
// system; start/end indexes are treated as charspan hints only.
const chunkBundleSchema = `{
  "type": "object",
  "required": ["chunks"],
  "properties": {
    "chunks": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["text"],
        "properties": {
          "text": {"type": "string", "minLength": 1},
          "token_count": {"type": "integer", "minimum": 0},
          "start_index": {"type": "integer", "minimum": 0},
          "end_index": {"type": "integer", "minimum": 0},
          "summary": {"type": "string"},
          "importance_score": {"type": "number", "minimum": 0, "maximum": 1},
          "themes": {},
          "metadata": {}
        }
      }
    }
  }
}`

var compiledBundleSchema = mustCompileBundleSchema()

func mustCompileBundleSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("bundle.json", bytes.NewReader([]byte(chunkBundleSchema))); err != nil {
		panic(fmt.Sprintf("invalid chunk bundle schema: %v", err))
	}
	schema, err := compiler.Compile("bundle.json")
	if err != nil {
		panic(fmt.Sprintf("failed to compile chunk bundle schema: %v", err))
	}
	return schema
}

// ChunkRecord is one chunk as emitted by the external chunker.
type ChunkRecord struct {
	Text            string          `json:"text"`
	TokenCount      int             `json:"token_count"`
	StartIndex      *int            `json:"start_index,omitempty"`
	EndIndex        *int            `json:"end_index,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	ImportanceScore float64         `json:"importance_score,omitempty"`
	Themes          json.RawMessage `json:"themes,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

// Bundle is the chunker's full output for one document.
type Bundle struct {
	Chunks []ChunkRecord `json:"chunks"`
}

// ParseBundle validates and decodes a chunker output document.
func ParseBundle(data []byte) (*Bundle, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("chunk bundle is not valid JSON: %w", err)
	}
	if err := compiledBundleSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("chunk bundle does not match schema: %w", err)
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode chunk bundle: %w", err)
	}
	return &bundle, nil
}
