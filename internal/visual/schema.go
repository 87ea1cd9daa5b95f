package visual

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/chartbridge/chartbridge/internal/schema"
)

// workflowSchema is the JSON Schema every stored visual workflow must
// satisfy. Structural rules beyond its reach (variable def-before-use,
// unique ids) live in schema.VisualWorkflow.Validate.
const workflowSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["workflow_id", "name", "steps"],
  "properties": {
    "workflow_id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "hotkey": {"type": "string"},
    "enabled": {"type": "boolean"},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["step_id", "step_type"],
        "properties": {
          "step_id": {"type": "string", "minLength": 1},
          "step_type": {
            "type": "string",
            "enum": ["read_coords", "lookup_excel", "lookup_db", "lookup_api",
                     "format_with_llm", "write_coords", "transcribe_audio",
                     "record_audio"]
          },
          "name": {"type": "string"},
          "enabled": {"type": "boolean"},
          "x": {"type": "integer"},
          "y": {"type": "integer"},
          "width": {"type": "integer", "minimum": 0},
          "height": {"type": "integer", "minimum": 0},
          "extract_numbers": {"type": "boolean"},
          "file_path": {"type": "string"},
          "sheet_name": {"type": "string"},
          "search_column": {"type": "string"},
          "search_value_variable": {"type": "string"},
          "return_columns": {"type": "array", "items": {"type": "string"}},
          "input_variable": {"type": "string"},
          "target_fields": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "description": {"type": "string"}
              }
            }
          },
          "content_template": {"type": "string"},
          "insert_method": {"type": "string", "enum": ["paste", "type"]},
          "key_sequence": {"type": "string"},
          "language": {"type": "string"},
          "output_variable": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("workflow.schema.json", strings.NewReader(workflowSchema)); err != nil {
		panic(fmt.Sprintf("visual: adding workflow schema: %v", err))
	}
	s, err := c.Compile("workflow.schema.json")
	if err != nil {
		panic(fmt.Sprintf("visual: compiling workflow schema: %v", err))
	}
	return s
}

func validateAgainstSchema(wf *schema.VisualWorkflow) error {
	raw, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("encoding workflow for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decoding workflow for validation: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("workflow schema violation: %w", err)
	}
	return nil
}
