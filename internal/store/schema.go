package store

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// snapshotSchema is the strict shape of the persisted slot. Volatile per-tick
// fields (progressPercent, stageMessage) are optional: they are last-known
// display values, not state the engine depends on.
const snapshotSchema = `{
  "type": "object",
  "required": ["version", "isUploading", "total", "files", "timestamp"],
  "properties": {
    "version": {"const": 1},
    "isUploading": {"type": "boolean"},
    "total": {"type": "integer", "minimum": 0},
    "completedCount": {"type": "integer", "minimum": 0},
    "failedCount": {"type": "integer", "minimum": 0},
    "timestamp": {"type": "string"},
    "files": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "displayName", "source", "status"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "displayName": {"type": "string"},
          "source": {"enum": ["local", "remote"]},
          "accountLabel": {"type": "string"},
          "accountId": {"type": "string"},
          "remoteFileId": {"type": "string"},
          "serverItemId": {"type": "string"},
          "sizeBytes": {"type": "integer", "minimum": 0},
          "status": {"enum": ["pending", "uploading", "processing", "completed", "failed"]},
          "stage": {"enum": ["initializing", "reading", "understanding", "building_connections", "finalizing", "completed", "failed"]},
          "progressPercent": {"type": "integer", "minimum": 0, "maximum": 100},
          "stageMessage": {"type": "string"},
          "error": {"type": "string"}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(snapshotSchema))
		if err != nil {
			schemaErr = fmt.Errorf("parse snapshot schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("snapshot.json", doc); err != nil {
			schemaErr = fmt.Errorf("add snapshot schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile("snapshot.json")
	})
	return schema, schemaErr
}

// validateSnapshot rejects any slot content that does not match the expected
// projection.
func validateSnapshot(r io.Reader) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(r)
	if err != nil {
		return fmt.Errorf("parse snapshot JSON: %w", err)
	}
	return sch.Validate(inst)
}
