package service

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
)

// Bucket is the execution-mode classification of a tool call (§4.9,
// GLOSSARY "Tool classification buckets").
type Bucket int

const (
	BucketBlocking Bucket = iota
	BucketSerial
	BucketParallel
	BucketUserCollaboration
)

// ClassifyCall implements §4.9 step 1-4: arguments.isInteractive
// overrides the tool's default; otherwise BLOCKING wins over SERIAL
// wins over PARALLEL.
func ClassifyCall(def domaintool.Definition, args map[string]interface{}) Bucket {
	interactive := def.IsInteractive
	if v, ok := args["isInteractive"].(bool); ok {
		interactive = v
	}
	switch {
	case interactive:
		return BucketUserCollaboration
	case def.RequiresBlocking:
		return BucketBlocking
	case def.RequiresSerial:
		return BucketSerial
	default:
		return BucketParallel
	}
}

// OrderCalls groups calls into their buckets, preserving model emission
// order within each bucket, and returns them concatenated in dispatch
// order: blocking, serial, parallel, user-collaboration last (§4.9).
func OrderCalls(calls []entity.ToolCallInfo, defByName map[string]domaintool.Definition) (ordered []entity.ToolCallInfo, bucketOf map[string]Bucket) {
	buckets := map[Bucket][]entity.ToolCallInfo{}
	bucketOf = make(map[string]Bucket, len(calls))

	for _, tc := range calls {
		def := defByName[tc.Name]
		b := ClassifyCall(def, tc.Arguments)
		buckets[b] = append(buckets[b], tc)
		bucketOf[tc.ID] = b
	}

	ordered = make([]entity.ToolCallInfo, 0, len(calls))
	for _, b := range []Bucket{BucketBlocking, BucketSerial, BucketParallel, BucketUserCollaboration} {
		ordered = append(ordered, buckets[b]...)
	}
	return ordered, bucketOf
}

// SchemaValidator compiles and caches JSON-schema parameter blocks per
// tool name, grounded on the pack's jsonschema/v5 compile+validate
// pattern.
type SchemaValidator struct {
	cache sync.Map // name -> *jsonschema.Schema
}

// NewSchemaValidator creates an empty validator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

// Validate checks args against def's JSON schema, compiling and caching
// the schema on first use. A validation failure is composed into an
// error message that restates the violated constraint, per §4.9.
func (v *SchemaValidator) Validate(def domaintool.Definition, args map[string]interface{}) error {
	if len(def.Parameters) == 0 {
		return nil
	}

	schema, err := v.compiled(def)
	if err != nil {
		return nil // an uncompilable schema never blocks dispatch
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return nil
	}
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("argument validation failed for %s: %w", def.Name, err)
	}
	return nil
}

func (v *SchemaValidator) compiled(def domaintool.Definition) (*jsonschema.Schema, error) {
	if cached, ok := v.cache.Load(def.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		return nil, err
	}
	schema, err := jsonschema.CompileString(def.Name+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	v.cache.Store(def.Name, schema)
	return schema, nil
}

// EnhanceToolError composes the enhanced error message described in
// §4.9: it restates the violated constraints and, for a tool with a
// high consecutive-failure count, suggests a concrete alternative.
func EnhanceToolError(toolName string, baseErr string, consecutiveFailures int) string {
	msg := fmt.Sprintf("[TOOL_FAILED] %s: %s", toolName, baseErr)
	if consecutiveFailures >= 3 {
		if alt, ok := alternativeSuggestions[toolName]; ok {
			msg += "\n[SUGGESTION] " + alt
		}
	}
	return msg
}

var alternativeSuggestions = map[string]string{
	"read_file": "prefer a line-ranged read (offset/length) over repeated full-file reads",
	"stream":    "prefer a bounded read over repeated streaming reads",
}
