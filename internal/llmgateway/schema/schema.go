// Package schema reflects Go structs into the JSON Schema documents the LLM
// gateway enforces structured output against.
package schema

import "github.com/invopop/jsonschema"

// For reflects v (a pointer to the result struct) into a JSON Schema
// document suitable for llmgateway.Request.Schema. Schemas are inlined
// rather than $ref'd, since both backends expect a single self-contained
// document per call.
func For(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	return r.Reflect(v)
}
