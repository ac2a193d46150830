package schema

import (
	"encoding/json"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFor_ProducesObjectSchemaWithFields(t *testing.T) {
	s := For(&sample{})

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc["type"] != "object" {
		t.Errorf("type = %v, want object", doc["type"])
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing or wrong type: %v", doc["properties"])
	}
	if _, ok := props["name"]; !ok {
		t.Error("expected a name property")
	}
	if _, ok := props["count"]; !ok {
		t.Error("expected a count property")
	}
}
