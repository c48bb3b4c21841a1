package tools

import "testing"

func TestNormalizeSchemaFillsMissingProperties(t *testing.T) {
	spec := Spec{Schema: map[string]any{"type": "object"}}
	out := spec.NormalizedSchema()
	if out["properties"] == nil {
		t.Fatalf("expected properties to be filled in")
	}
	if out["additionalProperties"] != false {
		t.Fatalf("expected additionalProperties defaulted to false")
	}
}

func TestNormalizeSchemaRewritesIntegerToNumber(t *testing.T) {
	spec := Spec{Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{"type": "integer"},
		},
	}}
	out := spec.NormalizedSchema()
	props := out["properties"].(map[string]any)
	count := props["count"].(map[string]any)
	if count["type"] != "number" {
		t.Fatalf("expected integer rewritten to number, got %v", count["type"])
	}
}

func TestNormalizeSchemaFillsArrayItems(t *testing.T) {
	spec := Spec{Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tags": map[string]any{"type": "array"},
		},
	}}
	out := spec.NormalizedSchema()
	props := out["properties"].(map[string]any)
	tags := props["tags"].(map[string]any)
	if tags["items"] == nil {
		t.Fatalf("expected items to be filled in for array")
	}
}

func TestNormalizeSchemaBreaksCycles(t *testing.T) {
	node := map[string]any{"type": "object"}
	node["properties"] = map[string]any{"self": node}
	spec := Spec{Schema: node}

	out := spec.NormalizedSchema()
	props := out["properties"].(map[string]any)
	self := props["self"].(map[string]any)
	if self["description"] != "recursive reference" {
		t.Fatalf("expected cycle stub, got %v", self)
	}
}
