package webhook

import "testing"

func TestValidatePayloadShapeAcceptsWellFormed(t *testing.T) {
	raw := map[string]any{"doctype": "Customer", "name": "C1", "action": "create"}
	if err := validatePayloadShape(raw); err != nil {
		t.Fatalf("expected a well-formed payload to validate, got %v", err)
	}
}

func TestValidatePayloadShapeAcceptsMissingFields(t *testing.T) {
	cases := []map[string]any{
		{"name": "C1", "action": "create"},
		{"doctype": "Customer", "action": "create"},
		{"doctype": "Customer", "name": "C1"},
		{},
	}
	for _, raw := range cases {
		if err := validatePayloadShape(raw); err != nil {
			t.Errorf("expected %+v to validate despite missing fields, got %v", raw, err)
		}
	}
}

func TestValidatePayloadShapeAcceptsUnknownAction(t *testing.T) {
	raw := map[string]any{"doctype": "Customer", "name": "C1", "action": "rename"}
	if err := validatePayloadShape(raw); err != nil {
		t.Fatalf("action's enum is enforced after the doc fallback, not by the schema: got %v", err)
	}
}

func TestValidatePayloadShapeAcceptsNestedDoc(t *testing.T) {
	raw := map[string]any{"doc": map[string]any{"doctype": "Customer", "name": "C1", "action": "update"}}
	if err := validatePayloadShape(raw); err != nil {
		t.Fatalf("expected a payload nested under doc to validate, got %v", err)
	}
}

func TestValidatePayloadShapeRejectsNonObject(t *testing.T) {
	cases := []any{"a string", 42, []any{1, 2, 3}, nil}
	for _, raw := range cases {
		if err := validatePayloadShape(raw); err == nil {
			t.Errorf("expected %#v to fail validation, it isn't an object", raw)
		}
	}
}

func TestValidatePayloadShapeRejectsWrongFieldType(t *testing.T) {
	raw := map[string]any{"doctype": 123, "name": "C1"}
	if err := validatePayloadShape(raw); err == nil {
		t.Fatalf("expected a non-string doctype to fail validation")
	}
}
