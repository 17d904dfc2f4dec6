package engine

import "testing"

func TestCanonicalHashStableAcrossFieldOrder(t *testing.T) {
	a := Document{"name": "C1", "customer_name": "Acme", "modified": "2025-01-01T10:00:00"}
	b := Document{"modified": "2025-01-02T11:00:00", "customer_name": "Acme", "name": "C1"}

	if CanonicalHash(a, nil) != CanonicalHash(b, nil) {
		t.Fatalf("hash should ignore excluded fields and key order")
	}
}

func TestCanonicalHashChangesOnContentChange(t *testing.T) {
	a := Document{"name": "C1", "customer_name": "Acme"}
	b := Document{"name": "C1", "customer_name": "Acme Inc"}

	if CanonicalHash(a, nil) == CanonicalHash(b, nil) {
		t.Fatalf("hash must change when non-excluded content changes")
	}
}

func TestCanonicalHashHonorsCallerExclusions(t *testing.T) {
	a := Document{"name": "C1", "internal_note": "x"}
	b := Document{"name": "C1", "internal_note": "y"}

	if CanonicalHash(a, []string{"internal_note"}) != CanonicalHash(b, []string{"internal_note"}) {
		t.Fatalf("caller-supplied excluded fields must be stripped before hashing")
	}
}

func TestCanonicalHashNilDocument(t *testing.T) {
	if got := CanonicalHash(nil, nil); got != "" {
		t.Fatalf("nil document should hash to empty string, got %q", got)
	}
}

func TestCleanForSyncStripsNameOnCreate(t *testing.T) {
	doc := Document{"name": "C1", "customer_name": "Acme", "modified": "2025-01-01T10:00:00"}
	cleaned := CleanForSync(doc, nil, true)

	if _, ok := cleaned["name"]; ok {
		t.Fatalf("name must be stripped when stripName is true")
	}
	if _, ok := cleaned["modified"]; ok {
		t.Fatalf("modified is always excluded")
	}
	if cleaned["customer_name"] != "Acme" {
		t.Fatalf("non-excluded fields must survive cleaning")
	}
}

func TestCleanForSyncKeepsNameOnUpdate(t *testing.T) {
	doc := Document{"name": "C1", "customer_name": "Acme"}
	cleaned := CleanForSync(doc, nil, false)

	if cleaned["name"] != "C1" {
		t.Fatalf("name must survive cleaning when stripName is false")
	}
}
