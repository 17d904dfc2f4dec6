package engine

import "testing"

func TestResolveDirectionAbsentOnBothSides(t *testing.T) {
	if got := ResolveDirection(nil, nil, SyncRecord{}, nil, ""); got != DirectionSkip {
		t.Fatalf("expected skip, got %s", got)
	}
}

func TestResolveDirectionPresentOnOneSideOnly(t *testing.T) {
	cloud := Document{"name": "C1"}
	if got := ResolveDirection(cloud, nil, SyncRecord{}, nil, ""); got != DirectionCloudToLocal {
		t.Fatalf("expected c2l when only cloud has the document, got %s", got)
	}
	local := Document{"name": "C1"}
	if got := ResolveDirection(nil, local, SyncRecord{}, nil, ""); got != DirectionLocalToCloud {
		t.Fatalf("expected l2c when only local has the document, got %s", got)
	}
}

func TestResolveDirectionNoneWhenBothHashesUnchanged(t *testing.T) {
	cloud := Document{"name": "C1", "customer_name": "Acme"}
	local := Document{"name": "C1", "customer_name": "Acme"}
	record := SyncRecord{
		CloudHash: CanonicalHash(cloud, nil),
		LocalHash: CanonicalHash(local, nil),
	}
	if got := ResolveDirection(cloud, local, record, nil, ""); got != DirectionNone {
		t.Fatalf("expected none, got %s", got)
	}
}

func TestResolveDirectionOneSideChanged(t *testing.T) {
	cloud := Document{"name": "C1", "customer_name": "AcmeCo"}
	local := Document{"name": "C1", "customer_name": "Acme"}
	record := SyncRecord{
		CloudHash: CanonicalHash(Document{"name": "C1", "customer_name": "Acme"}, nil),
		LocalHash: CanonicalHash(local, nil),
	}
	if got := ResolveDirection(cloud, local, record, nil, ""); got != DirectionCloudToLocal {
		t.Fatalf("expected c2l when only cloud diverged from the recorded hash, got %s", got)
	}
}

func TestResolveDirectionBothChangedIsConflict(t *testing.T) {
	cloud := Document{"name": "C1", "customer_name": "AcmeCo"}
	local := Document{"name": "C1", "customer_name": "Acme Inc"}
	record := SyncRecord{
		CloudHash: CanonicalHash(Document{"name": "C1", "customer_name": "Acme"}, nil),
		LocalHash: CanonicalHash(Document{"name": "C1", "customer_name": "Acme"}, nil),
	}
	if got := ResolveDirection(cloud, local, record, nil, ""); got != DirectionConflict {
		t.Fatalf("expected conflict when both sides diverged, got %s", got)
	}
}

func TestResolveDirectionHintOnlyHonoredWhenConsistent(t *testing.T) {
	cloud := Document{"name": "C1", "customer_name": "AcmeCo"}
	local := Document{"name": "C1", "customer_name": "Acme"}
	record := SyncRecord{
		CloudHash: CanonicalHash(Document{"name": "C1", "customer_name": "Acme"}, nil),
		LocalHash: CanonicalHash(local, nil),
	}
	// Table says c2l; a hint agreeing with that is a no-op change.
	if got := ResolveDirection(cloud, local, record, nil, DirectionCloudToLocal); got != DirectionCloudToLocal {
		t.Fatalf("expected c2l, got %s", got)
	}
	// A hint disagreeing with the table must never override it.
	if got := ResolveDirection(cloud, local, record, nil, DirectionLocalToCloud); got != DirectionCloudToLocal {
		t.Fatalf("webhook hint must not override the decision table, got %s", got)
	}
}
