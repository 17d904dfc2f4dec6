package engine

import "testing"

func TestSummaryAdd(t *testing.T) {
	var s Summary
	s.Add(Outcome{Direction: DirectionCloudToLocal})
	s.Add(Outcome{Skipped: "no change"})
	s.Add(Outcome{Conflict: true})
	s.Add(Outcome{Err: errConflictNotFound})

	if s.Total != 4 {
		t.Fatalf("expected total 4, got %d", s.Total)
	}
	if s.Success != 1 || s.Skipped != 1 || s.Conflicts != 1 || s.Failed != 1 {
		t.Fatalf("unexpected summary breakdown: %+v", s)
	}
}

func TestQueueSourceDirectionHint(t *testing.T) {
	if SourceCloud.DirectionHint() != DirectionCloudToLocal {
		t.Errorf("cloud source should hint c2l")
	}
	if SourceLocal.DirectionHint() != DirectionLocalToCloud {
		t.Errorf("local source should hint l2c")
	}
	if QueueSource("unknown").DirectionHint() != DirectionNone {
		t.Errorf("unrecognized source should hint none")
	}
}

func TestSyncRecordKey(t *testing.T) {
	r := SyncRecord{Doctype: "Customer", Docname: "C1"}
	if r.Key() != "Customer/C1" {
		t.Fatalf("unexpected key: %s", r.Key())
	}
}
