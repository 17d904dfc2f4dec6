package worker

import (
	"context"
	"testing"
	"time"

	"github.com/agentworkforce/erpsync/internal/engine"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("unexpected default poll interval: %s", cfg.PollInterval)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("unexpected default batch size: %d", cfg.BatchSize)
	}
	if cfg.StaleClaimAfter != 5*time.Minute {
		t.Errorf("unexpected default stale claim window: %s", cfg.StaleClaimAfter)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("unexpected default max retries: %d", cfg.MaxRetries)
	}
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{PollInterval: time.Second, BatchSize: 5, StaleClaimAfter: time.Minute, MaxRetries: 2}.withDefaults()
	if cfg.PollInterval != time.Second || cfg.BatchSize != 5 || cfg.StaleClaimAfter != time.Minute || cfg.MaxRetries != 2 {
		t.Errorf("withDefaults must not override explicitly set fields, got %+v", cfg)
	}
}

func TestProcessItemCompletesOnSuccessfulSync(t *testing.T) {
	store := engine.NewMemoryStateBackend()
	cloud := newFakeRemoteForWorker()
	cloud.docs["C1"] = engine.Document{"name": "C1", "customer_name": "Acme", "modified": "2025-01-01T10:00:00"}
	local := newFakeRemoteForWorker()
	exec := engine.NewExecutor(cloud, local, store, engine.PolicyLatestTimestamp, nil, nil)

	lookup := func(doctype string) (engine.DoctypeConfig, bool) {
		if doctype != "Customer" {
			return engine.DoctypeConfig{}, false
		}
		return engine.DoctypeConfig{Name: "Customer"}, true
	}
	w := New(store, exec, lookup, Config{}, nil)

	id, err := store.Enqueue(context.Background(), engine.WebhookQueueItem{
		Source: engine.SourceCloud, Doctype: "Customer", Docname: "C1", Action: engine.QueueActionUpdate,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	items, err := store.ClaimBatch(context.Background(), 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("claim batch: %v, %d items", err, len(items))
	}

	w.processItem(context.Background(), items[0])

	pending, processing, _ := store.QueueCounts(context.Background())
	if pending != 0 || processing != 0 {
		t.Fatalf("expected the queue to be drained after a successful sync, got pending=%d processing=%d", pending, processing)
	}
	_ = id
}

func TestProcessItemCompletesOnUnknownDoctype(t *testing.T) {
	store := engine.NewMemoryStateBackend()
	cloud := newFakeRemoteForWorker()
	local := newFakeRemoteForWorker()
	exec := engine.NewExecutor(cloud, local, store, engine.PolicyLatestTimestamp, nil, nil)

	lookup := func(string) (engine.DoctypeConfig, bool) { return engine.DoctypeConfig{}, false }
	w := New(store, exec, lookup, Config{}, nil)

	store.Enqueue(context.Background(), engine.WebhookQueueItem{
		Source: engine.SourceCloud, Doctype: "Unknown", Docname: "X1", Action: engine.QueueActionUpdate,
	})
	items, _ := store.ClaimBatch(context.Background(), 10)

	w.processItem(context.Background(), items[0])

	pending, processing, _ := store.QueueCounts(context.Background())
	if pending != 0 || processing != 0 {
		t.Fatalf("an item for an unconfigured doctype must still be marked complete, got pending=%d processing=%d", pending, processing)
	}
}

func TestProcessItemMarksProcessedPastRetryCeiling(t *testing.T) {
	store := engine.NewMemoryStateBackend()
	cloud := &alwaysFailRemote{}
	local := newFakeRemoteForWorker()
	exec := engine.NewExecutor(cloud, local, store, engine.PolicyLatestTimestamp, nil, nil)

	lookup := func(doctype string) (engine.DoctypeConfig, bool) {
		return engine.DoctypeConfig{Name: "Customer"}, true
	}
	w := New(store, exec, lookup, Config{MaxRetries: 2}, nil)

	store.Enqueue(context.Background(), engine.WebhookQueueItem{
		Source: engine.SourceCloud, Doctype: "Customer", Docname: "C1", Action: engine.QueueActionUpdate,
	})

	for i := 0; i < 3; i++ {
		items, err := store.ClaimBatch(context.Background(), 10)
		if err != nil || len(items) != 1 {
			t.Fatalf("claim batch attempt %d: %v, %d items", i, err, len(items))
		}
		w.processItem(context.Background(), items[0])
	}

	pending, processing, _ := store.QueueCounts(context.Background())
	if pending != 0 || processing != 0 {
		t.Fatalf("expected the item to be marked processed once it exceeds the retry ceiling, got pending=%d processing=%d", pending, processing)
	}
}

// alwaysFailRemote fails every Get, forcing SyncOne to return a non-nil
// Outcome.Err so processItem's retry-ceiling path can be exercised.
type alwaysFailRemote struct{}

func (alwaysFailRemote) Get(context.Context, string, string) (engine.Document, error) {
	return nil, engine.ErrNetwork
}
func (alwaysFailRemote) List(context.Context, string, map[string]any, int, int) ([]engine.Document, error) {
	return nil, nil
}
func (alwaysFailRemote) Create(context.Context, string, engine.Document) (engine.Document, error) {
	return nil, engine.ErrNetwork
}
func (alwaysFailRemote) Update(context.Context, string, string, engine.Document) (engine.Document, error) {
	return nil, engine.ErrNetwork
}
func (alwaysFailRemote) Delete(context.Context, string, string) error { return engine.ErrNetwork }
func (alwaysFailRemote) Ping(context.Context) (string, error)         { return "", engine.ErrNetwork }

// fakeRemoteForWorker is a minimal RemoteClient double; worker tests only
// exercise the queue-draining plumbing, not the sync algorithm itself.
type fakeRemoteForWorker struct {
	docs map[string]engine.Document
}

func newFakeRemoteForWorker() *fakeRemoteForWorker {
	return &fakeRemoteForWorker{docs: map[string]engine.Document{}}
}

func (f *fakeRemoteForWorker) Get(_ context.Context, _, name string) (engine.Document, error) {
	return f.docs[name], nil
}

func (f *fakeRemoteForWorker) List(context.Context, string, map[string]any, int, int) ([]engine.Document, error) {
	return nil, nil
}

func (f *fakeRemoteForWorker) Create(_ context.Context, _ string, fields engine.Document) (engine.Document, error) {
	f.docs[fields.Name()] = fields
	return fields, nil
}

func (f *fakeRemoteForWorker) Update(_ context.Context, _, name string, fields engine.Document) (engine.Document, error) {
	f.docs[name] = fields
	return fields, nil
}

func (f *fakeRemoteForWorker) Delete(_ context.Context, _, name string) error {
	delete(f.docs, name)
	return nil
}

func (f *fakeRemoteForWorker) Ping(context.Context) (string, error) { return "fake", nil }
