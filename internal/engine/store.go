package engine

import (
	"context"
	"errors"
	"time"
)

var errConflictNotFound = errors.New("not found")

// StateBackend is the persistence contract for the four tables in the data
// model. Implementations must provide single-writer-safe semantics per row;
// the executor and worker rely on the conditional claim and dequeue methods
// being atomic with respect to other callers on the same backend.
type StateBackend interface {
	// GetOrCreateSyncRecord returns the record for (doctype, docname),
	// creating a pending one if none exists yet. Atomic.
	GetOrCreateSyncRecord(ctx context.Context, doctype, docname string) (SyncRecord, error)
	// ClaimSyncRecord atomically sets is_syncing=true if and only if it was
	// false, returning ok=false if another operation already holds it.
	ClaimSyncRecord(ctx context.Context, doctype, docname string) (ok bool, err error)
	// ReleaseSyncRecord persists the final state of a record and clears
	// is_syncing unconditionally.
	ReleaseSyncRecord(ctx context.Context, record SyncRecord) error
	// ClearAllSyncingFlags clears every is_syncing=true row with no owner,
	// called once at startup per §5's cross-restart arbiter rule.
	ClearAllSyncingFlags(ctx context.Context) error
	ListSyncRecords(ctx context.Context, status SyncStatus) ([]SyncRecord, error)

	AppendLog(ctx context.Context, entry SyncLogEntry) error
	ListLogs(ctx context.Context, doctype, docname string, limit int) ([]SyncLogEntry, error)

	CreateConflict(ctx context.Context, c ConflictRecord) (int64, error)
	ResolveConflict(ctx context.Context, id int64, resolution string, at time.Time) error
	ListConflicts(ctx context.Context, onlyUnresolved bool) ([]ConflictRecord, error)

	// Enqueue inserts a new webhook item and returns its assigned id.
	Enqueue(ctx context.Context, item WebhookQueueItem) (int64, error)
	// ClaimBatch atomically marks up to limit FIFO-oldest unclaimed items as
	// processing=true and returns them.
	ClaimBatch(ctx context.Context, limit int) ([]WebhookQueueItem, error)
	// CompleteItem marks an item processed (success or terminal failure).
	CompleteItem(ctx context.Context, id int64, errMsg string) error
	// ReleaseItem returns a claimed item to the unclaimed pool after a
	// retryable failure, incrementing its retry count and reporting the
	// count after the increment so the caller can enforce a ceiling.
	ReleaseItem(ctx context.Context, id int64, errMsg string) (retryCount int, err error)
	// ReclaimStale resets processing=true rows older than olderThan back to
	// unclaimed, for the stale-claim sweeper.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
	QueueCounts(ctx context.Context) (pending, processing int, err error)

	Close() error
}
