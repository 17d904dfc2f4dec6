package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStateBackend is a process-local StateBackend, used for tests and the
// memory:// DSN. All state is lost on process exit.
type MemoryStateBackend struct {
	mu sync.Mutex

	records   map[string]SyncRecord
	logs      []SyncLogEntry
	conflicts []ConflictRecord
	queue     []WebhookQueueItem

	nextLogID      int64
	nextConflictID int64
	nextQueueID    int64
}

// NewMemoryStateBackend constructs an empty in-memory backend.
func NewMemoryStateBackend() *MemoryStateBackend {
	return &MemoryStateBackend{records: map[string]SyncRecord{}}
}

func recordKey(doctype, docname string) string { return doctype + "\x00" + docname }

func (m *MemoryStateBackend) GetOrCreateSyncRecord(_ context.Context, doctype, docname string) (SyncRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(doctype, docname)
	if rec, ok := m.records[key]; ok {
		return rec, nil
	}
	now := time.Now().UTC()
	rec := SyncRecord{
		Doctype:   doctype,
		Docname:   docname,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.records[key] = rec
	return rec, nil
}

func (m *MemoryStateBackend) ClaimSyncRecord(_ context.Context, doctype, docname string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(doctype, docname)
	rec, ok := m.records[key]
	if !ok {
		now := time.Now().UTC()
		rec = SyncRecord{Doctype: doctype, Docname: docname, Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	}
	if rec.IsSyncing {
		return false, nil
	}
	rec.IsSyncing = true
	rec.UpdatedAt = time.Now().UTC()
	m.records[key] = rec
	return true, nil
}

func (m *MemoryStateBackend) ReleaseSyncRecord(_ context.Context, record SyncRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.IsSyncing = false
	record.UpdatedAt = time.Now().UTC()
	m.records[recordKey(record.Doctype, record.Docname)] = record
	return nil
}

func (m *MemoryStateBackend) ClearAllSyncingFlags(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range m.records {
		if rec.IsSyncing {
			rec.IsSyncing = false
			m.records[k] = rec
		}
	}
	return nil
}

func (m *MemoryStateBackend) ListSyncRecords(_ context.Context, status SyncStatus) ([]SyncRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SyncRecord, 0, len(m.records))
	for _, rec := range m.records {
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (m *MemoryStateBackend) AppendLog(_ context.Context, entry SyncLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLogID++
	entry.ID = m.nextLogID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	m.logs = append(m.logs, entry)
	return nil
}

func (m *MemoryStateBackend) ListLogs(_ context.Context, doctype, docname string, limit int) ([]SyncLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SyncLogEntry
	for i := len(m.logs) - 1; i >= 0; i-- {
		entry := m.logs[i]
		if doctype != "" && entry.Doctype != doctype {
			continue
		}
		if docname != "" && entry.Docname != docname {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStateBackend) CreateConflict(_ context.Context, c ConflictRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextConflictID++
	c.ID = m.nextConflictID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.conflicts = append(m.conflicts, c)
	return c.ID, nil
}

func (m *MemoryStateBackend) ResolveConflict(_ context.Context, id int64, resolution string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.conflicts {
		if c.ID == id {
			c.Resolved = true
			c.Resolution = resolution
			resolvedAt := at
			c.ResolvedAt = &resolvedAt
			m.conflicts[i] = c
			return nil
		}
	}
	return fmt.Errorf("conflict %d: %w", id, errConflictNotFound)
}

func (m *MemoryStateBackend) ListConflicts(_ context.Context, onlyUnresolved bool) ([]ConflictRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ConflictRecord, 0, len(m.conflicts))
	for _, c := range m.conflicts {
		if onlyUnresolved && c.Resolved {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryStateBackend) Enqueue(_ context.Context, item WebhookQueueItem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextQueueID++
	item.ID = m.nextQueueID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	m.queue = append(m.queue, item)
	return item.ID, nil
}

func (m *MemoryStateBackend) ClaimBatch(_ context.Context, limit int) ([]WebhookQueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []WebhookQueueItem
	for i, item := range m.queue {
		if item.Processed || item.Processing {
			continue
		}
		item.Processing = true
		m.queue[i] = item
		claimed = append(claimed, item)
		if len(claimed) >= limit {
			break
		}
	}
	return claimed, nil
}

func (m *MemoryStateBackend) CompleteItem(_ context.Context, id int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, item := range m.queue {
		if item.ID == id {
			item.Processed = true
			item.Processing = false
			now := time.Now().UTC()
			item.ProcessedAt = &now
			item.ErrorMessage = errMsg
			m.queue[i] = item
			return nil
		}
	}
	return fmt.Errorf("queue item %d: %w", id, errConflictNotFound)
}

func (m *MemoryStateBackend) ReleaseItem(_ context.Context, id int64, errMsg string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, item := range m.queue {
		if item.ID == id {
			item.Processing = false
			item.RetryCount++
			item.ErrorMessage = errMsg
			m.queue[i] = item
			return item.RetryCount, nil
		}
	}
	return 0, fmt.Errorf("queue item %d: %w", id, errConflictNotFound)
}

func (m *MemoryStateBackend) ReclaimStale(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	n := 0
	for i, item := range m.queue {
		if item.Processing && !item.Processed && item.CreatedAt.Before(cutoff) {
			item.Processing = false
			m.queue[i] = item
			n++
		}
	}
	return n, nil
}

func (m *MemoryStateBackend) QueueCounts(_ context.Context) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending, processing int
	for _, item := range m.queue {
		if item.Processed {
			continue
		}
		if item.Processing {
			processing++
		} else {
			pending++
		}
	}
	return pending, processing, nil
}

func (m *MemoryStateBackend) Close() error { return nil }
