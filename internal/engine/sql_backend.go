package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// sqlStateBackend is a database/sql-backed StateBackend shared by the
// sqlite and postgres DSN schemes. The two differ only in driver name,
// placeholder style, and a handful of DDL dialect quirks, so one
// implementation parameterized by a dialect keeps both honest with each
// other instead of drifting.
type sqlStateBackend struct {
	db      *sql.DB
	dialect sqlDialect

	initOnce sync.Once
	initErr  error
}

type sqlDialect struct {
	name string
	// placeholder returns the bind-parameter marker for the nth (1-based)
	// argument in a query: "?" for sqlite, "$1"/"$2"/... for postgres.
	placeholder func(n int) string
	// upsertSyncRecordClause is set by neither dialect and read nowhere;
	// GetOrCreateSyncRecord reads, inserts, and re-reads after a failed
	// insert instead.
	upsertSyncRecordClause string
	autoIncrementType      string
	timestampType          string
	booleanType            string
}

const sqlOperationTimeout = 10 * time.Second

func (b *sqlStateBackend) ensureSchema(ctx context.Context) error {
	b.initOnce.Do(func() {
		b.initErr = b.createTables(ctx)
	})
	return b.initErr
}

func (b *sqlStateBackend) createTables(ctx context.Context) error {
	d := b.dialect
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_records (
			doctype TEXT NOT NULL,
			docname TEXT NOT NULL,
			cloud_hash TEXT NOT NULL DEFAULT '',
			local_hash TEXT NOT NULL DEFAULT '',
			cloud_modified TEXT NOT NULL DEFAULT '',
			local_modified TEXT NOT NULL DEFAULT '',
			last_synced %s,
			last_direction TEXT NOT NULL DEFAULT '',
			is_syncing %s NOT NULL DEFAULT %s,
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at %s NOT NULL,
			updated_at %s NOT NULL,
			PRIMARY KEY (doctype, docname)
		)`, d.timestampType, d.booleanType, falseLiteral(d), d.timestampType, d.timestampType),
		`CREATE INDEX IF NOT EXISTS idx_sync_records_status ON sync_records(status)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_logs (
			id %s PRIMARY KEY,
			ts %s NOT NULL,
			doctype TEXT NOT NULL,
			docname TEXT NOT NULL,
			action TEXT NOT NULL,
			direction TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT ''
		)`, d.autoIncrementType, d.timestampType),
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_ts ON sync_logs(ts)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS conflict_records (
			id %s PRIMARY KEY,
			doctype TEXT NOT NULL,
			docname TEXT NOT NULL,
			cloud_data TEXT NOT NULL,
			local_data TEXT NOT NULL,
			cloud_modified TEXT NOT NULL DEFAULT '',
			local_modified TEXT NOT NULL DEFAULT '',
			resolved %s NOT NULL DEFAULT %s,
			resolution TEXT NOT NULL DEFAULT '',
			resolved_at %s,
			created_at %s NOT NULL
		)`, d.autoIncrementType, d.booleanType, falseLiteral(d), d.timestampType, d.timestampType),
		`CREATE INDEX IF NOT EXISTS idx_conflict_records_resolved ON conflict_records(resolved)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS webhook_queue (
			id %s PRIMARY KEY,
			source TEXT NOT NULL,
			doctype TEXT NOT NULL,
			docname TEXT NOT NULL,
			action TEXT NOT NULL,
			payload TEXT NOT NULL,
			processed %s NOT NULL DEFAULT %s,
			processing %s NOT NULL DEFAULT %s,
			created_at %s NOT NULL,
			processed_at %s,
			error_message TEXT NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0
		)`, d.autoIncrementType, d.booleanType, falseLiteral(d), d.booleanType, falseLiteral(d), d.timestampType, d.timestampType),
		`CREATE INDEX IF NOT EXISTS idx_webhook_queue_processed ON webhook_queue(processed, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("erpsync: schema init (%s): %w", d.name, err)
		}
	}
	return nil
}

func falseLiteral(d sqlDialect) string {
	if d.booleanType == "INTEGER" {
		return "0"
	}
	return "FALSE"
}

func (b *sqlStateBackend) ph(n int) string { return b.dialect.placeholder(n) }

func (b *sqlStateBackend) GetOrCreateSyncRecord(ctx context.Context, doctype, docname string) (SyncRecord, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return SyncRecord{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()

	rec, err := b.scanSyncRecord(ctx, doctype, docname)
	if err == nil {
		return rec, nil
	}
	if err != sql.ErrNoRows {
		return SyncRecord{}, err
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO sync_records (doctype, docname, status, created_at, updated_at) VALUES (%s, %s, %s, %s, %s)`,
		b.ph(1), b.ph(2), b.ph(3), b.ph(4), b.ph(5))
	if _, err := b.db.ExecContext(ctx, query, doctype, docname, string(StatusPending), now, now); err != nil {
		// Lost a create race against another writer; re-read.
		return b.scanSyncRecord(ctx, doctype, docname)
	}
	return SyncRecord{Doctype: doctype, Docname: docname, Status: StatusPending, CreatedAt: now, UpdatedAt: now}, nil
}

func (b *sqlStateBackend) scanSyncRecord(ctx context.Context, doctype, docname string) (SyncRecord, error) {
	query := fmt.Sprintf(`SELECT doctype, docname, cloud_hash, local_hash, cloud_modified, local_modified,
		last_synced, last_direction, is_syncing, status, error_message, retry_count, created_at, updated_at
		FROM sync_records WHERE doctype = %s AND docname = %s`, b.ph(1), b.ph(2))
	row := b.db.QueryRowContext(ctx, query, doctype, docname)
	var rec SyncRecord
	var lastSynced sql.NullTime
	var lastDirection string
	var status string
	if err := row.Scan(&rec.Doctype, &rec.Docname, &rec.CloudHash, &rec.LocalHash, &rec.CloudModified, &rec.LocalModified,
		&lastSynced, &lastDirection, &rec.IsSyncing, &status, &rec.ErrorMessage, &rec.RetryCount, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return SyncRecord{}, err
	}
	if lastSynced.Valid {
		rec.LastSynced = &lastSynced.Time
	}
	rec.LastDirection = Direction(lastDirection)
	rec.Status = SyncStatus(status)
	return rec, nil
}

func (b *sqlStateBackend) ClaimSyncRecord(ctx context.Context, doctype, docname string) (bool, error) {
	if _, err := b.GetOrCreateSyncRecord(ctx, doctype, docname); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	query := fmt.Sprintf(`UPDATE sync_records SET is_syncing = %s, updated_at = %s
		WHERE doctype = %s AND docname = %s AND is_syncing = %s`,
		trueLiteralArg(b.dialect), b.ph(1), b.ph(2), b.ph(3), falseLiteral(b.dialect))
	result, err := b.db.ExecContext(ctx, query, time.Now().UTC(), doctype, docname)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func trueLiteralArg(d sqlDialect) string {
	if d.booleanType == "INTEGER" {
		return "1"
	}
	return "TRUE"
}

func (b *sqlStateBackend) ReleaseSyncRecord(ctx context.Context, record SyncRecord) error {
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	query := fmt.Sprintf(`UPDATE sync_records SET cloud_hash=%s, local_hash=%s, cloud_modified=%s, local_modified=%s,
		last_synced=%s, last_direction=%s, is_syncing=%s, status=%s, error_message=%s, retry_count=%s, updated_at=%s
		WHERE doctype=%s AND docname=%s`,
		b.ph(1), b.ph(2), b.ph(3), b.ph(4), b.ph(5), b.ph(6), falseLiteral(b.dialect), b.ph(7), b.ph(8), b.ph(9), b.ph(10), b.ph(11), b.ph(12))
	var lastSynced any
	if record.LastSynced != nil {
		lastSynced = *record.LastSynced
	}
	_, err := b.db.ExecContext(ctx, query,
		record.CloudHash, record.LocalHash, record.CloudModified, record.LocalModified,
		lastSynced, string(record.LastDirection), string(record.Status), record.ErrorMessage, record.RetryCount,
		time.Now().UTC(), record.Doctype, record.Docname)
	return err
}

func (b *sqlStateBackend) ClearAllSyncingFlags(ctx context.Context) error {
	if err := b.ensureSchema(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	query := fmt.Sprintf(`UPDATE sync_records SET is_syncing = %s WHERE is_syncing = %s`, falseLiteral(b.dialect), trueLiteralArg(b.dialect))
	_, err := b.db.ExecContext(ctx, query)
	return err
}

func (b *sqlStateBackend) ListSyncRecords(ctx context.Context, status SyncStatus) ([]SyncRecord, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	var rows *sql.Rows
	var err error
	base := `SELECT doctype, docname, cloud_hash, local_hash, cloud_modified, local_modified,
		last_synced, last_direction, is_syncing, status, error_message, retry_count, created_at, updated_at
		FROM sync_records`
	if status != "" {
		rows, err = b.db.QueryContext(ctx, base+fmt.Sprintf(` WHERE status = %s ORDER BY doctype, docname`, b.ph(1)), string(status))
	} else {
		rows, err = b.db.QueryContext(ctx, base+` ORDER BY doctype, docname`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncRecord
	for rows.Next() {
		var rec SyncRecord
		var lastSynced sql.NullTime
		var lastDirection, st string
		if err := rows.Scan(&rec.Doctype, &rec.Docname, &rec.CloudHash, &rec.LocalHash, &rec.CloudModified, &rec.LocalModified,
			&lastSynced, &lastDirection, &rec.IsSyncing, &st, &rec.ErrorMessage, &rec.RetryCount, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if lastSynced.Valid {
			rec.LastSynced = &lastSynced.Time
		}
		rec.LastDirection = Direction(lastDirection)
		rec.Status = SyncStatus(st)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *sqlStateBackend) AppendLog(ctx context.Context, entry SyncLogEntry) error {
	if err := b.ensureSchema(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	query := fmt.Sprintf(`INSERT INTO sync_logs (ts, doctype, docname, action, direction, status, message)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`, b.ph(1), b.ph(2), b.ph(3), b.ph(4), b.ph(5), b.ph(6), b.ph(7))
	_, err := b.db.ExecContext(ctx, query, entry.Timestamp, entry.Doctype, entry.Docname,
		string(entry.Action), string(entry.Direction), string(entry.Status), entry.Message)
	return err
}

func (b *sqlStateBackend) ListLogs(ctx context.Context, doctype, docname string, limit int) ([]SyncLogEntry, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, ts, doctype, docname, action, direction, status, message FROM sync_logs WHERE 1=1`
	var args []any
	n := 1
	if doctype != "" {
		query += fmt.Sprintf(" AND doctype = %s", b.ph(n))
		args = append(args, doctype)
		n++
	}
	if docname != "" {
		query += fmt.Sprintf(" AND docname = %s", b.ph(n))
		args = append(args, docname)
		n++
	}
	query += fmt.Sprintf(" ORDER BY ts DESC, id DESC LIMIT %s", b.ph(n))
	args = append(args, limit)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		var action, direction, status string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Doctype, &e.Docname, &action, &direction, &status, &e.Message); err != nil {
			return nil, err
		}
		e.Action = LogAction(action)
		e.Direction = Direction(direction)
		e.Status = LogStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *sqlStateBackend) CreateConflict(ctx context.Context, c ConflictRecord) (int64, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`INSERT INTO conflict_records (doctype, docname, cloud_data, local_data, cloud_modified, local_modified, resolved, resolution, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		b.ph(1), b.ph(2), b.ph(3), b.ph(4), b.ph(5), b.ph(6), b.ph(7), b.ph(8), b.ph(9))
	res, err := b.db.ExecContext(ctx, query, c.Doctype, c.Docname, c.CloudData, c.LocalData, c.CloudModified, c.LocalModified,
		c.Resolved, c.Resolution, c.CreatedAt)
	if err != nil {
		return 0, err
	}
	return b.lastInsertID(ctx, res, "conflict_records")
}

// lastInsertID works around the fact that Postgres's database/sql driver
// (lib/pq) does not support LastInsertId; sqlite does. When unsupported we
// fall back to a RETURNING-free MAX(id) read, acceptable here because the
// insert above is not run concurrently with itself under the same backend
// instance's caller (the executor and intake hold their own serialization).
func (b *sqlStateBackend) lastInsertID(ctx context.Context, res sql.Result, table string) (int64, error) {
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		return id, nil
	}
	var id int64
	err := b.db.QueryRowContext(ctx, fmt.Sprintf("SELECT MAX(id) FROM %s", table)).Scan(&id)
	return id, err
}

func (b *sqlStateBackend) ResolveConflict(ctx context.Context, id int64, resolution string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	query := fmt.Sprintf(`UPDATE conflict_records SET resolved = %s, resolution = %s, resolved_at = %s WHERE id = %s`,
		trueLiteralArg(b.dialect), b.ph(1), b.ph(2), b.ph(3))
	_, err := b.db.ExecContext(ctx, query, resolution, at, id)
	return err
}

func (b *sqlStateBackend) ListConflicts(ctx context.Context, onlyUnresolved bool) ([]ConflictRecord, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	query := `SELECT id, doctype, docname, cloud_data, local_data, cloud_modified, local_modified, resolved, resolution, resolved_at, created_at FROM conflict_records`
	if onlyUnresolved {
		query += fmt.Sprintf(` WHERE resolved = %s`, falseLiteral(b.dialect))
	}
	query += ` ORDER BY created_at DESC`
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConflictRecord
	for rows.Next() {
		var c ConflictRecord
		var resolvedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Doctype, &c.Docname, &c.CloudData, &c.LocalData, &c.CloudModified, &c.LocalModified,
			&c.Resolved, &c.Resolution, &resolvedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		if resolvedAt.Valid {
			c.ResolvedAt = &resolvedAt.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (b *sqlStateBackend) Enqueue(ctx context.Context, item WebhookQueueItem) (int64, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`INSERT INTO webhook_queue (source, doctype, docname, action, payload, created_at)
		VALUES (%s, %s, %s, %s, %s, %s)`, b.ph(1), b.ph(2), b.ph(3), b.ph(4), b.ph(5), b.ph(6))
	res, err := b.db.ExecContext(ctx, query, string(item.Source), item.Doctype, item.Docname, string(item.Action), item.Payload, item.CreatedAt)
	if err != nil {
		return 0, err
	}
	return b.lastInsertID(ctx, res, "webhook_queue")
}

func (b *sqlStateBackend) ClaimBatch(ctx context.Context, limit int) ([]WebhookQueueItem, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	if limit <= 0 {
		limit = 10
	}
	selectQuery := fmt.Sprintf(`SELECT id FROM webhook_queue WHERE processed = %s AND processing = %s ORDER BY created_at ASC LIMIT %s`,
		falseLiteral(b.dialect), falseLiteral(b.dialect), b.ph(1))
	rows, err := b.db.QueryContext(ctx, selectQuery, limit)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var claimed []WebhookQueueItem
	for _, id := range ids {
		updateQuery := fmt.Sprintf(`UPDATE webhook_queue SET processing = %s WHERE id = %s AND processed = %s AND processing = %s`,
			trueLiteralArg(b.dialect), b.ph(1), falseLiteral(b.dialect), falseLiteral(b.dialect))
		res, err := b.db.ExecContext(ctx, updateQuery, id)
		if err != nil {
			return nil, err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			continue // lost the claim race to another worker
		}
		item, err := b.scanQueueItem(ctx, id)
		if err != nil {
			continue
		}
		claimed = append(claimed, item)
	}
	return claimed, nil
}

func (b *sqlStateBackend) scanQueueItem(ctx context.Context, id int64) (WebhookQueueItem, error) {
	query := fmt.Sprintf(`SELECT id, source, doctype, docname, action, payload, processed, processing, created_at, processed_at, error_message, retry_count
		FROM webhook_queue WHERE id = %s`, b.ph(1))
	row := b.db.QueryRowContext(ctx, query, id)
	var item WebhookQueueItem
	var source, action string
	var processedAt sql.NullTime
	if err := row.Scan(&item.ID, &source, &item.Doctype, &item.Docname, &action, &item.Payload,
		&item.Processed, &item.Processing, &item.CreatedAt, &processedAt, &item.ErrorMessage, &item.RetryCount); err != nil {
		return WebhookQueueItem{}, err
	}
	item.Source = QueueSource(source)
	item.Action = QueueAction(action)
	if processedAt.Valid {
		item.ProcessedAt = &processedAt.Time
	}
	return item, nil
}

func (b *sqlStateBackend) CompleteItem(ctx context.Context, id int64, errMsg string) error {
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	query := fmt.Sprintf(`UPDATE webhook_queue SET processed = %s, processing = %s, processed_at = %s, error_message = %s WHERE id = %s`,
		trueLiteralArg(b.dialect), falseLiteral(b.dialect), b.ph(1), b.ph(2), b.ph(3))
	_, err := b.db.ExecContext(ctx, query, time.Now().UTC(), errMsg, id)
	return err
}

func (b *sqlStateBackend) ReleaseItem(ctx context.Context, id int64, errMsg string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	query := fmt.Sprintf(`UPDATE webhook_queue SET processing = %s, retry_count = retry_count + 1, error_message = %s WHERE id = %s`,
		falseLiteral(b.dialect), b.ph(1), b.ph(2))
	if _, err := b.db.ExecContext(ctx, query, errMsg, id); err != nil {
		return 0, err
	}
	selectQuery := fmt.Sprintf(`SELECT retry_count FROM webhook_queue WHERE id = %s`, b.ph(1))
	var retryCount int
	if err := b.db.QueryRowContext(ctx, selectQuery, id).Scan(&retryCount); err != nil {
		return 0, err
	}
	return retryCount, nil
}

func (b *sqlStateBackend) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	cutoff := time.Now().UTC().Add(-olderThan)
	query := fmt.Sprintf(`UPDATE webhook_queue SET processing = %s WHERE processing = %s AND processed = %s AND created_at < %s`,
		falseLiteral(b.dialect), trueLiteralArg(b.dialect), falseLiteral(b.dialect), b.ph(1))
	res, err := b.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (b *sqlStateBackend) QueueCounts(ctx context.Context) (int, int, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return 0, 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	query := fmt.Sprintf(`SELECT
		SUM(CASE WHEN processed = %s AND processing = %s THEN 1 ELSE 0 END),
		SUM(CASE WHEN processing = %s THEN 1 ELSE 0 END)
		FROM webhook_queue`, falseLiteral(b.dialect), falseLiteral(b.dialect), trueLiteralArg(b.dialect))
	row := b.db.QueryRowContext(ctx, query)
	var pending, processing sql.NullInt64
	if err := row.Scan(&pending, &processing); err != nil {
		return 0, 0, err
	}
	return int(pending.Int64), int(processing.Int64), nil
}

func (b *sqlStateBackend) Close() error { return b.db.Close() }
