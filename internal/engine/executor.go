package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// defaultMaxRetries is used when an Executor's MaxRetries is left at its
// zero value, matching the config layer's own default.
const defaultMaxRetries = 5

// keyMutex is an in-process mutual-exclusion map keyed by (doctype, docname),
// the first line of defense against two goroutines racing the same document.
// The is_syncing flag on the SyncRecord is the second line, surviving across
// a process restart where this map does not.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: map[string]*sync.Mutex{}}
}

func (k *keyMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// StatusEvent is published on every SyncOne outcome for the websocket status
// stream to relay; it carries no information the audit log doesn't already
// have durably, so dropping one under backpressure is harmless.
type StatusEvent struct {
	Doctype   string    `json:"doctype"`
	Docname   string    `json:"docname"`
	Direction Direction `json:"direction"`
	Status    LogStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher receives a StatusEvent after every completed sync attempt.
// Implementations must not block the executor; the websocket hub satisfies
// this with a bounded, drop-oldest per-connection channel.
type EventPublisher interface {
	Publish(StatusEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(StatusEvent) {}

// DoctypeConfig pairs a doctype name with the fields excluded from its hash
// and writes, beyond the default set every doctype carries.
type DoctypeConfig struct {
	Name          string
	ExcludeFields []string
}

// Executor wires the remote clients, state backend, conflict policy and
// direction resolver into the single-document operation the worker and CLI
// both call.
type Executor struct {
	Cloud  RemoteClient
	Local  RemoteClient
	Store  StateBackend
	Policy Policy
	// MaxRetries caps SyncRecord.RetryCount: once a failing record's
	// RetryCount exceeds it, its status becomes the terminal `failed` rather
	// than the retryable `error`. Zero means defaultMaxRetries.
	MaxRetries int
	Events     EventPublisher
	Log        *logrus.Logger
	locks      *keyMutex
}

func (e *Executor) maxRetries() int {
	if e.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return e.MaxRetries
}

// isTerminalError reports whether err belongs to an error class the error
// handling design marks non-retryable: an authentication failure or a
// destination-side validation rejection, either of which requires operator
// intervention rather than another attempt.
func isTerminalError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrValidation)
}

// NewExecutor constructs an Executor. events and log may be nil, in which
// case a no-op publisher and the standard logger are used.
func NewExecutor(cloud, local RemoteClient, store StateBackend, policy Policy, events EventPublisher, log *logrus.Logger) *Executor {
	if events == nil {
		events = noopPublisher{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{Cloud: cloud, Local: local, Store: store, Policy: policy, Events: events, Log: log, locks: newKeyMutex()}
}

// SyncOne runs one full reconciliation pass for (doctype, docname): acquire
// the lock, fetch both sides, resolve the direction, apply it (or resolve a
// conflict first), persist the new record, append the audit log entry, and
// publish a status event. hint is the direction implied by a webhook's
// origin, if this call was triggered by one; pass DirectionNone otherwise.
func (e *Executor) SyncOne(ctx context.Context, cfg DoctypeConfig, docname string, hint Direction) Outcome {
	key := cfg.Name + "/" + docname
	unlock := e.locks.lock(key)
	defer unlock()

	ok, err := e.Store.ClaimSyncRecord(ctx, cfg.Name, docname)
	if err != nil {
		return Outcome{Err: fmt.Errorf("claim sync record: %w", err)}
	}
	if !ok {
		return Outcome{Skipped: "already syncing"}
	}

	record, err := e.Store.GetOrCreateSyncRecord(ctx, cfg.Name, docname)
	if err != nil {
		e.releaseOnError(ctx, record, err)
		return Outcome{Err: fmt.Errorf("load sync record: %w", err)}
	}
	defer func() {
		if r := recover(); r != nil {
			e.releaseOnError(ctx, record, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	outcome := e.run(ctx, cfg, docname, hint, &record)

	record.UpdatedAt = time.Now().UTC()
	if outcome.Err != nil {
		record.Status = StatusError
		record.ErrorMessage = outcome.Err.Error()
		record.RetryCount++
		if isTerminalError(outcome.Err) || record.RetryCount > e.maxRetries() {
			record.Status = StatusFailed
		}
	} else if outcome.Conflict {
		record.Status = StatusConflict
	} else {
		record.Status = StatusSynced
		record.ErrorMessage = ""
		record.RetryCount = 0
		now := time.Now().UTC()
		record.LastSynced = &now
		record.LastDirection = outcome.Direction
	}
	if releaseErr := e.Store.ReleaseSyncRecord(ctx, record); releaseErr != nil {
		e.Log.WithError(releaseErr).WithFields(logrus.Fields{"doctype": cfg.Name, "docname": docname}).
			Error("release sync record")
	}

	e.audit(ctx, cfg.Name, docname, outcome)
	e.Events.Publish(StatusEvent{
		Doctype:   cfg.Name,
		Docname:   docname,
		Direction: outcome.Direction,
		Status:    e.logStatus(outcome),
		Message:   e.errMessage(outcome.Err),
		Timestamp: time.Now().UTC(),
	})
	return outcome
}

func (e *Executor) releaseOnError(ctx context.Context, record SyncRecord, err error) {
	record.Status = StatusError
	record.ErrorMessage = err.Error()
	_ = e.Store.ReleaseSyncRecord(ctx, record)
}

// run performs the fetch/resolve/apply/reconcile sequence with the lock
// already held and the record already claimed; it never touches Store's
// claim/release bookkeeping itself. On a TimestampMismatch that survives the
// RemoteClient's own retry, it refetches both sides and returns to direction
// resolution once, at most, to avoid livelocking against a fast writer.
func (e *Executor) run(ctx context.Context, cfg DoctypeConfig, docname string, hint Direction, record *SyncRecord) Outcome {
	cloud, err := e.Cloud.Get(ctx, cfg.Name, docname)
	if err != nil {
		return Outcome{Err: fmt.Errorf("fetch cloud: %w", err)}
	}
	local, err := e.Local.Get(ctx, cfg.Name, docname)
	if err != nil {
		return Outcome{Err: fmt.Errorf("fetch local: %w", err)}
	}

	reResolved := false
	for {
		if cloud != nil {
			record.CloudModified = cloud.Modified()
		}
		if local != nil {
			record.LocalModified = local.Modified()
		}

		direction := ResolveDirection(cloud, local, *record, cfg.ExcludeFields, hint)

		if direction == DirectionConflict {
			decision := ResolveConflict(e.Policy, record.CloudModified, record.LocalModified)
			conflictID, convErr := e.Store.CreateConflict(ctx, ConflictRecord{
				Doctype:       cfg.Name,
				Docname:       docname,
				CloudData:     toJSON(cloud),
				LocalData:     toJSON(local),
				CloudModified: record.CloudModified,
				LocalModified: record.LocalModified,
			})
			if convErr != nil {
				e.Log.WithError(convErr).Warn("persist conflict record")
			}
			if decision.Direction == DirectionConflict {
				return Outcome{Direction: DirectionConflict, Conflict: true}
			}
			if convErr == nil {
				if err := e.Store.ResolveConflict(ctx, conflictID, decision.Resolution, time.Now().UTC()); err != nil {
					e.Log.WithError(err).Warn("mark conflict record resolved")
				}
			}
			direction = decision.Direction
		}

		var dest RemoteClient
		var source, existing Document
		switch direction {
		case DirectionNone, DirectionSkip:
			e.syncHashes(record, cloud, local, cfg.ExcludeFields)
			return Outcome{Direction: direction, Action: ActionSkip, Skipped: "no changes"}
		case DirectionCloudToLocal:
			dest, source, existing = e.Local, cloud, local
		case DirectionLocalToCloud:
			dest, source, existing = e.Cloud, local, cloud
		}

		action, applyErr := e.apply(ctx, dest, cfg, docname, source, existing)
		if applyErr != nil {
			if errors.Is(applyErr, ErrTimestampMismatch) && !reResolved {
				reResolved = true
				refetchedCloud, err := e.Cloud.Get(ctx, cfg.Name, docname)
				if err != nil {
					return Outcome{Direction: direction, Action: action, Err: fmt.Errorf("refetch cloud: %w", err)}
				}
				refetchedLocal, err := e.Local.Get(ctx, cfg.Name, docname)
				if err != nil {
					return Outcome{Direction: direction, Action: action, Err: fmt.Errorf("refetch local: %w", err)}
				}
				cloud, local = refetchedCloud, refetchedLocal
				continue
			}
			return Outcome{Direction: direction, Action: action, Err: applyErr}
		}
		return e.finish(ctx, cfg, docname, direction, action, cloud, local, record)
	}
}

// finish refetches the written-to side to pick up its new `modified`, sets
// both recorded hashes to the source document's hash so they agree by
// construction, and updates the sync record's modified snapshots.
func (e *Executor) finish(ctx context.Context, cfg DoctypeConfig, docname string, direction Direction, action LogAction, cloud, local Document, record *SyncRecord) Outcome {
	finalCloud, finalLocal := cloud, local
	var sourceHash string
	if direction == DirectionCloudToLocal {
		sourceHash = CanonicalHash(cloud, cfg.ExcludeFields)
		if refetched, err := e.Local.Get(ctx, cfg.Name, docname); err == nil {
			finalLocal = refetched
		}
	} else if direction == DirectionLocalToCloud {
		sourceHash = CanonicalHash(local, cfg.ExcludeFields)
		if refetched, err := e.Cloud.Get(ctx, cfg.Name, docname); err == nil {
			finalCloud = refetched
		}
	}
	record.CloudHash, record.LocalHash = sourceHash, sourceHash
	if finalCloud != nil {
		record.CloudModified = finalCloud.Modified()
	}
	if finalLocal != nil {
		record.LocalModified = finalLocal.Modified()
	}
	return Outcome{Direction: direction, Action: action}
}

func (e *Executor) syncHashes(record *SyncRecord, cloud, local Document, excluded []string) {
	record.CloudHash = CanonicalHash(cloud, excluded)
	record.LocalHash = CanonicalHash(local, excluded)
}

// apply writes source's content to dest's side, creating if the destination
// document doesn't exist yet and updating otherwise, and reports which kind
// of write it attempted so the caller can audit it accurately even when the
// write itself failed.
func (e *Executor) apply(ctx context.Context, dest RemoteClient, cfg DoctypeConfig, docname string, source, existing Document) (LogAction, error) {
	if source == nil {
		return ActionSkip, nil
	}
	if existing == nil {
		payload := CleanForSync(source, cfg.ExcludeFields, true)
		_, err := dest.Create(ctx, cfg.Name, payload)
		return ActionCreate, err
	}
	payload := CleanForSync(source, cfg.ExcludeFields, false)
	payload["modified"] = existing.Modified()
	_, err := dest.Update(ctx, cfg.Name, docname, payload)
	return ActionUpdate, err
}

func (e *Executor) audit(ctx context.Context, doctype, docname string, o Outcome) {
	action := o.Action
	if action == "" {
		action = ActionSkip
	}
	entry := SyncLogEntry{
		Doctype:   doctype,
		Docname:   docname,
		Action:    action,
		Direction: o.Direction,
		Status:    e.logStatus(o),
		Message:   e.errMessage(o.Err),
	}
	if err := e.Store.AppendLog(ctx, entry); err != nil {
		e.Log.WithError(err).Warn("append audit log")
	}
}

func (e *Executor) logStatus(o Outcome) LogStatus {
	switch {
	case o.Err != nil:
		return LogFailed
	case o.Conflict:
		return LogConflict
	case o.Skipped != "":
		return LogSkipped
	default:
		return LogSuccess
	}
}

func (e *Executor) errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func toJSON(doc Document) string {
	if doc == nil {
		return "null"
	}
	buf, err := json.Marshal(doc)
	if err != nil {
		return "null"
	}
	return string(buf)
}

// SyncAll runs SyncOne across every document of cfg's doctype known to
// either side, merging the name sets from both remotes' List calls.
func (e *Executor) SyncAll(ctx context.Context, cfg DoctypeConfig, pageSize int) (Summary, error) {
	names, err := e.listAllNames(ctx, cfg.Name, pageSize)
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	for _, name := range names {
		summary.Add(e.SyncOne(ctx, cfg, name, DirectionNone))
	}
	return summary, nil
}

func (e *Executor) listAllNames(ctx context.Context, doctype string, pageSize int) ([]string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	seen := map[string]struct{}{}
	var names []string
	for _, client := range []RemoteClient{e.Cloud, e.Local} {
		offset := 0
		for {
			docs, err := client.List(ctx, doctype, nil, pageSize, offset)
			if err != nil {
				return nil, err
			}
			for _, d := range docs {
				n := d.Name()
				if n == "" {
					continue
				}
				if _, ok := seen[n]; !ok {
					seen[n] = struct{}{}
					names = append(names, n)
				}
			}
			if len(docs) < pageSize {
				break
			}
			offset += pageSize
		}
	}
	return names, nil
}
