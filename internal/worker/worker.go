// Package worker drains the durable webhook queue in the background,
// translating each claimed notification into a single executor.SyncOne call.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentworkforce/erpsync/internal/engine"
)

// Config bounds the worker's polling behavior.
type Config struct {
	PollInterval    time.Duration
	BatchSize       int
	StaleClaimAfter time.Duration
	// MaxRetries caps a queue item's retry_count; an item that fails past
	// this ceiling is marked processed (with its error preserved) instead of
	// being released back to the queue, so it can no longer block draining.
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.StaleClaimAfter <= 0 {
		c.StaleClaimAfter = 5 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	return c
}

// DoctypeLookup resolves a queued item's doctype name to the exclude-field
// configuration the executor needs; items for doctypes no longer configured
// are marked complete with an error rather than retried forever.
type DoctypeLookup func(doctype string) (engine.DoctypeConfig, bool)

// Worker drains engine.StateBackend's webhook queue on a fixed interval and
// runs a periodic sweep to reclaim stale claims left by a crashed worker.
type Worker struct {
	store    engine.StateBackend
	executor *engine.Executor
	lookup   DoctypeLookup
	cfg      Config
	log      *logrus.Logger

	wg sync.WaitGroup
}

// New constructs a Worker. log may be nil, in which case the standard
// logger is used.
func New(store engine.StateBackend, executor *engine.Executor, lookup DoctypeLookup, cfg Config, log *logrus.Logger) *Worker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Worker{store: store, executor: executor, lookup: lookup, cfg: cfg.withDefaults(), log: log}
}

// Run blocks, polling the queue and sweeping stale claims until ctx is
// canceled. It is safe to call Run concurrently with other Workers sharing
// the same StateBackend; ClaimBatch and ReclaimStale are both atomic.
func (w *Worker) Run(ctx context.Context) {
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()
	go func() {
		defer w.wg.Done()
		w.sweepLoop(ctx)
	}()
	w.wg.Wait()
}

func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *Worker) sweepLoop(ctx context.Context) {
	interval := w.cfg.StaleClaimAfter / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.store.ReclaimStale(ctx, w.cfg.StaleClaimAfter)
			if err != nil {
				w.log.WithError(err).Warn("reclaim stale webhook claims")
				continue
			}
			if n > 0 {
				w.log.WithField("count", n).Info("reclaimed stale webhook claims")
			}
		}
	}
}

// drainOnce claims and processes one batch; it recovers from a panic in any
// single item's handling so one malformed payload can't take the loop down.
func (w *Worker) drainOnce(ctx context.Context) {
	items, err := w.store.ClaimBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		w.log.WithError(err).Warn("claim webhook batch")
		return
	}
	for _, item := range items {
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item engine.WebhookQueueItem) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("panic", r).WithFields(logrus.Fields{
				"doctype": item.Doctype, "docname": item.Docname,
			}).Error("recovered panic processing webhook item")
			_, _ = w.store.ReleaseItem(ctx, item.ID, "recovered from panic")
		}
	}()

	cfg, ok := w.lookup(item.Doctype)
	if !ok {
		_ = w.store.CompleteItem(ctx, item.ID, "doctype not configured for sync")
		return
	}

	outcome := w.executor.SyncOne(ctx, cfg, item.Docname, item.Source.DirectionHint())
	if outcome.Err != nil {
		retryCount, err := w.store.ReleaseItem(ctx, item.ID, outcome.Err.Error())
		if err != nil {
			w.log.WithError(err).Warn("release failed webhook item")
			return
		}
		if retryCount > w.cfg.MaxRetries {
			w.log.WithFields(logrus.Fields{
				"doctype": item.Doctype, "docname": item.Docname, "retry_count": retryCount,
			}).Warn("webhook item exceeded retry ceiling, marking processed")
			if err := w.store.CompleteItem(ctx, item.ID, outcome.Err.Error()); err != nil {
				w.log.WithError(err).Warn("complete exhausted webhook item")
			}
		}
		return
	}
	if err := w.store.CompleteItem(ctx, item.ID, ""); err != nil {
		w.log.WithError(err).Warn("complete webhook item")
	}
}
