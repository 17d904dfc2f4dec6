package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/erpsync/internal/config"
	"github.com/agentworkforce/erpsync/internal/webhook"
	"github.com/agentworkforce/erpsync/internal/worker"
)

func newWebhookCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Run the webhook intake server and background queue worker",
		Long: `Runs the notification intake HTTP server (POST /webhook/{source},
GET /events, GET /status, GET /health) and the queue worker that drains
durably queued notifications into sync operations, as one process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWebhook(cmd, root)
		},
	}
	return cmd
}

func runWebhook(cmd *cobra.Command, root *RootOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.store.ClearAllSyncingFlags(ctx); err != nil {
		return WrapExitError(ExitCommandError, "clear stale syncing flags", err)
	}

	hub := webhook.NewHub(rt.log)
	rt.executor.Events = hub

	server := webhook.NewServer(webhook.Config{
		Secret:          cfg.WebhookSecret,
		SignatureHeader: cfg.WebhookSignatureHeader,
	}, rt.store, cfg.Names(), hub, rt.log)
	httpServer := &http.Server{Addr: cfg.WebhookAddr, Handler: server.Router()}

	w := worker.New(rt.store, rt.executor, rt.doctypeLookup, worker.Config{
		PollInterval:    cfg.PollInterval,
		BatchSize:       cfg.BatchSize,
		StaleClaimAfter: cfg.StaleClaimAfter,
		MaxRetries:      cfg.RetryMaxAttempts,
	}, rt.log)

	watcher, err := config.NewWatcher(root.ConfigPath, cfg, rt.log)
	if err != nil {
		rt.log.WithError(err).Warn("config: hot-reload watcher unavailable")
	}
	reloadStop := make(chan struct{})
	if watcher != nil {
		defer watcher.Close()
		go watcher.Run(reloadStop, func(reloaded *config.Config) {
			rt.cfg = reloaded
		})
		defer close(reloadStop)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "webhook intake listening on %s\n", cfg.WebhookAddr)
	go w.Run(ctx)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitRunFailure, "webhook server failed", err)
	}
	return nil
}
