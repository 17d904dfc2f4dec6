package cli

import (
	"github.com/sirupsen/logrus"

	"github.com/agentworkforce/erpsync/internal/config"
	"github.com/agentworkforce/erpsync/internal/engine"
	"github.com/agentworkforce/erpsync/internal/logging"
)

// runtime bundles the objects every subcommand beyond init needs, built
// once from a validated Config.
type runtime struct {
	cfg      *config.Config
	log      *logrus.Logger
	store    engine.StateBackend
	cloud    engine.RemoteClient
	local    engine.RemoteClient
	executor *engine.Executor
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	store, err := engine.BuildStateBackendFromDSN(cfg.StateBackendDSN)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open state backend", err)
	}

	cloud := engine.NewHTTPClient(cfg.Cloud.BaseURL, cfg.Cloud.APIKey, cfg.Cloud.APISecret, 0)
	local := engine.NewHTTPClient(cfg.Local.BaseURL, cfg.Local.APIKey, cfg.Local.APISecret, 0)

	executor := engine.NewExecutor(cloud, local, store, engine.Policy(cfg.ConflictPolicy), nil, log)
	executor.MaxRetries = cfg.RetryMaxAttempts

	return &runtime{cfg: cfg, log: log, store: store, cloud: cloud, local: local, executor: executor}, nil
}

func (rt *runtime) doctypeLookup(name string) (engine.DoctypeConfig, bool) {
	dc, ok := rt.cfg.DoctypeConfigs()[name]
	return dc, ok
}

func (rt *runtime) close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
}
