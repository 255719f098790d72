package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/bazaar/internal/api"
	"github.com/tOgg1/bazaar/internal/auth"
	"github.com/tOgg1/bazaar/internal/config"
	"github.com/tOgg1/bazaar/internal/favorites"
	"github.com/tOgg1/bazaar/internal/kv"
	"github.com/tOgg1/bazaar/internal/logging"
	"github.com/tOgg1/bazaar/internal/market"
)

// Runtime bundles everything a command needs. Close releases the store and
// log file.
type Runtime struct {
	Config    *config.Config
	Store     kv.Store
	Client    *api.Client
	Auth      *auth.Manager
	Favorites *favorites.Cache
	JSON      bool

	closers []io.Closer
}

// flagOverrides maps persistent flags to config keys.
var flagOverrides = map[string]string{
	"api-url":    "api.base_url",
	"data-dir":   "storage.data_dir",
	"storage":    "storage.backend",
	"log-level":  "logging.level",
	"log-format": "logging.format",
}

// EnsureRuntime loads configuration, initializes logging and opens the
// local store.
func EnsureRuntime(cmd *cobra.Command) (*Runtime, error) {
	loader := config.NewLoader()
	if path, _ := cmd.Flags().GetString("config"); strings.TrimSpace(path) != "" {
		loader.SetConfigFile(path)
	}
	if path, _ := cmd.Flags().GetString("env-file"); strings.TrimSpace(path) != "" {
		loader.SetEnvFile(path)
	}
	for flag, key := range flagOverrides {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			loader.Set(key, f.Value.String())
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, Exitf(ExitCodeUsage, "%v", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.File = cfg.Logging.File
	logCfg.EnableCaller = cfg.Logging.EnableCaller
	logCfg.Output = cmd.ErrOrStderr()
	logCloser, err := logging.Init(logCfg)
	if err != nil {
		return nil, Exitf(ExitCodeFailure, "init logging: %v", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		_ = logCloser.Close()
		return nil, Exitf(ExitCodeFailure, "%v", err)
	}
	store, err := kv.Open(cfg.Storage.Backend, cfg.StatePath())
	if err != nil {
		_ = logCloser.Close()
		return nil, Exitf(ExitCodeFailure, "open store: %v", err)
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	rt := &Runtime{
		Config:    cfg,
		Store:     store,
		Client:    api.New(cfg.API.BaseURL, api.WithTimeout(cfg.API.Timeout)),
		Auth:      auth.NewManager(store),
		Favorites: favorites.New(store),
		JSON:      jsonOut,
		closers:   []io.Closer{store, logCloser},
	}

	logger := logging.Component("cli")
	logger.Debug().
		Str("config", loader.ConfigFileUsed()).
		Str("api", cfg.API.BaseURL).
		Str("store", cfg.StatePath()).
		Msg("runtime ready")
	return rt, nil
}

// Close releases resources in order.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RequireSession returns the stored session or an auth exit error.
func (r *Runtime) RequireSession(ctx context.Context) (market.Session, error) {
	s := r.Auth.Current(ctx)
	if !s.Active() {
		return market.Session{}, Exitf(ExitCodeAuth, "not signed in; run `bazaar login`")
	}
	return s, nil
}

// withRuntime wraps a command body with runtime setup and teardown.
func withRuntime(run func(cmd *cobra.Command, args []string, rt *Runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := EnsureRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		return run(cmd, args, rt)
	}
}
