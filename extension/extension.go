// Package extension provides the Forge extension adapter for factor.
//
// It implements the forge.Extension interface to integrate the invoice
// marketplace into a Forge application with DI registration and lifecycle
// management: the engine is provided to the container, migrations run on
// start and the due-date watcher runs while the app is up.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.factor" or "factor" keys.
package extension

import (
	"context"
	"errors"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/factor"
	"github.com/xraph/factor/api"
	"github.com/xraph/factor/scheduler"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "factor"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Invoice factoring marketplace"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts factor as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *factor.Engine
	store      store.Store
	watcher    *scheduler.Watcher
	handler    http.Handler
	engineOpts []factor.Option
}

// New creates a new factor Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying marketplace engine.
// This is nil until Register is called.
func (e *Extension) Engine() *factor.Engine { return e.engine }

// Handler returns the marketplace HTTP handler, mounted under the
// configured base path. It is nil until Register is called or when routes
// are disabled.
func (e *Extension) Handler() http.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = factor.New(e.store, e.buildEngineOpts()...)

	if !e.config.DisableScheduler {
		e.watcher = scheduler.New(e.engine, scheduler.WithInterval(e.config.DueScanInterval))
	}
	if !e.config.DisableRoutes {
		e.handler = api.New(e.engine, api.WithBasePath(e.config.BasePath)).Handler()
	}

	return vessel.Provide(fapp.Container(), func() (*factor.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("factor: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if e.watcher != nil {
		if err := e.watcher.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Stop())
	}
	if e.engine != nil {
		errs = append(errs, e.engine.Stop(ctx))
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("factor: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs factor.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []factor.Option {
	opts := make([]factor.Option, 0, len(e.engineOpts)+1)

	if e.config.PluginTimeout > 0 {
		opts = append(opts, factor.WithPluginTimeout(e.config.PluginTimeout))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("factor: configuration is required but not found in config files; " +
				"ensure 'extensions.factor' or 'factor' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("factor: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_scheduler", e.config.DisableScheduler),
		forge.F("base_path", e.config.BasePath),
		forge.F("due_scan_interval", e.config.DueScanInterval),
		forge.F("plugin_timeout", e.config.PluginTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.factor", "factor"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("factor: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("factor: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.DueScanInterval == 0 {
		cfg.DueScanInterval = defaults.DueScanInterval
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableScheduler {
		yamlConfig.DisableScheduler = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}

	// Durations: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.DueScanInterval == 0 && programmaticConfig.DueScanInterval != 0 {
		yamlConfig.DueScanInterval = programmaticConfig.DueScanInterval
	}
	if yamlConfig.PluginTimeout == 0 && programmaticConfig.PluginTimeout != 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
