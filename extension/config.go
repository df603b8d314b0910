package extension

import "time"

// Config holds the factor extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.factor" or "factor" keys).
type Config struct {
	// DisableRoutes prevents building the HTTP handler.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableScheduler prevents the due-date watcher from running.
	DisableScheduler bool `json:"disable_scheduler" mapstructure:"disable_scheduler" yaml:"disable_scheduler"`

	// BasePath is the URL prefix for marketplace routes (default: "/factor").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// DueScanInterval is how often the watcher looks for invoices that
	// reached their due date (default: 1m).
	DueScanInterval time.Duration `json:"due_scan_interval" mapstructure:"due_scan_interval" yaml:"due_scan_interval"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:        "/factor",
		DueScanInterval: time.Minute,
		PluginTimeout:   5 * time.Second,
	}
}
