package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	audithook "github.com/xraph/factor/audit_hook"
	"github.com/xraph/factor/config"
	"github.com/xraph/factor/plugin"
	"github.com/xraph/factor/publisher"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/store/memory"
	"github.com/xraph/factor/store/mongo"
	"github.com/xraph/factor/store/postgres"
	"github.com/xraph/factor/store/sqlite"
)

func loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore connects the backend selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DSN, postgres.WithLogger(logger))
	case config.DriverSQLite:
		return sqlite.Open(cfg.DSN, sqlite.WithLogger(logger))
	case config.DriverMongo:
		return mongo.Open(cfg.DSN, cfg.Database, mongo.WithLogger(logger))
	default:
		return nil, errors.Newf("unknown store driver %q", cfg.Driver)
	}
}

// openEvents builds the message publisher selected by cfg.Destination. It
// returns nil when events are not published.
func openEvents(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (message.Publisher, error) {
	switch cfg.Destination {
	case config.DestinationNone, "":
		return nil, nil
	case config.DestinationMemory:
		return publisher.NewMemory(logger), nil
	case config.DestinationKafka:
		return publisher.NewKafka(cfg.KafkaBrokers, logger)
	case config.DestinationRedis:
		client, err := publisher.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		return publisher.NewRedisStream(client, cfg.RedisMaxLen), nil
	default:
		return nil, errors.Newf("unknown events destination %q", cfg.Destination)
	}
}

// plugins returns the plugins every factord process runs: the audit trail
// written to logger and, when configured, the event publisher.
func plugins(pub message.Publisher, cfg config.EventsConfig, logger *slog.Logger) []plugin.Plugin {
	audit := audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			"audit_id", evt.ID.String(),
			"action", evt.Action,
			"resource", evt.Resource,
			"resource_id", evt.ResourceID,
			"actor", evt.Actor,
			"outcome", evt.Outcome,
			"severity", evt.Severity,
			"reason", evt.Reason,
		)
		return nil
	}), audithook.WithLogger(logger))

	out := []plugin.Plugin{audit}
	if pub != nil {
		out = append(out, publisher.New(pub,
			publisher.WithTopicPrefix(cfg.TopicPrefix),
			publisher.WithLogger(logger),
		))
	}
	return out
}
