package cli

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/factor/config"
	"github.com/xraph/factor/publisher"
	"github.com/xraph/factor/store/memory"
	"github.com/xraph/factor/store/sqlite"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "factord dev (none)\n", out.String())
}

func TestMigrateCommandSQLite(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "factor.db")
	t.Setenv("FACTOR_STORE_DRIVER", "sqlite")
	t.Setenv("FACTOR_STORE_DSN", dsn)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "sqlite store migrated\n", out.String())
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	st, err := openStore(ctx, config.StoreConfig{Driver: config.DriverMemory}, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, st)

	st, err = openStore(ctx, config.StoreConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "factor.db"),
	}, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, st)
	require.NoError(t, st.Close())

	_, err = openStore(ctx, config.StoreConfig{Driver: "cassandra"}, slog.Default())
	assert.Error(t, err)
}

func TestOpenEvents(t *testing.T) {
	ctx := context.Background()

	pub, err := openEvents(ctx, config.EventsConfig{Destination: config.DestinationNone}, slog.Default())
	require.NoError(t, err)
	assert.Nil(t, pub)

	pub, err = openEvents(ctx, config.EventsConfig{Destination: config.DestinationMemory}, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, pub)
	require.NoError(t, pub.Close())

	_, err = openEvents(ctx, config.EventsConfig{Destination: "carrier-pigeon"}, slog.Default())
	assert.Error(t, err)
}

func TestPluginsIncludePublisher(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	ps := plugins(nil, config.EventsConfig{}, logger)
	require.Len(t, ps, 1)

	ps = plugins(publisher.NewMemory(logger), config.EventsConfig{TopicPrefix: "x"}, logger)
	require.Len(t, ps, 2)
	assert.Equal(t, "event-publisher", ps[1].Name())
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, config.LogConfig{Level: "info", Format: "json"}).Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	buf.Reset()
	newLogger(&buf, config.LogConfig{Level: "warn", Format: "text"}).Info("hidden")
	assert.Empty(t, buf.String())
}
