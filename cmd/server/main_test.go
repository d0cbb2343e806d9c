package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper/internal/config"
)

func TestNewLogger(t *testing.T) {
	var cfg config.Config
	cfg.Log.Level = "debug"
	cfg.Log.Format = "JSON"

	logger, err := newLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	cfg.Log.Format = "text"
	cfg.Log.Level = "warn"
	logger, err = newLogger(cfg)
	require.NoError(t, err)
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	cfg.Log.Level = "loud"
	_, err = newLogger(cfg)
	require.Error(t, err)
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "migrate", "backup", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.RunE)
}

func TestMigrateCreatesSchema(t *testing.T) {
	t.Setenv("NOTEKEEPER_DATABASE_PATH", t.TempDir()+"/nested/notes.db")

	root := rootCmd()
	root.SetArgs([]string{"migrate"})
	require.NoError(t, root.Execute())

	a, err := setup(t.Context())
	require.NoError(t, err)
	defer a.close()

	var count int
	require.NoError(t, a.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'notes')`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestBackupRequiresBucket(t *testing.T) {
	t.Setenv("NOTEKEEPER_DATABASE_PATH", t.TempDir()+"/notes.db")

	root := rootCmd()
	root.SetArgs([]string{"backup"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}
