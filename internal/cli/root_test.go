package cli

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/hub-sales-bot/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "sweep", "migrate"}, names)
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	_, err := execute(t, "serve", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestServe_MissingTokenIsConfigError(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("USE_MEMORY_STORE", "true")

	_, err := execute(t, "serve")

	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfigMissing))
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}

func TestSweep_MissingDatabaseIsConfigError(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("USE_MEMORY_STORE", "false")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "")

	_, err := execute(t, "sweep")

	require.Error(t, err)
	var missing *types.ConfigMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "DATABASE_URL", missing.Setting)
}

func TestMigrate_MemoryStore(t *testing.T) {
	t.Setenv("USE_MEMORY_STORE", "true")

	_, err := execute(t, "migrate")

	assert.ErrorIs(t, err, errMemoryStore)
}
