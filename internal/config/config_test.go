package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kolpa/bakare/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func Test_Load_Fails_Without_A_Repository_Path(t *testing.T) {
	t.Parallel()

	_, _, err := config.Load(t.TempDir(), "", config.Config{}, nil)
	require.ErrorIs(t, err, config.ErrRepositoryRequired)
}

func Test_Load_Accepts_Repository_From_CLI_Override(t *testing.T) {
	t.Parallel()

	cfg, _, err := config.Load(t.TempDir(), "", config.Config{Repository: "/backups/home"}, nil)
	require.NoError(t, err)
	require.Equal(t, "/backups/home", cfg.Repository)
	require.Equal(t, 8192*time.Millisecond, cfg.LockTimeout)
}

func Test_Load_Reads_Project_Config_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{
		// trailing comments are fine, it's JSONC
		"repository": "/backups/project",
		"save_index_every": 32,
	}`)

	cfg, sources, err := config.Load(dir, "", config.Config{}, nil)
	require.NoError(t, err)
	require.Equal(t, "/backups/project", cfg.Repository)
	require.Equal(t, 32, cfg.SaveIndexEvery)
	require.Equal(t, filepath.Join(dir, config.FileName), sources.Project)
}

func Test_Load_CLI_Override_Wins_Over_Project_Config(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{"repository": "/backups/project"}`)

	cfg, _, err := config.Load(dir, "", config.Config{Repository: "/backups/cli"}, nil)
	require.NoError(t, err)
	require.Equal(t, "/backups/cli", cfg.Repository)
}

func Test_Load_Explicit_Config_Path_Must_Exist(t *testing.T) {
	t.Parallel()

	_, _, err := config.Load(t.TempDir(), "does-not-exist.json", config.Config{Repository: "/backups"}, nil)
	require.ErrorIs(t, err, config.ErrConfigFileNotFound)
}

func Test_Load_Rejects_Malformed_Config(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{not valid json`)

	_, _, err := config.Load(dir, "", config.Config{Repository: "/backups"}, nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func Test_IndexSecret_Resolves_From_Configured_Env_Var(t *testing.T) {
	t.Parallel()

	cfg := config.Config{IndexSecretEnv: "BAKARE_INDEX_SECRET"}
	env := []string{"PATH=/usr/bin", "BAKARE_INDEX_SECRET=hunter2"}

	require.Equal(t, []byte("hunter2"), cfg.IndexSecret(env))
}

func Test_IndexSecret_Is_Nil_When_Unconfigured(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}

	require.Nil(t, cfg.IndexSecret([]string{"BAKARE_INDEX_SECRET=hunter2"}))
}
