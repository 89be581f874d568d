package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vault-custody/custody-engine/custodyerr"
)

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custody.toml")
	require.NoError(t, os.WriteFile(path, []byte(`vault_mode = "sim-enclave"`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, VaultModeSimEnclave, cfg.VaultMode)
	require.Equal(t, 500, cfg.AuditMaxEntries)
	require.Equal(t, LogFormatJSON, cfg.LogFormat)
}

func TestLoadRejectsUnknownVaultMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custody.toml")
	require.NoError(t, os.WriteFile(path, []byte(`vault_mode = "hsm"`), 0o600))

	_, err := Load(path)
	require.Equal(t, custodyerr.InvalidArgument, custodyerr.KindOf(err))
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
