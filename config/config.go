// Package config loads the custody engine's process-wide configuration from
// a TOML file, grounded on the teacher's own BurntSushi/toml-based config
// loading.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/vault-custody/custody-engine/custodyerr"
)

// VaultMode selects the sealed-vault backend.
type VaultMode string

const (
	VaultModeMemory     VaultMode = "memory"
	VaultModeSimEnclave VaultMode = "sim-enclave"
)

// LogFormat selects the structured-logging encoder.
type LogFormat string

const (
	LogFormatLogfmt LogFormat = "logfmt"
	LogFormatJSON   LogFormat = "json"
)

// Config is the top-level process configuration, one instance per daemon.
type Config struct {
	VaultMode       VaultMode `toml:"vault_mode"`
	PeerServiceDNS  string    `toml:"peer_service_dns"`
	BindAddress     string    `toml:"bind_address"`
	AuditMaxEntries int       `toml:"audit_max_entries"`
	LogDir          string    `toml:"log_dir"`
	LogFormat       LogFormat `toml:"log_format"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		VaultMode:       VaultModeMemory,
		BindAddress:     "0.0.0.0:50051",
		AuditMaxEntries: 500,
		LogFormat:       LogFormatJSON,
	}
}

// Load parses a TOML file at path, applying Default() for any zero-valued
// field the file leaves unset.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, custodyerr.Wrap(err, custodyerr.InvalidArgument, "config.Load", fmt.Sprintf("parsing %s", path))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every field holds a recognized value.
func (c Config) Validate() error {
	switch c.VaultMode {
	case VaultModeMemory, VaultModeSimEnclave:
	default:
		return custodyerr.Newf(custodyerr.InvalidArgument, "config.Validate", "unknown vault_mode %q", c.VaultMode)
	}
	switch c.LogFormat {
	case LogFormatLogfmt, LogFormatJSON:
	default:
		return custodyerr.Newf(custodyerr.InvalidArgument, "config.Validate", "unknown log_format %q", c.LogFormat)
	}
	if c.AuditMaxEntries <= 0 {
		return custodyerr.New(custodyerr.InvalidArgument, "config.Validate", "audit_max_entries must be positive")
	}
	return nil
}
