package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// RuntimeConfig is the per-machine identity cached under the user config
// directory. The machine key is what the repository's machine-wrap table
// is keyed on: one machine, one logged-in user.
type RuntimeConfig struct {
	MachineKey string    `json:"machine_key"`
	CreatedAt  time.Time `json:"created_at"`
}

var runtimeConfig *RuntimeConfig

// GetRuntimeConfig returns the cached runtime identity.
func GetRuntimeConfig() *RuntimeConfig {
	return runtimeConfig
}

func runtimeConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get user config dir")
	}
	return filepath.Join(dir, "wizard", "runtime.json")
}

// LoadRuntimeConfig loads the identity file, creating it on first run.
// The machine key is derived from the OS machine id, app-scoped so it
// cannot be correlated with other software.
func LoadRuntimeConfig() error {
	path := runtimeConfigPath()
	data, err := os.ReadFile(path)
	if err == nil {
		var rc RuntimeConfig
		if err := json.Unmarshal(data, &rc); err == nil && rc.MachineKey != "" {
			runtimeConfig = &rc
			return nil
		}
		log.Warn().Str("path", path).Msg("runtime config unreadable, regenerating")
	}

	key, err := machineid.ProtectedID("wizard")
	if err != nil {
		return err
	}
	rc := RuntimeConfig{
		MachineKey: key,
		CreatedAt:  time.Now().UTC(),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return err
	}
	runtimeConfig = &rc
	return nil
}
