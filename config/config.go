// Package config loads and saves onramp-vm's TOML configuration file: a
// DefaultConfig fallback, a per-OS config path, and Load/Save helpers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config holds onramp-vm's host-side runtime configuration. None of these
// fields are visible to the guest ABI; they tune how the host runs the VM.
type Config struct {
	Memory struct {
		// SizeBytes selects the VM image size. The supported sizes are
		// 16 MiB and 32 MiB; LoadFrom does not itself enforce the
		// constraint (a caller building a new config file by hand could
		// pick any value), but MemorySizeOrDefault does.
		SizeBytes       uint32 `toml:"size_bytes"`
		StrictAlignment bool   `toml:"strict_alignment"`
	} `toml:"memory"`

	Execution struct {
		// MaxInstructions is a host-side safety net, 0 = unbounded.
		MaxInstructions uint64 `toml:"max_instructions"`
	} `toml:"execution"`

	Trace struct {
		Enabled    bool   `toml:"enabled"`
		OutputFile string `toml:"output_file"`
	} `toml:"trace"`

	Debugger struct {
		HistorySize   int  `toml:"history_size"`
		ShowRegisters bool `toml:"show_registers"`
	} `toml:"debugger"`

	API struct {
		Enabled bool `toml:"enabled"`
		Port    int  `toml:"port"`
	} `toml:"api"`
}

// DefaultConfig returns a Config with onramp-vm's default settings.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Memory.SizeBytes = 16 * 1024 * 1024
	cfg.Memory.StrictAlignment = true

	cfg.Execution.MaxInstructions = 0

	cfg.Trace.Enabled = false
	cfg.Trace.OutputFile = "trace.log"

	cfg.Debugger.HistorySize = 1000
	cfg.Debugger.ShowRegisters = true

	cfg.API.Enabled = false
	cfg.API.Port = 8080

	return cfg
}

// GetConfigPath returns the platform-specific config file path.
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "onramp-vm")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "onramp-vm")

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the default config file.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from the specified file. A missing file is
// not an error: the defaults are returned as-is.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to the specified file.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// MemorySizeOrDefault clamps cfg's configured memory size to one of the
// two supported image sizes, falling back to the 16 MiB default for
// anything else.
func (c *Config) MemorySizeOrDefault() uint32 {
	const mib16 = 16 * 1024 * 1024
	const mib32 = 32 * 1024 * 1024
	switch c.Memory.SizeBytes {
	case mib16, mib32:
		return c.Memory.SizeBytes
	default:
		return mib16
	}
}
