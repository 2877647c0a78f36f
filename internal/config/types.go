package config

// Config is the full daemon configuration. JSON and YAML files are both
// accepted; unknown fields are rejected so typos fail loudly at load
// time.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Registry controls recurring-job triggering.
	Registry RegistryConfig `json:"registry"`

	// Queue controls the ad-hoc worker loop.
	Queue QueueConfig `json:"queue"`

	// Log controls the in-memory execution log.
	Log LogConfig `json:"log,omitempty"`

	Alerts AlertsConfig `json:"alerts,omitempty"`

	// Storage enables the optional execution archive.
	Storage *StorageConfig `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"` // trace|debug|info|warn|error
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type RegistryConfig struct {
	// Timezone is an IANA zone name used to evaluate cron expressions,
	// e.g. "Asia/Kolkata". Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`
}

type QueueConfig struct {
	// MaxAttempts is the default retry budget per ad-hoc job.
	// Defaults to 3 when omitted.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

type LogConfig struct {
	// HistorySize caps the in-memory execution log (oldest entries are
	// dropped). Defaults to 200 when omitted.
	HistorySize int `json:"history_size,omitempty"`
}

type AlertsConfig struct {
	// RatePerSec bounds outbound alert delivery.
	RatePerSec  int `json:"rate_per_sec,omitempty"`
	HistorySize int `json:"history_size,omitempty"`
}

// StorageConfig controls the optional execution archive.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./jobcore_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}
