package anchor

import (
	"os"
	"path/filepath"
)

// Config holds all configuration for the Anchor core. Loading it from a
// file or environment is the external config-loader collaborator's job;
// this struct only defines and defaults the recognized options.
type Config struct {
	// DBPath is the full path to the SQLite database file. If empty,
	// defaults to ~/.anchor/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is
	// not explicitly set. "home" (default) uses ~/.anchor/, "local" uses
	// the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Server carries the bind target for the external HTTP collaborator.
	// The core never reads it.
	Server ServerConfig `json:"server" yaml:"server"`

	Search   SearchConfig   `json:"search" yaml:"search"`
	Ingest   IngestConfig   `json:"ingest" yaml:"ingest"`
	Vector   VectorConfig   `json:"vector" yaml:"vector"`
	Resource ResourceConfig `json:"resource" yaml:"resource"`
	Buckets  BucketsConfig  `json:"buckets" yaml:"buckets"`

	// Embedding is the embedding provider endpoint.
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
}

// ServerConfig is bind-target plumbing read only by the HTTP collaborator.
type ServerConfig struct {
	Port int    `json:"port" yaml:"port"`
	Host string `json:"host" yaml:"host"`
}

// SearchConfig configures the Query Planner and Semantic Search Executor.
type SearchConfig struct {
	MaxCharsDefault  int     `json:"max_chars_default" yaml:"max_chars_default"`
	MaxCharsLimit    int     `json:"max_chars_limit" yaml:"max_chars_limit"`
	CodeWeightDefault float64 `json:"code_weight_default" yaml:"code_weight_default"`
}

// IngestConfig configures the Ingestion Pipeline's size gate and streaming
// window sizing.
type IngestConfig struct {
	MaxContentBytes int `json:"max_content_bytes" yaml:"max_content_bytes"`
	ChunkBytes      int `json:"chunk_bytes" yaml:"chunk_bytes"`
	OverlapBytes    int `json:"overlap_bytes" yaml:"overlap_bytes"`
}

// VectorConfig configures the Vector Index and drift gate.
type VectorConfig struct {
	Dim            int     `json:"dim" yaml:"dim"`
	DriftThreshold float64 `json:"drift_threshold" yaml:"drift_threshold"`
}

// ResourceConfig configures the heap-ceiling resource monitor.
type ResourceConfig struct {
	GCCooldownMS            int     `json:"gc_cooldown_ms" yaml:"gc_cooldown_ms"`
	MemoryMonitorIntervalMS int     `json:"memory_monitor_interval_ms" yaml:"memory_monitor_interval_ms"`
	HeapCriticalPct         float64 `json:"heap_critical_pct" yaml:"heap_critical_pct"`
	// CeilingBytes is the configured heap ceiling; 0 means derive it from
	// total system memory via the resource monitor's gopsutil sample.
	CeilingBytes uint64 `json:"ceiling_bytes" yaml:"ceiling_bytes"`
}

// BucketsConfig configures default bucket assignment and watched paths
// (the latter is file-watcher collaborator plumbing, carried through here
// only so a single Config loads the whole recognized option set).
type BucketsConfig struct {
	Default           string   `json:"default" yaml:"default"`
	ExtraWatchedPaths []string `json:"extra_watched_paths" yaml:"extra_watched_paths"`
}

// EmbeddingConfig configures the embedding provider endpoint.
type EmbeddingConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with the defaults spec.md §6 names.
func DefaultConfig() Config {
	return Config{
		DBName:     "anchor",
		StorageDir: "home",
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Search: SearchConfig{
			MaxCharsDefault:   524288,
			MaxCharsLimit:     2097152,
			CodeWeightDefault: 1.0,
		},
		Ingest: IngestConfig{
			MaxContentBytes: 500 * 1024,
			ChunkBytes:      100 * 1024,
			OverlapBytes:    1024,
		},
		Vector: VectorConfig{
			Dim:            768,
			DriftThreshold: 0.05,
		},
		Resource: ResourceConfig{
			GCCooldownMS:            30000,
			MemoryMonitorIntervalMS: 10000,
			HeapCriticalPct:         0.75,
		},
		Buckets: BucketsConfig{
			Default: "inbox",
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "anchor"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		dir := filepath.Join(home, ".anchor")
		return filepath.Join(dir, name+".db")
	}
}
