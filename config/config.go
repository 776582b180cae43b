package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: RAGVAULT_STORE__PATH overrides store.path.
const EnvPrefix = "RAGVAULT_"

// Config holds all configuration for the ragvault service.
type Config struct {
	Store      StoreConfig      `yaml:"store" koanf:"store"`
	Ingest     IngestConfig     `yaml:"ingest" koanf:"ingest"`
	Embedding  EmbeddingConfig  `yaml:"embedding" koanf:"embedding"`
	Generation GenerationConfig `yaml:"generation" koanf:"generation"`
	Retrieve   RetrieveConfig   `yaml:"retrieve" koanf:"retrieve"`
	Backup     BackupConfig     `yaml:"backup" koanf:"backup"`
	Server     ServerConfig     `yaml:"server" koanf:"server"`
	Logging    LoggingConfig    `yaml:"logging" koanf:"logging"`
}

// StoreConfig locates the persisted vector store. Path is the logical store
// path P; the artifacts live at P.index and P.metadata.
type StoreConfig struct {
	Path      string `yaml:"path" koanf:"path"`
	Dimension int    `yaml:"dimension" koanf:"dimension"`
}

// IngestConfig holds ingestion pipeline configuration.
type IngestConfig struct {
	UploadDir          string   `yaml:"upload_dir" koanf:"upload_dir"`
	ChunkWords         int      `yaml:"chunk_words" koanf:"chunk_words"`
	ChunkOverlap       int      `yaml:"chunk_overlap" koanf:"chunk_overlap"`
	CheckpointInterval int      `yaml:"checkpoint_interval" koanf:"checkpoint_interval"`
	QueueSize          int      `yaml:"queue_size" koanf:"queue_size"`
	MaxFileSize        int64    `yaml:"max_file_size" koanf:"max_file_size"`
	Accept             []string `yaml:"accept" koanf:"accept"`     // filename patterns accepted for upload
	Includes           []string `yaml:"includes" koanf:"includes"` // bulk ingest walker patterns
	Excludes           []string `yaml:"excludes" koanf:"excludes"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider" koanf:"provider"` // "openai", "deepseek", "jina", "ollama", "hash"
	Model       string `yaml:"model" koanf:"model"`
	APIKeyEnv   string `yaml:"api_key_env" koanf:"api_key_env"`
	BaseURL     string `yaml:"base_url" koanf:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" koanf:"timeout_secs"`
}

// GenerationConfig configures the answer generator used by ask.
type GenerationConfig struct {
	Model       string  `yaml:"model" koanf:"model"`
	APIKeyEnv   string  `yaml:"api_key_env" koanf:"api_key_env"`
	BaseURL     string  `yaml:"base_url" koanf:"base_url"`
	MaxTokens   int     `yaml:"max_tokens" koanf:"max_tokens"`
	Temperature float64 `yaml:"temperature" koanf:"temperature"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK      int           `yaml:"top_k" koanf:"top_k"`
	CacheSize int           `yaml:"cache_size" koanf:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl" koanf:"cache_ttl"`
	MinScore  float64       `yaml:"min_score" koanf:"min_score"` // drop hits scoring below this (0 = disabled)
}

// BackupConfig controls the snapshot and retention jobs.
type BackupConfig struct {
	Enabled          bool          `yaml:"enabled" koanf:"enabled"`
	Dir              string        `yaml:"dir" koanf:"dir"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" koanf:"snapshot_interval"`
	SweepInterval    time.Duration `yaml:"sweep_interval" koanf:"sweep_interval"`
	KeepDays         int           `yaml:"keep_days" koanf:"keep_days"`
	Tick             time.Duration `yaml:"tick" koanf:"tick"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr           string   `yaml:"addr" koanf:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:      "./data/vector_db",
			Dimension: 768,
		},
		Ingest: IngestConfig{
			UploadDir:          "./data/uploads",
			ChunkWords:         1000,
			ChunkOverlap:       200,
			CheckpointInterval: 10,
			QueueSize:          16,
			MaxFileSize:        10 * 1024 * 1024,
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			Model:       "nomic-embed-text",
			APIKeyEnv:   "OPENAI_API_KEY",
			TimeoutSecs: 120,
		},
		Generation: GenerationConfig{
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Retrieve: RetrieveConfig{
			TopK:      5,
			CacheSize: 100,
			CacheTTL:  5 * time.Minute,
		},
		Backup: BackupConfig{
			Enabled:          true,
			Dir:              "backups",
			SnapshotInterval: 24 * time.Hour,
			SweepInterval:    7 * 24 * time.Hour,
			KeepDays:         30,
			Tick:             time.Minute,
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyDefaults fills list settings left empty. Lists are kept out of
// DefaultConfig so a configured list replaces the default instead of being
// merged into it element by element.
func applyDefaults(cfg *Config) {
	if len(cfg.Ingest.Accept) == 0 {
		cfg.Ingest.Accept = []string{"*.pdf", "*.txt", "*.md", "*.markdown", "*.text"}
	}
	if len(cfg.Ingest.Includes) == 0 {
		cfg.Ingest.Includes = []string{"**/*.pdf", "**/*.txt", "**/*.md", "**/*.text"}
	}
	if len(cfg.Ingest.Excludes) == 0 {
		cfg.Ingest.Excludes = []string{"**/.git/**", "**/node_modules/**", "**/.ragvault/**"}
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
}

// Load loads configuration from a YAML file, then overlays RAGVAULT_*
// environment variables. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	applyDefaults(cfg)

	return cfg, nil
}

// envKey maps RAGVAULT_BACKUP__KEEP_DAYS to backup.keep_days.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// LoadFromDir loads configuration from a directory (looks for ragvault.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "ragvault.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".ragvault", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Environment overrides still apply without a file.
	return Load(filepath.Join(dir, "ragvault.yaml"))
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.Dimension <= 0 {
		return fmt.Errorf("store.dimension must be positive")
	}
	if c.Ingest.ChunkWords <= 0 {
		return fmt.Errorf("ingest.chunk_words must be positive")
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkWords {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_words)")
	}
	if c.Ingest.CheckpointInterval <= 0 {
		return fmt.Errorf("ingest.checkpoint_interval must be positive")
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("ingest.queue_size must be positive")
	}
	if c.Backup.Tick <= 0 {
		return fmt.Errorf("backup.tick must be positive")
	}
	if c.Backup.KeepDays < 1 {
		return fmt.Errorf("backup.keep_days must be at least 1")
	}
	if c.Backup.SnapshotInterval <= 0 || c.Backup.SweepInterval <= 0 {
		return fmt.Errorf("backup intervals must be positive")
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// IndexPath returns the path of the serialized vector index artifact.
func (c StoreConfig) IndexPath() string {
	return c.Path + ".index"
}

// MetadataPath returns the path of the metadata artifact.
func (c StoreConfig) MetadataPath() string {
	return c.Path + ".metadata"
}
