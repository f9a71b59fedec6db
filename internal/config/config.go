// Package config loads and validates the engine configuration.
// Precedence, lowest to highest: built-in defaults, the user config
// (~/.config/kbengine/config.yaml), the project config (kbengine.yaml
// in the knowledge base root), then KBENGINE_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helpbase/kbengine/internal/kberr"
)

// Config is the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Usage      UsageConfig      `yaml:"usage" json:"usage"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig locates the document tree and the engine's data directory.
type PathsConfig struct {
	// DocsDir is the root of the knowledge base documents.
	DocsDir string `yaml:"docs_dir" json:"docs_dir"`

	// DataDir holds the usage database and lock file.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	// BM25Weight is the lexical share of the hybrid score (0.0-1.0).
	// Must sum to 1.0 with VectorWeight.
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`

	// VectorWeight is the semantic share of the hybrid score (0.0-1.0).
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// MinScore drops fused results below this hybrid score.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// DefaultTopK is the result count when the caller does not ask for
	// one; MaxTopK caps what a caller may ask for.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k" json:"max_top_k"`
}

// ChunkingConfig tunes document splitting, in words.
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	Overlap   int `yaml:"overlap" json:"overlap"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama", "openai", "static" or "auto". Auto prefers
	// Ollama and degrades to the static embedder.
	Provider string `yaml:"provider" json:"provider"`

	// Model overrides the provider's default embedding model.
	Model string `yaml:"model" json:"model"`

	// Dimensions overrides dimension auto-detection (0 = auto).
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize for batch embedding requests.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// CacheSize is the query-embedding LRU capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// IndexConfig tunes index construction and the document watcher.
type IndexConfig struct {
	// VectorKind selects the vector index: "hnsw" or "flat".
	VectorKind string `yaml:"vector_kind" json:"vector_kind"`

	// Watch rebuilds automatically when documents change.
	Watch bool `yaml:"watch" json:"watch"`

	// WatchDebounce is the settle window for file change bursts.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// UsageConfig tunes usage tracking.
type UsageConfig struct {
	// Enabled turns usage recording on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// QueueSize bounds pending asynchronous usage writes.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DocsDir: "docs",
			DataDir: ".kbengine",
		},
		Search: SearchConfig{
			BM25Weight:   0.4,
			VectorWeight: 0.6,
			MinScore:     0.05,
			DefaultTopK:  5,
			MaxTopK:      50,
		},
		Chunking: ChunkingConfig{
			ChunkSize: 200,
			Overlap:   30,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "auto",
			Model:      "",
			Dimensions: 0,
			BatchSize:  32,
			OllamaHost: "",
			CacheSize:  1000,
		},
		Index: IndexConfig{
			VectorKind:    "hnsw",
			Watch:         true,
			WatchDebounce: "500ms",
		},
		Usage: UsageConfig{
			Enabled:   true,
			QueueSize: 256,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// ProjectConfigNames are the recognized project config file names, in
// precedence order.
var ProjectConfigNames = []string{"kbengine.yaml", "kbengine.yml"}

// GetUserConfigPath returns the user configuration path, following the
// XDG base directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kbengine", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "kbengine", "config.yaml")
	}
	return filepath.Join(home, ".config", "kbengine", "config.yaml")
}

// UserConfigExists reports whether a user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the effective configuration for the knowledge base at dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	for _, name := range ProjectConfigNames {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	// Relative paths resolve against the knowledge base root.
	if !filepath.IsAbs(cfg.Paths.DocsDir) {
		cfg.Paths.DocsDir = filepath.Join(dir, cfg.Paths.DocsDir)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		cfg.Paths.DataDir = filepath.Join(dir, cfg.Paths.DataDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges non-zero values from a YAML file over the receiver.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return kberr.ConfigError(fmt.Sprintf("read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return kberr.ConfigError(fmt.Sprintf("parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other. Booleans with true
// defaults cannot be distinguished from unset, so Watch and
// Usage.Enabled are only merged when a sibling field in their section
// was set.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DocsDir != "" {
		c.Paths.DocsDir = other.Paths.DocsDir
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.MinScore != 0 {
		c.Search.MinScore = other.Search.MinScore
	}
	if other.Search.DefaultTopK != 0 {
		c.Search.DefaultTopK = other.Search.DefaultTopK
	}
	if other.Search.MaxTopK != 0 {
		c.Search.MaxTopK = other.Search.MaxTopK
	}

	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Index.VectorKind != "" {
		c.Index.VectorKind = other.Index.VectorKind
	}
	if other.Index.WatchDebounce != "" {
		c.Index.WatchDebounce = other.Index.WatchDebounce
		c.Index.Watch = other.Index.Watch
	} else if other.Index.VectorKind != "" {
		c.Index.Watch = other.Index.Watch
	}

	if other.Usage.QueueSize != 0 {
		c.Usage.QueueSize = other.Usage.QueueSize
		c.Usage.Enabled = other.Usage.Enabled
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies KBENGINE_* environment variables, the
// highest-precedence source. Weights accept explicit zero.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KBENGINE_DOCS_DIR"); v != "" {
		c.Paths.DocsDir = v
	}
	if v := os.Getenv("KBENGINE_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("KBENGINE_BM25_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("KBENGINE_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("KBENGINE_MIN_SCORE"); v != "" {
		if s, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && s >= 0 && s <= 1 {
			c.Search.MinScore = s
		}
	}
	if v := os.Getenv("KBENGINE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("KBENGINE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("KBENGINE_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("KBENGINE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("KBENGINE_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("KBENGINE_WATCH"); v != "" {
		c.Index.Watch = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate checks the effective configuration.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return kberr.ConfigError(fmt.Sprintf("bm25_weight must be between 0 and 1, got %g", c.Search.BM25Weight), nil)
	}
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return kberr.ConfigError(fmt.Sprintf("vector_weight must be between 0 and 1, got %g", c.Search.VectorWeight), nil)
	}
	if sum := c.Search.BM25Weight + c.Search.VectorWeight; math.Abs(sum-1.0) > 0.01 {
		return kberr.ConfigError(fmt.Sprintf("bm25_weight + vector_weight must equal 1.0, got %.2f", sum), nil)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return kberr.ConfigError(fmt.Sprintf("min_score must be between 0 and 1, got %g", c.Search.MinScore), nil)
	}
	if c.Search.DefaultTopK <= 0 {
		return kberr.ConfigError(fmt.Sprintf("default_top_k must be positive, got %d", c.Search.DefaultTopK), nil)
	}
	if c.Search.MaxTopK < c.Search.DefaultTopK {
		return kberr.ConfigError(fmt.Sprintf("max_top_k (%d) must be at least default_top_k (%d)", c.Search.MaxTopK, c.Search.DefaultTopK), nil)
	}

	if c.Chunking.ChunkSize <= 0 {
		return kberr.ConfigError(fmt.Sprintf("chunk_size must be positive, got %d", c.Chunking.ChunkSize), nil)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return kberr.ConfigError(fmt.Sprintf("overlap must be in [0, chunk_size), got %d", c.Chunking.Overlap), nil)
	}

	validProviders := map[string]bool{"ollama": true, "openai": true, "static": true, "auto": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return kberr.ConfigError(fmt.Sprintf("embeddings.provider must be 'ollama', 'openai', 'static' or 'auto', got %s", c.Embeddings.Provider), nil)
	}

	validKinds := map[string]bool{"hnsw": true, "flat": true}
	if !validKinds[strings.ToLower(c.Index.VectorKind)] {
		return kberr.ConfigError(fmt.Sprintf("index.vector_kind must be 'hnsw' or 'flat', got %s", c.Index.VectorKind), nil)
	}

	if c.Server.Transport != "stdio" {
		return kberr.ConfigError(fmt.Sprintf("server.transport must be 'stdio', got %s", c.Server.Transport), nil)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return kberr.ConfigError(fmt.Sprintf("server.log_level must be 'debug', 'info', 'warn' or 'error', got %s", c.Server.LogLevel), nil)
	}

	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return kberr.ConfigError("marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return kberr.ConfigError(fmt.Sprintf("write config file %s", path), err)
	}
	return nil
}

// FindKnowledgeBaseRoot walks up from startDir looking for a project
// config file or a .git directory. Falls back to startDir itself.
func FindKnowledgeBaseRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", kberr.ConfigError("resolve knowledge base root", err)
	}

	current := absDir
	for {
		for _, name := range ProjectConfigNames {
			if fileExists(filepath.Join(current, name)) {
				return current, nil
			}
		}
		if dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
