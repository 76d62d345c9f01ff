package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanmcp/internal/engine"
	"github.com/Aman-CERP/amanmcp/internal/engineerr"
	"github.com/Aman-CERP/amanmcp/internal/engine/fusion"
	"github.com/Aman-CERP/amanmcp/internal/logging"
)

// Config is the complete irisd configuration, loaded in order of increasing
// precedence: hardcoded defaults, user config (~/.config/irisd/config.yaml),
// project config (.irisd.yaml in the directory passed to Load), then
// IRISD_* env vars.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	WAL        WALConfig        `yaml:"wal" json:"wal"`
	Lexical    LexicalConfig    `yaml:"lexical" json:"lexical"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Fusion     FusionConfig     `yaml:"fusion" json:"fusion"`
	Embedding  EmbeddingConfig  `yaml:"embedding" json:"embedding"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// StorageConfig configures where the engine's WAL, document log and lexical
// index live on disk.
type StorageConfig struct {
	RootPath string `yaml:"root_path" json:"root_path"`
}

// WALConfig configures the write-ahead log.
type WALConfig struct {
	// SyncOnAppend fsyncs after every append. Disabling trades durability
	// for throughput; default true per §4.2.
	SyncOnAppend bool `yaml:"sync_on_append" json:"sync_on_append"`
}

// LexicalConfig configures the Bleve-backed lexical sub-store's default
// BM25 tuning and analysis chain.
type LexicalConfig struct {
	BM25K1          float64  `yaml:"bm25_k1" json:"bm25_k1"`
	BM25B           float64  `yaml:"bm25_b" json:"bm25_b"`
	DefaultAnalyzer string   `yaml:"default_analyzer" json:"default_analyzer"`
	StopWords       []string `yaml:"stop_words" json:"stop_words"`
}

// HNSWConfig tunes the HNSW vector index kind.
type HNSWConfig struct {
	M              int `yaml:"m" json:"m"`
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`
	EfSearch       int `yaml:"ef_search" json:"ef_search"`
}

// IVFConfig tunes the IVF vector index kind.
type IVFConfig struct {
	NClusters int `yaml:"n_clusters" json:"n_clusters"`
	NProbe    int `yaml:"n_probe" json:"n_probe"`
}

// VectorConfig configures the vector sub-store's default distance metric
// and per-kind tuning.
type VectorConfig struct {
	DefaultMetric string     `yaml:"default_metric" json:"default_metric"`
	HNSW          HNSWConfig `yaml:"hnsw" json:"hnsw"`
	IVF           IVFConfig  `yaml:"ivf" json:"ivf"`
}

// FusionConfig configures how lexical and vector search legs are combined.
type FusionConfig struct {
	Default       string  `yaml:"default" json:"default"` // "rrf" or "weighted_sum"
	RRFConstant   int     `yaml:"rrf_constant" json:"rrf_constant"`
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`
}

// EmbeddingConfig configures the text/bytes-to-vector embedder used by
// fields that declare a vector projection without supplying their own
// pre-computed vectors.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	Dimension  int           `yaml:"dimension" json:"dimension"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig mirrors the fields of the logging package's own Config,
// tagged for YAML; ToLoggingConfig converts it.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	FilePath      string `yaml:"file_path" json:"file_path"`
	MaxSizeMB     int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// ToLoggingConfig converts to the logging package's Config shape.
func (l LoggingConfig) ToLoggingConfig() logging.Config {
	return logging.Config{
		Level:         l.Level,
		FilePath:      l.FilePath,
		MaxSizeMB:     l.MaxSizeMB,
		MaxFiles:      l.MaxFiles,
		WriteToStderr: l.WriteToStderr,
	}
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			RootPath: defaultStorageRoot(),
		},
		WAL: WALConfig{
			SyncOnAppend: true,
		},
		Lexical: LexicalConfig{
			BM25K1:          1.2,
			BM25B:           0.75,
			DefaultAnalyzer: "standard",
			StopWords:       nil,
		},
		Vector: VectorConfig{
			DefaultMetric: "cosine",
			HNSW: HNSWConfig{
				M:              16,
				EfConstruction: 200,
				EfSearch:       64,
			},
			IVF: IVFConfig{
				NClusters: 256,
				NProbe:    8,
			},
		},
		Fusion: FusionConfig{
			Default:       "rrf",
			RRFConstant:   fusion.DefaultRRFConstant,
			LexicalWeight: 0.35,
			VectorWeight:  0.65,
		},
		Embedding: EmbeddingConfig{
			Provider:  "", // empty triggers caller-supplied Embedder only; no auto-detect
			Model:     "",
			Dimension: 0,
			BatchSize: 32,
			Timeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:         "info",
			FilePath:      logging.DefaultLogPath(),
			MaxSizeMB:     10,
			MaxFiles:      5,
			WriteToStderr: true,
		},
	}
}

func defaultStorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".irisd", "data")
	}
	return filepath.Join(home, ".irisd", "data")
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "irisd", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "irisd", "config.yaml")
	}
	return filepath.Join(home, ".config", "irisd", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// LoadUserConfig loads the user configuration file, or returns (nil, nil)
// if it doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// Load loads configuration for the engine rooted at dir, applying (in
// order of increasing precedence) hardcoded defaults, the user/global
// config, a project config file (dir/.irisd.yaml), then IRISD_* env vars.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".irisd.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".irisd.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Storage.RootPath != "" {
		c.Storage.RootPath = other.Storage.RootPath
	}

	// WAL.SyncOnAppend defaults true; only override when a project/user
	// config file set the storage root (i.e. actually configured this
	// section) so an absent field never silently flips durability off.
	if other.Storage.RootPath != "" {
		c.WAL.SyncOnAppend = other.WAL.SyncOnAppend
	}

	if other.Lexical.BM25K1 != 0 {
		c.Lexical.BM25K1 = other.Lexical.BM25K1
	}
	if other.Lexical.BM25B != 0 {
		c.Lexical.BM25B = other.Lexical.BM25B
	}
	if other.Lexical.DefaultAnalyzer != "" {
		c.Lexical.DefaultAnalyzer = other.Lexical.DefaultAnalyzer
	}
	if len(other.Lexical.StopWords) > 0 {
		c.Lexical.StopWords = other.Lexical.StopWords
	}

	if other.Vector.DefaultMetric != "" {
		c.Vector.DefaultMetric = other.Vector.DefaultMetric
	}
	if other.Vector.HNSW.M != 0 {
		c.Vector.HNSW.M = other.Vector.HNSW.M
	}
	if other.Vector.HNSW.EfConstruction != 0 {
		c.Vector.HNSW.EfConstruction = other.Vector.HNSW.EfConstruction
	}
	if other.Vector.HNSW.EfSearch != 0 {
		c.Vector.HNSW.EfSearch = other.Vector.HNSW.EfSearch
	}
	if other.Vector.IVF.NClusters != 0 {
		c.Vector.IVF.NClusters = other.Vector.IVF.NClusters
	}
	if other.Vector.IVF.NProbe != 0 {
		c.Vector.IVF.NProbe = other.Vector.IVF.NProbe
	}

	if other.Fusion.Default != "" {
		c.Fusion.Default = other.Fusion.Default
	}
	if other.Fusion.RRFConstant != 0 {
		c.Fusion.RRFConstant = other.Fusion.RRFConstant
	}
	if other.Fusion.LexicalWeight != 0 {
		c.Fusion.LexicalWeight = other.Fusion.LexicalWeight
	}
	if other.Fusion.VectorWeight != 0 {
		c.Fusion.VectorWeight = other.Fusion.VectorWeight
	}

	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimension != 0 {
		c.Embedding.Dimension = other.Embedding.Dimension
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.Timeout != 0 {
		c.Embedding.Timeout = other.Embedding.Timeout
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies IRISD_* environment variable overrides, the
// highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("IRISD_STORAGE_ROOT"); v != "" {
		c.Storage.RootPath = v
	}
	if v := os.Getenv("IRISD_WAL_SYNC_ON_APPEND"); v != "" {
		c.WAL.SyncOnAppend = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("IRISD_FUSION_DEFAULT"); v != "" {
		c.Fusion.Default = v
	}
	if v := os.Getenv("IRISD_FUSION_LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Fusion.LexicalWeight = w
		}
	}
	if v := os.Getenv("IRISD_FUSION_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Fusion.VectorWeight = w
		}
	}
	if v := os.Getenv("IRISD_FUSION_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Fusion.RRFConstant = k
		}
	}
	if v := os.Getenv("IRISD_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("IRISD_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("IRISD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate checks the configuration for internal consistency, returning an
// *engineerr.EngineError of kind InvalidArgument on the first problem found.
func (c *Config) Validate() error {
	if c.Vector.DefaultMetric != "" {
		switch strings.ToLower(c.Vector.DefaultMetric) {
		case "cosine", "euclidean", "dot_product", "manhattan", "angular":
		default:
			return engineerr.InvalidArgument(engineerr.CodeBadSchema,
				fmt.Sprintf("vector.default_metric must be one of cosine, euclidean, dot_product, manhattan, angular, got %q", c.Vector.DefaultMetric))
		}
	}
	if c.Embedding.Dimension < 0 {
		return engineerr.InvalidArgument(engineerr.CodeBadSchema,
			fmt.Sprintf("embedding.dimension must be non-negative, got %d", c.Embedding.Dimension))
	}
	if c.Vector.HNSW.M <= 0 {
		return engineerr.InvalidArgument(engineerr.CodeBadSchema,
			fmt.Sprintf("vector.hnsw.m must be positive, got %d", c.Vector.HNSW.M))
	}
	if c.Vector.IVF.NClusters <= 0 {
		return engineerr.InvalidArgument(engineerr.CodeBadSchema,
			fmt.Sprintf("vector.ivf.n_clusters must be positive, got %d", c.Vector.IVF.NClusters))
	}
	if c.Vector.IVF.NProbe <= 0 {
		return engineerr.InvalidArgument(engineerr.CodeBadSchema,
			fmt.Sprintf("vector.ivf.n_probe must be positive, got %d", c.Vector.IVF.NProbe))
	}

	switch strings.ToLower(c.Fusion.Default) {
	case "rrf", "weighted_sum":
	default:
		return engineerr.InvalidArgument(engineerr.CodeBadQuery,
			fmt.Sprintf("fusion.default must be 'rrf' or 'weighted_sum', got %q", c.Fusion.Default))
	}
	if c.Fusion.LexicalWeight < 0 || c.Fusion.LexicalWeight > 1 {
		return engineerr.InvalidArgument(engineerr.CodeBadQuery,
			fmt.Sprintf("fusion.lexical_weight must be between 0 and 1, got %f", c.Fusion.LexicalWeight))
	}
	if c.Fusion.VectorWeight < 0 || c.Fusion.VectorWeight > 1 {
		return engineerr.InvalidArgument(engineerr.CodeBadQuery,
			fmt.Sprintf("fusion.vector_weight must be between 0 and 1, got %f", c.Fusion.VectorWeight))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return engineerr.InvalidArgument(engineerr.CodeBadSchema,
			fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level))
	}

	return nil
}

// FusionWeights converts the configured fusion weights to the fusion
// package's own Weights type.
func (c *Config) FusionWeights() fusion.Weights {
	return fusion.Weights{Lexical: c.Fusion.LexicalWeight, Vector: c.Fusion.VectorWeight}
}

// VectorMetric converts the configured default metric string to the
// engine's DistanceMetric enum.
func (c *Config) VectorMetric() (engine.DistanceMetric, error) {
	switch strings.ToLower(c.Vector.DefaultMetric) {
	case "cosine":
		return engine.Cosine, nil
	case "euclidean":
		return engine.Euclidean, nil
	case "dot_product":
		return engine.DotProduct, nil
	case "manhattan":
		return engine.Manhattan, nil
	case "angular":
		return engine.Angular, nil
	default:
		return 0, engineerr.InvalidArgument(engineerr.CodeBadSchema, "unknown distance metric: "+c.Vector.DefaultMetric)
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
