// Package config loads the application configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// EmbeddingConfig configures the Ollama embedding client.
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// LLMConfig configures the Ollama generation client.
type LLMConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// StorageConfig configures the vector index backend.
type StorageConfig struct {
	// Backend selects the index implementation: "snapshot" (file artifacts)
	// or "sqlite".
	Backend        string `yaml:"backend"`
	Dir            string `yaml:"dir"`
	Collection     string `yaml:"collection"`
	DistanceMetric string `yaml:"distance_metric"` // cosine, euclidean, dotproduct
}

// RetrievalConfig configures query shaping.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// ChunkConfig configures how ingested text is split.
type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// ConversationConfig configures conversation lifecycle and persistence.
type ConversationConfig struct {
	MaxTurns     int    `yaml:"max_turns"`
	StorageDir   string `yaml:"storage_dir"`
	AutoSave     bool   `yaml:"auto_save"`
	SaveInterval int    `yaml:"save_interval"` // persist every N completed turns
}

// ContextConfig configures context rendering and summarization.
type ContextConfig struct {
	MaxTurns          int    `yaml:"max_turns"`
	Format            string `yaml:"format"` // markdown, plain
	IncludeTimestamps bool   `yaml:"include_timestamps"`
	CompressionMethod string `yaml:"compression_method"` // summary, truncate
	SummaryInterval   int    `yaml:"summary_interval"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// WatcherConfig configures the knowledge-directory watcher.
type WatcherConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

// AppConfig is the root application configuration.
type AppConfig struct {
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	LLM          LLMConfig          `yaml:"llm"`
	Storage      StorageConfig      `yaml:"storage"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Chunk        ChunkConfig        `yaml:"chunk"`
	Conversation ConversationConfig `yaml:"conversation"`
	Context      ContextConfig      `yaml:"context"`
	Server       ServerConfig       `yaml:"server"`
	Watcher      WatcherConfig      `yaml:"watcher"`
}

// Load reads a config from path. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", entities.ErrConfiguration, path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", entities.ErrConfiguration, path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./ragchat.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists, it writes the defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "ragchat.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("%w: resolve home dir: %v", entities.ErrConfiguration, err)
	}
	userPath := filepath.Join(home, ".config", "ragchat", "config.yaml")
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrConfiguration, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", entities.ErrConfiguration, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrConfiguration, err)
	}
	return nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Conversation: ConversationConfig{AutoSave: true},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3.2"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 300
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "snapshot"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "./data/vectors"
	}
	if cfg.Storage.Collection == "" {
		cfg.Storage.Collection = "knowledge_base"
	}
	if cfg.Storage.DistanceMetric == "" {
		cfg.Storage.DistanceMetric = "cosine"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Chunk.Size == 0 {
		cfg.Chunk.Size = 500
	}
	if cfg.Chunk.Overlap == 0 {
		cfg.Chunk.Overlap = 50
	}
	if cfg.Conversation.MaxTurns == 0 {
		cfg.Conversation.MaxTurns = 30
	}
	if cfg.Conversation.StorageDir == "" {
		cfg.Conversation.StorageDir = "./data/conversations"
	}
	if cfg.Conversation.SaveInterval == 0 {
		cfg.Conversation.SaveInterval = 1
	}
	if cfg.Context.MaxTurns == 0 {
		cfg.Context.MaxTurns = 30
	}
	if cfg.Context.Format == "" {
		cfg.Context.Format = "markdown"
	}
	if cfg.Context.CompressionMethod == "" {
		cfg.Context.CompressionMethod = "summary"
	}
	if cfg.Context.SummaryInterval == 0 {
		cfg.Context.SummaryInterval = 3
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Watcher.Dir == "" {
		cfg.Watcher.Dir = "./documents"
	}
	if len(cfg.Watcher.Extensions) == 0 {
		cfg.Watcher.Extensions = []string{".txt", ".md", ".html"}
	}
}

func validate(cfg *AppConfig) error {
	switch cfg.Storage.Backend {
	case "snapshot", "sqlite":
	default:
		return fmt.Errorf("%w: unknown storage backend %q", entities.ErrConfiguration, cfg.Storage.Backend)
	}
	switch cfg.Storage.DistanceMetric {
	case "cosine", "euclidean", "dotproduct":
	default:
		return fmt.Errorf("%w: unknown distance metric %q", entities.ErrConfiguration, cfg.Storage.DistanceMetric)
	}
	switch cfg.Context.CompressionMethod {
	case "summary", "truncate":
	default:
		return fmt.Errorf("%w: unknown compression method %q", entities.ErrConfiguration, cfg.Context.CompressionMethod)
	}
	switch cfg.Context.Format {
	case "markdown", "plain":
	default:
		return fmt.Errorf("%w: unknown context format %q", entities.ErrConfiguration, cfg.Context.Format)
	}
	return nil
}
