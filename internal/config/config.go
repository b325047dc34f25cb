package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"localcog/internal/logger"
)

// OllamaConfig holds connection details for the local inference runtime.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RAGConfig configures corpus location, embedding and chunking.
type RAGConfig struct {
	DataDir        string `yaml:"data_dir"`
	EmbeddingModel string `yaml:"embedding_model"`
	Dimension      int    `yaml:"dimension"`
	ChunkWords     int    `yaml:"chunk_words"`
	TopK           int    `yaml:"top_k"`
}

// ChatConfig configures the fusion request path.
type ChatConfig struct {
	DefaultModels     []string `yaml:"default_models"`
	HistoryTurns      int      `yaml:"history_turns"`
	ShortTermCapacity int      `yaml:"short_term_capacity"`
	VisionModel       string   `yaml:"vision_model"`
	CUDAEnabled       bool     `yaml:"cuda_enabled"`
}

// MemoryConfig configures the long-term conversation log.
type MemoryConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

// ToolsConfig configures the tool registry.
type ToolsConfig struct {
	AllowWebAccess     bool   `yaml:"allow_web_access"`
	WebSearchPerMinute int    `yaml:"web_search_per_minute"`
	GitHubTokenEnv     string `yaml:"github_token_env"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr               string `yaml:"addr"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Ollama  OllamaConfig  `yaml:"ollama"`
	RAG     RAGConfig     `yaml:"rag"`
	Chat    ChatConfig    `yaml:"chat"`
	Memory  MemoryConfig  `yaml:"memory"`
	Tools   ToolsConfig   `yaml:"tools"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging logger.Config `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	// Start from defaults so keys absent from the file keep their default value.
	cfg := defaultConfig()
	cfg.Memory.Path = "" // derived from rag.data_dir unless set explicitly
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/localcog/config.yaml.
// If neither exists, it writes defaults to ~/.config/localcog/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "localcog", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Tools: ToolsConfig{AllowWebAccess: true},
		Chat:  ChatConfig{CUDAEnabled: true},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.Ollama.TimeoutSecs == 0 {
		cfg.Ollama.TimeoutSecs = 60
	}
	if cfg.RAG.DataDir == "" {
		cfg.RAG.DataDir = "data"
	}
	if cfg.RAG.EmbeddingModel == "" {
		cfg.RAG.EmbeddingModel = "all-minilm"
	}
	if cfg.RAG.Dimension == 0 {
		cfg.RAG.Dimension = 384
	}
	if cfg.RAG.ChunkWords == 0 {
		cfg.RAG.ChunkWords = 500
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 4
	}
	if len(cfg.Chat.DefaultModels) == 0 {
		cfg.Chat.DefaultModels = []string{"llama3", "mistral"}
	}
	if cfg.Chat.HistoryTurns == 0 {
		cfg.Chat.HistoryTurns = 8
	}
	if cfg.Chat.ShortTermCapacity == 0 {
		cfg.Chat.ShortTermCapacity = 50
	}
	if cfg.Chat.VisionModel == "" {
		cfg.Chat.VisionModel = "llama3.2-vision"
	}
	if cfg.Memory.Path == "" {
		cfg.Memory.Path = filepath.Join(cfg.RAG.DataDir, "memory.sqlite3")
	}
	if cfg.Memory.BusyTimeoutMS == 0 {
		cfg.Memory.BusyTimeoutMS = 5000
	}
	if cfg.Tools.WebSearchPerMinute == 0 {
		cfg.Tools.WebSearchPerMinute = 30
	}
	if cfg.Tools.GitHubTokenEnv == "" {
		cfg.Tools.GitHubTokenEnv = "GITHUB_TOKEN"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8000"
	}
	if cfg.HTTP.RequestTimeoutSecs == 0 {
		cfg.HTTP.RequestTimeoutSecs = 180
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		if cfg.Memory.Path == filepath.Join(cfg.RAG.DataDir, "memory.sqlite3") {
			cfg.Memory.Path = filepath.Join(v, "memory.sqlite3")
		}
		cfg.RAG.DataDir = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.RAG.EmbeddingModel = v
	}
	if v := os.Getenv("DEFAULT_CHAT_MODELS"); v != "" {
		if models := splitList(v); len(models) > 0 {
			cfg.Chat.DefaultModels = models
		}
	}
	if v, ok := envBool("CUDA_ENABLED"); ok {
		cfg.Chat.CUDAEnabled = v
	}
	if v, ok := envBool("ALLOW_WEB_ACCESS"); ok {
		cfg.Tools.AllowWebAccess = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
}

func envBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return false, false
	}
	return b, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
