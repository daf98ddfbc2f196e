package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPrompt = `Answer the user's question from the following context:
  {{.context}}
  Question: {{.input}}`

var DefaultQuestions = []string{
	"what is the color of the sea?",
	"what other colors are in there?",
}

type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Loader     LoaderConfig     `yaml:"loader"`
	Splitter   SplitterConfig   `yaml:"splitter"`
	Store      StoreConfig      `yaml:"store"`
	RAG        RAGConfig        `yaml:"rag"`
	UI         UIConfig         `yaml:"ui"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type EmbeddingsConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

type LoaderConfig struct {
	URL               string        `yaml:"url"`
	Mode              string        `yaml:"mode"`
	Selector          string        `yaml:"selector"`
	MaxDepth          int           `yaml:"max_depth"`
	RateLimit         float64       `yaml:"rate_limit"`
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	IgnorePatterns    []string      `yaml:"ignore_patterns"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
}

type SplitterConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators"`
}

type StoreConfig struct {
	Backend   string `yaml:"backend"`
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
	BatchSize int    `yaml:"batch_size"`
}

type RAGConfig struct {
	TopK           int      `yaml:"top_k"`
	ScoreThreshold float32  `yaml:"score_threshold"`
	Prompt         string   `yaml:"prompt"`
	Questions      []string `yaml:"questions"`
}

type UIConfig struct {
	Streaming   bool   `yaml:"streaming"`
	Interactive bool   `yaml:"interactive"`
	ServeAddr   string `yaml:"serve_addr"`
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none)
// into the process environment. Missing files are ignored and variables
// already set are left alone.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error loading %s: %w", p, err)
		}
	}

	return nil
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/ragpage/config.yaml"),
			"/etc/ragpage/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.Model = "mistral"
		} else {
			config.LLM.Model = "gpt-3.5-turbo"
		}
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.9
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embeddings.Provider == "" {
		config.Embeddings.Provider = "openai"
	}
	if config.Embeddings.Model == "" {
		if config.Embeddings.Provider == "ollama" {
			config.Embeddings.Model = "nomic-embed-text:latest"
		} else {
			config.Embeddings.Model = "text-embedding-ada-002"
		}
	}
	if config.Embeddings.BatchSize == 0 {
		config.Embeddings.BatchSize = 512
	}
	if config.Embeddings.BaseURL == "" && config.Embeddings.Provider == "ollama" {
		config.Embeddings.BaseURL = "http://localhost:11434"
	}
	if config.Embeddings.APIKey == "" {
		config.Embeddings.APIKey = config.LLM.APIKey
	}

	if config.Loader.URL == "" {
		config.Loader.URL = "https://hiveclimbing.com/"
	}
	if config.Loader.Mode == "" {
		config.Loader.Mode = "selector"
	}
	if config.Loader.Selector == "" {
		config.Loader.Selector = "body"
	}
	if config.Loader.RateLimit == 0 {
		config.Loader.RateLimit = 2.0
	}
	if config.Loader.Timeout == 0 {
		config.Loader.Timeout = 30 * time.Second
	}
	if len(config.Loader.AllowedExtensions) == 0 {
		config.Loader.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Splitter.ChunkSize == 0 {
		config.Splitter.ChunkSize = 100
	}
	if config.Splitter.ChunkOverlap == 0 {
		config.Splitter.ChunkOverlap = 20
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "memory"
	}
	if config.Store.TableName == "" {
		config.Store.TableName = "documents"
	}
	if config.Store.VectorDim == 0 {
		config.Store.VectorDim = 1536
	}
	if config.Store.BatchSize == 0 {
		config.Store.BatchSize = 100
	}

	if config.RAG.TopK == 0 {
		config.RAG.TopK = 2
	}
	if config.RAG.Prompt == "" {
		config.RAG.Prompt = DefaultPrompt
	}
	if len(config.RAG.Questions) == 0 {
		config.RAG.Questions = append([]string(nil), DefaultQuestions...)
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
		config.Embeddings.APIKey = key
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		if config.LLM.Provider != "ollama" {
			config.LLM.BaseURL = baseURL
		}
		if config.Embeddings.Provider != "ollama" {
			config.Embeddings.BaseURL = baseURL
		}
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = baseURL
		}
		if config.Embeddings.Provider == "ollama" {
			config.Embeddings.BaseURL = baseURL
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.URL = dbURL
	}
	if pageURL := os.Getenv("RAGPAGE_URL"); pageURL != "" {
		config.Loader.URL = pageURL
	}
}
