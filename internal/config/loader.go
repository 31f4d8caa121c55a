package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
type Config struct {
	Addr            string `json:"addr" yaml:"addr" toml:"addr"`
	ModelPath       string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelsDir       string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultProfile  string `json:"default_optimization_mode" yaml:"default_optimization_mode" toml:"default_optimization_mode"`
	DefaultWidth    int    `json:"default_width" yaml:"default_width" toml:"default_width"`
	DefaultHeight   int    `json:"default_height" yaml:"default_height" toml:"default_height"`
	DefaultSteps    int    `json:"default_steps" yaml:"default_steps" toml:"default_steps"`
	DefaultFilename string `json:"default_filename" yaml:"default_filename" toml:"default_filename"`
	GalleryDir      string `json:"gallery_dir" yaml:"gallery_dir" toml:"gallery_dir"`
	OffloadDir      string `json:"offload_folder" yaml:"offload_folder" toml:"offload_folder"`

	Worker  WorkerConfig  `json:"worker" yaml:"worker" toml:"worker"`
	Rewrite RewriteConfig `json:"rewrite" yaml:"rewrite" toml:"rewrite"`
	Jobs    JobsConfig    `json:"jobs" yaml:"jobs" toml:"jobs"`
	Log     LogConfig     `json:"log" yaml:"log" toml:"log"`
	HTTP    HTTPConfig    `json:"http" yaml:"http" toml:"http"`
}

// WorkerConfig selects how the diffusion worker is reached. When URL is set
// the daemon attaches to an already running worker; otherwise Bin is spawned.
type WorkerConfig struct {
	Bin                 string   `json:"bin" yaml:"bin" toml:"bin"`
	URL                 string   `json:"url" yaml:"url" toml:"url"`
	Host                string   `json:"host" yaml:"host" toml:"host"`
	PortStart           int      `json:"port_start" yaml:"port_start" toml:"port_start"`
	PortEnd             int      `json:"port_end" yaml:"port_end" toml:"port_end"`
	ExtraArgs           []string `json:"extra_args" yaml:"extra_args" toml:"extra_args"`
	DType               string   `json:"dtype" yaml:"dtype" toml:"dtype"`
	ReadyTimeoutSeconds int      `json:"ready_timeout_seconds" yaml:"ready_timeout_seconds" toml:"ready_timeout_seconds"`
}

// RewriteConfig configures prompt rewriting backends.
type RewriteConfig struct {
	APIKey         string  `json:"api_key" yaml:"api_key" toml:"api_key"`
	BaseURL        string  `json:"base_url" yaml:"base_url" toml:"base_url"`
	Model          string  `json:"model" yaml:"model" toml:"model"`
	Temperature    float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	LlamaModel     string  `json:"llama_model" yaml:"llama_model" toml:"llama_model"`
	LlamaThreads   int     `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
}

// JobsConfig bounds the job orchestrator.
type JobsConfig struct {
	MaxActive              int `json:"max_active" yaml:"max_active" toml:"max_active"`
	MaxConcurrentInference int `json:"max_concurrent_inference" yaml:"max_concurrent_inference" toml:"max_concurrent_inference"`
	TimeoutSeconds         int `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	TTLSeconds             int `json:"ttl_seconds" yaml:"ttl_seconds" toml:"ttl_seconds"`
	DrainTimeoutSeconds    int `json:"drain_timeout_seconds" yaml:"drain_timeout_seconds" toml:"drain_timeout_seconds"`
}

// LogConfig controls zerolog output and optional file rotation.
type LogConfig struct {
	Level      string `json:"level" yaml:"level" toml:"level"`
	Format     string `json:"format" yaml:"format" toml:"format"`
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
}

// HTTPConfig holds HTTP layer knobs.
type HTTPConfig struct {
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSEnabled  bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:            ":5000",
		ModelPath:       "models/Z-Image-Turbo",
		ModelsDir:       "models",
		DefaultProfile:  "balanced",
		DefaultWidth:    1024,
		DefaultHeight:   1024,
		DefaultSteps:    9,
		DefaultFilename: "generated_image.png",
		GalleryDir:      "gallery",
		OffloadDir:      "offload",
		Worker: WorkerConfig{
			Bin:                 "zimage-worker",
			Host:                "127.0.0.1",
			DType:               "bfloat16",
			ReadyTimeoutSeconds: 600,
		},
		Rewrite: RewriteConfig{
			BaseURL:        "https://api.deepseek.com/v1",
			Model:          "deepseek-chat",
			Temperature:    0.7,
			MaxTokens:      1500,
			TimeoutSeconds: 30,
		},
		Jobs: JobsConfig{
			MaxActive:              32,
			MaxConcurrentInference: 1,
			TTLSeconds:             3600,
			DrainTimeoutSeconds:    30,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		HTTP: HTTPConfig{MaxBodyBytes: 1 << 20},
	}
}

// Load reads a configuration file based on its extension on top of Default.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	num := func(dst *int, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str(&c.Addr, "ZIMAGED_ADDR")
	str(&c.ModelPath, "ZIMAGED_MODEL_PATH", "MODEL_PATH")
	str(&c.ModelsDir, "ZIMAGED_MODELS_DIR")
	str(&c.GalleryDir, "ZIMAGED_GALLERY_DIR")
	str(&c.OffloadDir, "ZIMAGED_OFFLOAD_DIR")
	str(&c.DefaultProfile, "ZIMAGED_DEFAULT_PROFILE")
	str(&c.Worker.Bin, "ZIMAGED_WORKER_BIN")
	str(&c.Worker.URL, "ZIMAGED_WORKER_URL")
	str(&c.Rewrite.APIKey, "ZIMAGED_REWRITE_API_KEY", "DEEPSEEK_API_KEY")
	str(&c.Rewrite.BaseURL, "ZIMAGED_REWRITE_BASE_URL", "DEEPSEEK_BASE_URL")
	str(&c.Rewrite.LlamaModel, "ZIMAGED_REWRITE_LLAMA_MODEL")
	str(&c.Log.Level, "ZIMAGED_LOG_LEVEL")
	str(&c.Log.Format, "ZIMAGED_LOG_FORMAT")
	str(&c.Log.File, "ZIMAGED_LOG_FILE")
	num(&c.Jobs.MaxActive, "ZIMAGED_MAX_ACTIVE_JOBS")
	num(&c.Jobs.TimeoutSeconds, "ZIMAGED_JOB_TIMEOUT_SECONDS")
}

// Validate checks values that would otherwise fail late at runtime.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.GalleryDir == "" {
		errs = append(errs, errors.New("gallery_dir is required"))
	}
	if c.Worker.URL == "" && c.Worker.Bin == "" {
		errs = append(errs, errors.New("worker.url or worker.bin is required"))
	}
	if c.Worker.PortStart > 0 && c.Worker.PortEnd < c.Worker.PortStart {
		errs = append(errs, fmt.Errorf("worker port range %d-%d is empty", c.Worker.PortStart, c.Worker.PortEnd))
	}
	if c.Jobs.MaxActive < 0 || c.Jobs.MaxConcurrentInference < 0 {
		errs = append(errs, errors.New("jobs limits must not be negative"))
	}
	return errors.Join(errs...)
}
