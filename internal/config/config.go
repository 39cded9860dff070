package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can carry values like "10m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Uploads struct {
		Dir               string   `yaml:"dir"`
		MaxSizeBytes      int64    `yaml:"maxSizeBytes"`
		AllowedExtensions []string `yaml:"allowedExtensions"`
	} `yaml:"uploads"`

	Security struct {
		PIIDetection bool `yaml:"piiDetection"`
		PIIReject    bool `yaml:"piiReject"`
	} `yaml:"security"`

	Pipeline struct {
		Timeout       Duration `yaml:"timeout"`
		MaxConcurrent int      `yaml:"maxConcurrent"`
	} `yaml:"pipeline"`

	Audit struct {
		Path       string `yaml:"path"`
		MaxSizeMB  int    `yaml:"maxSizeMB"`
		MaxAgeDays int    `yaml:"maxAgeDays"`
		BufferSize int    `yaml:"bufferSize"`
	} `yaml:"audit"`

	OpenAI struct {
		APIKey  string   `yaml:"apiKey"`
		Model   string   `yaml:"model"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"openai"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`
}

// Default returns the configuration used when a field is absent from the
// YAML file. The single-concurrency default matches the serverless deployment.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Uploads.Dir = "uploads"
	cfg.Uploads.MaxSizeBytes = 100 << 20
	cfg.Uploads.AllowedExtensions = []string{".csv", ".xlsx", ".pdf", ".docx"}
	cfg.Security.PIIDetection = true
	cfg.Pipeline.Timeout = Duration(10 * time.Minute)
	cfg.Pipeline.MaxConcurrent = 1
	cfg.Audit.Path = "logs/audit.jsonl"
	cfg.Audit.MaxSizeMB = 10
	cfg.Audit.MaxAgeDays = 1
	cfg.Audit.BufferSize = 1024
	cfg.OpenAI.Model = "gpt-4o-mini"
	cfg.OpenAI.Timeout = Duration(60 * time.Second)
	return cfg
}

// Load reads the YAML config file, overlaying values on top of Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Uploads.MaxSizeBytes <= 0 {
		return fmt.Errorf("uploads.maxSizeBytes must be positive")
	}
	if len(c.Uploads.AllowedExtensions) == 0 {
		return fmt.Errorf("uploads.allowedExtensions must not be empty")
	}
	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("pipeline.timeout must be positive")
	}
	if c.Pipeline.MaxConcurrent < 1 {
		return fmt.Errorf("pipeline.maxConcurrent must be at least 1")
	}
	return nil
}
