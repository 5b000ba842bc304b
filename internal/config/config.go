package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Mail struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"mail"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Sonar struct {
		HostURL string `yaml:"hostURL"`
		Token   string `yaml:"token"`
	} `yaml:"sonar"`

	Pipeline PipelineConfig `yaml:"pipeline"`
}

// PipelineConfig enumerates every recognized pipeline option. It is built
// once by Load and not mutated afterwards; callers get defaults for any
// option they leave unset.
type PipelineConfig struct {
	ProjectKey  string `yaml:"projectKey"`
	ProjectName string `yaml:"projectName"`
	RepoURL     string `yaml:"repoURL"`
	Branch      string `yaml:"branch"`

	ReportFile string   `yaml:"reportFile"`
	VenvDir    string   `yaml:"venvDir"`
	Recipients []string `yaml:"recipients"`
	Tools      []string `yaml:"tools"`

	Exclusions      []string `yaml:"exclusions"`
	CoverageReport  string   `yaml:"coverageReport"`
	CoverageEnabled bool     `yaml:"coverageEnabled"`

	QualityGateEnabled        *bool `yaml:"qualityGateEnabled"`
	QualityGateTimeoutMinutes int   `yaml:"qualityGateTimeoutMinutes"`

	CleanupWorkspace *bool  `yaml:"cleanupWorkspace"`
	InstallCommand   string `yaml:"installCommand"`
	TestCommand      string `yaml:"testCommand"`
}

// Load reads the yaml config file, applies env overrides for secrets,
// fills defaults and validates. Unknown keys in the file are rejected so
// a typoed option never silently falls back to a default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv("MAIL_PASSWORD"); v != "" {
		c.Mail.Password = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("SONAR_TOKEN"); v != "" {
		c.Sonar.Token = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	p := &c.Pipeline
	if p.Branch == "" {
		p.Branch = "main"
	}
	if p.ReportFile == "" {
		p.ReportFile = "dependency_scan_report.txt"
	}
	if p.VenvDir == "" {
		p.VenvDir = ".scan-venv"
	}
	if len(p.Tools) == 0 {
		p.Tools = []string{"pip-audit", "safety"}
	}
	if p.QualityGateEnabled == nil {
		t := true
		p.QualityGateEnabled = &t
	}
	if p.QualityGateTimeoutMinutes == 0 {
		p.QualityGateTimeoutMinutes = 5
	}
	if p.CleanupWorkspace == nil {
		t := true
		p.CleanupWorkspace = &t
	}
	if p.InstallCommand == "" {
		p.InstallCommand = "pip install -r requirements.txt"
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Pipeline.ProjectKey) == "" {
		return fmt.Errorf("config: pipeline.projectKey is required")
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	for _, tool := range c.Pipeline.Tools {
		switch tool {
		case "pip-audit", "safety":
		default:
			return fmt.Errorf("config: unknown scanner tool %q", tool)
		}
	}
	if c.Pipeline.QualityGateTimeoutMinutes < 0 {
		return fmt.Errorf("config: qualityGateTimeoutMinutes must not be negative")
	}
	return nil
}

// GateTimeout returns the quality-gate wait bound as a duration.
func (c *Config) GateTimeout() time.Duration {
	return time.Duration(c.Pipeline.QualityGateTimeoutMinutes) * time.Minute
}

// QualityGateEnabled dereferences the optional flag.
func (c *Config) QualityGateEnabled() bool {
	return c.Pipeline.QualityGateEnabled != nil && *c.Pipeline.QualityGateEnabled
}

// CleanupWorkspace dereferences the optional flag.
func (c *Config) CleanupWorkspace() bool {
	return c.Pipeline.CleanupWorkspace != nil && *c.Pipeline.CleanupWorkspace
}

// MySQLDSN builds the DSN for the mysql driver.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds the DSN for the pq driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}
