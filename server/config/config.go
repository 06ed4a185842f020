package config

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig    `yaml:"server"`
	Logging        LoggingConfig   `yaml:"logging"`
	Paths          PathsConfig     `yaml:"paths"`
	Downloads      DownloadsConfig `yaml:"downloads"`
	Authentication AuthConfig      `yaml:"authentication"`
	path           string
}

type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type LoggingConfig struct {
	LogPath           string `yaml:"log_path"`
	EnableFileLogging bool   `yaml:"enable_file_logging"`
}

type PathsConfig struct {
	DownloadPath      string `yaml:"download_path"`
	ResolverPath      string `yaml:"resolver_path"`
	FFmpegPath        string `yaml:"ffmpeg_path"`
	LocalDatabasePath string `yaml:"local_database_path"`
}

type DownloadsConfig struct {
	Concurrency   int   `yaml:"concurrency"`
	RateLimitKBps int64 `yaml:"rate_limit_kbps"`
}

type AuthConfig struct {
	RequireAuth  bool   `yaml:"require_auth"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password"`
	JWTSecret    string `yaml:"jwt_secret"`
}

var (
	instance     *Config
	instanceOnce sync.Once
)

func Instance() *Config {
	if instance == nil {
		instanceOnce.Do(func() {
			instance = &Config{}
			instance.applyDefaults()
		})
	}
	return instance
}

func (c *Config) applyDefaults() {
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 3033
	c.Paths.DownloadPath = "."
	c.Paths.ResolverPath = "yt-dlp"
	c.Paths.FFmpegPath = "ffmpeg"
	c.Paths.LocalDatabasePath = "."
	c.Logging.LogPath = "grabtube.log"
	c.Downloads.Concurrency = 2
}

// Load reads the yaml config file into the singleton. A missing file leaves
// the defaults in place. Environment variables referenced with ${VAR} in the
// file are expanded.
func (c *Config) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), c); err != nil {
		return err
	}

	c.path = path
	return nil
}

// Path of the directory containing the config file
func (c *Config) Dir() string { return filepath.Dir(c.path) }

// Absolute path of the config file
func (c *Config) Path() string { return c.path }
