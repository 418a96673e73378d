// Package config loads hello-server settings from a YAML or JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hello-server/internal/logger"
	"hello-server/internal/server"
	"hello-server/internal/worker"

	"gopkg.in/yaml.v3"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Pool   PoolConfig   `yaml:"pool" json:"pool"`
	Admin  AdminConfig  `yaml:"admin" json:"admin"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

// ServerConfig は待ち受け設定
type ServerConfig struct {
	Addr           string `yaml:"addr" json:"addr"`
	ReadTimeout    string `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   string `yaml:"write_timeout" json:"write_timeout"`
	SleepDelay     string `yaml:"sleep_delay" json:"sleep_delay"`
	MaxRequestLine int    `yaml:"max_request_line" json:"max_request_line"`
	PagesDir       string `yaml:"pages_dir" json:"pages_dir"`
}

// PoolConfig はワーカープール設定
type PoolConfig struct {
	Workers     *int   `yaml:"workers" json:"workers"` // nil なら未指定
	QueueFactor int    `yaml:"queue_factor" json:"queue_factor"`
	QueueSize   int    `yaml:"queue_size" json:"queue_size"`
	Shutdown    string `yaml:"shutdown" json:"shutdown"`
}

// AdminConfig は管理APIの設定（addr が空なら無効）
type AdminConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Config は設定ファイルとデフォルト値から組み立てた実行時設定
type Config struct {
	Server    server.Config
	Pool      worker.PoolConfig
	PagesDir  string
	AdminAddr string
	LogLevel  logger.Level
}

// Default は引数なしで起動したときの設定を返す
func Default() Config {
	return Config{
		Server:   server.DefaultConfig(),
		Pool:     worker.DefaultPoolConfig(),
		LogLevel: logger.LevelInfo,
	}
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// Validate は設定を検証する
// workers を省略した場合はデフォルト値になる。明示した 0 以下は ErrInvalidSize
func (f *FileConfig) Validate() error {
	if f.Pool.Workers != nil && *f.Pool.Workers < 1 {
		return fmt.Errorf("pool.workers: %w: got %d", worker.ErrInvalidSize, *f.Pool.Workers)
	}
	if f.Pool.QueueFactor < 0 {
		return fmt.Errorf("pool.queue_factor must be non-negative")
	}
	if f.Pool.QueueSize < 0 {
		return fmt.Errorf("pool.queue_size must be non-negative")
	}
	if _, err := worker.ParseShutdownMode(f.Pool.Shutdown); err != nil {
		return fmt.Errorf("pool.shutdown: %w", err)
	}
	if f.Server.MaxRequestLine < 0 {
		return fmt.Errorf("server.max_request_line must be non-negative")
	}
	if _, err := logger.ParseLevel(f.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ToConfig は FileConfig をデフォルト値に重ねて Config に変換する
func (f *FileConfig) ToConfig() (Config, error) {
	config := Default()

	sc := f.Server
	if sc.Addr != "" {
		config.Server.Addr = sc.Addr
	}
	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"server.read_timeout", sc.ReadTimeout, &config.Server.ReadTimeout},
		{"server.write_timeout", sc.WriteTimeout, &config.Server.WriteTimeout},
		{"server.sleep_delay", sc.SleepDelay, &config.Server.SleepDelay},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return config, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	if sc.MaxRequestLine > 0 {
		config.Server.MaxRequestLine = sc.MaxRequestLine
	}
	config.PagesDir = sc.PagesDir

	// Pool設定
	if f.Pool.Workers != nil {
		config.Pool.NumWorkers = *f.Pool.Workers
	}
	if f.Pool.QueueFactor > 0 {
		config.Pool.QueueFactor = f.Pool.QueueFactor
	}
	if f.Pool.QueueSize > 0 {
		config.Pool.QueueSize = f.Pool.QueueSize
	}
	mode, err := worker.ParseShutdownMode(f.Pool.Shutdown)
	if err != nil {
		return config, err
	}
	config.Pool.Shutdown = mode

	config.AdminAddr = f.Admin.Addr

	level, err := logger.ParseLevel(f.Log.Level)
	if err != nil {
		return config, err
	}
	config.LogLevel = level

	return config, nil
}
