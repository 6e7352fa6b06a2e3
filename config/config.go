package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Backend   BackendConfig   `mapstructure:"backend"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Session   SessionConfig   `mapstructure:"session"`
	History   HistoryConfig   `mapstructure:"history"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type BackendConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	WSBaseURL         string `mapstructure:"ws_base_url"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_sec"` // 上传/预测请求超时
	HealthTimeoutSec  int    `mapstructure:"health_timeout_sec"`  // 健康探测超时
	HealthIntervalSec int    `mapstructure:"health_interval_sec"` // 健康探测轮询间隔
	ReconnectAttempts int    `mapstructure:"reconnect_attempts"`  // CLI follow 重连次数
	ReconnectDelaySec int    `mapstructure:"reconnect_delay_sec"` // 重连间隔
}

type DatabaseConfig struct {
	// driver: sqlite（默认，本地缓存）或 mysql（团队共享仪表盘）
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"` // 可选：多进程仪表盘进度中继
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DashboardConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type SessionConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type HistoryConfig struct {
	MaxItems int `mapstructure:"max_items"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（本地覆盖，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default 不依赖配置文件的默认配置（CLI 在没有 config.yaml 时使用）
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://127.0.0.1:8000"
	}
	if c.Backend.WSBaseURL == "" {
		c.Backend.WSBaseURL = "ws://127.0.0.1:8000"
	}
	if c.Backend.RequestTimeoutSec == 0 {
		c.Backend.RequestTimeoutSec = 60
	}
	if c.Backend.HealthTimeoutSec == 0 {
		c.Backend.HealthTimeoutSec = 3
	}
	if c.Backend.HealthIntervalSec == 0 {
		c.Backend.HealthIntervalSec = 30
	}
	if c.Backend.ReconnectAttempts == 0 {
		c.Backend.ReconnectAttempts = 3
	}
	if c.Backend.ReconnectDelaySec == 0 {
		c.Backend.ReconnectDelaySec = 2
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "edna.db"
	}
	if c.History.MaxItems == 0 {
		c.History.MaxItems = 50
	}
	if c.Session.ExpireHours == 0 {
		c.Session.ExpireHours = 24
	}
}
