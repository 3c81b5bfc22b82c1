package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	CORS    CORSConfig    `yaml:"cors"`
	Log     LogConfig     `yaml:"log"`
	Journal JournalConfig `yaml:"journal"`
	Limits  LimitsConfig  `yaml:"limits"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Host                string    `yaml:"host"`
	Port                int       `yaml:"port"`
	ShutdownTimeoutSecs int       `yaml:"shutdown_timeout_secs"`
	TLS                 TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled bool `yaml:"enabled"`
	// Auto provisions certificates through ACME for Domains; otherwise
	// CertFile/KeyFile are served.
	Auto     bool     `yaml:"auto"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
	CertFile string   `yaml:"cert_file"`
	KeyFile  string   `yaml:"key_file"`
}

type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	MaxFileSize int64  `yaml:"max_file_size"` // bytes
}

type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Origins          []string `yaml:"origins"`
	Methods          []string `yaml:"methods"`
	Headers          []string `yaml:"headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAgeSecs       int      `yaml:"max_age_secs"`
}

type LogConfig struct {
	Level       string `yaml:"level"` // debug|info|warn|error
	Development bool   `yaml:"development"`
	AccessLog   string `yaml:"access_log"` // path; empty disables
}

type JournalConfig struct {
	Path       string `yaml:"path"` // bbolt file; empty disables
	MaxEntries int    `yaml:"max_entries"`
}

type LimitsConfig struct {
	RPS   float64 `yaml:"rps"` // 0 disables rate limiting
	Burst int     `yaml:"burst"`
}

type NotifyConfig struct {
	Workers  int            `yaml:"workers"`
	Webhooks []string       `yaml:"webhooks"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	NATS     NATSConfig     `yaml:"nats"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	AMQP     AMQPConfig     `yaml:"amqp"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"` // pub/sub channel; empty disables publish
	List    string `yaml:"list"`    // list key for LPUSH; empty disables
}

type PostgresConfig struct {
	Conn  string `yaml:"conn"`
	Table string `yaml:"table"`
}

type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default mirrors the service's original environment-only settings: a local
// development listener with permissive CORS.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "127.0.0.1",
			Port:                8000,
			ShutdownTimeoutSecs: 30,
			TLS: TLSConfig{
				CacheDir: "./certs",
			},
		},
		Storage: StorageConfig{
			DataDir:     "./data",
			MaxFileSize: 100 * 1024 * 1024,
		},
		CORS: CORSConfig{
			Enabled: true,
			Origins: []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
				"http://localhost:8080",
				"http://127.0.0.1:8080",
				"*",
			},
			Methods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			Headers:    []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"},
			MaxAgeSecs: 3600,
		},
		Log: LogConfig{
			Level: "info",
		},
		Journal: JournalConfig{
			MaxEntries: 10000,
		},
		Notify: NotifyConfig{
			Workers: 4,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies SEVINO_*
// environment overrides. Env always wins. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv keeps the original env contract: unparsable numbers are ignored,
// boolean vars compare case-insensitively against "true", list vars are
// comma-separated with blanks dropped.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("SEVINO_HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := os.LookupEnv("SEVINO_PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v, ok := os.LookupEnv("SEVINO_DATA_DIR"); ok {
		c.Storage.DataDir = v
	}
	if v, ok := os.LookupEnv("SEVINO_MAX_FILE_SIZE"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Storage.MaxFileSize = n
		}
	}
	if v, ok := os.LookupEnv("SEVINO_ENABLE_CORS"); ok {
		c.CORS.Enabled = strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv("SEVINO_CORS_ORIGINS"); ok {
		c.CORS.Origins = splitList(v)
	}
	if v, ok := os.LookupEnv("SEVINO_CORS_METHODS"); ok {
		c.CORS.Methods = splitList(v)
	}
	if v, ok := os.LookupEnv("SEVINO_CORS_HEADERS"); ok {
		c.CORS.Headers = splitList(v)
	}
	if v, ok := os.LookupEnv("SEVINO_CORS_ALLOW_CREDENTIALS"); ok {
		c.CORS.AllowCredentials = strings.EqualFold(v, "true")
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSecs) * time.Second
}
