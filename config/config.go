package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Clan     ClanConfig     `mapstructure:"clan"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

type ServerConfig struct {
	Port     int      `mapstructure:"port"`
	Debug    bool     `mapstructure:"debug"`
	AdminKey string   `mapstructure:"admin_key"`
	AdminIPs []string `mapstructure:"admin_ips"` // empty = any source IP
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ClanConfig struct {
	InvitationTTL       time.Duration `mapstructure:"invitation_ttl"`
	ReaperIntervalS     int           `mapstructure:"reaper_interval_s"`
	MuteSweepIntervalS  int           `mapstructure:"mute_sweep_interval_s"`
	MaxApplicationForms int           `mapstructure:"max_application_forms"`
	MaxRolesPerClan     int           `mapstructure:"max_roles_per_clan"`
}

type ChatConfig struct {
	EditWindow    time.Duration `mapstructure:"edit_window"`
	MaxMessageLen int           `mapstructure:"max_message_len"`
	PageSize      int           `mapstructure:"page_size"`
}

type AuditConfig struct {
	BatchSize   int           `mapstructure:"batch_size"`
	FlushPeriod time.Duration `mapstructure:"flush_period"`
	QueueSize   int           `mapstructure:"queue_size"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/clanhub.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("clan.invitation_ttl", "48h")
	v.SetDefault("clan.reaper_interval_s", 600)
	v.SetDefault("clan.mute_sweep_interval_s", 60)
	v.SetDefault("clan.max_application_forms", 10)
	v.SetDefault("clan.max_roles_per_clan", 20)
	v.SetDefault("chat.edit_window", "10m")
	v.SetDefault("chat.max_message_len", 2000)
	v.SetDefault("chat.page_size", 50)
	v.SetDefault("audit.batch_size", 64)
	v.SetDefault("audit.flush_period", "2s")
	v.SetDefault("audit.queue_size", 4096)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
