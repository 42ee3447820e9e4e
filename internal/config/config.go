package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Env       string          `mapstructure:"env"` // 环境: development, production
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Store     StoreConfig     `mapstructure:"store"`
	Firebase  FirebaseConfig  `mapstructure:"firebase"`
	Firestore FirestoreConfig `mapstructure:"firestore"`
	Geofence  GeofenceConfig  `mapstructure:"geofence"`
	Geocoder  GeocoderConfig  `mapstructure:"geocoder"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Events    EventsConfig    `mapstructure:"events"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Media     MediaConfig     `mapstructure:"media"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // sqlite, postgres
	Path            string `mapstructure:"path"`   // sqlite 文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// StoreConfig 任务存储配置
type StoreConfig struct {
	Backend      string        `mapstructure:"backend"`       // sql, firebase, firestore
	PollInterval time.Duration `mapstructure:"poll_interval"` // firebase 订阅轮询间隔
}

// FirebaseConfig Firebase 配置
type FirebaseConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	DatabaseURL     string `mapstructure:"database_url"`
	ProjectID       string `mapstructure:"project_id"`
	FCMTopic        string `mapstructure:"fcm_topic"` // 为空时不推送
}

// FirestoreConfig Firestore 配置
type FirestoreConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// GeofenceConfig 到场确认阈值
type GeofenceConfig struct {
	Radius             float64       `mapstructure:"radius"`             // 米
	ConfirmAccuracy    float64       `mapstructure:"confirm_accuracy"`   // 米
	CompleteAccuracy   float64       `mapstructure:"complete_accuracy"`  // 米
	AcquireTimeout     time.Duration `mapstructure:"acquire_timeout"`
	ProgressInterval   time.Duration `mapstructure:"progress_interval"`
	ProgressStep       int           `mapstructure:"progress_step"`
	ProgressResetDelay time.Duration `mapstructure:"progress_reset_delay"`
	SerializePerTask   bool          `mapstructure:"serialize_per_task"`
}

// GeocoderConfig 地址解析配置
type GeocoderConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	UserAgent    string        `mapstructure:"user_agent"`
	CountryCodes string        `mapstructure:"country_codes"`
	Language     string        `mapstructure:"language"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error
	Format string `mapstructure:"format"` // 日志格式: json, text
	Output string `mapstructure:"output"` // 输出位置: stdout, file, both
	File   string `mapstructure:"file"`   // output 为 file/both 时的文件路径
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"` // 0..1
}

// EventsConfig 任务事件投递配置
type EventsConfig struct {
	Workers   int      `mapstructure:"workers"`
	QueueSize int      `mapstructure:"queue_size"`
	Webhooks  []string `mapstructure:"webhooks"`
}

// JobsConfig 定时任务配置
type JobsConfig struct {
	MetricsRefresh string        `mapstructure:"metrics_refresh"` // cron 表达式
	AuditRetention string        `mapstructure:"audit_retention"` // cron 表达式
	AuditMaxAge    time.Duration `mapstructure:"audit_max_age"`
}

// MediaConfig 头像等媒体配置
type MediaConfig struct {
	PhotoDir  string `mapstructure:"photo_dir"`
	PhotoSize int    `mapstructure:"photo_size"`
	BaseURL   string `mapstructure:"base_url"`
}

// Load 加载配置,支持 .env、配置文件和环境变量
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果提供了配置文件路径,从文件加载
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// 尝试从默认位置加载
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.dispatch-gin")
		// 忽略配置文件不存在的错误,使用默认值
		_ = v.ReadInConfig()
	}

	// 支持环境变量
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := ValidateGeofence(cfg.Geofence); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// IsProduction 判断是否为生产环境
func IsProduction(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Env == "production"
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 环境变量
	env := v.GetString("env")
	if env == "" {
		env = os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
		}
	}
	v.SetDefault("env", env)

	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "dispatch.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "dispatch")
	v.SetDefault("database.sslmode", "disable")

	// 数据库连接池配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("database.max_idle_conns", 20)
		v.SetDefault("database.max_open_conns", 200)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 300) // 5 分钟
	} else {
		v.SetDefault("database.max_idle_conns", 10)
		v.SetDefault("database.max_open_conns", 100)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 600) // 10 分钟
	}

	// 任务存储
	v.SetDefault("store.backend", "sql")
	v.SetDefault("store.poll_interval", 2*time.Second)

	// Firebase / Firestore
	v.SetDefault("firebase.credentials_file", "")
	v.SetDefault("firebase.database_url", "")
	v.SetDefault("firebase.project_id", "")
	v.SetDefault("firebase.fcm_topic", "")
	v.SetDefault("firestore.project_id", "")
	v.SetDefault("firestore.credentials_file", "")

	// 到场确认阈值
	v.SetDefault("geofence.radius", 100.0)
	v.SetDefault("geofence.confirm_accuracy", 100.0)
	v.SetDefault("geofence.complete_accuracy", 50.0)
	v.SetDefault("geofence.acquire_timeout", 15*time.Second)
	v.SetDefault("geofence.progress_interval", 500*time.Millisecond)
	v.SetDefault("geofence.progress_step", 5)
	v.SetDefault("geofence.progress_reset_delay", 500*time.Millisecond)
	v.SetDefault("geofence.serialize_per_task", false)

	// 地址解析
	v.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoder.user_agent", "dispatch-gin/1.0")
	v.SetDefault("geocoder.country_codes", "ru")
	v.SetDefault("geocoder.language", "ru")
	v.SetDefault("geocoder.timeout", 10*time.Second)

	// 认证
	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.issuer", "dispatch-gin")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	// CORS 默认配置
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("cors.max_age", 86400)

	// 限流
	v.SetDefault("rate_limit.rps", 50.0)
	v.SetDefault("rate_limit.burst", 100)

	// 日志配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("log.level", "warn")
		v.SetDefault("log.format", "json")
	} else {
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.format", "text")
	}
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/dispatch-gin.log")

	// 追踪
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.sample_ratio", 1.0)

	// 事件
	v.SetDefault("events.workers", 5)
	v.SetDefault("events.queue_size", 1000)
	v.SetDefault("events.webhooks", []string{})

	// 定时任务
	v.SetDefault("jobs.metrics_refresh", "@every 1m")
	v.SetDefault("jobs.audit_retention", "@daily")
	v.SetDefault("jobs.audit_max_age", 90*24*time.Hour)

	// 媒体
	v.SetDefault("media.photo_dir", "./media/photos")
	v.SetDefault("media.photo_size", 256)
	v.SetDefault("media.base_url", "/media/photos")
}
