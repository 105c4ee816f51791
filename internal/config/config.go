package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	Approval     ApprovalConfig     `mapstructure:"approval"`
	Notification NotificationConfig `mapstructure:"notification"`
	Worker       WorkerConfig       `mapstructure:"worker"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
}

// RedisConfig Redis 配置（离线消息与异步任务队列使用）
type RedisConfig struct {
	// 是否启用 Redis；关闭时离线消息落内存、异步任务走进程内执行
	Enabled bool `mapstructure:"enabled"`

	// 连接模式: standalone(单节点), sentinel(哨兵)
	Mode string `mapstructure:"mode"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// 哨兵模式配置
	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`

	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// ApprovalConfig 审批流程配置
type ApprovalConfig struct {
	PendingPageSize    int      `mapstructure:"pending_page_size"`    // 待审批列表单页上限
	OfflineQueueLimit  int      `mapstructure:"offline_queue_limit"`  // 每个审批人离线消息缓存上限
	DefaultChannels    []string `mapstructure:"default_channels"`     // 默认通知渠道
	ChannelRules       []string `mapstructure:"channel_rules"`        // 渠道路由规则表达式
	KeepAliveInterval  string   `mapstructure:"keep_alive_interval"`  // WebSocket 心跳间隔，如 "30s"
	RejectionReasonTop int      `mapstructure:"rejection_reason_top"` // 常见拒绝原因统计条数
}

// NotificationConfig 通知渠道配置
type NotificationConfig struct {
	Email   EmailConfig   `mapstructure:"email"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// EmailConfig 邮件渠道配置
type EmailConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	From         string `mapstructure:"from"`
	FromName     string `mapstructure:"from_name"`
	TemplatePath string `mapstructure:"template_path"`
}

// WebhookConfig Webhook 渠道配置
type WebhookConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	DefaultURL string            `mapstructure:"default_url"`
	Timeout    int               `mapstructure:"timeout"` // 秒
	Headers    map[string]string `mapstructure:"headers"`
}

// WorkerConfig 异步任务配置
type WorkerConfig struct {
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 环境变量优先级高于配置文件
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_DATABASE_HOST

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// setDefaults 设置缺省值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")
	v.SetDefault("approval.pending_page_size", 50)
	v.SetDefault("approval.offline_queue_limit", 50)
	v.SetDefault("approval.default_channels", []string{"websocket"})
	v.SetDefault("approval.keep_alive_interval", "30s")
	v.SetDefault("approval.rejection_reason_top", 5)
	v.SetDefault("worker.concurrency", 10)
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// KeepAlive 解析 WebSocket 心跳间隔
func (c *ApprovalConfig) KeepAlive() time.Duration {
	d, err := time.ParseDuration(c.KeepAliveInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
