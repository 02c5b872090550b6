package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server ServerConfig `mapstructure:"server"` // 服务器配置
	MySQL  MySQLConfig  `mapstructure:"mysql"`  // MySQL配置
	Sync   SyncConfig   `mapstructure:"sync"`   // 同步调度配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// MySQLConfig MySQL数据库配置。仓库表与各区域源 schema 在同一 MySQL 实例上，
// 通过 schema 限定名跨库查询，共用一条 DSN。
type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`              // 连接DSN（含仓库库名）
	WarehouseSchema string        `mapstructure:"warehouse_schema"` // 仓库 schema（默认 weaselbot）
	DirectorySchema string        `mapstructure:"directory_schema"` // 区域目录 schema（默认 paxminer）
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SyncConfig 同步调度配置
type SyncConfig struct {
	Cron           string   `mapstructure:"cron"`            // 全量同步Cron表达式（空则不调度）
	ExcludeSchemas []string `mapstructure:"exclude_schemas"` // 目录中跳过的 schema（如测试库 f3dc）
	ChunkSize      int      `mapstructure:"chunk_size"`      // 批量写入分块大小
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load()

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)

	if cfg.MySQL.WarehouseSchema == "" {
		cfg.MySQL.WarehouseSchema = "weaselbot"
	}
	if cfg.MySQL.DirectorySchema == "" {
		cfg.MySQL.DirectorySchema = "paxminer"
	}
	if cfg.Sync.ChunkSize <= 0 {
		cfg.Sync.ChunkSize = 1000
	}
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("未配置 MySQL DSN（config.yaml mysql.dsn 或 env MYSQL_DSN/DATABASE_*）")
	}
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置。兼容历史部署的 DATABASE_* 三件套拼 DSN。
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.MySQL.DSN = v
		return
	}
	user := os.Getenv("DATABASE_USER")
	pass := os.Getenv("DATABASE_PASSWORD")
	host := os.Getenv("DATABASE_HOST")
	if user != "" && host != "" {
		schema := cfg.MySQL.WarehouseSchema
		if schema == "" {
			schema = "weaselbot"
		}
		cfg.MySQL.DSN = fmt.Sprintf("%s:%s@tcp(%s:3306)/%s?charset=utf8mb4&parseTime=False&loc=Local", user, pass, host, schema)
	}
}
