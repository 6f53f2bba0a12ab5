package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Config 描述了钱包守护进程在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Wallet   WalletConfig   `json:"wallet"`
	Chain    ChainConfig    `json:"chain"`
	Storage  StorageConfig  `json:"storage"`
	JobQueue JobQueueConfig `json:"job_queue"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// WalletConfig 描述智能账户与会话密钥的来源。
// 私钥永远不直接写进配置文件，只通过环境变量注入。
type WalletConfig struct {
	Account       string `json:"account"`
	PrivateKeyEnv string `json:"private_key_env"`
}

// PrivateKey 从环境变量读取会话私钥。
func (w WalletConfig) PrivateKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(w.PrivateKeyEnv))
	if key == "" {
		return "", fmt.Errorf("环境变量 %s 未设置会话私钥", w.PrivateKeyEnv)
	}
	return key, nil
}

// ChainConfig 描述链端点的配置来源。ConfigPath 指向多链 YAML 定义，
// 单链部署也可以只填 RPCURL 与 ChainID。
type ChainConfig struct {
	ConfigPath    string `json:"config_path"`
	Default       string `json:"default"`
	RPCURL        string `json:"rpc_url"`
	ChainID       uint64 `json:"chain_id"`
	SessionModule string `json:"session_module"`
}

// StorageConfig 统一描述作业存储后端的连接信息。
type StorageConfig struct {
	JobStore JobStoreConfig `json:"job_store"`
}

// JobStoreConfig 支持内存实现与 MySQL。
type JobStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
	Retries                int    `json:"retries"`
}

// JobQueueConfig 描述作业队列的驱动与连接参数。
type JobQueueConfig struct {
	Driver   string         `json:"driver"`
	Worker   int            `json:"worker"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接信息。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接信息。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LoggingConfig 控制结构化日志与审计日志的输出。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 描述审计日志文件的滚动策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Wallet.PrivateKeyEnv == "" {
		c.Wallet.PrivateKeyEnv = "SSOWALLET_PRIVATE_KEY"
	}
	if c.Storage.JobStore.Driver == "" {
		c.Storage.JobStore.Driver = "memory"
	}
	if c.Storage.JobStore.Retries <= 0 {
		c.Storage.JobStore.Retries = 3
	}
	if c.JobQueue.Driver == "" {
		c.JobQueue.Driver = "memory"
	}
	if c.JobQueue.Worker <= 0 {
		c.JobQueue.Worker = 4
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// validate 拦截明显无法运行的配置组合。
func (c *Config) validate() error {
	if strings.TrimSpace(c.Wallet.Account) == "" {
		return errors.New("wallet.account 不能为空")
	}
	if c.Chain.ConfigPath == "" && strings.TrimSpace(c.Chain.RPCURL) == "" {
		return errors.New("chain.config_path 与 chain.rpc_url 至少需要配置一个")
	}
	switch c.Storage.JobStore.Driver {
	case "memory", "mysql":
	default:
		return fmt.Errorf("未知的作业存储驱动: %s", c.Storage.JobStore.Driver)
	}
	if c.Storage.JobStore.Driver == "mysql" && strings.TrimSpace(c.Storage.JobStore.DSN) == "" {
		return errors.New("storage.job_store.dsn 不能为空")
	}
	switch c.JobQueue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.JobQueue.Driver)
	}
	return nil
}
