package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"SSOWallet-Chain/internal/api"
	"SSOWallet-Chain/internal/chain"
	"SSOWallet-Chain/internal/config"
	"SSOWallet-Chain/internal/job"
	"SSOWallet-Chain/internal/observability/alerting"
	"SSOWallet-Chain/internal/session"
	storage "SSOWallet-Chain/internal/storage/mysql"
	"SSOWallet-Chain/internal/wallet"
	"SSOWallet-Chain/pkg/logger"
)

// main 是钱包守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("ssowalletd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("SSOWALLET_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "ssowallet.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if !common.IsHexAddress(cfg.Wallet.Account) {
		return fmt.Errorf("wallet.account 不是合法地址: %s", cfg.Wallet.Account)
	}
	account := common.HexToAddress(cfg.Wallet.Account)

	registry, err := chain.NewRegistry(ctx, chain.RegistryConfig{
		ChainConfig:   cfg.Chain.ConfigPath,
		DefaultChain:  cfg.Chain.Default,
		RPCURL:        cfg.Chain.RPCURL,
		ChainID:       cfg.Chain.ChainID,
		SessionModule: cfg.Chain.SessionModule,
	})
	if err != nil {
		return err
	}
	defer registry.Close()

	client, err := registry.DefaultClient()
	if err != nil {
		return err
	}
	moduleHex := registry.SessionModule(registry.DefaultChain())
	if !common.IsHexAddress(moduleHex) {
		return fmt.Errorf("链 %s 未配置合法的会话模块地址", registry.DefaultChain())
	}
	module := common.HexToAddress(moduleHex)

	privateKey, err := cfg.Wallet.PrivateKey()
	if err != nil {
		return err
	}
	signer, err := wallet.NewSigner(privateKey, module)
	if err != nil {
		return err
	}

	resolver := session.NewResolver(client, module, logger.Named("session"))
	builder := wallet.NewBuilder(client, logger.Named("wallet"))
	pipeline := wallet.NewPipeline(builder, signer, client, logger.Named("wallet"))

	var jobStore job.Store
	switch cfg.Storage.JobStore.Driver {
	case "", "memory":
		jobStore = job.NewMemoryStore()
	case "mysql":
		store, err := job.NewMySQLStore(ctx, storage.Config{
			DSN:             cfg.Storage.JobStore.DSN,
			MaxOpenConns:    cfg.Storage.JobStore.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.JobStore.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.JobStore.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.JobStore.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		jobStore = store
	default:
		return fmt.Errorf("未知的作业存储驱动: %s", cfg.Storage.JobStore.Driver)
	}
	defer func() {
		if jobStore != nil {
			_ = jobStore.Close()
		}
	}()

	var jobQueue job.Queue
	switch cfg.JobQueue.Driver {
	case "", "memory":
		jobQueue = job.NewMemoryQueue(1024)
	case "redis":
		queue, err := job.NewRedisQueue(job.RedisQueueConfig{
			Address:   cfg.JobQueue.Redis.Address,
			Password:  cfg.JobQueue.Redis.Password,
			DB:        cfg.JobQueue.Redis.DB,
			Queue:     cfg.JobQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.JobQueue.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
		jobQueue = queue
	case "rabbitmq":
		queue, err := job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:        cfg.JobQueue.RabbitMQ.URL,
			Queue:      cfg.JobQueue.RabbitMQ.Queue,
			Prefetch:   cfg.JobQueue.RabbitMQ.Prefetch,
			Durable:    cfg.JobQueue.RabbitMQ.Durable,
			AutoDelete: cfg.JobQueue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		jobQueue = queue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.JobQueue.Driver)
	}
	defer func() {
		if jobQueue != nil {
			if err := jobQueue.Close(); err != nil {
				logger.L().Warn("关闭作业队列失败", "error", err)
			}
		}
	}()

	executor := job.NewTransferExecutor(resolver, pipeline, account, signer.Address(),
		job.WithExecutorLogger(logger.Named("executor")),
	)
	jobService := job.NewService(jobStore, jobQueue, cfg.Storage.JobStore.Retries)
	alerter := alerting.NewFanout(&alerting.LogNotifier{Logger: logger.Named("alerting")})
	processor := job.NewProcessor(executor, jobStore, jobQueue, jobQueue,
		job.WithWorkerCount(cfg.JobQueue.Worker),
		job.WithProcessorLogger(logger.Named("processor")),
		job.WithAlertDispatcher(alerter),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("作业处理器异常退出", "error", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, jobService, resolver, account, signer.Address())

	logger.L().Info("ssowalletd 已启动",
		"address", cfg.Server.Address,
		"chain", registry.DefaultChain(),
		"account", account.Hex(),
		"session_module", module.Hex(),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
