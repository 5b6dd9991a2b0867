package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"polybridge.com/internal/api"
	"polybridge.com/internal/api/handler"
	"polybridge.com/internal/bridge"
	"polybridge.com/internal/bridgesvc"
	depositrepo "polybridge.com/internal/deposit/repo"
	deposit "polybridge.com/internal/deposit/service"
	ledgerrepo "polybridge.com/internal/ledger/repo"
	ledger "polybridge.com/internal/ledger/service"
	"polybridge.com/internal/rate"
	"polybridge.com/internal/session"
	"polybridge.com/internal/wallet"
	"polybridge.com/pkg/config"
	"polybridge.com/pkg/logger"
	"polybridge.com/pkg/metrics"
	"polybridge.com/pkg/orm"
	"polybridge.com/pkg/safe"
	"polybridge.com/pkg/xredis"
)

// Run 启动桥接服务：外层只需传入 ctx 即可
func Run(ctx context.Context) error {
	cfg := &bridgesvc.Cfg{}
	if _, err := config.LoadAndWatch("bridge-service", cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.InitWithFile(cfg.Name, cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()

	metrics.MustRegister()

	db := orm.NewMySQL(&orm.Config{
		DSN:         cfg.Db.SourceName,
		MaxIdle:     cfg.Db.MaxIdleConns,
		MaxOpen:     cfg.Db.MaxOpenConns,
		MaxLifetime: cfg.Db.ConnMaxLifetimeSeconds,
	})
	// 表结构走迁移脚本，首次本地起服务可以临时打开：
	// db.AutoMigrate(&depositdomain.Deposit{}, &ledgerdomain.Entry{}, &ledgerdomain.Balance{}, &wallet.CustodyWallet{})
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	observeDBStats(ctx, sqlDB)

	rdb := xredis.NewRedis(&xredis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Auth,
		DB:       cfg.Redis.Database,
	})
	defer rdb.Close()
	observeRedisStats(ctx, rdb)

	// 固定汇率源，配置里给 decimal 字符串
	fixedRate, err := decimal.NewFromString(cfg.Bridge.Rate)
	if err != nil {
		return fmt.Errorf("bridge.rate is not a valid decimal: %w", err)
	}

	ledgerSvc := ledger.New(ledgerrepo.New(db), ledger.NewRedisCache(rdb))
	deposits := depositrepo.New(db)
	wallets := wallet.NewRepo(db)

	executor := bridge.NewExecutor(db, deposits, ledgerSvc, rate.NewFixed(fixedRate), bridge.Config{
		Workers:          cfg.Bridge.Workers,
		QueueSize:        cfg.Bridge.QueueSize,
		PlatformCurrency: cfg.Bridge.PlatformCurrency,
		SourceAsset:      cfg.Bridge.SourceAsset,
		GracePeriod:      time.Duration(cfg.Bridge.GracePeriodSec) * time.Second,
		SweepInterval:    time.Duration(cfg.Bridge.SweepIntervalSec) * time.Second,
	})
	executor.Start(ctx)

	depositSvc := deposit.New(deposits, wallets, executor, deposit.Config{
		Chain:                 cfg.Deposit.Chain,
		RequiredConfirmations: cfg.Deposit.RequiredConfirmations,
	})

	sessions := session.NewRedisValidator(rdb)
	srv := api.NewServer(cfg.HTTP.Addr, api.Handlers{
		Deposit: handler.NewDepositHandler(depositSvc, sessions),
		Ledger:  handler.NewLedgerHandler(ledgerSvc, sessions),
		Wallet:  handler.NewWalletHandler(wallets, sessions),
	})

	errCh := make(chan error, 1)
	safe.Go(func() {
		logger.Info(ctx, "http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	// 优雅退出：先停 HTTP，worker 随 ctx 取消收尾
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http shutdown", zap.Error(err))
	}
	logger.Info(ctx, "bridge service stopped")
	return nil
}

// observeDBStats 采集 DB 连接池指标
func observeDBStats(ctx context.Context, db *sql.DB) {
	safe.Go(func() {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		var lastWaitCount int64
		var lastWaitDuration time.Duration
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			st := db.Stats()
			metrics.DbPoolOpen.Set(float64(st.OpenConnections))
			metrics.DbPoolIdle.Set(float64(st.Idle))
			metrics.DbPoolInuse.Set(float64(st.InUse))

			if delta := st.WaitCount - lastWaitCount; delta > 0 {
				metrics.DbPoolWaitCount.Add(float64(delta))
				lastWaitCount = st.WaitCount
			}
			if delta := st.WaitDuration - lastWaitDuration; delta > 0 {
				metrics.DbPoolWaitDuration.Add(delta.Seconds())
				lastWaitDuration = st.WaitDuration
			}
		}
	})
}

// observeRedisStats 采集 Redis 连接池指标
func observeRedisStats(ctx context.Context, rdb *redis.Client) {
	safe.Go(func() {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		var lastWaitCount int64
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			st := rdb.PoolStats()
			metrics.RedisPoolOpen.Set(float64(st.TotalConns))
			metrics.RedisPoolIdle.Set(float64(st.IdleConns))

			if delta := int64(st.WaitCount) - lastWaitCount; delta > 0 {
				metrics.RedisPoolWaitCount.Add(float64(delta))
				lastWaitCount = int64(st.WaitCount)
			}
		}
	})
}
