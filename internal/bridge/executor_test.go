package bridge

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"polybridge.com/internal/deposit/domain"
	depositrepo "polybridge.com/internal/deposit/repo"
	ledgerdomain "polybridge.com/internal/ledger/domain"
	ledgerrepo "polybridge.com/internal/ledger/repo"
	ledger "polybridge.com/internal/ledger/service"
	"polybridge.com/internal/rate"
	"polybridge.com/pkg/logger"
	"polybridge.com/pkg/orm"
)

func TestMain(m *testing.M) {
	logger.InitWithFile("bridge-test", "error", os.DevNull)
	os.Exit(m.Run())
}

func newTestExecutor(t *testing.T, rates rate.Source) (*Executor, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&domain.Deposit{}, &ledgerdomain.Entry{}, &ledgerdomain.Balance{})
	require.NoError(t, err)

	e := NewExecutor(db, depositrepo.New(db), ledger.New(ledgerrepo.New(db), ledger.NewNoopCache()), rates, Config{
		SourceAsset:      "TON",
		PlatformCurrency: "USDC",
		GracePeriod:      time.Minute,
	})
	return e, db
}

func seedDeposit(t *testing.T, db *gorm.DB, hash string, status domain.Status, amount string) *domain.Deposit {
	t.Helper()
	d := &domain.Deposit{
		UserID:                1001,
		SourceTxHash:          hash,
		SourceAddr:            "UQtest_addr",
		Chain:                 "TON",
		AmountSource:          decimal.RequireFromString(amount),
		Confirmations:         3,
		RequiredConfirmations: 1,
		Status:                status,
	}
	require.NoError(t, db.Create(d).Error)
	return d
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("正常入账：completed + 流水 + 余额，一个不少", func(t *testing.T) {
		e, db := newTestExecutor(t, rate.NewFixed(decimal.RequireFromString("2.5")))
		d := seedDeposit(t, db, "tx_ok", domain.StatusBridging, "10")

		require.NoError(t, e.Execute(ctx, d.ID))

		var got domain.Deposit
		require.NoError(t, db.First(&got, d.ID).Error)
		assert.Equal(t, domain.StatusCompleted, got.Status)
		require.True(t, got.AmountPlatform.Valid)
		assert.True(t, got.AmountPlatform.Decimal.Equal(decimal.RequireFromString("25")))
		assert.NotNil(t, got.CompletedAt)

		entries, err := e.ledger.EntriesByDeposit(ctx, d.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, ledgerdomain.EntryCompleted, entries[0].Status)
		assert.Equal(t, "tx_ok", entries[0].SourceTxHash)
		assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("25")))

		b, err := e.ledger.GetBalance(ctx, 1001, "USDC")
		require.NoError(t, err)
		assert.True(t, b.Available.Equal(decimal.RequireFromString("25")))
	})

	t.Run("重复执行不会二次入账", func(t *testing.T) {
		e, db := newTestExecutor(t, rate.NewFixed(decimal.RequireFromString("2.5")))
		d := seedDeposit(t, db, "tx_twice", domain.StatusBridging, "10")

		require.NoError(t, e.Execute(ctx, d.ID))
		require.NoError(t, e.Execute(ctx, d.ID))

		entries, err := e.ledger.EntriesByDeposit(ctx, d.ID)
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		b, err := e.ledger.GetBalance(ctx, 1001, "USDC")
		require.NoError(t, err)
		assert.True(t, b.Available.Equal(decimal.RequireFromString("25")))
	})

	t.Run("汇率不可用：failed 终态，余额零变动", func(t *testing.T) {
		e, db := newTestExecutor(t, rate.NewFixed(decimal.Zero))
		d := seedDeposit(t, db, "tx_norate", domain.StatusBridging, "10")

		require.NoError(t, e.Execute(ctx, d.ID))

		var got domain.Deposit
		require.NoError(t, db.First(&got, d.ID).Error)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Contains(t, got.ErrorMsg, "rate unavailable")
		assert.False(t, got.AmountPlatform.Valid)

		b, err := e.ledger.GetBalance(ctx, 1001, "USDC")
		require.NoError(t, err)
		assert.True(t, b.Available.IsZero())

		entries, err := e.ledger.EntriesByDeposit(ctx, d.ID)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("不在 bridging 状态的记录直接跳过", func(t *testing.T) {
		e, db := newTestExecutor(t, rate.NewFixed(decimal.RequireFromString("2.5")))
		d := seedDeposit(t, db, "tx_pending", domain.StatusPending, "10")

		require.NoError(t, e.Execute(ctx, d.ID))

		var got domain.Deposit
		require.NoError(t, db.First(&got, d.ID).Error)
		assert.Equal(t, domain.StatusPending, got.Status)

		entries, err := e.ledger.EntriesByDeposit(ctx, d.ID)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

// commitCheckCache 在 DelBalance 被调用的瞬间回库读余额，
// 用来验证缓存失效发生在入账事务提交之后（而不是事务内）
type commitCheckCache struct {
	db        *gorm.DB
	deletions []decimal.Decimal // 每次 DelBalance 时库里已提交的余额
	inTx      bool
}

func (c *commitCheckCache) GetBalance(context.Context, int64, string) (*ledgerdomain.Balance, bool, error) {
	return nil, false, nil
}

func (c *commitCheckCache) SetBalance(context.Context, *ledgerdomain.Balance, time.Duration) error {
	return nil
}

func (c *commitCheckCache) DelBalance(ctx context.Context, userID int64, currency string) error {
	if orm.InTransaction(ctx) {
		c.inTx = true
	}
	var b ledgerdomain.Balance
	if err := c.db.Where("user_id = ? AND currency = ?", userID, currency).First(&b).Error; err != nil {
		b.Available = decimal.Zero
	}
	c.deletions = append(c.deletions, b.Available)
	return nil
}

func TestExecuteInvalidatesCacheAfterCommit(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Deposit{}, &ledgerdomain.Entry{}, &ledgerdomain.Balance{}))

	cache := &commitCheckCache{db: db}
	e := NewExecutor(db, depositrepo.New(db), ledger.New(ledgerrepo.New(db), cache),
		rate.NewFixed(decimal.RequireFromString("2.5")), Config{
			SourceAsset:      "TON",
			PlatformCurrency: "USDC",
		})
	d := seedDeposit(t, db, "tx_cache", domain.StatusBridging, "10")

	require.NoError(t, e.Execute(context.Background(), d.ID))

	// 失效只发生一次，且发生在事务外；此刻库里看到的已经是入账后的余额。
	// 提交前删缓存的话，窗口期的读会把旧余额回填，脏到 TTL 为止
	require.Len(t, cache.deletions, 1)
	assert.False(t, cache.inTx)
	assert.True(t, cache.deletions[0].Equal(decimal.RequireFromString("25")),
		"cache invalidated before the credit committed: db showed %s", cache.deletions[0])
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	past := time.Now().UTC().Add(-10 * time.Minute)

	t.Run("超时的 bridging 记录重新入队", func(t *testing.T) {
		e, db := newTestExecutor(t, rate.NewFixed(decimal.RequireFromString("2.5")))
		d := seedDeposit(t, db, "tx_stuck", domain.StatusBridging, "10")
		require.NoError(t, db.Model(&domain.Deposit{}).Where("id = ?", d.ID).
			UpdateColumn("updated_at", past).Error)

		e.sweepOnce(ctx)

		select {
		case id := <-e.queue:
			assert.Equal(t, d.ID, id)
		default:
			t.Fatal("stuck deposit was not requeued")
		}
	})

	t.Run("残留的 pending 流水被标记 failed", func(t *testing.T) {
		e, db := newTestExecutor(t, rate.NewFixed(decimal.RequireFromString("2.5")))
		d := seedDeposit(t, db, "tx_leftover", domain.StatusBridging, "10")
		require.NoError(t, db.Model(&domain.Deposit{}).Where("id = ?", d.ID).
			UpdateColumn("updated_at", past).Error)

		// 手工造一条残留 pending 流水（正常流程里入账是单事务，不会出现）
		leftover := &ledgerdomain.Entry{
			ID:        "leftover-entry",
			UserID:    1001,
			EntryType: ledgerdomain.EntryTypeDeposit,
			Amount:    decimal.RequireFromString("25"),
			Currency:  "USDC",
			Direction: ledgerdomain.DirectionCredit,
			Status:    ledgerdomain.EntryPending,
			DepositID: &d.ID,
			Metadata:  "{}",
			CreatedAt: past,
		}
		require.NoError(t, db.Create(leftover).Error)

		e.sweepOnce(ctx)

		var got ledgerdomain.Entry
		require.NoError(t, db.Where("id = ?", "leftover-entry").First(&got).Error)
		assert.Equal(t, ledgerdomain.EntryFailed, got.Status)
		assert.Equal(t, "superseded by reconciliation", got.ErrorMsg)

		select {
		case id := <-e.queue:
			assert.Equal(t, d.ID, id)
		default:
			t.Fatal("deposit was not requeued after superseding")
		}
	})

	t.Run("已有 completed 流水的记录绝不重新入队", func(t *testing.T) {
		e, db := newTestExecutor(t, rate.NewFixed(decimal.RequireFromString("2.5")))
		d := seedDeposit(t, db, "tx_manual", domain.StatusBridging, "10")
		require.NoError(t, db.Model(&domain.Deposit{}).Where("id = ?", d.ID).
			UpdateColumn("updated_at", past).Error)

		done := &ledgerdomain.Entry{
			ID:        "done-entry",
			UserID:    1001,
			EntryType: ledgerdomain.EntryTypeDeposit,
			Amount:    decimal.RequireFromString("25"),
			Currency:  "USDC",
			Direction: ledgerdomain.DirectionCredit,
			Status:    ledgerdomain.EntryCompleted,
			DepositID: &d.ID,
			Metadata:  "{}",
			CreatedAt: past,
		}
		require.NoError(t, db.Create(done).Error)

		e.sweepOnce(ctx)

		select {
		case <-e.queue:
			t.Fatal("deposit with completed entry must not be requeued")
		default:
		}
	})

	t.Run("调度写丢的 confirmed 记录被补上", func(t *testing.T) {
		e, db := newTestExecutor(t, rate.NewFixed(decimal.RequireFromString("2.5")))
		d := seedDeposit(t, db, "tx_orphan", domain.StatusConfirmed, "10")
		require.NoError(t, db.Model(&domain.Deposit{}).Where("id = ?", d.ID).
			UpdateColumn("updated_at", past).Error)

		e.sweepOnce(ctx)

		var got domain.Deposit
		require.NoError(t, db.First(&got, d.ID).Error)
		assert.Equal(t, domain.StatusBridging, got.Status)

		select {
		case id := <-e.queue:
			assert.Equal(t, d.ID, id)
		default:
			t.Fatal("orphan confirmed deposit was not rescheduled")
		}
	})
}

func TestRequeueAll(t *testing.T) {
	e, db := newTestExecutor(t, rate.NewFixed(decimal.RequireFromString("2.5")))
	seedDeposit(t, db, "tx_r1", domain.StatusBridging, "10")
	seedDeposit(t, db, "tx_r2", domain.StatusBridging, "20")
	seedDeposit(t, db, "tx_r3", domain.StatusCompleted, "30")

	e.requeueAll(context.Background())

	assert.Len(t, e.queue, 2)
}
