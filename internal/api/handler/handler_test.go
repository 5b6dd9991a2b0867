package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	depositdomain "polybridge.com/internal/deposit/domain"
	depositrepo "polybridge.com/internal/deposit/repo"
	deposit "polybridge.com/internal/deposit/service"
	ledgerdomain "polybridge.com/internal/ledger/domain"
	ledgerrepo "polybridge.com/internal/ledger/repo"
	ledger "polybridge.com/internal/ledger/service"
	"polybridge.com/internal/session"
	"polybridge.com/internal/wallet"
	"polybridge.com/pkg/logger"
	"polybridge.com/pkg/xerr"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.InitWithFile("api-test", "error", os.DevNull)
	os.Exit(m.Run())
}

// stubValidator 只认一个 token
type stubValidator struct {
	token  string
	userID int64
}

func (s *stubValidator) Validate(_ context.Context, token string) (*session.Session, error) {
	if token != s.token {
		return nil, xerr.New(xerr.AuthError, "会话无效")
	}
	return &session.Session{UserID: s.userID}, nil
}

type stubScheduler struct{}

func (stubScheduler) Enqueue(int64) {}

type testEnv struct {
	router *gin.Engine
	ledger *ledger.Ledger
	db     *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	err = db.AutoMigrate(
		&depositdomain.Deposit{},
		&ledgerdomain.Entry{},
		&ledgerdomain.Balance{},
		&wallet.CustodyWallet{},
	)
	require.NoError(t, err)

	wallets := wallet.NewRepo(db)
	_, err = wallets.Bind(context.Background(), 1001, "TON", "UQtest_addr_1001")
	require.NoError(t, err)

	ledgerSvc := ledger.New(ledgerrepo.New(db), ledger.NewNoopCache())
	depositSvc := deposit.New(depositrepo.New(db), wallets, stubScheduler{}, deposit.Config{
		Chain:                 "TON",
		RequiredConfirmations: 1,
	})

	sessions := &stubValidator{token: "tok-1001", userID: 1001}

	r := gin.New()
	dh := NewDepositHandler(depositSvc, sessions)
	lh := NewLedgerHandler(ledgerSvc, sessions)
	wh := NewWalletHandler(wallets, sessions)
	r.POST("/api/deposit/detect", dh.Detect)
	r.GET("/api/deposit", dh.Get)
	r.GET("/api/ledger/history", lh.History)
	r.GET("/api/balances", lh.Balances)
	r.POST("/api/wallet/bind", wh.Bind)

	return &testEnv{router: r, ledger: ledgerSvc, db: db}
}

func (env *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestDetectEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("缺字段报 400", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/deposit/detect", `{"source_address":"UQtest_addr_1001"}`, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("首报 200", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/deposit/detect",
			`{"source_tx_hash":"tx_api_1","source_address":"UQtest_addr_1001","amount_source_asset":"10","confirmations":3}`, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			DepositID       int64  `json:"deposit_id"`
			Status          string `json:"status"`
			AlreadyRecorded bool   `json:"already_recorded"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "confirmed", resp.Status)
		assert.False(t, resp.AlreadyRecorded)
	})

	t.Run("重复上报 200 + already_recorded", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/deposit/detect",
			`{"source_tx_hash":"tx_api_1","source_address":"UQtest_addr_1001","amount_source_asset":"10","confirmations":4}`, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			AlreadyRecorded bool `json:"already_recorded"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.AlreadyRecorded)
	})

	t.Run("陌生地址 404", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/deposit/detect",
			`{"source_tx_hash":"tx_api_2","source_address":"UQnobody","amount_source_asset":"10","confirmations":1}`, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDepositQueryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/deposit/detect",
		`{"source_tx_hash":"tx_q1","source_address":"UQtest_addr_1001","amount_source_asset":"10","confirmations":3}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("没会话 401", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/deposit?tx_hash=tx_q1", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("按哈希查单条", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/deposit?tx_hash=tx_q1", "", "tok-1001")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"source_tx_hash":"tx_q1"`)
	})

	t.Run("查不存在的哈希 404", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/deposit?tx_hash=tx_missing", "", "tok-1001")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("不带哈希返回列表", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/deposit", "", "tok-1001")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Deposits []json.RawMessage `json:"deposits"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Deposits, 1)
	})
}

func TestHistoryAndBalancesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 直接往账本写两笔，绕开桥接
	for _, amount := range []string{"25", "5"} {
		_, err := env.ledger.CreateEntry(ctx, ledger.EntryParams{
			UserID:    1001,
			EntryType: ledgerdomain.EntryTypeDeposit,
			Amount:    decimal.RequireFromString(amount),
			Currency:  "USDC",
			Direction: ledgerdomain.DirectionCredit,
		})
		require.NoError(t, err)
	}

	t.Run("history 返回流水和 has_more", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/ledger/history?limit=1", "", "tok-1001")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Entries []json.RawMessage `json:"entries"`
			Total   int64             `json:"total"`
			HasMore bool              `json:"has_more"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Entries, 1)
		assert.EqualValues(t, 2, resp.Total)
		assert.True(t, resp.HasMore)
	})

	t.Run("日期格式错报 400", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/ledger/history?start_date=yesterday", "", "tok-1001")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("balances 汇总", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/balances", "", "tok-1001")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"available":"30"`)
	})
}

func TestWalletBindEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("绑定新链地址", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/wallet/bind",
			`{"chain":"ETH","deposit_address":"0xabc123"}`, "tok-1001")
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("没会话 401", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/wallet/bind",
			`{"chain":"BTC","deposit_address":"bc1xyz"}`, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
