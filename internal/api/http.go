package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"polybridge.com/internal/api/handler"
	"polybridge.com/pkg/middleware"
)

// Handlers 路由依赖的各个 handler，由 app 装配好传进来
type Handlers struct {
	Deposit *handler.DepositHandler
	Ledger  *handler.LedgerHandler
	Wallet  *handler.WalletHandler
}

func NewServer(addr string, h Handlers) *http.Server {
	// 监控
	r := gin.New()
	p := ginprom.NewPrometheus("polybridge")
	p.Use(r)
	r.Use(
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
	)

	api := r.Group("/api")
	{
		deposit := api.Group("/deposit")
		{
			// 观察者上报入口，不走会话（探测器拿不到用户会话）
			deposit.POST("/detect", h.Deposit.Detect)
			deposit.GET("", h.Deposit.Get)
		}
		api.GET("/ledger/history", h.Ledger.History)
		api.GET("/balances", h.Ledger.Balances)
		api.POST("/wallet/bind", h.Wallet.Bind)
	}

	return &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
