package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"polybridge.com/internal/deposit/domain"
	"polybridge.com/internal/deposit/service"
	"polybridge.com/internal/session"
	"polybridge.com/pkg/xerr"
)

// DepositHandler 充值接口
type DepositHandler struct {
	deposits *service.Service
	sessions session.Validator
}

func NewDepositHandler(deposits *service.Service, sessions session.Validator) *DepositHandler {
	return &DepositHandler{deposits: deposits, sessions: sessions}
}

// detectReq 链上观察者的上报报文
type detectReq struct {
	SourceTxHash      string          `json:"source_tx_hash" binding:"required"`
	SourceAddress     string          `json:"source_address" binding:"required"`
	AmountSourceAsset decimal.Decimal `json:"amount_source_asset"`
	Confirmations     int64           `json:"confirmations"`
	BlockNumber       int64           `json:"block_number"`
}

// Detect POST /api/deposit/detect
// 观察者上报入口，幂等：重复上报返回已有记录状态，不会二次入账
func (h *DepositHandler) Detect(c *gin.Context) {
	var req detectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, xerr.New(xerr.RequestParamsError, err.Error()))
		return
	}

	res, err := h.deposits.Submit(c.Request.Context(), service.Notification{
		SourceTxHash:  req.SourceTxHash,
		SourceAddress: req.SourceAddress,
		Amount:        req.AmountSourceAsset,
		Confirmations: req.Confirmations,
		BlockNumber:   req.BlockNumber,
	})
	if err != nil {
		fail(c, err)
		return
	}

	// 首报和重报都回 200，already_recorded 区分是不是重放
	c.JSON(http.StatusOK, gin.H{
		"deposit_id":       res.DepositID,
		"status":           res.Status.String(),
		"already_recorded": res.AlreadyRecorded,
	})
}

// depositView 充值记录的对外视图
type depositView struct {
	ID                     int64   `json:"id"`
	SourceTxHash           string  `json:"source_tx_hash"`
	Chain                  string  `json:"chain"`
	AmountSourceAsset      string  `json:"amount_source_asset"`
	AmountPlatformCurrency *string `json:"amount_platform_currency"`
	Confirmations          int64   `json:"confirmations"`
	RequiredConfirmations  int64   `json:"required_confirmations"`
	Status                 string  `json:"status"`
	ErrorMessage           string  `json:"error_message,omitempty"`
	CreatedAt              string  `json:"created_at"`
	CompletedAt            *string `json:"completed_at,omitempty"`
}

func toDepositView(d *domain.Deposit) depositView {
	v := depositView{
		ID:                    d.ID,
		SourceTxHash:          d.SourceTxHash,
		Chain:                 d.Chain,
		AmountSourceAsset:     d.AmountSource.String(),
		Confirmations:         d.Confirmations,
		RequiredConfirmations: d.RequiredConfirmations,
		Status:                d.Status.String(),
		ErrorMessage:          d.ErrorMsg,
		CreatedAt:             d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if d.AmountPlatform.Valid {
		s := d.AmountPlatform.Decimal.String()
		v.AmountPlatformCurrency = &s
	}
	if d.CompletedAt != nil {
		s := d.CompletedAt.UTC().Format(time.RFC3339)
		v.CompletedAt = &s
	}
	return v
}

// Get GET /api/deposit
// 带 tx_hash 查单条，不带则返回本人最近记录列表
func (h *DepositHandler) Get(c *gin.Context) {
	userID, err := authedUser(c, h.sessions)
	if err != nil {
		fail(c, err)
		return
	}

	if hash := c.Query("tx_hash"); hash != "" {
		d, err := h.deposits.Get(c.Request.Context(), userID, hash)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deposit": toDepositView(d)})
		return
	}

	limit := intQuery(c, "limit", 50)
	list, err := h.deposits.List(c.Request.Context(), userID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	views := make([]depositView, 0, len(list))
	for _, d := range list {
		views = append(views, toDepositView(d))
	}
	c.JSON(http.StatusOK, gin.H{"deposits": views})
}
