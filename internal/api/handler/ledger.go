package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"polybridge.com/internal/ledger/domain"
	ledger "polybridge.com/internal/ledger/service"
	"polybridge.com/internal/session"
	"polybridge.com/pkg/xerr"
)

// LedgerHandler 流水与余额接口
type LedgerHandler struct {
	ledger   *ledger.Ledger
	sessions session.Validator
}

func NewLedgerHandler(l *ledger.Ledger, sessions session.Validator) *LedgerHandler {
	return &LedgerHandler{ledger: l, sessions: sessions}
}

func intQuery(c *gin.Context, key string, def int) int {
	s := c.Query(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// entryView 流水的对外视图
type entryView struct {
	ID                string  `json:"id"`
	EntryType         string  `json:"entry_type"`
	Amount            string  `json:"amount"`
	BalanceBefore     string  `json:"balance_before"`
	BalanceAfter      string  `json:"balance_after"`
	Currency          string  `json:"currency"`
	Direction         string  `json:"direction"`
	Status            string  `json:"status"`
	SourceTxHash      string  `json:"source_tx_hash,omitempty"`
	DestinationTxHash string  `json:"destination_tx_hash,omitempty"`
	ErrorMessage      string  `json:"error_message,omitempty"`
	CreatedAt         string  `json:"created_at"`
	CompletedAt       *string `json:"completed_at,omitempty"`
}

func toEntryView(e *domain.Entry) entryView {
	v := entryView{
		ID:                e.ID,
		EntryType:         e.EntryType,
		Amount:            e.Amount.String(),
		BalanceBefore:     e.BalanceBefore.String(),
		BalanceAfter:      e.BalanceAfter.String(),
		Currency:          e.Currency,
		Direction:         e.Direction,
		Status:            e.Status,
		SourceTxHash:      e.SourceTxHash,
		DestinationTxHash: e.DestinationTxHash,
		ErrorMessage:      e.ErrorMsg,
		CreatedAt:         e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e.CompletedAt != nil {
		s := e.CompletedAt.UTC().Format(time.RFC3339)
		v.CompletedAt = &s
	}
	return v
}

// History GET /api/ledger/history
// 过滤条件全部 AND：type / status / start_date / end_date，created_at 倒序分页
func (h *LedgerHandler) History(c *gin.Context) {
	userID, err := authedUser(c, h.sessions)
	if err != nil {
		fail(c, err)
		return
	}

	filter := domain.HistoryFilter{
		EntryType: c.Query("type"),
		Status:    c.Query("status"),
	}
	if s := c.Query("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			fail(c, xerr.New(xerr.RequestParamsError, "start_date must be RFC3339"))
			return
		}
		filter.DateFrom = &t
	}
	if s := c.Query("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			fail(c, xerr.New(xerr.RequestParamsError, "end_date must be RFC3339"))
			return
		}
		filter.DateTo = &t
	}

	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	page, err := h.ledger.History(c.Request.Context(), userID, filter, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}

	views := make([]entryView, 0, len(page.Entries))
	for _, e := range page.Entries {
		views = append(views, toEntryView(e))
	}
	c.JSON(http.StatusOK, gin.H{
		"entries":  views,
		"total":    page.Total,
		"has_more": page.HasMore,
	})
}

// Balances GET /api/balances
func (h *LedgerHandler) Balances(c *gin.Context) {
	userID, err := authedUser(c, h.sessions)
	if err != nil {
		fail(c, err)
		return
	}

	list, err := h.ledger.Balances(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	type balanceView struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
		UpdatedAt string `json:"updated_at"`
	}
	views := make([]balanceView, 0, len(list))
	for _, b := range list {
		views = append(views, balanceView{
			Currency:  b.Currency,
			Available: b.Available.String(),
			UpdatedAt: b.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"balances": views})
}
