package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"polybridge.com/internal/session"
	"polybridge.com/internal/wallet"
	"polybridge.com/pkg/xerr"
)

// WalletHandler 托管地址绑定
type WalletHandler struct {
	wallets  *wallet.Repo
	sessions session.Validator
}

func NewWalletHandler(wallets *wallet.Repo, sessions session.Validator) *WalletHandler {
	return &WalletHandler{wallets: wallets, sessions: sessions}
}

type bindReq struct {
	Chain          string `json:"chain" binding:"required"`
	DepositAddress string `json:"deposit_address" binding:"required"`
}

// Bind POST /api/wallet/bind
// 同一用户同一条链只能绑一个地址，重复绑定报错
func (h *WalletHandler) Bind(c *gin.Context) {
	userID, err := authedUser(c, h.sessions)
	if err != nil {
		fail(c, err)
		return
	}

	var req bindReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, xerr.New(xerr.RequestParamsError, err.Error()))
		return
	}

	w, err := h.wallets.Bind(c.Request.Context(), userID, req.Chain, req.DepositAddress)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"chain":           w.Chain,
		"deposit_address": w.DepositAddress,
	})
}
