package api

import (
	"net/http"

	"rental-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getWallet(c *gin.Context) {
	wallet, err := h.svc.Wallet.GetWallet(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "Failed to load wallet", err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (h *Handler) listWalletEntries(c *gin.Context) {
	entries, err := h.svc.Wallet.ListEntries(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "Failed to list wallet entries", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) requestWithdrawal(c *gin.Context) {
	var req service.WithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}

	w, err := h.svc.Wallet.RequestWithdrawal(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		h.respondError(c, "Failed to request withdrawal", err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *Handler) listWithdrawals(c *gin.Context) {
	list, err := h.svc.Wallet.ListWithdrawals(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "Failed to list withdrawals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

func (h *Handler) listPendingWithdrawals(c *gin.Context) {
	list, err := h.svc.Wallet.ListPendingWithdrawals(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list withdrawals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

func (h *Handler) approveWithdrawal(c *gin.Context) {
	w, err := h.svc.Wallet.ApproveWithdrawal(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to approve withdrawal", err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) rejectWithdrawal(c *gin.Context) {
	var req service.RejectWithdrawalRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	w, err := h.svc.Wallet.RejectWithdrawal(c.Request.Context(), currentUser(c), c.Param("id"), req.Note)
	if err != nil {
		h.respondError(c, "Failed to reject withdrawal", err)
		return
	}
	c.JSON(http.StatusOK, w)
}
