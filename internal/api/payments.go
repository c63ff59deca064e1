package api

import (
	"net/http"

	"rental-service/internal/payments/mpesa"
	"rental-service/internal/payments/pesapal"
	"rental-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) initiateMpesa(c *gin.Context) {
	var req service.InitiatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Payments.InitiateMpesa(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		h.respondError(c, "Failed to initiate M-Pesa payment", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) initiatePesapal(c *gin.Context) {
	var req service.InitiatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Payments.InitiatePesapal(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		h.respondError(c, "Failed to initiate Pesapal payment", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listPayments(c *gin.Context) {
	txns, err := h.svc.Payments.ListTransactions(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "Failed to list payments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func (h *Handler) getPayment(c *gin.Context) {
	txn, err := h.svc.Payments.GetTransaction(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "Payment not found", err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// mpesaCallback always acknowledges; Daraja does not act on a rejection
func (h *Handler) mpesaCallback(c *gin.Context) {
	var cb mpesa.Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		h.logger.Warn("Undecodable M-Pesa callback", zap.Error(err))
		c.JSON(http.StatusOK, mpesa.Accepted)
		return
	}

	if err := h.svc.Payments.HandleMpesaCallback(c.Request.Context(), &cb); err != nil {
		h.logger.Error("Failed to handle M-Pesa callback",
			zap.String("checkout_request_id", cb.Body.STKCallback.CheckoutRequestID),
			zap.Error(err))
	}
	c.JSON(http.StatusOK, mpesa.Accepted)
}

type ipnRequest struct {
	OrderTrackingID        string `json:"OrderTrackingId" form:"OrderTrackingId"`
	OrderMerchantReference string `json:"OrderMerchantReference" form:"OrderMerchantReference"`
	OrderNotificationType  string `json:"OrderNotificationType" form:"OrderNotificationType"`
}

// pesapalIPN accepts the notification as query parameters (GET) or JSON
// (POST). A 500 status in the acknowledgement asks Pesapal to retry.
func (h *Handler) pesapalIPN(c *gin.Context) {
	var req ipnRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil || req.OrderTrackingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid IPN",
			"details": "OrderTrackingId is required",
		})
		return
	}

	ack := pesapal.IPNAck{
		OrderNotificationType:  req.OrderNotificationType,
		OrderTrackingID:        req.OrderTrackingID,
		OrderMerchantReference: req.OrderMerchantReference,
		Status:                 http.StatusOK,
	}
	if err := h.svc.Payments.HandlePesapalIPN(c.Request.Context(), req.OrderTrackingID, req.OrderMerchantReference); err != nil {
		h.logger.Error("Failed to handle Pesapal IPN",
			zap.String("order_tracking_id", req.OrderTrackingID),
			zap.Error(err))
		ack.Status = http.StatusInternalServerError
		c.JSON(http.StatusInternalServerError, ack)
		return
	}
	c.JSON(http.StatusOK, ack)
}
