package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"rental-service/internal/models"
	"rental-service/internal/payments"
	"rental-service/internal/realtime"
	"rental-service/internal/service"
	"rental-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services bundles the domain services the handlers call
type Services struct {
	Profiles      *service.ProfileService
	Listings      *service.ListingService
	Bookings      *service.BookingService
	Subscriptions *service.SubscriptionService
	Payments      *service.PaymentService
	Wallet        *service.WalletService
	Messages      *service.MessageService
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	svc       Services
	hub       *realtime.Hub
	jwtSecret string
	checks    map[string]Pinger
	keepAlive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler. checks are pinged by /ready.
func NewHandler(svc Services, hub *realtime.Hub, jwtSecret string, checks map[string]Pinger) *Handler {
	registerValidators()
	return &Handler{
		svc:       svc,
		hub:       hub,
		jwtSecret: jwtSecret,
		checks:    checks,
		keepAlive: 25 * time.Second,
		logger:    util.GetLogger(),
	}
}

var validatorsOnce sync.Once

// registerValidators adds the custom binding tags used by request structs
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if err := v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
			return payments.ValidPhone(fl.Field().String())
		}); err != nil {
			util.GetLogger().Error("Failed to register msisdn validator", zap.Error(err))
		}
	})
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/media/*key", h.serveMedia)

	v1 := router.Group("/api/v1")
	{
		// Public
		v1.GET("/categories", h.listCategories)
		v1.GET("/items", h.searchItems)
		v1.GET("/items/:id", h.getItem)
		v1.GET("/subscriptions/plans", h.listPlans)

		// Provider callbacks
		v1.POST("/payments/mpesa/callback", h.mpesaCallback)
		v1.GET("/payments/pesapal/ipn", h.pesapalIPN)
		v1.POST("/payments/pesapal/ipn", h.pesapalIPN)
	}

	authed := v1.Group("", h.requireAuth())
	{
		authed.GET("/profile", h.getProfile)
		authed.PUT("/profile", h.updateProfile)

		authed.POST("/items", h.createItem)
		authed.PATCH("/items/:id", h.updateItem)
		authed.DELETE("/items/:id", h.archiveItem)
		authed.POST("/items/:id/image", h.uploadItemImage)
		authed.GET("/me/items", h.listMyItems)

		authed.POST("/bookings", h.createBooking)
		authed.GET("/bookings", h.listBookings)
		authed.GET("/bookings/incoming", h.listIncomingBookings)
		authed.GET("/bookings/:id", h.getBooking)
		authed.POST("/bookings/:id/cancel", h.cancelBooking)
		authed.POST("/bookings/:id/complete", h.completeBooking)

		authed.POST("/subscriptions", h.createSubscription)
		authed.GET("/subscriptions", h.listSubscriptions)
		authed.GET("/subscriptions/active", h.activeSubscription)

		authed.POST("/payments/mpesa", h.initiateMpesa)
		authed.POST("/payments/pesapal", h.initiatePesapal)
		authed.GET("/payments", h.listPayments)
		authed.GET("/payments/:id", h.getPayment)

		authed.GET("/wallet", h.getWallet)
		authed.GET("/wallet/entries", h.listWalletEntries)
		authed.POST("/wallet/withdrawals", h.requestWithdrawal)
		authed.GET("/wallet/withdrawals", h.listWithdrawals)

		authed.POST("/messages", h.sendMessage)
		authed.GET("/messages", h.listInbox)
		authed.GET("/messages/with/:userId", h.listConversation)
		authed.POST("/messages/:id/read", h.markMessageRead)

		authed.GET("/stream", h.stream)
	}

	admin := authed.Group("/admin", h.requireAdmin())
	{
		admin.POST("/categories", h.createCategory)
		admin.GET("/withdrawals", h.listPendingWithdrawals)
		admin.POST("/withdrawals/:id/approve", h.approveWithdrawal)
		admin.POST("/withdrawals/:id/reject", h.rejectWithdrawal)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// bindJSON decodes the body into req and answers 400 on failure
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// respondError maps a service error to its HTTP status
func (h *Handler) respondError(c *gin.Context, summary string, err error) {
	status := http.StatusInternalServerError
	details := err.Error()

	var perr *payments.ProviderError
	switch {
	case errors.As(err, &perr):
		status = http.StatusBadGateway
		if perr.Body != "" {
			details = perr.Body
		}
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrInsufficientFunds):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrProviderUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(summary,
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":   summary,
		"details": details,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
