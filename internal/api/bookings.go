package api

import (
	"net/http"

	"rental-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if !bindJSON(c, &req) {
		return
	}

	booking, err := h.svc.Bookings.CreateBooking(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		h.respondError(c, "Failed to create booking", err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) listBookings(c *gin.Context) {
	bookings, err := h.svc.Bookings.ListRenterBookings(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "Failed to list bookings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (h *Handler) listIncomingBookings(c *gin.Context) {
	bookings, err := h.svc.Bookings.ListOwnerBookings(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "Failed to list bookings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (h *Handler) getBooking(c *gin.Context) {
	booking, err := h.svc.Bookings.GetBooking(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "Booking not found", err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) cancelBooking(c *gin.Context) {
	booking, err := h.svc.Bookings.CancelBooking(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to cancel booking", err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) completeBooking(c *gin.Context) {
	booking, err := h.svc.Bookings.CompleteBooking(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to complete booking", err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) listPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": h.svc.Subscriptions.Plans()})
}

func (h *Handler) createSubscription(c *gin.Context) {
	var req service.CreateSubscriptionRequest
	if !bindJSON(c, &req) {
		return
	}

	sub, err := h.svc.Subscriptions.CreateSubscription(c.Request.Context(), currentUser(c), req.Plan)
	if err != nil {
		h.respondError(c, "Failed to create subscription", err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) listSubscriptions(c *gin.Context) {
	subs, err := h.svc.Subscriptions.ListSubscriptions(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "Failed to list subscriptions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// activeSubscription answers {"subscription": null} when none is active
func (h *Handler) activeSubscription(c *gin.Context) {
	sub, err := h.svc.Subscriptions.GetActiveSubscription(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "Failed to load subscription", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}
