package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rental-service/internal/auth"
	"rental-service/internal/broker"
	"rental-service/internal/broker/brokertest"
	"rental-service/internal/models"
	"rental-service/internal/objectstore/local"
	"rental-service/internal/payments"
	"rental-service/internal/realtime"
	"rental-service/internal/redisclient"
	"rental-service/internal/service"
	"rental-service/internal/store"
	"rental-service/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type testAPI struct {
	router *gin.Engine
	store  *store.Store
	mr     *miniredis.Miniredis
	hub    *realtime.Hub
}

func newTestAPI(t *testing.T) *testAPI {
	gin.SetMode(gin.TestMode)

	s := storetest.New(t)
	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	media, err := local.New(t.TempDir())
	require.NoError(t, err)

	publisher := broker.NewEventPublisher(&brokertest.Recorder{})
	plans := service.NewPlans(500, 1200)
	hub := realtime.NewHub(8)

	svc := Services{
		Profiles:      service.NewProfileService(s, rc),
		Listings:      service.NewListingService(s, rc, media, 3),
		Bookings:      service.NewBookingService(s, rc, publisher, time.Hour),
		Subscriptions: service.NewSubscriptionService(s, plans),
		Payments:      service.NewPaymentService(s, rc, publisher, service.Providers{}, plans, service.PaymentTimeouts{Mpesa: time.Hour, Pesapal: time.Hour}),
		Wallet:        service.NewWalletService(s, publisher, 10, 100),
		Messages:      service.NewMessageService(s, publisher),
	}
	h := NewHandler(svc, hub, testSecret, map[string]Pinger{"database": s, "redis": rc})

	router := gin.New()
	h.SetupRoutes(router)
	return &testAPI{router: router, store: s, mr: mr, hub: hub}
}

func token(t *testing.T, userID string) string {
	tok, err := auth.GenerateToken(userID, userID+"@example.com", models.RoleUser, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	a.mr.Close()
	w = a.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
}

func TestAuthRequired(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/api/v1/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// First sight of a subject provisions the profile
	w = a.do(t, http.MethodGet, "/api/v1/profile", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p models.Profile
	decode(t, w, &p)
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, "user-1@example.com", p.Email)

	// Public routes need no token
	w = a.do(t, http.MethodGet, "/api/v1/items", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodGet, "/api/v1/subscriptions/plans", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProfilePhoneValidation(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPut, "/api/v1/profile", "user-1", gin.H{"full_name": "Jane", "phone": "12345"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "msisdn")

	w = a.do(t, http.MethodPut, "/api/v1/profile", "user-1", gin.H{"full_name": "Jane", "phone": "0712345678"})
	require.Equal(t, http.StatusOK, w.Code)
	var p models.Profile
	decode(t, w, &p)
	assert.Equal(t, "254712345678", p.Phone)
}

func TestItemsAndBookings(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/items", "owner", gin.H{"title": "Kayak", "price_per_day": 1200, "location": "Naivasha"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var item models.Item
	decode(t, w, &item)

	w = a.do(t, http.MethodPost, "/api/v1/items", "owner", gin.H{"title": "Kayak"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/items/"+item.ID, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodGet, "/api/v1/items/00000000-0000-0000-0000-000000000000", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/items?q=kayak&page_size=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.SearchResult
	decode(t, w, &page)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.PageSize)

	w = a.do(t, http.MethodPatch, "/api/v1/items/"+item.ID, "renter", gin.H{"title": "Stolen kayak"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	start := storetest.Day(2).Format(service.DateLayout)
	end := storetest.Day(4).Format(service.DateLayout)
	w = a.do(t, http.MethodPost, "/api/v1/bookings", "renter", gin.H{"item_id": item.ID, "start_date": start, "end_date": end})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var booking models.Booking
	decode(t, w, &booking)
	assert.Equal(t, int64(2400), booking.TotalAmount)

	w = a.do(t, http.MethodPost, "/api/v1/bookings", "renter", gin.H{"item_id": item.ID, "start_date": start, "end_date": end})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/bookings", "renter", gin.H{"item_id": item.ID, "start_date": "soon", "end_date": end})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/bookings/incoming", "owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var incoming struct {
		Bookings []models.Booking `json:"bookings"`
	}
	decode(t, w, &incoming)
	assert.Len(t, incoming.Bookings, 1)

	w = a.do(t, http.MethodGet, "/api/v1/bookings/"+booking.ID, "stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/bookings/"+booking.ID+"/complete", "owner", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/bookings/"+booking.ID+"/cancel", "renter", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodDelete, "/api/v1/items/"+item.ID, "owner", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = a.do(t, http.MethodGet, "/api/v1/items?q=kayak", "", nil)
	decode(t, w, &page)
	assert.Zero(t, page.Total)
}

func TestImageUploadAndMedia(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/items", "owner", gin.H{"title": "Tent", "price_per_day": 300})
	require.Equal(t, http.StatusCreated, w.Code)
	var item models.Item
	decode(t, w, &item)

	upload := func(content []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("image", "tent.png")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/items/"+item.ID+"/image", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token(t, "owner"))
		rec := httptest.NewRecorder()
		a.router.ServeHTTP(rec, req)
		return rec
	}

	w = upload([]byte("%PDF-1.4 not an image"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	w = upload(png)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &item)
	require.True(t, strings.HasPrefix(item.ImageURL, "/media/"))

	w = a.do(t, http.MethodGet, item.ImageURL, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, png, w.Body.Bytes())

	w = a.do(t, http.MethodGet, "/media/../../etc/passwd", "", nil)
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestPaymentsWithoutProviders(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/subscriptions", "user-1", gin.H{"plan": "basic"})
	require.Equal(t, http.StatusCreated, w.Code)
	var sub models.Subscription
	decode(t, w, &sub)

	w = a.do(t, http.MethodPost, "/api/v1/subscriptions", "user-1", gin.H{"plan": "gold"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/payments/mpesa", "user-1", gin.H{"subscription_id": sub.ID, "phone": "0712345678"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/subscriptions/active", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscription":null}`, w.Body.String())
}

func TestProviderCallbacksAreAcknowledged(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/mpesa/callback", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/v1/payments/mpesa/callback", "", gin.H{
		"Body": gin.H{"stkCallback": gin.H{"CheckoutRequestID": "ws_CO_unknown", "ResultCode": 0, "ResultDesc": "ok"}},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/payments/pesapal/ipn", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Without Pesapal credentials the IPN asks for a retry
	w = a.do(t, http.MethodGet, "/api/v1/payments/pesapal/ipn?OrderTrackingId=t-1&OrderMerchantReference=r-1&OrderNotificationType=IPNCHANGE", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"orderNotificationType":"IPNCHANGE","orderTrackingId":"t-1","orderMerchantReference":"r-1","status":500}`, w.Body.String())
}

func TestAdminRoutes(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/admin/categories", "ops", gin.H{"name": "Outdoor"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.NoError(t, a.store.SetProfileRole(context.Background(), "ops", models.RoleAdmin))
	w = a.do(t, http.MethodPost, "/api/v1/admin/categories", "ops", gin.H{"name": "Outdoor"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/categories", "", nil)
	assert.Contains(t, w.Body.String(), `"slug":"outdoor"`)

	w = a.do(t, http.MethodGet, "/api/v1/admin/withdrawals", "ops", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, "/api/v1/admin/withdrawals/00000000-0000-0000-0000-000000000000/approve", "ops", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWalletAndMessages(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/api/v1/wallet", "owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var wallet models.Wallet
	decode(t, w, &wallet)
	assert.Zero(t, wallet.Balance)

	w = a.do(t, http.MethodPost, "/api/v1/wallet/withdrawals", "owner", gin.H{"amount": 500, "phone": "0712345678"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrInsufficientFunds.Error())

	a.do(t, http.MethodGet, "/api/v1/profile", "bob", nil)
	w = a.do(t, http.MethodPost, "/api/v1/messages", "owner", gin.H{"recipient_id": "bob", "body": "Hi Bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var m models.Message
	decode(t, w, &m)

	w = a.do(t, http.MethodPost, "/api/v1/messages/"+m.ID+"/read", "owner", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = a.do(t, http.MethodPost, "/api/v1/messages/"+m.ID+"/read", "bob", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/messages/with/owner", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hi Bob")
}

func TestStream(t *testing.T) {
	a := newTestAPI(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream?access_token="+token(t, "viewer"), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		require.True(t, lines.Scan(), "stream ended")
		return lines.Text()
	}
	assert.Equal(t, "event:ready", next())

	// The subscription exists once the ready event was sent
	require.Eventually(t, func() bool { return a.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	a.hub.Publish("viewer", realtime.Event{ID: "e-1", Type: models.EventTypeMessageCreated, Data: json.RawMessage(`{"x":1}`)})

	for {
		line := next()
		if line == "event:"+models.EventTypeMessageCreated {
			data := next()
			assert.Equal(t, `data:{"id":"e-1","type":"message.created","data":{"x":1}}`, data)
			break
		}
	}
}

func TestRespondErrorStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handler{logger: zapNop()}

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", models.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("x: %w", models.ErrInsufficientFunds), http.StatusBadRequest},
		{fmt.Errorf("x: %w", models.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("x: %w", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", models.ErrConflict), http.StatusConflict},
		{fmt.Errorf("x: %w", models.ErrProviderUnavailable), http.StatusServiceUnavailable},
		{&payments.ProviderError{Provider: "mpesa", Op: "stkpush", StatusCode: 500, Body: `{"errorMessage":"boom"}`}, http.StatusBadGateway},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		h.respondError(c, "Failed", tt.err)
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
	}

	// Provider bodies are passed through verbatim
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	h.respondError(c, "Failed", &payments.ProviderError{Provider: "mpesa", Op: "stkpush", StatusCode: 500, Body: `{"errorMessage":"boom"}`})
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, `{"errorMessage":"boom"}`, body["details"])
}

func zapNop() *zap.Logger { return zap.NewNop() }
