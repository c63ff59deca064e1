package payments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rental-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"0712345678":       "254712345678",
		"0112345678":       "254112345678",
		"712345678":        "254712345678",
		"254712345678":     "254712345678",
		"+254 712 345 678": "254712345678",
		"0712-345-678":     "254712345678",
	}
	for in, want := range cases {
		got, err := NormalizePhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "0212345678", "12345", "07123456789", "07abc45678", "255712345678"} {
		_, err := NormalizePhone(bad)
		assert.ErrorIs(t, err, models.ErrInvalidInput, bad)
		assert.False(t, ValidPhone(bad), bad)
	}
}

type memCache struct {
	tokens map[string]string
	ttls   map[string]time.Duration
}

func (m *memCache) GetToken(_ context.Context, p string) (string, error) { return m.tokens[p], nil }
func (m *memCache) SetToken(_ context.Context, p, tok string, ttl time.Duration) error {
	m.tokens[p] = tok
	m.ttls[p] = ttl
	return nil
}

func TestCachedToken(t *testing.T) {
	cache := &memCache{tokens: map[string]string{}, ttls: map[string]time.Duration{}}
	calls := 0
	fetch := func(context.Context) (string, time.Duration, error) {
		calls++
		return "tok", time.Hour, nil
	}

	ctx := context.Background()
	tok, err := CachedToken(ctx, cache, "mpesa", fetch)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	tok, err = CachedToken(ctx, cache, "mpesa", fetch)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 59*time.Minute, cache.ttls["mpesa"])

	// A nil cache always fetches
	_, err = CachedToken(ctx, nil, "mpesa", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoJSONWrapsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			_, _ = w.Write([]byte(`{"value":"x"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorMessage":"Bad Request"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	var out struct{ Value string }

	req, err := NewJSONRequest(ctx, http.MethodGet, srv.URL+"/ok", nil)
	require.NoError(t, err)
	require.NoError(t, DoJSON(srv.Client(), req, "test", "get", &out))
	assert.Equal(t, "x", out.Value)

	req, err = NewJSONRequest(ctx, http.MethodPost, srv.URL+"/bad", map[string]string{"a": "b"})
	require.NoError(t, err)
	err = DoJSON(srv.Client(), req, "test", "post", &out)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Contains(t, perr.Body, "Bad Request")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "né", Truncate("néa", 2))
}
