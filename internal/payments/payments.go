// Package payments holds what the M-Pesa and Pesapal clients share: the
// provider error type, the access-token cache contract and phone handling.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rental-service/internal/util"

	"go.uber.org/zap"
)

// ProviderError is a failed exchange with a payment gateway. Body carries the
// gateway's response verbatim.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Body)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// TokenCache stores provider access tokens between requests
type TokenCache interface {
	GetToken(ctx context.Context, provider string) (string, error)
	SetToken(ctx context.Context, provider, token string, ttl time.Duration) error
}

// CachedToken returns a token from cache, or calls fetch and caches the
// result for its lifetime minus a safety margin. cache may be nil.
func CachedToken(ctx context.Context, cache TokenCache, provider string, fetch func(context.Context) (string, time.Duration, error)) (string, error) {
	if cache != nil {
		tok, err := cache.GetToken(ctx, provider)
		if err != nil {
			util.GetLogger().Warn("Token cache read failed", zap.String("provider", provider), zap.Error(err))
		} else if tok != "" {
			return tok, nil
		}
	}

	tok, lifetime, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	if cache != nil {
		ttl := lifetime - time.Minute
		if ttl < 30*time.Second {
			ttl = lifetime / 2
		}
		if ttl > 0 {
			if err := cache.SetToken(ctx, provider, tok, ttl); err != nil {
				util.GetLogger().Warn("Token cache write failed", zap.String("provider", provider), zap.Error(err))
			}
		}
	}
	return tok, nil
}

// DoJSON sends req and decodes a 2xx JSON response into out. Transport
// failures, non-2xx answers and undecodable bodies become *ProviderError.
func DoJSON(client *http.Client, req *http.Request, provider, op string, out interface{}) error {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &ProviderError{Provider: provider, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ProviderError{Provider: provider, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{Provider: provider, Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Provider: provider, Op: op, StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// NewJSONRequest builds a request with a JSON body
func NewJSONRequest(ctx context.Context, method, url string, payload interface{}) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
