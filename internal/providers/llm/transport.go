package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/platform/logger"
)

// Transport is the HTTP plumbing shared by the REST providers: bounded retries
// on 408/429/5xx and network timeouts, with exponential backoff.
type Transport struct {
	HTTPClient *http.Client
	// Timeout bounds each blocking call across all of its attempts and
	// backoff. Streams are bounded by ctx only.
	Timeout    time.Duration
	MaxRetries int
	Backoff    func(attempt int) time.Duration
	Logger     *logger.Logger
}

func defaultBackoff(i int) time.Duration {
	return time.Duration(500*(1<<i)) * time.Millisecond
}

func (t *Transport) httpClient() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	return http.DefaultClient
}

func (t *Transport) backoff(i int) time.Duration {
	if t.Backoff != nil {
		return t.Backoff(i)
	}
	return defaultBackoff(i)
}

// post sends body to url and returns the 2xx response. The caller closes the
// body. Failures are *apperr.ExternalServiceError.
func (t *Transport) post(ctx context.Context, provider, url string, headers http.Header, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	log := logger.OrNop(t.Logger)

	var lastErr *apperr.ExternalServiceError
	for attempt := 0; attempt <= t.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := t.backoff(attempt - 1)
			log.Warn("retrying provider request", "provider", provider, "attempt", attempt, "status", lastErr.StatusCode, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, &apperr.ExternalServiceError{Provider: provider, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		res, err := t.httpClient().Do(req)
		if err != nil {
			lastErr = &apperr.ExternalServiceError{Provider: provider, Err: err}
			if ctx.Err() == nil && lastErr.Retryable() {
				continue
			}
			return nil, lastErr
		}
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return res, nil
		}
		lastErr = &apperr.ExternalServiceError{
			Provider:   provider,
			StatusCode: res.StatusCode,
			Detail:     errorDetail(res.Body),
		}
		res.Body.Close()
		if !lastErr.Retryable() {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// postJSON is post followed by decoding the response into out, all within
// the configured timeout.
func (t *Transport) postJSON(ctx context.Context, provider, url string, headers http.Header, body, out any) error {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	res, err := t.post(ctx, provider, url, headers, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &apperr.ExternalServiceError{Provider: provider, StatusCode: res.StatusCode, Detail: "decode response", Err: err}
	}
	return nil
}

// errorDetail extracts the provider's error message, falling back to the raw
// body prefix.
func errorDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 8<<10))
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil && len(env.Error) > 0 {
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
		var s string
		if json.Unmarshal(env.Error, &s) == nil && s != "" {
			return s
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

// streamErr converts a mid-stream read failure into the provider error type,
// keeping context cancellation recognisable through Unwrap.
func streamErr(provider string, err error) error {
	var ee *apperr.ExternalServiceError
	if errors.As(err, &ee) {
		return err
	}
	return &apperr.ExternalServiceError{Provider: provider, Detail: "stream interrupted", Err: err}
}
