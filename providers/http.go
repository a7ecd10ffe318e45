package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"weatherdash.app/errors"
)

const defaultHTTPTimeout = 10 * time.Second

// getJSON performs a GET request and decodes the JSON body into out.
// Non-2xx responses and transport failures are translated into the shared
// error taxonomy, which is what the breaker and retrier key off.
func getJSON(ctx context.Context, client *http.Client, provider, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.NewNetworkError(fmt.Sprintf("%s: build request", provider), err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.NewNetworkError(fmt.Sprintf("%s: request failed", provider), err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("close response body", "provider", provider, "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return statusError(provider, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewServiceUnavailableError(fmt.Sprintf("%s: decode response", provider), err)
	}
	return nil
}

// statusError maps an upstream HTTP status to a typed error. The body is
// drained so the connection can be reused.
func statusError(provider string, resp *http.Response) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewAPIKeyError(fmt.Sprintf("%s: API key rejected", provider))
	case http.StatusNotFound:
		return errors.NewNotFoundError(fmt.Sprintf("%s: location not found", provider))
	case http.StatusTooManyRequests:
		return errors.NewRateLimitError(
			fmt.Sprintf("%s: rate limit exceeded", provider),
			parseRetryAfter(resp.Header.Get("Retry-After")),
		)
	default:
		return errors.NewServiceUnavailableError(
			fmt.Sprintf("%s: HTTP %d", provider, resp.StatusCode), nil,
		)
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms. Zero
// means the header was absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
