package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps any single response, cover images included.
const maxBodyBytes = 20 << 20

// requester performs GETs with per-call timeout and linear back-off retries.
type requester struct {
	client   *http.Client
	opts     Options
	provider string
	logger   *logrus.Logger
}

func newRequester(provider string, opts Options, logger *logrus.Logger) *requester {
	return &requester{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		provider: provider,
		logger:   logger,
	}
}

// get fetches rawURL. 404 maps to ErrNotFound; 5xx, 429 and transport
// errors are retried up to MaxRetries times.
func (r *requester) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.WithFields(logrus.Fields{
				"provider": r.provider,
				"attempt":  attempt,
				"max":      r.opts.MaxRetries,
			}).Debug("Retrying request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * r.opts.RetryDelay):
			}
		}

		body, retry, err := r.do(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%s: request failed after %d attempts: %w", r.provider, r.opts.MaxRetries+1, lastErr)
}

func (r *requester) do(ctx context.Context, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	if r.opts.UserAgent != "" {
		req.Header.Set("User-Agent", r.opts.UserAgent)
	}
	if r.opts.Cookie != "" {
		req.Header.Set("Cookie", r.opts.Cookie)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		// context cancellation is final
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("unexpected status %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}
	return body, false, nil
}
