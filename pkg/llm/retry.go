package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	maxRetries     = 3
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 4 * time.Second
)

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

//nolint:bodyclose // generic type parameter, not a live response
var retryPolicy = retrypolicy.NewBuilder[*http.Response]().
	HandleIf(shouldRetry).
	WithBackoff(retryBaseDelay, retryMaxDelay).
	WithMaxRetries(maxRetries).
	WithJitterFactor(0.1).
	ReturnLastFailure().
	Build()

// doWithRetry sends the request built by newReq, retrying rate limits and
// upstream unavailability. Bodies of discarded attempts are closed.
func doWithRetry(ctx context.Context, client *http.Client, newReq func() (*http.Request, error)) (*http.Response, error) {
	return failsafe.With(retryPolicy).WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if shouldRetry(resp, nil) {
			// The retry policy only needs the status.
			_ = resp.Body.Close()
		}
		return resp, nil
	})
}
