package httputils

import (
	"net/http"
	"time"

	"github.com/autobrr/autobrr/pkg/sharedhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/ratelimit"

	"github.com/seedgate/seedgate/pkg/runtime"
)

func UserAgent() string {
	return "seedgate/" + runtime.Version
}

// NewRetryableHttpClient returns a client retrying once on transport errors and 5xx/429 responses.
// rl may be nil.
func NewRetryableHttpClient(timeout time.Duration, rl ratelimit.Limiter) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 1
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.RequestLogHook = func(l retryablehttp.Logger, request *http.Request, i int) {
		// set user-agent
		if request != nil {
			request.Header.Set("User-Agent", UserAgent())
		}

		// rate limit
		if rl != nil {
			rl.Take()
		}
	}
	retryClient.HTTPClient.Transport = sharedhttp.Transport
	retryClient.HTTPClient.Timeout = timeout
	retryClient.Logger = nil
	return retryClient.StandardClient()
}
