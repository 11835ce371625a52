package chatwatch

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/time/rate"
)

// Default request budget for outbound HTTP.
const (
	DefaultRequestInterval = time.Second
	DefaultRequestBurst    = 5
)

// LimitedHTTPClient performs throttled requests on behalf of the poller and
// the notifiers. The zero value is not valid for use.
type LimitedHTTPClient struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewLimitedHTTPClient returns a client with a cookie jar that allows one
// request per interval with the given burst. Non-positive values select the
// defaults.
func NewLimitedHTTPClient(interval time.Duration, burst int, timeout time.Duration, userAgent string) (*LimitedHTTPClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create cookie jar: %w", err)
	}
	if interval <= 0 {
		interval = DefaultRequestInterval
	}
	if burst <= 0 {
		burst = DefaultRequestBurst
	}
	return &LimitedHTTPClient{
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		limiter:   rate.NewLimiter(rate.Every(interval), burst),
		userAgent: userAgent,
	}, nil
}

// Do waits until the client is within rate limits and then performs the request.
func (c *LimitedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	r := c.limiter.Reserve()
	if !r.OK() {
		return nil, errors.New("invalid limiter configuration")
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	select {
	case <-req.Context().Done():
		r.Cancel()
		return nil, req.Context().Err()
	case <-time.After(r.Delay()):
		return c.client.Do(req)
	}
}
