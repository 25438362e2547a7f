package telegram

import (
	"net"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/m3rciful/interestbot/core/telegram/netutil"
)

const (
	dialTimeout     = 5 * time.Second
	tlsHandshake    = 5 * time.Second
	idleConnTimeout = 30 * time.Second
	keepAlive       = 30 * time.Second
	// Long polling holds getUpdates open for the poll timeout, so the
	// client timeout must exceed the largest poll timeout in use.
	clientTimeout = 90 * time.Second

	dialRetries  = 2
	dialBackoff  = 500 * time.Millisecond
	unknownLabel = "error"
)

var apiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "tg_api_request_duration_seconds",
	Help:    "Telegram Bot API round trips by method and HTTP status",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "code"})

// BuildHTTPClient returns the client used for Bot API calls. Connection
// failures are retried here; API level retries belong to the dispatcher.
func BuildHTTPClient() *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshake,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   clientTimeout,
		Transport: &apiTransport{base: base, retries: dialRetries, backoff: dialBackoff},
	}
}

// apiTransport times every Bot API call and retries requests that failed
// before reaching the server.
type apiTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *apiTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// The path is /bot<token>/<method>; only the method is a safe label.
	method := path.Base(req.URL.Path)
	start := time.Now()

	resp, err := t.base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.retries && retryable(req, err); attempt++ {
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(t.backoff * time.Duration(attempt)):
		}
		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, berr
			}
			retry.Body = body
		}
		resp, err = t.base.RoundTrip(retry)
	}

	code := unknownLabel
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	apiDuration.WithLabelValues(method, code).Observe(time.Since(start).Seconds())
	return resp, err
}

func retryable(req *http.Request, err error) bool {
	if req.Body != nil && req.GetBody == nil {
		return false
	}
	return netutil.Classify(err) == "dial"
}
