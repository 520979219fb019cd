package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/portraitlab/server/internal/infra/config"
)

// DefaultUserAgent identifies outbound provider calls.
const DefaultUserAgent = "portraitlab-lifecycle/1"

// Option customizes a client built by New.
type Option func(*http.Client)

// WithMinTimeout raises the overall request timeout to at least d, so that
// calls the provider holds open (synchronous predictions) are not cut short.
func WithMinTimeout(d time.Duration) Option {
	return func(c *http.Client) {
		if c.Timeout > 0 && c.Timeout < d {
			c.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent on requests that do not carry one.
func WithUserAgent(ua string) Option {
	return func(c *http.Client) {
		c.Transport = &userAgentTransport{next: c.Transport, ua: ua}
	}
}

// New creates a pooled HTTP client for provider APIs.
func New(cfg config.HTTPClientConfig, opts ...Option) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.ResponseTimeout,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type userAgentTransport struct {
	next http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.ua)
	return t.next.RoundTrip(clone)
}
