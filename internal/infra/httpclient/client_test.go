package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/portraitlab/server/internal/infra/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	client := New(config.HTTPClientConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		MaxConnsPerHost:     4,
		IdleConnTimeout:     time.Minute,
		TLSHandshakeTimeout: 5 * time.Second,
		ResponseTimeout:     30 * time.Second,
	})

	assert.Equal(t, 30*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10, transport.MaxIdleConns)
	assert.Equal(t, 2, transport.MaxIdleConnsPerHost)
	assert.Equal(t, 4, transport.MaxConnsPerHost)
	assert.Equal(t, time.Minute, transport.IdleConnTimeout)
	assert.True(t, transport.ForceAttemptHTTP2)
}

func TestWithMinTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		min     time.Duration
		want    time.Duration
	}{
		{"raised", 30 * time.Second, 90 * time.Second, 90 * time.Second},
		{"already longer", 2 * time.Minute, 90 * time.Second, 2 * time.Minute},
		{"no timeout stays unbounded", 0, 90 * time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(config.HTTPClientConfig{ResponseTimeout: tt.timeout}, WithMinTimeout(tt.min))
			assert.Equal(t, tt.want, client.Timeout)
		})
	}
}

func TestWithUserAgent(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.UserAgent())
	}))
	defer srv.Close()

	client := New(config.HTTPClientConfig{ResponseTimeout: 5 * time.Second}, WithUserAgent(DefaultUserAgent))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{DefaultUserAgent, "custom"}, got)
}
