package httputils

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/ratelimit"
)

func TestNewRetryableHttpClient_UserAgent(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewRetryableHttpClient(5*time.Second, ratelimit.New(100))
	res, err := c.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, UserAgent(), agent.Load())
}

func TestNewRetryableHttpClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewRetryableHttpClient(5*time.Second, nil)
	res, err := c.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

type countingLimiter struct {
	takes atomic.Int32
}

func (l *countingLimiter) Take() time.Time {
	l.takes.Add(1)
	return time.Now()
}

func TestNewRetryableHttpClient_TakesFromLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rl := &countingLimiter{}
	c := NewRetryableHttpClient(5*time.Second, rl)
	for i := 0; i < 3; i++ {
		res, err := c.Get(srv.URL)
		require.NoError(t, err)
		res.Body.Close()
	}

	assert.Equal(t, int32(3), rl.takes.Load())
}
