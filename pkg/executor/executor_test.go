package executor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "tumblrsync/pkg/errors"
	"tumblrsync/pkg/logger"
	"tumblrsync/pkg/ratelimit"
)

// mockRoundTripper serves canned responses without a network
type mockRoundTripper struct {
	calls   int32
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.handler(req)
}

func newTestExecutor(t *testing.T, client *http.Client, log logger.Logger) *Executor {
	t.Helper()
	if log == nil {
		log = logger.NewNopLogger()
	}
	return New(Options{
		MaxAttempts: 5,
		Timeout:     time.Second,
		RetryDelay:  time.Millisecond,
		HTTPClient:  client,
		Limiter:     ratelimit.Unlimited{},
		Logger:      log,
	})
}

func getRequest(u string) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}
}

func TestDoSuccess(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	ex := newTestExecutor(t, server.Client(), nil)
	body, err := ex.Do(context.Background(), getRequest(server.URL))

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, DefaultUserAgent, userAgent)
}

func TestDoAlwaysUnavailableExhaustsBudget(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ex := newTestExecutor(t, server.Client(), nil)
	_, err := ex.Do(context.Background(), getRequest(server.URL))

	require.Error(t, err)
	assert.Equal(t, int32(5), atomic.LoadInt32(&attempts))
	assert.True(t, errs.IsFatal(err))
	assert.Contains(t, err.Error(), "request failed")

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	var inner *errs.Error
	require.ErrorAs(t, e.Unwrap(), &inner)
	assert.Equal(t, 503, inner.Code)
}

func TestDoEmptyBodyIsTransient(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	tl := logger.NewTestLogger()
	ex := newTestExecutor(t, server.Client(), tl)
	body, err := ex.Do(context.Background(), getRequest(server.URL))

	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	var retries int
	for _, m := range tl.GetMessagesByLevel("WARN") {
		if m.Message == "retrying operation" {
			retries++
			assert.Contains(t, m.Fields, "delay_ms")
			assert.Contains(t, m.Fields["error"], "no data received")
		}
	}
	assert.Equal(t, 2, retries)
}

func TestDoTooManyRequestsThenSuccess(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("done"))
	}))
	defer server.Close()

	ex := newTestExecutor(t, server.Client(), nil)
	body, err := ex.Do(context.Background(), getRequest(server.URL))

	require.NoError(t, err)
	assert.Equal(t, "done", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestDoUnauthorizedIsNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	ex := newTestExecutor(t, server.Client(), nil)
	_, err := ex.Do(context.Background(), getRequest(server.URL))

	assert.True(t, errs.IsAuth(err))
	assert.False(t, errs.IsFatal(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestDoTimeoutIsRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Write([]byte("late but fine"))
	}))
	defer server.Close()

	ex := New(Options{
		MaxAttempts: 3,
		Timeout:     50 * time.Millisecond,
		RetryDelay:  time.Millisecond,
		HTTPClient:  server.Client(),
		Limiter:     ratelimit.Unlimited{},
		Logger:      logger.NewNopLogger(),
	})
	body, err := ex.Do(context.Background(), getRequest(server.URL))

	require.NoError(t, err)
	assert.Equal(t, "late but fine", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestDoCancelledContextStops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := newTestExecutor(t, server.Client(), nil)
	_, err := ex.Do(ctx, getRequest(server.URL))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoSpacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer server.Close()

	ex := New(Options{
		MaxAttempts: 1,
		MinInterval: 60 * time.Millisecond,
		HTTPClient:  server.Client(),
		Logger:      logger.NewNopLogger(),
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := ex.Do(context.Background(), getRequest(server.URL))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 110*time.Millisecond)
}

func TestDownloadWritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "11")
		w.Write([]byte("hello media"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "nested", "a.jpg")
	ex := newTestExecutor(t, server.Client(), nil)

	skipped, err := ex.Download(context.Background(), server.URL, dest)
	require.NoError(t, err)
	assert.False(t, skipped)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello media", string(data))
	assert.NoFileExists(t, dest+".part")
}

func TestDownloadSkipsWhenSizeMatches(t *testing.T) {
	rt := &mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode:    http.StatusOK,
			ContentLength: 5,
			Header:        http.Header{},
			Body:          io.NopCloser(strings.NewReader("fresh")),
			Request:       req,
		}, nil
	}}

	dest := filepath.Join(t.TempDir(), "b.jpg")
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0644))

	ex := newTestExecutor(t, &http.Client{Transport: rt}, nil)
	skipped, err := ex.Download(context.Background(), "https://media.example.com/b.jpg", dest)

	require.NoError(t, err)
	assert.True(t, skipped)
	data, _ := os.ReadFile(dest)
	assert.Equal(t, "stale", string(data), "body must not be transferred")
	assert.Equal(t, int32(1), atomic.LoadInt32(&rt.calls))
}

func TestDownloadSizeMismatchIsRetried(t *testing.T) {
	var calls int32
	rt := &mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
		body := "short"
		if atomic.AddInt32(&calls, 1) >= 2 {
			body = "complete!!"
		}
		return &http.Response{
			StatusCode:    http.StatusOK,
			ContentLength: 10,
			Header:        http.Header{},
			Body:          io.NopCloser(strings.NewReader(body)),
			Request:       req,
		}, nil
	}}

	dest := filepath.Join(t.TempDir(), "c.mp4")
	ex := newTestExecutor(t, &http.Client{Transport: rt}, nil)
	skipped, err := ex.Download(context.Background(), "https://media.example.com/c.mp4", dest)

	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	data, _ := os.ReadFile(dest)
	assert.Equal(t, "complete!!", string(data))
}

func TestDownloadExhaustedIsFatal(t *testing.T) {
	rt := &mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Header:     http.Header{},
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Request:    req,
		}, nil
	}}

	ex := newTestExecutor(t, &http.Client{Transport: rt}, nil)
	_, err := ex.Download(context.Background(), "https://media.example.com/d.gif", filepath.Join(t.TempDir(), "d.gif"))

	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, int32(5), atomic.LoadInt32(&rt.calls))
}

func TestDownloadSlowSteadyBodyCompletes(t *testing.T) {
	const size = 20
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(size))
		flusher := w.(http.Flusher)
		for i := 0; i < size; i++ {
			w.Write([]byte{'v'})
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
	}))
	defer server.Close()

	// The transfer takes about three times the timeout but never pauses
	// for longer than a sixth of it.
	ex := New(Options{
		MaxAttempts: 3,
		Timeout:     300 * time.Millisecond,
		RetryDelay:  time.Millisecond,
		HTTPClient:  server.Client(),
		Limiter:     ratelimit.Unlimited{},
		Logger:      logger.NewNopLogger(),
	})

	dest := filepath.Join(t.TempDir(), "video.mp4")
	skipped, err := ex.Download(context.Background(), server.URL, dest)
	require.NoError(t, err)
	assert.False(t, skipped)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("v", size), string(data))
}

func TestDownloadStalledBodyTimesOut(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Length", "10")
		w.Write([]byte{'x'})
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ex := New(Options{
		MaxAttempts: 2,
		Timeout:     100 * time.Millisecond,
		RetryDelay:  time.Millisecond,
		HTTPClient:  server.Client(),
		Limiter:     ratelimit.Unlimited{},
		Logger:      logger.NewNopLogger(),
	})

	dest := filepath.Join(t.TempDir(), "stuck.mp4")
	_, err := ex.Download(context.Background(), server.URL, dest)

	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	var inner *errs.Error
	require.ErrorAs(t, e.Unwrap(), &inner)
	assert.Equal(t, errs.ErrorTypeTimeout, inner.Type)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
}

func TestDownloadUnknownLengthIsLogged(t *testing.T) {
	rt := &mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode:    http.StatusOK,
			ContentLength: -1,
			Header:        http.Header{},
			Body:          io.NopCloser(strings.NewReader("chunked")),
			Request:       req,
		}, nil
	}}

	tl := logger.NewTestLogger()
	ex := newTestExecutor(t, &http.Client{Transport: rt}, tl)
	dest := filepath.Join(t.TempDir(), "e.png")
	skipped, err := ex.Download(context.Background(), "https://media.example.com/e.png", dest)

	require.NoError(t, err)
	assert.False(t, skipped)
	assert.True(t, tl.HasMessage("content length unknown, download size cannot be verified"))
	data, _ := os.ReadFile(dest)
	assert.Equal(t, "chunked", string(data))
}

func TestDoStatusErrorCarriesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	ex := newTestExecutor(t, server.Client(), nil)
	_, err := ex.Do(context.Background(), getRequest(server.URL))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestRoundTripReplaysFormBody(t *testing.T) {
	var attempts int32
	var lastBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		lastBody = string(data)
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"abc"}`))
	}))
	defer server.Close()

	ex := newTestExecutor(t, server.Client(), nil)
	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"r1"}}
	resp, err := ex.HTTPClient().PostForm(server.URL, form)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, form.Encode(), lastBody)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestRoundTripPassesUnauthorizedThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer server.Close()

	ex := newTestExecutor(t, server.Client(), nil)
	resp, err := ex.HTTPClient().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "invalid_client")
}
