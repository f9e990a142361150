package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	errs "tumblrsync/pkg/errors"
	"tumblrsync/pkg/logger"
	"tumblrsync/pkg/ratelimit"
	"tumblrsync/pkg/retry"
)

// DefaultUserAgent identifies the client to the API
const DefaultUserAgent = "TumblrSync/1.0.0"

// RequestFunc builds the request for one attempt. It is called again for
// every retry so bodies and headers are always fresh.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Options configures an Executor
type Options struct {
	// MaxAttempts is the total attempt budget per request
	MaxAttempts int
	// Timeout bounds each attempt, connection and body included
	Timeout time.Duration
	// MinInterval is the minimum gap between request starts
	MinInterval time.Duration
	// RetryDelay is the constant wait after a transient failure
	RetryDelay time.Duration
	UserAgent  string

	HTTPClient *http.Client
	Limiter    ratelimit.Limiter
	Logger     logger.Logger
}

// DefaultOptions returns the reference executor settings
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		Timeout:     10 * time.Second,
		MinInterval: 2 * time.Second,
		RetryDelay:  5 * time.Second,
		UserAgent:   DefaultUserAgent,
	}
}

// Executor issues one HTTP request at a time with spacing, a per-attempt
// timeout and a bounded retry budget.
type Executor struct {
	opts    Options
	client  *http.Client
	limiter ratelimit.Limiter
	logger  logger.Logger
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New creates an Executor. Zero option values fall back to DefaultOptions.
func New(opts Options) *Executor {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewInterval(opts.MinInterval)
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	return &Executor{
		opts:    opts,
		client:  client,
		limiter: limiter,
		logger:  log.WithField("component", "executor"),
	}
}

// Do executes the request and returns the body of a 200 response.
//
// An empty 200 body, a 429, any other non-200 status, a network error or a
// timeout is transient and retried after the configured delay. A 401 is
// returned at once as an auth error. When the budget is spent the result
// is a fatal "request failed" error wrapping the last failure.
func (e *Executor) Do(ctx context.Context, build RequestFunc) ([]byte, error) {
	resp, err := e.execute(ctx, build)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (e *Executor) execute(ctx context.Context, build RequestFunc) (*Response, error) {
	var last *Response

	resp, err := retry.DoWithResult(func(attempt int) (*Response, error) {
		r, err := e.attempt(ctx, build)
		if r != nil {
			last = r
		}
		return r, err
	}, e.retryConfig(ctx))
	if err != nil {
		if errs.IsAuth(err) {
			return last, err
		}
		return nil, e.promote(err)
	}
	return resp, nil
}

func (e *Executor) attempt(ctx context.Context, build RequestFunc) (*Response, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	req, err := build(attemptCtx)
	if err != nil {
		return nil, err
	}
	e.setHeaders(req)

	start := time.Now()
	httpResp, err := e.client.Do(req)
	if err != nil {
		return nil, e.transportError(ctx, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	logger.LogRequest(e.logger, req.Method, req.URL.Redacted(), httpResp.StatusCode, time.Since(start))
	if err != nil {
		return nil, e.transportError(ctx, err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}
	return resp, checkStatus(resp.StatusCode, body)
}

func checkStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK && len(body) == 0:
		return errs.New(errs.ErrorTypeEmptyBody, status, "no data received")
	case status == http.StatusOK:
		return nil
	default:
		return statusError(status, body)
	}
}

// maxErrorBody caps how much of an error response ends up in the message
const maxErrorBody = 256

func statusError(status int, body []byte) error {
	if status == http.StatusUnauthorized {
		return errs.New(errs.ErrorTypeAuth, status, "unauthorized")
	}
	msg := fmt.Sprintf("unexpected status %d", status)
	if detail := strings.TrimSpace(string(body)); detail != "" {
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody] + "..."
		}
		msg += ": " + detail
	}
	return errs.New(errs.FromStatusCode(status), status, msg)
}

// Download fetches url into dest. When dest already holds exactly
// Content-Length bytes the body is not transferred and skipped is true.
// A written size that differs from Content-Length is retried, as is a
// transfer that delivers no data for Timeout. A slow but steady body is
// never cut off.
func (e *Executor) Download(ctx context.Context, url, dest string) (skipped bool, err error) {
	build := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}

	err = retry.Do(func(attempt int) error {
		s, err := e.downloadAttempt(ctx, build, dest)
		skipped = s
		return err
	}, e.retryConfig(ctx))
	if err != nil {
		return false, e.promote(err)
	}
	return skipped, nil
}

func (e *Executor) downloadAttempt(ctx context.Context, build RequestFunc, dest string) (bool, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return false, err
	}

	// Timeout bounds the wait for headers and every gap between body
	// reads, not the whole transfer.
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	idle := time.AfterFunc(e.opts.Timeout, func() { cancel(errStalled) })
	defer idle.Stop()

	req, err := build(attemptCtx)
	if err != nil {
		return false, err
	}
	e.setHeaders(req)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return false, e.stalledError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()
	logger.LogRequest(e.logger, req.Method, req.URL.Redacted(), resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return false, statusError(resp.StatusCode, nil)
	}

	expected := resp.ContentLength
	if expected >= 0 {
		if info, err := os.Stat(dest); err == nil && info.Size() == expected {
			e.logger.DebugWithFields("file already up to date", map[string]interface{}{
				"file": dest,
				"size": expected,
			})
			return true, nil
		}
	} else {
		e.logger.DebugWithFields("content length unknown, download size cannot be verified", map[string]interface{}{
			"file": dest,
			"url":  req.URL.Redacted(),
		})
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return false, errs.Wrap(errs.ErrorTypeFatal, 0, "create destination directory", err)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return false, errs.Wrap(errs.ErrorTypeFatal, 0, "create destination file", err)
	}
	written, copyErr := io.Copy(f, &idleReader{r: resp.Body, timer: idle, timeout: e.opts.Timeout})
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return false, e.stalledError(ctx, attemptCtx, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return false, errs.Wrap(errs.ErrorTypeFatal, 0, "close destination file", closeErr)
	}

	if expected >= 0 && written != expected {
		os.Remove(tmp)
		return false, errs.New(errs.ErrorTypeSizeMismatch, resp.StatusCode,
			fmt.Sprintf("wrote %d bytes, expected %d", written, expected))
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return false, errs.Wrap(errs.ErrorTypeFatal, 0, "move downloaded file into place", err)
	}
	return false, nil
}

var errStalled = errors.New("transfer stalled")

// idleReader pushes the stall timer back after every read that made progress
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}

// stalledError reports an attempt cancelled by the stall timer as a timeout
func (e *Executor) stalledError(ctx, attemptCtx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(context.Cause(attemptCtx), errStalled) {
		return errs.Wrap(errs.ErrorTypeTimeout, 0, fmt.Sprintf("no data within %s", e.opts.Timeout), err)
	}
	return e.transportError(ctx, err)
}

// RoundTrip lets other HTTP clients, such as the oauth2 token exchange,
// run through the executor. Non-2xx responses other than a spent budget
// are handed back as responses so callers can inspect them.
func (e *Executor) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		defer req.Body.Close()
	}

	build := func(ctx context.Context) (*http.Request, error) {
		r := req.Clone(ctx)
		if req.Body != nil && req.Body != http.NoBody {
			if req.GetBody == nil {
				return nil, errs.New(errs.ErrorTypeFatal, 0, "request body cannot be replayed")
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = body
		}
		return r, nil
	}

	resp, err := e.execute(req.Context(), build)
	if resp == nil {
		return nil, err
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		StatusCode:    resp.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        resp.Header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       req,
	}, nil
}

// HTTPClient returns a client whose transport is this executor
func (e *Executor) HTTPClient() *http.Client {
	return &http.Client{Transport: e}
}

func (e *Executor) setHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", e.opts.UserAgent)
	}
}

func (e *Executor) retryConfig(ctx context.Context) *retry.Config {
	return &retry.Config{
		MaxAttempts: e.opts.MaxAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: e.opts.RetryDelay},
		RetryIf:     isTransient,
		Context:     ctx,
		Logger:      e.logger,
	}
}

// transportError classifies a failed round trip. A cancelled parent
// context is returned untouched so it is never retried.
func (e *Executor) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrorTypeTimeout, 0, fmt.Sprintf("no response within %s", e.opts.Timeout), err)
	}
	return errs.Wrap(errs.ErrorTypeNetwork, 0, "request error", err)
}

// promote turns a spent retry budget into the fatal "request failed" error
func (e *Executor) promote(err error) error {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return errs.Fatal("request failed", exhausted.Last)
	}
	return err
}

func isTransient(err error) bool {
	return errs.IsRetryable(errs.TypeOf(err))
}

var _ http.RoundTripper = (*Executor)(nil)
