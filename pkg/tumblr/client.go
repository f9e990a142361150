package tumblr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"tumblrsync/pkg/auth"
	errs "tumblrsync/pkg/errors"
	"tumblrsync/pkg/executor"
	"tumblrsync/pkg/logger"
)

// Requester executes one request with the executor's retry rules
type Requester interface {
	Do(ctx context.Context, build executor.RequestFunc) ([]byte, error)
}

// CredentialSource hands out a usable bearer credential
type CredentialSource interface {
	Credential(ctx context.Context) (*auth.Credential, error)
	Invalidate()
}

// Options configures a Client
type Options struct {
	// BaseURL is the API root, e.g. https://api.tumblr.com
	BaseURL string
	// ClientID is sent as api_key on every call
	ClientID    string
	Requester   Requester
	Credentials CredentialSource
	Logger      logger.Logger
}

// Client calls the Tumblr v2 API
type Client struct {
	baseURL  string
	clientID string
	exec     Requester
	tokens   CredentialSource
	logger   logger.Logger
}

// NewClient creates a Client
func NewClient(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		baseURL:  strings.TrimRight(base, "/"),
		clientID: opts.ClientID,
		exec:     opts.Requester,
		tokens:   opts.Credentials,
		logger:   log.WithField("component", "tumblr"),
	}
}

type envelope struct {
	Meta struct {
		Status int    `json:"status"`
		Msg    string `json:"msg"`
	} `json:"meta"`
	Response json.RawMessage `json:"response"`
}

// APICall performs an authenticated GET of /v2/<path> and returns the
// envelope's response member.
//
// An authorization failure invalidates the credential and repeats the
// call once. A second authorization failure in a row is fatal, as is any
// other non-2xx envelope status.
func (c *Client) APICall(ctx context.Context, path string, params map[string]any) (json.RawMessage, error) {
	var lastAuthErr error
	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := c.call(ctx, path, params)
		if err == nil {
			return resp, nil
		}
		if !errs.IsAuth(err) {
			return nil, err
		}
		lastAuthErr = err
		if attempt == 1 {
			c.logger.WarnWithFields("authorization rejected, refreshing credential", map[string]interface{}{
				"path": path,
			})
			c.tokens.Invalidate()
		}
	}
	return nil, errs.Fatal("authorization failed after credential refresh", lastAuthErr)
}

func (c *Client) call(ctx context.Context, path string, params map[string]any) (json.RawMessage, error) {
	cred, err := c.tokens.Credential(ctx)
	if err != nil {
		return nil, err
	}

	endpoint, err := c.endpoint(path, params)
	if err != nil {
		return nil, errs.Fatal("invalid API URL", err)
	}
	c.logger.DebugWithFields("calling API", map[string]interface{}{
		"path":  path,
		"query": endpoint.RawQuery,
	})

	body, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse API response", map[string]interface{}{
			"path":         path,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return nil, errs.Wrap(errs.ErrorTypeParsing, 0, "failed to parse API response", err)
	}

	switch status := env.Meta.Status; {
	case status == http.StatusUnauthorized:
		return nil, errs.New(errs.ErrorTypeAuth, status, env.Meta.Msg)
	case status != 0 && (status < 200 || status > 299):
		return nil, errs.Fatal(fmt.Sprintf("API call %s failed", path), errs.New(errs.ErrorTypeAPI, status, env.Meta.Msg))
	}
	return env.Response, nil
}

func (c *Client) endpoint(path string, params map[string]any) (*url.URL, error) {
	q := url.Values{}
	q.Set("api_key", c.clientID)
	for k, v := range params {
		q.Set(k, fmt.Sprint(v))
	}

	u, err := url.Parse(c.baseURL + "/v2/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, err
	}
	u.RawQuery = q.Encode()
	return u, nil
}

// UserInfo returns the authenticated user and their blogs
func (c *Client) UserInfo(ctx context.Context) (*User, error) {
	resp, err := c.APICall(ctx, UserInfoPath, nil)
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, 0, "failed to parse user info", err)
	}
	return &info.User, nil
}
