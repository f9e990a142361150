package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	errs "tumblrsync/pkg/errors"
	"tumblrsync/pkg/logger"
)

const (
	// AuthorizeURL is where the user grants access in a browser
	AuthorizeURL = "https://www.tumblr.com/oauth2/authorize"
	tokenPath    = "/v2/oauth2/token"
)

// DefaultScopes requests read access plus a refresh token
var DefaultScopes = []string{"basic", "offline_access"}

// Options configures a TokenStore
type Options struct {
	ClientID     string
	ClientSecret string
	// Code is the one-time authorization code used when nothing is stored
	Code        string
	RedirectURI string
	// APIBase is the API root, e.g. https://api.tumblr.com
	APIBase string
	Scopes  []string

	Store CredentialStore
	// HTTPClient carries the token requests. Pass the executor's client so
	// they share spacing, timeout and retry budget.
	HTTPClient *http.Client
	Logger     logger.Logger
	// Now overrides the clock
	Now func() time.Time
}

// TokenStore owns the single OAuth credential. It loads it once, then
// refreshes it when stale or after Invalidate, persisting every change.
type TokenStore struct {
	mu sync.Mutex

	oauth  *oauth2.Config
	code   string
	store  CredentialStore
	client *http.Client
	logger logger.Logger
	now    func() time.Time

	cred        *Credential
	invalidated bool
}

// NewTokenStore creates a TokenStore
func NewTokenStore(opts Options) *TokenStore {
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &TokenStore{
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   AuthorizeURL,
				TokenURL:  strings.TrimRight(opts.APIBase, "/") + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		code:   opts.Code,
		store:  opts.Store,
		client: client,
		logger: log.WithField("component", "token_store"),
		now:    now,
	}
}

// Credential returns a credential that is not stale. The first call loads
// the stored one, falling back to the authorization-code exchange when it
// is missing or unreadable. A stale or invalidated credential is refreshed
// and persisted before it is returned.
func (ts *TokenStore) Credential(ctx context.Context) (*Credential, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.cred == nil {
		cred, err := ts.store.Load()
		if err != nil {
			ts.logger.WithError(err).Info("no usable stored credential, exchanging authorization code")
			cred, err = ts.exchangeCode(ctx, err)
			if err != nil {
				return nil, err
			}
			if err := ts.persist(cred); err != nil {
				return nil, err
			}
		} else {
			ts.logger.DebugWithFields("loaded stored credential", map[string]interface{}{
				"location":   ts.store.Location(),
				"expires_at": cred.ExpiresAt(),
			})
		}
		ts.cred = cred
	}

	if ts.invalidated || ts.cred.Stale(ts.now()) {
		cred, err := ts.refresh(ctx, ts.cred)
		if err != nil {
			return nil, err
		}
		if err := ts.persist(cred); err != nil {
			return nil, err
		}
		ts.cred = cred
		ts.invalidated = false
	}

	c := *ts.cred
	return &c, nil
}

// Invalidate forces the next Credential call to refresh
func (ts *TokenStore) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.invalidated = true
}

// Refresh invalidates and immediately returns a refreshed credential
func (ts *TokenStore) Refresh(ctx context.Context) (*Credential, error) {
	ts.Invalidate()
	return ts.Credential(ctx)
}

// Login exchanges code for a new credential and persists it, replacing
// whatever was stored
func (ts *TokenStore) Login(ctx context.Context, code string) (*Credential, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if code != "" {
		ts.code = code
	}
	cred, err := ts.exchangeCode(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := ts.persist(cred); err != nil {
		return nil, err
	}
	ts.cred = cred
	ts.invalidated = false

	c := *cred
	return &c, nil
}

// AuthCodeURL builds the browser URL that yields an authorization code
func (ts *TokenStore) AuthCodeURL(state string) string {
	return ts.oauth.AuthCodeURL(state)
}

func (ts *TokenStore) exchangeCode(ctx context.Context, loadErr error) (*Credential, error) {
	if ts.code == "" || ts.oauth.RedirectURL == "" {
		return nil, errs.Fatal("no stored credential and no authorization code/redirect URI configured", loadErr)
	}
	if ts.oauth.ClientID == "" || ts.oauth.ClientSecret == "" {
		return nil, errs.Fatal("client id and client secret are required for the token exchange", loadErr)
	}

	requested := ts.now()
	tok, err := ts.oauth.Exchange(ts.clientContext(ctx), ts.code)
	if err != nil {
		return nil, exchangeError("authorization code exchange failed", err)
	}

	ts.logger.Info("obtained credential from authorization code")
	return credentialFromToken(tok, requested), nil
}

func (ts *TokenStore) refresh(ctx context.Context, current *Credential) (*Credential, error) {
	if current.RefreshToken == "" {
		return nil, errs.Fatal("credential has no refresh token", nil)
	}

	requested := ts.now()
	src := ts.oauth.TokenSource(ts.clientContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, exchangeError("refresh token exchange failed", err)
	}

	cred := credentialFromToken(tok, requested)
	if cred.RefreshToken == "" {
		cred.RefreshToken = current.RefreshToken
	}
	if cred.Scope == "" {
		cred.Scope = current.Scope
	}

	ts.logger.InfoWithFields("refreshed credential", map[string]interface{}{
		"expires_at": cred.ExpiresAt(),
	})
	return cred, nil
}

func (ts *TokenStore) persist(cred *Credential) error {
	if err := ts.store.Save(cred); err != nil {
		return errs.Fatal("persist credential", err)
	}
	return nil
}

func (ts *TokenStore) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, ts.client)
}

// exchangeError keeps context cancellation visible and makes everything
// else fatal.
func exchangeError(msg string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errs.Fatal(msg, err)
}

// credentialFromToken merges the endpoint response with the local
// request time
func credentialFromToken(tok *oauth2.Token, requested time.Time) *Credential {
	cred := &Credential{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Requested:    requested.Unix(),
	}

	if v, ok := extraInt(tok, "expires_in"); ok {
		cred.ExpiresIn = v
	} else if !tok.Expiry.IsZero() {
		cred.ExpiresIn = int64(tok.Expiry.Sub(requested) / time.Second)
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		cred.Scope = scope
	}
	return cred
}

func extraInt(tok *oauth2.Token, key string) (int64, bool) {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
