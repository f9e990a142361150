package main

import (
	"fmt"

	"tumblrsync/pkg/auth"
	"tumblrsync/pkg/config"
	"tumblrsync/pkg/executor"
	"tumblrsync/pkg/logger"
	"tumblrsync/pkg/tumblr"
)

// app is the wired object graph shared by the commands
type app struct {
	cfg    *config.Config
	log    logger.Logger
	exec   *executor.Executor
	store  auth.CredentialStore
	tokens *auth.TokenStore
	client *tumblr.Client
}

// newApp connects executor, token store and API client. The token
// exchanges go through the executor so every request shares its spacing.
func newApp(cfg *config.Config, log logger.Logger) (*app, error) {
	exec := executor.New(executor.Options{
		MaxAttempts: cfg.Request.MaxAttempts,
		Timeout:     cfg.Request.Timeout,
		MinInterval: cfg.Request.MinInterval,
		RetryDelay:  cfg.Request.RetryDelay,
		UserAgent:   cfg.Tumblr.UserAgent,
		Logger:      log,
	})

	store, err := auth.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	tokens := auth.NewTokenStore(auth.Options{
		ClientID:     cfg.Tumblr.ClientID,
		ClientSecret: cfg.Tumblr.ClientSecret,
		Code:         cfg.Tumblr.Code,
		RedirectURI:  cfg.Tumblr.RedirectURI,
		APIBase:      cfg.Tumblr.APIBase,
		Store:        store,
		HTTPClient:   exec.HTTPClient(),
		Logger:       log,
	})

	client := tumblr.NewClient(tumblr.Options{
		BaseURL:     cfg.Tumblr.APIBase,
		ClientID:    cfg.Tumblr.ClientID,
		Requester:   exec,
		Credentials: tokens,
		Logger:      log,
	})

	return &app{
		cfg:    cfg,
		log:    log,
		exec:   exec,
		store:  store,
		tokens: tokens,
		client: client,
	}, nil
}
