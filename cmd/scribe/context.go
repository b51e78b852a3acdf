package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"scribe/internal/backend"
	"scribe/internal/config"
	"scribe/internal/kvstore"
	"scribe/internal/logging"
	"scribe/internal/session"
	"scribe/internal/tasks"
)

type commandContext struct {
	configFlag    *string
	ephemeralFlag *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, ephemeralFlag *bool) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		ephemeralFlag: ephemeralFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.ephemeralFlag != nil && *c.ephemeralFlag {
			cfg.Storage.Backend = config.BackendMemory
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// services bundles everything a command needs to talk to the backend.
type services struct {
	cfg     *config.Config
	logger  *slog.Logger
	logs    io.Closer
	store   kvstore.Store
	session *session.Manager
	client  *backend.Client
	names   *tasks.NameBook
	tracker *tasks.Tracker
}

func (s *services) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.logs != nil {
		errs = append(errs, s.logs.Close())
	}
	return errors.Join(errs...)
}

func (c *commandContext) openServices(ctx context.Context) (*services, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, logs, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	store, err := kvstore.Open(ctx, cfg)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}

	mgr, err := session.New(store, session.WithLogger(logger), session.WithContext(ctx))
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	client, err := backend.New(cfg.API.BaseURL,
		backend.WithTimeout(cfg.RequestTimeout()),
		backend.WithTokenSource(mgr),
		backend.WithUnauthorizedHandler(mgr.Expire),
		backend.WithLogger(logger),
	)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	names := tasks.NewNameBook(store, logger)
	tracker := tasks.NewTracker(client, names,
		tasks.WithLanguage(cfg.API.Language),
		tasks.WithLogger(logger),
	)

	return &services{
		cfg:     cfg,
		logger:  logger,
		logs:    logs,
		store:   store,
		session: mgr,
		client:  client,
		names:   names,
		tracker: tracker,
	}, nil
}

func (c *commandContext) withServices(cmd *cobra.Command, fn func(context.Context, *services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := c.openServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, svc)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
