package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/storefront/internal/config"
	"github.com/felixgeelhaar/storefront/internal/events"
	"github.com/felixgeelhaar/storefront/internal/gateway"
	"github.com/felixgeelhaar/storefront/internal/log"
	"github.com/felixgeelhaar/storefront/internal/metrics"
	"github.com/felixgeelhaar/storefront/internal/session"
	"github.com/felixgeelhaar/storefront/internal/storage"
	"github.com/felixgeelhaar/storefront/internal/version"
)

// app holds what every command shares: flags, configuration and the
// lazily opened storage, event and backend connections.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	output     string

	cfg    *config.Config
	logger *log.Logger

	storage storage.Backend
	events  events.Publisher
}

func (a *app) setup(cmd *cobra.Command) error {
	switch a.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("invalid argument %q for --output: want text, json or yaml", a.output)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, format := cfg.Log.Level, cfg.Log.Format
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.logFormat != "" {
		format = a.logFormat
	}
	logCfg := log.ConfigFrom(level, format, version.GetInfo().Version)
	logCfg.Output = cmd.ErrOrStderr()
	a.logger = log.New(logCfg)
	log.SetDefaultLogger(a.logger)
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
		a.events = nil
	}
	if c, ok := a.storage.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	a.storage = nil
	return errors.Join(errs...)
}

func (a *app) openStorage() (storage.Backend, error) {
	if a.storage == nil {
		b, err := storage.Open(a.cfg.StorageOptions())
		if err != nil {
			return nil, err
		}
		a.storage = b
	}
	return a.storage, nil
}

func (a *app) openEvents() (events.Publisher, error) {
	if a.events == nil {
		p, err := events.Open(a.cfg.Events.AMQPURL, a.cfg.Events.Exchange)
		if err != nil {
			return nil, err
		}
		a.events = p
	}
	return a.events, nil
}

func (a *app) gateway(m *metrics.Metrics) (*gateway.Client, error) {
	return gateway.New(gateway.Config{
		BaseURL:   a.cfg.Backend.BaseURL,
		Timeout:   a.cfg.Backend.Timeout,
		RetryMax:  a.cfg.Backend.RetryMax,
		UserAgent: version.GetInfo().UserAgent(),
	}, gateway.WithLogger(a.logger), gateway.WithMetrics(m))
}

// store opens the persisted terminal session.
func (a *app) store(ctx context.Context) (*session.Store, error) {
	backend, err := a.openStorage()
	if err != nil {
		return nil, err
	}
	publisher, err := a.openEvents()
	if err != nil {
		return nil, err
	}
	gw, err := a.gateway(nil)
	if err != nil {
		return nil, err
	}
	return session.New(ctx, session.Options{
		Gateway: gw,
		Storage: backend,
		Key:     a.cfg.Storage.Namespace,
		Logger:  a.logger,
		Events:  publisher,
	})
}

// confirmed opens the session and confirms it with the backend.
func (a *app) confirmed(ctx context.Context) (*session.Store, error) {
	s, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
