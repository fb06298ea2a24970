package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/OnslaughtSnail/edgechat/internal/config"
	"github.com/OnslaughtSnail/edgechat/internal/server"
	"github.com/OnslaughtSnail/edgechat/kernel/chat"
	"github.com/OnslaughtSnail/edgechat/kernel/memory"
	"github.com/OnslaughtSnail/edgechat/kernel/model"
	"github.com/OnslaughtSnail/edgechat/kernel/model/providers"
	"github.com/OnslaughtSnail/edgechat/kernel/promptpipeline"
	"github.com/OnslaughtSnail/edgechat/kernel/session"
	"github.com/OnslaughtSnail/edgechat/kernel/session/filestore"
	"github.com/OnslaughtSnail/edgechat/kernel/session/inmemory"
	"github.com/OnslaughtSnail/edgechat/kernel/session/sqlitestore"
	"github.com/OnslaughtSnail/edgechat/kernel/tasks"
	"github.com/OnslaughtSnail/edgechat/kernel/workflow"
)

// app is the fully wired service.
type app struct {
	log      *zap.Logger
	server   *server.Server
	registry *memory.Registry
	tasks    *tasks.Group
	store    io.Closer
}

func wireApp(cfg *config.Config, log *zap.Logger, gateway model.Gateway) (*app, error) {
	store, mirror, closer, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	templates := promptpipeline.Templates{
		System:     cfg.Prompt.System,
		Guardrails: cfg.Prompt.Guardrails,
		Summary:    cfg.Prompt.Summary,
	}.WithDefaults()

	registry := memory.NewRegistry(memory.Config{
		Store:        store,
		Mirror:       mirror,
		Summarizer:   gateway,
		SummaryModel: cfg.Model.SummaryModel,
		Templates:    templates,
		QueueDepth:   cfg.Memory.QueueDepth,
		IdleTimeout:  cfg.Memory.IdleTimeout,
		Logger:       log,
	})
	group := tasks.New(log, cfg.Tasks.Timeout)

	pipeline := &workflow.Pipeline{
		Memory:        registry,
		Gateway:       gateway,
		Templates:     templates,
		ContextTokens: cfg.Memory.ContextTokens,
		EmitDelay:     cfg.Workflow.EmitDelay,
		Tasks:         group,
		Logger:        log,
	}
	var primary chat.Primary = &workflow.Local{Pipeline: pipeline}
	if cfg.Workflow.URL != "" {
		primary = workflow.NewClient(cfg.Workflow.URL, cfg.Workflow.Timeout)
	}
	var mount http.Handler
	if cfg.Workflow.Mount {
		mount = &workflow.Handler{Pipeline: pipeline}
	}

	orchestrator := &chat.Orchestrator{
		Primary:       primary,
		Memory:        registry,
		Gateway:       gateway,
		Templates:     templates,
		ContextTokens: cfg.Memory.ContextTokens,
		Tasks:         group,
		Logger:        log,
	}
	srv := server.New(server.Deps{
		Chat:     orchestrator,
		Memory:   registry,
		Workflow: mount,
		Logger:   log,
	})
	return &app{log: log, server: srv, registry: registry, tasks: group, store: closer}, nil
}

// shutdown stops the listener, then drains detached tasks, then the session
// actors, then closes the store.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	abandoned, err := a.tasks.Shutdown(ctx)
	if abandoned > 0 {
		a.log.Warn("abandoned background tasks", zap.Int("count", abandoned))
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("tasks shutdown: %w", err))
	}
	if err := a.registry.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory shutdown: %w", err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func openStore(cfg config.StoreConfig) (session.Store, session.SummaryMirror, io.Closer, error) {
	switch cfg.Driver {
	case "memory":
		s := inmemory.New()
		return s, s, nil, nil
	case "file":
		s, err := filestore.New(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, nil, nil
	case "sqlite":
		s, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, s, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// newGateway registers every configured provider and builds the default
// alias.
func newGateway(cfg *config.Config) (model.Gateway, error) {
	factory := providers.NewFactory()
	for _, p := range cfg.Providers {
		err := factory.Register(providers.Config{
			Alias:        p.Alias,
			API:          providers.APIType(p.API),
			Model:        p.Model,
			BaseURL:      p.BaseURL,
			AccountID:    p.AccountID,
			Headers:      p.Headers,
			Timeout:      p.Timeout,
			MaxOutputTok: p.MaxOutputTokens,
			Auth:         providers.AuthConfig{Token: p.Token, TokenEnv: p.TokenEnv},
		})
		if err != nil {
			return nil, err
		}
	}
	return factory.NewByAlias(cfg.Model.Default)
}
