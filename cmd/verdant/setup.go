package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/VerdantProject/verdant/pkg/config"
	"github.com/VerdantProject/verdant/pkg/engine"
	"github.com/VerdantProject/verdant/pkg/intensity"
	"github.com/VerdantProject/verdant/pkg/intensity/electricitymaps"
	"github.com/VerdantProject/verdant/pkg/intensity/gridapi"
	"github.com/VerdantProject/verdant/pkg/notify"
	"github.com/VerdantProject/verdant/pkg/policy"
	"github.com/VerdantProject/verdant/pkg/store"
)

const defaultAPIKeyEnv = "ELECTRICITYMAPS_API_KEY"

// loadConfig reads the config file. A missing file at the default path
// is not an error: the built-in defaults apply, with no regions.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !rootFlagChanged() {
		def := config.Default()
		return &def, nil
	}
	return nil, err
}

// rootFlagChanged reports whether --config was set explicitly, in which
// case a missing file should fail loudly.
func rootFlagChanged() bool {
	return os.Getenv("VERDANT_CONFIG") != "" || configPath != "verdant.yaml"
}

// buildSources assembles the intensity source chain from config.
// Sources without credentials or coverage are skipped; the resolver's
// static fallback covers any gap.
func buildSources(cfg *config.Config, logger *slog.Logger) []intensity.Source {
	var sources []intensity.Source

	if em := cfg.Sources.ElectricityMaps; em != nil && len(em.Zones) > 0 {
		keyEnv := em.APIKeyEnv
		if keyEnv == "" {
			keyEnv = defaultAPIKeyEnv
		}
		apiKey := os.Getenv(keyEnv)
		if apiKey == "" {
			logger.Warn("electricitymaps source skipped: no API key", "env", keyEnv)
		} else {
			var opts []electricitymaps.Option
			if em.BaseURL != "" {
				opts = append(opts, electricitymaps.WithBaseURL(em.BaseURL))
			}
			if em.Priority > 0 {
				opts = append(opts, electricitymaps.WithPriority(em.Priority))
			}
			sources = append(sources, electricitymaps.New(apiKey, em.Zones, opts...))
		}
	}

	if ga := cfg.Sources.GridAPI; ga != nil && len(ga.Regions) > 0 {
		var opts []gridapi.Option
		if ga.BaseURL != "" {
			opts = append(opts, gridapi.WithBaseURL(ga.BaseURL))
		}
		if ga.Priority > 0 {
			opts = append(opts, gridapi.WithPriority(ga.Priority))
		}
		sources = append(sources, gridapi.New(ga.Regions, opts...))
	}

	return sources
}

// buildStore opens the configured store: SQLite when a path is set,
// in-memory otherwise.
func buildStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Server.DBPath == "" {
		return store.NewMemStore(), nil
	}
	return store.NewSQLiteStore(cfg.Server.DBPath, logger)
}

// buildEngine wires a complete engine for CLI commands. The returned
// registry backs the /metrics endpoint when serving.
func buildEngine(logger *slog.Logger) (*engine.Engine, *config.Config, *prometheus.Registry, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	st, err := buildStore(cfg, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := st.Migrate(context.Background()); err != nil {
		st.Close()
		return nil, nil, nil, nil, fmt.Errorf("migrate store: %w", err)
	}

	opts := []engine.Option{engine.WithLogger(logger)}

	reg := prometheus.NewRegistry()
	opts = append(opts, engine.WithMetrics(engine.NewMetrics(reg)))

	if cfg.Engine.PolicyFile != "" {
		p, err := policy.Load(cfg.Engine.PolicyFile)
		if err != nil {
			st.Close()
			return nil, nil, nil, nil, fmt.Errorf("load policy: %w", err)
		}
		ev, err := policy.NewEvaluator(p)
		if err != nil {
			st.Close()
			return nil, nil, nil, nil, fmt.Errorf("compile policy: %w", err)
		}
		opts = append(opts, engine.WithPolicy(ev))
	}

	if cfg.Notify.WebhookURL != "" {
		opts = append(opts, engine.WithNotifier(notify.NewWebhook(notify.WebhookConfig{
			URL:     cfg.Notify.WebhookURL,
			Headers: cfg.Notify.Headers,
		}, logger)))
	}

	eng := engine.New(cfg, buildSources(cfg, logger), st, opts...)
	return eng, cfg, reg, st.Close, nil
}

// newLogger builds the CLI logger. Commands producing human output log
// warnings only, so tables stay readable.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
