// Package common wires the shared dependencies behind every
// subcommand.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ishaqmohammed8765-png/flipscan/internal/alert"
	"github.com/ishaqmohammed8765-png/flipscan/internal/budget"
	"github.com/ishaqmohammed8765-png/flipscan/internal/config"
	"github.com/ishaqmohammed8765-png/flipscan/internal/database"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
	"github.com/ishaqmohammed8765-png/flipscan/internal/fetch"
	"github.com/ishaqmohammed8765-png/flipscan/internal/filter"
	"github.com/ishaqmohammed8765-png/flipscan/internal/fx"
	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
	"github.com/ishaqmohammed8765-png/flipscan/internal/marketplace"
	"github.com/ishaqmohammed8765-png/flipscan/internal/respcache"
	"github.com/ishaqmohammed8765-png/flipscan/internal/scan"
	"github.com/ishaqmohammed8765-png/flipscan/internal/scoring"
	"github.com/ishaqmohammed8765-png/flipscan/internal/search"
)

// Deps is the assembled application graph. Every subcommand builds one
// and tears it down with Close.
type Deps struct {
	Settings     *config.Settings
	Log          logger.Interface
	DB           *sqlx.DB
	Store        *database.Store
	Budget       *budget.Budget
	Searcher     *search.Client
	Orchestrator *scan.Orchestrator
}

// Build loads configuration, connects to Postgres, runs migrations and
// assembles the scan pipeline.
func Build(ctx context.Context, cfgFile string, debug bool) (*Deps, error) {
	settings, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if debug {
		settings.Debug = true
		settings.LogLevel = "debug"
	}

	log, err := logger.New(&logger.Config{
		Level:       settings.LogLevel,
		Encoding:    settings.LogEncoding,
		Development: settings.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewPostgresConnection(settings.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	store := database.NewStore(db)

	b := budget.New(settings.RequestCap)
	cache := respcache.New(settings.CacheTTL)
	client := fetch.NewClient(b, cache, settings.HTTPTimeout, log)
	converter := fx.New(settings.GBPExchangeRate, settings.FXLiveEnabled,
		time.Duration(settings.FXCacheMinutes)*time.Minute, log)
	registry := marketplace.NewRegistry(settings, client, converter, log)
	searcher := search.NewClient(registry, filter.New(settings), settings, log)

	var senders []alert.Sender
	if settings.DiscordWebhookURL != "" {
		senders = append(senders, alert.NewDiscordSender(settings.DiscordWebhookURL, log))
	}

	orchestrator := scan.New(store, searcher, scoring.New(settings), b, senders, settings, log)

	return &Deps{
		Settings:     settings,
		Log:          log,
		DB:           db,
		Store:        store,
		Budget:       b,
		Searcher:     searcher,
		Orchestrator: orchestrator,
	}, nil
}

// Close releases the database connection.
func (d *Deps) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// SeedTargets inserts the configured seed targets that do not exist
// yet. Existing targets keep their stored definition.
func (d *Deps) SeedTargets(ctx context.Context) error {
	for _, name := range d.Settings.SeedTargets {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := d.Store.Targets.GetByName(ctx, name); err == nil {
			continue
		} else if !isNotFound(err) {
			return err
		}
		target := &domain.Target{
			Name:        name,
			ListingType: domain.ListingTypeAny,
			Enabled:     true,
		}
		if _, err := d.Store.Targets.Upsert(ctx, target); err != nil {
			return fmt.Errorf("failed to seed target %q: %w", name, err)
		}
		d.Log.Info("seeded target", "name", name)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrTargetNotFound)
}
