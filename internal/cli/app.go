package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"veloskill/internal/api"
	"veloskill/internal/auth"
	"veloskill/internal/cache"
	"veloskill/internal/config"
	"veloskill/internal/logger"
	"veloskill/internal/service"
	"veloskill/internal/store"
	"veloskill/internal/strava"
)

// app holds everything a command needs, built once per invocation
type app struct {
	cfg   *config.Config
	log   *logrus.Logger
	store *store.Store
	cache cache.Cache

	sync        *service.SyncService
	progression *service.ProgressionService
	challenges  *service.ChallengeService
	masteries   *service.MasteryService
	dashboard   *service.DashboardService

	closers []func() error
}

// loadConfig reads the config file. When none exists an example is written
// so the athlete has something to edit.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if errors.Is(err, config.ErrNoConfig) && path == "" {
		if err := config.CreateExample(); err != nil {
			return nil, fmt.Errorf("creating example config: %w", err)
		}
		dir, _ := config.GetConfigDir()
		return nil, fmt.Errorf("no configuration found, edit %s/config.json and add your Strava API credentials", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts *options) (*app, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	a := &app{cfg: cfg, log: logger.New(cfg.Log.Level), cache: cache.Nop{}}

	a.store, err = store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.cache = rc
		a.closers = append(a.closers, rc.Close)
	}

	notifier := service.LogNotifier{Log: a.log}
	a.sync = service.NewSyncService(
		strava.NewClient(nil),
		auth.NewRefresher(a.oauthConfig(), nil),
		a.store,
		a.cache,
		notifier,
		a.log,
		service.SyncOptionsFrom(cfg.Sync),
	)
	a.progression = service.NewProgressionService(a.store, notifier, a.log, service.ProgressionOptionsFrom(cfg.Progression))
	a.challenges = service.NewChallengeService(a.store, notifier, a.log)
	a.masteries = service.NewMasteryService(a.store, notifier, a.log)
	a.dashboard = service.NewDashboardService(a.sync, a.progression, a.challenges, a.masteries, a.log)

	return a, nil
}

func (a *app) oauthConfig() *oauth2.Config {
	return auth.NewConfig(auth.Credentials{
		ClientID:     a.cfg.Strava.ClientID,
		ClientSecret: a.cfg.Strava.ClientSecret,
		RedirectURL:  a.cfg.Strava.RedirectURL,
	})
}

func (a *app) services() api.Services {
	return api.Services{
		Sync:        a.sync,
		Progression: a.progression,
		Challenges:  a.challenges,
		Masteries:   a.masteries,
		Dashboard:   a.dashboard,
	}
}

// Close releases the store and cache in reverse order of opening
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
