package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"followgraph/pkg/auth"
	"followgraph/pkg/checkpoint"
	"followgraph/pkg/config"
	errs "followgraph/pkg/errors"
	"followgraph/pkg/graph"
	"followgraph/pkg/logger"
	"followgraph/pkg/metrics"
	"followgraph/pkg/ratelimit"
	"followgraph/pkg/social"
	"followgraph/pkg/storage"
	"followgraph/pkg/twitter"

	"go.uber.org/multierr"
)

// app bundles what every command needs: configuration, logger and storage
type app struct {
	cfg   *config.Config
	blobs storage.BlobStore
	store *checkpoint.Store
	log   logger.Logger
}

// setup loads the configuration with the global flags applied on top of
// flags, initialises logging and opens the blob store.
func setup(ctx context.Context, flags map[string]interface{}) (*app, error) {
	merged := globalFlags()
	for k, v := range flags {
		merged[k] = v
	}

	cfg, err := config.Load(configFile, merged)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "failed to load configuration")
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialise logging: %w", err)
	}

	blobs, err := storage.Open(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	log := logger.GetLogger()
	log.WithFields(map[string]interface{}{
		"version": version,
		"backend": cfg.Storage.Backend,
	}).Debug("followgraph starting")

	return &app{
		cfg:   cfg,
		blobs: blobs,
		store: checkpoint.NewStore(blobs, cfg.Storage.CheckpointPrefix),
		log:   log,
	}, nil
}

func (a *app) Close() error {
	return a.blobs.Close()
}

// loadGraph loads the main checkpoint, or the named snapshot when name is
// set. A missing checkpoint gives an empty graph.
func (a *app) loadGraph(ctx context.Context, name string) (*graph.Graph, error) {
	g := graph.New()
	found, err := a.store.Load(ctx, g, name)
	if err != nil {
		return nil, err
	}
	if !found {
		a.log.Info("No checkpoint found, starting from an empty graph")
	}
	return g, nil
}

// cooldowns converts the configured cooldowns
func (a *app) cooldowns() social.Cooldowns {
	c := a.cfg.Cooldowns
	return social.Cooldowns{
		social.FollowerPage: c.FollowerPage,
		social.FriendPage:   c.FriendPage,
		social.UserLookup:   c.UserLookup,
		social.Relationship: c.Relationship,
	}
}

func (a *app) rotatorConfig() twitter.RotatorConfig {
	cfg := twitter.DefaultRotatorConfig()
	cfg.Cooldowns = a.cooldowns()
	cfg.PollIntervals[social.FollowerPage] = a.cfg.Crawl.PagePollInterval
	cfg.PollIntervals[social.FriendPage] = a.cfg.Crawl.PagePollInterval
	cfg.PollIntervals[social.UserLookup] = a.cfg.Crawl.LookupPollInterval
	cfg.PollIntervals[social.Relationship] = a.cfg.Crawl.RelationshipPollInterval
	return cfg
}

// credentials gathers API credentials: INI files first, in the order
// given, then credentials saved with `auth add` that are not shadowed by
// a file of the same name.
func (a *app) credentials() ([]*auth.Credential, error) {
	if a.cfg.API.Offline {
		return nil, errs.New(errs.ErrorTypeConfig, 0, "this command needs the API but api.offline is set")
	}

	creds, err := auth.LoadINIFiles(a.cfg.API.CredentialFiles)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "failed to load credential files")
	}

	if a.cfg.API.UseStoredCredentials {
		manager, err := auth.NewManager()
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeConfig, err, "credential store unavailable")
		}
		if creds, err = withStored(creds, manager); err != nil {
			return nil, err
		}
	}

	if len(creds) == 0 {
		return nil, ratelimit.ErrNoCredentials
	}
	return creds, nil
}

// withStored appends the manager's credentials that no file shadows. An
// unreadable store is a configuration error.
func withStored(creds []*auth.Credential, manager *auth.Manager) ([]*auth.Credential, error) {
	stored, err := manager.List()
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "failed to read stored credentials")
	}
	seen := make(map[string]bool, len(creds))
	for _, c := range creds {
		seen[c.Name] = true
	}
	for _, c := range stored {
		if !seen[c.Name] {
			creds = append(creds, c)
		}
	}
	return creds, nil
}

// clients builds one API client per credential
func (a *app) clients(ctx context.Context, creds []*auth.Credential) ([]social.API, error) {
	var apis []social.API
	var err error
	for _, cred := range creds {
		c, cerr := twitter.NewClient(ctx, twitter.ClientConfig{
			BaseURL:    a.cfg.API.BaseURL,
			Timeout:    a.cfg.API.Timeout,
			Credential: cred,
		}, a.log)
		if cerr != nil {
			err = multierr.Append(err, fmt.Errorf("credential %s: %w", cred.Name, cerr))
			continue
		}
		apis = append(apis, c)
	}
	if err != nil {
		return nil, err
	}
	return apis, nil
}

// rotator builds a rotating API over creds
func (a *app) rotator(ctx context.Context, creds []*auth.Credential, sched *ratelimit.Scheduler) (*twitter.Rotator, error) {
	apis, err := a.clients(ctx, creds)
	if err != nil {
		return nil, err
	}
	return twitter.NewRotator(apis, sched, a.rotatorConfig(), a.log)
}

// serveMetrics exposes /metrics in the background when an address is set
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics.Address == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.cfg.Metrics.Address); err != nil {
			a.log.WithError(err).Error("Metrics endpoint failed")
		}
	}()
	a.log.WithField("address", a.cfg.Metrics.Address).Info("Serving metrics")
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
