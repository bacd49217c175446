// Package backend wires the store, the feed registry and the fan-out dispatcher together and exposes them over a JSON
// HTTP API.
package backend

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/fluxhook/fluxhook/backend/data"
	"github.com/fluxhook/fluxhook/backend/fanout"
	"github.com/fluxhook/fluxhook/backend/feedmanager"
	log "gopkg.in/inconshreveable/log15.v2"
)

type PollerConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
}

type DeliveryConfig struct {
	Timeout       time.Duration
	MaxConcurrent int
	RatePerHost   float64
}

type AppConfig struct {
	Poller   PollerConfig
	Delivery DeliveryConfig
	Auth     AuthConfig

	// Fetcher and Sink replace the HTTP implementations when set.
	Fetcher feedmanager.Fetcher
	Sink    fanout.Sink
}

// App owns the feed registry for its lifetime. Close must be called to stop polling.
type App struct {
	// fluxMutex serializes flux mutations so the registry and the flux table change together.
	fluxMutex sync.Mutex

	store      data.Store
	registry   *feedmanager.Registry
	dispatcher *fanout.Dispatcher
	auth       *Authenticator
	interval   time.Duration
	logger     log.Logger
	httpLogger log.Logger
}

func NewApp(config AppConfig, store data.Store, logger log.Logger) (*App, error) {
	auth, err := NewAuthenticator(config.Auth)
	if err != nil {
		return nil, err
	}

	fetcher := config.Fetcher
	if fetcher == nil {
		fetcher = feedmanager.NewHTTPFetcher(config.Poller.FetchTimeout)
	}

	sink := config.Sink
	if sink == nil {
		sink = fanout.NewHTTPSink(fanout.HTTPSinkConfig{
			Timeout:     config.Delivery.Timeout,
			RatePerHost: config.Delivery.RatePerHost,
		})
	}

	app := &App{
		store: store,
		registry: feedmanager.NewRegistry(feedmanager.RegistryConfig{
			Fetcher:         fetcher,
			DefaultInterval: config.Poller.Interval,
			Logger:          logger,
		}),
		dispatcher: fanout.NewDispatcher(fanout.Config{
			Store:         store,
			Sink:          sink,
			MaxConcurrent: config.Delivery.MaxConcurrent,
			Logger:        logger,
		}),
		auth:       auth,
		interval:   config.Poller.Interval,
		logger:     logger.New("module", "app"),
		httpLogger: logger.New("module", "http"),
	}

	return app, nil
}

// Restore starts polling every persisted flux. Feeds are not revalidated. The first poll of each one only records the
// items already published.
func (a *App) Restore(ctx context.Context) error {
	a.fluxMutex.Lock()
	defer a.fluxMutex.Unlock()

	fluxes, err := a.store.SelectAllFlux(ctx)
	if err != nil {
		return err
	}

	for _, flux := range fluxes {
		if err := a.registerKnown(flux.ID, flux.URL); err != nil {
			a.logger.Error("restore flux failed", "flux_id", flux.ID, "url", flux.URL, "error", err)
		}
	}

	a.logger.Info("restored flux", "n", len(fluxes))

	return nil
}

// CreateFlux validates url as a feed, stores it and starts delivering its new items. Polling starts only once the
// flux is stored and its listener is attached.
func (a *App) CreateFlux(ctx context.Context, url string) (*data.Flux, error) {
	a.fluxMutex.Lock()
	defer a.fluxMutex.Unlock()

	seed, err := a.registry.ValidateFeed(ctx, url)
	if err != nil {
		return nil, err
	}

	flux, err := a.store.InsertFlux(ctx, url)
	if err != nil {
		return nil, err
	}

	if _, err := a.registry.StartFeed(url, a.interval, seed, a.dispatcher.Listener(flux.ID)); err != nil {
		if _, deleteErr := a.store.DeleteFlux(ctx, flux.ID); deleteErr != nil {
			a.logger.Error("remove flux after failed registration", "flux_id", flux.ID, "url", url, "error", deleteErr)
		}
		return nil, err
	}

	return flux, nil
}

// UpdateFlux points flux id at url. The new url is validated before anything changes and the flux keeps its
// listener.
func (a *App) UpdateFlux(ctx context.Context, id int32, url string) (*data.Flux, error) {
	a.fluxMutex.Lock()
	defer a.fluxMutex.Unlock()

	flux, err := a.store.SelectFluxByPK(ctx, id)
	if err != nil {
		return nil, err
	}
	if flux.URL == url {
		return flux, nil
	}

	err = a.registry.UpdateFeed(ctx, flux.URL, url)
	var unknownErr *feedmanager.FeedUnknownError
	if errors.As(err, &unknownErr) {
		err = a.register(ctx, id, url)
	}
	if err != nil {
		return nil, err
	}

	updated, err := a.store.UpdateFluxURL(ctx, id, url)
	if err != nil {
		a.unregister(url)
		if errors.Is(err, data.ErrNotFound) {
			return nil, err
		}
		if restoreErr := a.registerKnown(id, flux.URL); restoreErr != nil {
			a.logger.Error("restore flux after failed update", "flux_id", id, "url", flux.URL, "error", restoreErr)
		}
		return nil, err
	}

	return updated, nil
}

// DeleteFlux removes the flux with its bindings, articles and deliveries and stops polling it.
func (a *App) DeleteFlux(ctx context.Context, id int32) (*data.Flux, error) {
	a.fluxMutex.Lock()
	defer a.fluxMutex.Unlock()

	flux, err := a.store.DeleteFlux(ctx, id)
	if err != nil {
		return nil, err
	}

	a.unregister(flux.URL)

	return flux, nil
}

// PollFlux polls flux id immediately and returns the number of new items.
func (a *App) PollFlux(ctx context.Context, id int32) (int, error) {
	flux, err := a.store.SelectFluxByPK(ctx, id)
	if err != nil {
		return 0, err
	}

	return a.registry.Poll(ctx, flux.URL)
}

func (a *App) Handler() http.Handler {
	return NewAPIHandler(a, a.httpLogger)
}

// Close stops all polling.
func (a *App) Close() {
	a.registry.Destroy()
}

func (a *App) register(ctx context.Context, id int32, url string) error {
	seed, err := a.registry.ValidateFeed(ctx, url)
	if err != nil {
		return err
	}
	_, err = a.registry.StartFeed(url, a.interval, seed, a.dispatcher.Listener(id))
	return err
}

func (a *App) registerKnown(id int32, url string) error {
	_, err := a.registry.StartFeed(url, a.interval, nil, a.dispatcher.Listener(id))
	return err
}

func (a *App) unregister(url string) {
	if err := a.registry.RemoveFeed(url); err != nil {
		a.logger.Warn("remove feed failed", "url", url, "error", err)
	}
}
