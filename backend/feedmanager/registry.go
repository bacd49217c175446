// Package feedmanager polls registered RSS feeds and notifies listeners of items that were not present on earlier
// polls.
package feedmanager

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxhook/fluxhook/backend/metrics"
	log "gopkg.in/inconshreveable/log15.v2"
)

// DefaultInterval is the polling interval used when neither the caller nor the RegistryConfig supplies one.
const DefaultInterval = 2 * time.Second

// Listener is called once per new item, sequentially and in document order.
type Listener func(ctx context.Context, item Item)

// ListenerID identifies a listener attached with OnNewItem.
type ListenerID uint64

type RegistryConfig struct {
	Fetcher         Fetcher
	DefaultInterval time.Duration
	Logger          log.Logger
}

// Registry owns a set of polled feeds keyed by URL. Each feed is polled by its own goroutine until it is removed or
// the registry is destroyed.
type Registry struct {
	fetcher         Fetcher
	defaultInterval time.Duration
	logger          log.Logger

	mutex          sync.Mutex
	feeds          map[string]*registration
	nextListenerID ListenerID
	destroyed      bool

	wg sync.WaitGroup
}

type listenerEntry struct {
	id ListenerID
	fn Listener
}

type registration struct {
	url      string
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc

	// listeners is guarded by Registry.mutex.
	listeners []listenerEntry

	polling atomic.Bool

	// seen, seeded and etag are only touched by the tick holding polling.
	seen   map[string]struct{}
	seeded bool
	etag   string
}

func NewRegistry(config RegistryConfig) *Registry {
	if config.Fetcher == nil {
		config.Fetcher = NewHTTPFetcher(0)
	}
	if config.DefaultInterval <= 0 {
		config.DefaultInterval = DefaultInterval
	}
	if config.Logger == nil {
		config.Logger = log.New()
		config.Logger.SetHandler(log.DiscardHandler())
	}

	return &Registry{
		fetcher:         config.Fetcher,
		defaultInterval: config.DefaultInterval,
		logger:          config.Logger.New("module", "feedmanager"),
		feeds:           make(map[string]*registration),
	}
}

// AddFeed validates feedURL as an RSS 2.0 feed and starts polling it every interval. A zero interval selects the
// registry default. The validation fetch seeds the set of known items, so only items published afterwards are ever
// reported.
func (r *Registry) AddFeed(ctx context.Context, feedURL string, interval time.Duration) error {
	seed, err := r.ValidateFeed(ctx, feedURL)
	if err != nil {
		return err
	}

	_, err = r.StartFeed(feedURL, interval, seed)
	return err
}

// AddKnownFeed starts polling a feed that was validated earlier without fetching it first. The first successful tick
// seeds the set of known items.
func (r *Registry) AddKnownFeed(feedURL string, interval time.Duration) error {
	_, err := r.StartFeed(feedURL, interval, nil)
	return err
}

// ValidateFeed checks that feedURL is not registered and serves an RSS 2.0 feed. The returned document can seed
// StartFeed.
func (r *Registry) ValidateFeed(ctx context.Context, feedURL string) (*RawFeed, error) {
	if err := r.checkAvailable(feedURL); err != nil {
		return nil, err
	}

	return fetchValidFeed(ctx, r.fetcher, feedURL)
}

// StartFeed registers feedURL with listeners attached and starts polling it. The items of seed are treated as already
// known. A nil seed defers seeding to the first successful tick.
func (r *Registry) StartFeed(feedURL string, interval time.Duration, seed *RawFeed, listeners ...Listener) ([]ListenerID, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.checkAvailableLocked(feedURL); err != nil {
		return nil, err
	}

	entries := make([]listenerEntry, 0, len(listeners))
	ids := make([]ListenerID, 0, len(listeners))
	for _, fn := range listeners {
		r.nextListenerID++
		entries = append(entries, listenerEntry{id: r.nextListenerID, fn: fn})
		ids = append(ids, r.nextListenerID)
	}
	r.startLocked(feedURL, interval, entries, seed)

	return ids, nil
}

// RemoveFeed stops polling feedURL and drops its listeners. A fetch already in flight may finish but its items are
// never emitted.
func (r *Registry) RemoveFeed(feedURL string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.destroyed {
		return ErrDestroyed
	}

	reg, ok := r.feeds[feedURL]
	if !ok {
		return &FeedUnknownError{URL: feedURL}
	}
	r.stopLocked(reg)

	return nil
}

// UpdateFeed replaces oldURL with newURL. newURL is validated before anything changes. The listeners of oldURL move
// to newURL with their ids intact. The new feed is seeded from the validation fetch.
func (r *Registry) UpdateFeed(ctx context.Context, oldURL, newURL string) error {
	r.mutex.Lock()
	if r.destroyed {
		r.mutex.Unlock()
		return ErrDestroyed
	}
	if _, ok := r.feeds[oldURL]; !ok {
		r.mutex.Unlock()
		return &FeedUnknownError{URL: oldURL}
	}
	if oldURL != newURL {
		if _, ok := r.feeds[newURL]; ok {
			r.mutex.Unlock()
			return &DuplicateFeedError{URL: newURL}
		}
	}
	r.mutex.Unlock()

	raw, err := fetchValidFeed(ctx, r.fetcher, newURL)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.destroyed {
		return ErrDestroyed
	}
	old, ok := r.feeds[oldURL]
	if !ok {
		return &FeedUnknownError{URL: oldURL}
	}
	if oldURL != newURL {
		if _, ok := r.feeds[newURL]; ok {
			return &DuplicateFeedError{URL: newURL}
		}
	}

	listeners := append([]listenerEntry(nil), old.listeners...)
	r.stopLocked(old)
	r.startLocked(newURL, old.interval, listeners, raw)

	r.logger.Info("feed updated", "old_url", oldURL, "new_url", newURL, "listeners", len(listeners))

	return nil
}

// OnNewItem attaches fn to feedURL.
func (r *Registry) OnNewItem(feedURL string, fn Listener) (ListenerID, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.destroyed {
		return 0, ErrDestroyed
	}

	reg, ok := r.feeds[feedURL]
	if !ok {
		return 0, &FeedUnknownError{URL: feedURL}
	}

	r.nextListenerID++
	id := r.nextListenerID
	reg.listeners = append(reg.listeners, listenerEntry{id: id, fn: fn})

	return id, nil
}

// RemoveListener detaches the listener id from feedURL.
func (r *Registry) RemoveListener(feedURL string, id ListenerID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.destroyed {
		return ErrDestroyed
	}

	reg, ok := r.feeds[feedURL]
	if !ok {
		return &FeedUnknownError{URL: feedURL}
	}

	for i, l := range reg.listeners {
		if l.id == id {
			reg.listeners = append(reg.listeners[:i:i], reg.listeners[i+1:]...)
			return nil
		}
	}

	return ErrUnknownListener
}

// Poll runs one tick for feedURL immediately and returns the number of new items emitted. The tick is not interrupted
// when ctx is cancelled, only when the feed is removed.
func (r *Registry) Poll(ctx context.Context, feedURL string) (int, error) {
	r.mutex.Lock()
	if r.destroyed {
		r.mutex.Unlock()
		return 0, ErrDestroyed
	}
	reg, ok := r.feeds[feedURL]
	r.mutex.Unlock()
	if !ok {
		return 0, &FeedUnknownError{URL: feedURL}
	}

	tickCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(reg.ctx, cancel)
	defer stop()

	return r.tick(tickCtx, reg)
}

// Feeds returns the registered URLs in sorted order.
func (r *Registry) Feeds() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	urls := make([]string, 0, len(r.feeds))
	for url := range r.feeds {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	return urls
}

// Destroy stops every feed and waits for all polling goroutines to exit. The registry cannot be used afterwards.
func (r *Registry) Destroy() {
	r.mutex.Lock()
	if !r.destroyed {
		r.destroyed = true
		for _, reg := range r.feeds {
			r.stopLocked(reg)
		}
	}
	r.mutex.Unlock()

	r.wg.Wait()
}

func (r *Registry) checkAvailable(feedURL string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.checkAvailableLocked(feedURL)
}

func (r *Registry) checkAvailableLocked(feedURL string) error {
	if r.destroyed {
		return ErrDestroyed
	}
	if _, ok := r.feeds[feedURL]; ok {
		return &DuplicateFeedError{URL: feedURL}
	}
	return nil
}

func (r *Registry) startLocked(feedURL string, interval time.Duration, listeners []listenerEntry, seed *RawFeed) {
	if interval <= 0 {
		interval = r.defaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	reg := &registration{
		url:       feedURL,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
		listeners: listeners,
		seen:      make(map[string]struct{}),
	}

	if seed != nil {
		if items, err := ParseItems(seed.Body); err == nil {
			reg.markSeen(items)
			reg.seeded = true
			reg.etag = seed.ETag
		} else {
			r.logger.Warn("unable to seed feed", "url", feedURL, "error", err)
		}
	}

	r.feeds[feedURL] = reg
	metrics.RegisteredFeeds.Set(float64(len(r.feeds)))

	r.wg.Add(1)
	go r.run(reg)
}

func (r *Registry) stopLocked(reg *registration) {
	reg.cancel()
	if r.feeds[reg.url] == reg {
		delete(r.feeds, reg.url)
	}
	metrics.RegisteredFeeds.Set(float64(len(r.feeds)))
}

// live reports whether reg is still the registration for its URL.
func (r *Registry) live(reg *registration) ([]listenerEntry, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.destroyed || r.feeds[reg.url] != reg {
		return nil, false
	}
	return append([]listenerEntry(nil), reg.listeners...), true
}

func (r *Registry) run(reg *registration) {
	defer r.wg.Done()

	ticker := time.NewTicker(reg.interval)
	defer ticker.Stop()

	for {
		select {
		case <-reg.ctx.Done():
			return
		case <-ticker.C:
			_, err := r.tick(reg.ctx, reg)
			if err != nil && !errors.Is(err, ErrPollInProgress) && reg.ctx.Err() == nil {
				r.logger.Warn("feed poll failed", "url", reg.url, "error", err)
			}
		}
	}
}

// tick fetches the feed once and emits items whose key has not been seen. Overlapping ticks on the same registration
// are rejected with ErrPollInProgress.
func (r *Registry) tick(ctx context.Context, reg *registration) (int, error) {
	if !reg.polling.CompareAndSwap(false, true) {
		metrics.FeedPolls.WithLabelValues("skipped").Inc()
		return 0, ErrPollInProgress
	}
	defer reg.polling.Store(false)

	raw, err := r.fetcher.Fetch(ctx, reg.url, reg.etag)
	if err != nil {
		metrics.FeedPolls.WithLabelValues("failure").Inc()
		return 0, err
	}
	if raw == nil {
		metrics.FeedPolls.WithLabelValues("unchanged").Inc()
		return 0, nil
	}

	items, err := ParseItems(raw.Body)
	if err != nil {
		metrics.FeedPolls.WithLabelValues("failure").Inc()
		return 0, &FeedParseError{URL: reg.url, Err: err}
	}
	metrics.FeedPolls.WithLabelValues("success").Inc()
	reg.etag = raw.ETag

	if !reg.seeded {
		reg.markSeen(items)
		reg.seeded = true
		r.logger.Debug("feed seeded", "url", reg.url, "items", len(items))
		return 0, nil
	}

	fresh := reg.unseen(items)
	if len(fresh) == 0 {
		return 0, nil
	}
	r.logger.Info("new feed items", "url", reg.url, "n", len(fresh))

	emitted := 0
	for _, item := range fresh {
		if ctx.Err() != nil {
			break
		}
		listeners, ok := r.live(reg)
		if !ok {
			break
		}
		for _, l := range listeners {
			l.fn(ctx, item)
		}
		reg.seen[item.Key()] = struct{}{}
		emitted++
		metrics.NewItems.Inc()
	}

	return emitted, nil
}

// unseen returns the items whose key is not known yet, in order and without repeated keys. Keys are recorded as each
// item is emitted so an interrupted tick leaves the rest for the next one.
func (reg *registration) unseen(items []Item) []Item {
	var fresh []Item
	batch := make(map[string]struct{})
	for _, item := range items {
		key := item.Key()
		if key == "" {
			continue
		}
		if _, ok := reg.seen[key]; ok {
			continue
		}
		if _, ok := batch[key]; ok {
			continue
		}
		batch[key] = struct{}{}
		fresh = append(fresh, item)
	}
	return fresh
}

// markSeen records the keys of items and returns the items that were not already known, in order.
func (reg *registration) markSeen(items []Item) []Item {
	var fresh []Item
	for _, item := range items {
		key := item.Key()
		if key == "" {
			continue
		}
		if _, ok := reg.seen[key]; ok {
			continue
		}
		reg.seen[key] = struct{}{}
		fresh = append(fresh, item)
	}
	return fresh
}
