// Package fanout persists new feed items as articles and delivers them to the webhooks bound to their flux.
package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxhook/fluxhook/backend/data"
	"github.com/fluxhook/fluxhook/backend/feedmanager"
	"github.com/fluxhook/fluxhook/backend/metrics"
	"golang.org/x/sync/errgroup"
	log "gopkg.in/inconshreveable/log15.v2"
)

// Store is the subset of data.Store the dispatcher needs.
type Store interface {
	InsertArticle(ctx context.Context, row *data.Article) error
	SelectWebhooksByFluxID(ctx context.Context, fluxID int32) ([]data.Webhook, error)
	InsertDelivery(ctx context.Context, webhookID, articleID int32) (*data.Delivery, error)
}

// Sink delivers an article to a single webhook endpoint.
type Sink interface {
	Deliver(ctx context.Context, webhookURL string, article *data.Article) error
}

type Config struct {
	Store         Store
	Sink          Sink
	MaxConcurrent int
	Logger        log.Logger
}

type Dispatcher struct {
	store         Store
	sink          Sink
	maxConcurrent int
	logger        log.Logger
}

// Result is the outcome of delivering one article to one webhook.
type Result struct {
	WebhookID int32
	URL       string
	Err       error
}

// BatchResult collects the per-webhook results of one ingested article. Results are in the order the bound webhooks
// were returned by the store.
type BatchResult struct {
	Article data.Article
	Results []Result
}

// Failed returns the results that carry an error.
func (b *BatchResult) Failed() []Result {
	var failed []Result
	for _, r := range b.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

func NewDispatcher(config Config) *Dispatcher {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	if config.Logger == nil {
		config.Logger = log.New()
		config.Logger.SetHandler(log.DiscardHandler())
	}

	return &Dispatcher{
		store:         config.Store,
		sink:          config.Sink,
		maxConcurrent: config.MaxConcurrent,
		logger:        config.Logger.New("module", "fanout"),
	}
}

// Ingest stores item as an article of fluxID and delivers it to every webhook bound to fluxID at this moment. An error
// is returned only when the article cannot be stored or the bindings cannot be read; in that case nothing is
// delivered. Delivery failures are reported per webhook in the BatchResult.
func (d *Dispatcher) Ingest(ctx context.Context, fluxID int32, item feedmanager.Item) (*BatchResult, error) {
	article := &data.Article{
		Title:       item.Title,
		Description: data.NewText(item.Description),
		URL:         data.NewText(item.Link),
		SourceID:    fluxID,
	}
	if err := d.store.InsertArticle(ctx, article); err != nil {
		return nil, fmt.Errorf("insert article: %w", err)
	}
	metrics.ArticlesIngested.Inc()

	webhooks, err := d.store.SelectWebhooksByFluxID(ctx, fluxID)
	if err != nil {
		return nil, fmt.Errorf("select webhooks of flux %d: %w", fluxID, err)
	}

	batch := &BatchResult{Article: *article, Results: make([]Result, len(webhooks))}

	g := &errgroup.Group{}
	g.SetLimit(d.maxConcurrent)
	for i, webhook := range webhooks {
		i, webhook := i, webhook
		g.Go(func() error {
			batch.Results[i] = d.deliver(ctx, article, webhook)
			return nil
		})
	}
	g.Wait()

	return batch, nil
}

func (d *Dispatcher) deliver(ctx context.Context, article *data.Article, webhook data.Webhook) Result {
	result := Result{WebhookID: webhook.ID, URL: webhook.URL}

	if _, err := d.store.InsertDelivery(ctx, webhook.ID, article.ID); err != nil {
		result.Err = fmt.Errorf("record delivery: %w", err)
		metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
		return result
	}

	startTime := time.Now()
	err := d.sink.Deliver(ctx, webhook.URL, article)
	metrics.WebhookDeliveryDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		result.Err = err
		metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
		return result
	}

	metrics.WebhookDeliveries.WithLabelValues("success").Inc()
	return result
}

// Listener returns a feedmanager.Listener that ingests items for fluxID and logs the outcome.
func (d *Dispatcher) Listener(fluxID int32) feedmanager.Listener {
	return func(ctx context.Context, item feedmanager.Item) {
		batch, err := d.Ingest(ctx, fluxID, item)
		if err != nil {
			d.logger.Error("ingest failed", "flux_id", fluxID, "item", item.Key(), "error", err)
			return
		}

		for _, r := range batch.Failed() {
			d.logger.Warn("webhook delivery failed", "flux_id", fluxID, "article_id", batch.Article.ID, "webhook_id", r.WebhookID, "url", r.URL, "error", r.Err)
		}
		d.logger.Info("article ingested", "flux_id", fluxID, "article_id", batch.Article.ID, "webhooks", len(batch.Results), "failed", len(batch.Failed()))
	}
}
