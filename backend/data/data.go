// Package data persists flux, webhooks, bindings, articles and deliveries.
//
// Three Store implementations share one contract: PgxStore (PostgreSQL), SQLiteStore and
// MemoryStore. Constraint violations are reported the same way by all of them so callers
// never need to know which backend is in use.
package data

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// DuplicationError is returned when a row would violate a uniqueness constraint.
type DuplicationError struct {
	Field string // Field or fields that caused the rejection
}

func (e DuplicationError) Error() string {
	return fmt.Sprintf("%s is already taken", e.Field)
}

// ReferenceError is returned when a row references a flux, webhook or article that does not exist.
type ReferenceError struct {
	Field string
}

func (e ReferenceError) Error() string {
	return fmt.Sprintf("%s references a missing row", e.Field)
}

type Store interface {
	InsertFlux(ctx context.Context, url string) (*Flux, error)
	SelectAllFlux(ctx context.Context) ([]Flux, error)
	SelectFluxByPK(ctx context.Context, id int32) (*Flux, error)
	UpdateFluxURL(ctx context.Context, id int32, url string) (*Flux, error)
	// DeleteFlux removes the flux with its bindings, articles and their deliveries.
	DeleteFlux(ctx context.Context, id int32) (*Flux, error)

	InsertWebhook(ctx context.Context, url string) (*Webhook, error)
	SelectAllWebhooks(ctx context.Context) ([]Webhook, error)
	SelectWebhookByPK(ctx context.Context, id int32) (*Webhook, error)
	UpdateWebhookURL(ctx context.Context, id int32, url string) (*Webhook, error)
	// DeleteWebhook removes the webhook with its bindings and deliveries.
	DeleteWebhook(ctx context.Context, id int32) (*Webhook, error)

	InsertBinding(ctx context.Context, fluxID, webhookID int32) (*Binding, error)
	DeleteBinding(ctx context.Context, fluxID, webhookID int32) (*Binding, error)
	SelectWebhooksByFluxID(ctx context.Context, fluxID int32) ([]Webhook, error)
	SelectFluxByWebhookID(ctx context.Context, webhookID int32) ([]Flux, error)

	InsertArticle(ctx context.Context, row *Article) error
	SelectAllArticles(ctx context.Context) ([]Article, error)
	SelectArticlesByFluxID(ctx context.Context, fluxID int32) ([]Article, error)
	DeleteArticlesByFluxID(ctx context.Context, fluxID int32) (int64, error)

	InsertDelivery(ctx context.Context, webhookID, articleID int32) (*Delivery, error)
	DeleteDelivery(ctx context.Context, webhookID, articleID int32) (*Delivery, error)
	DeleteDeliveriesByArticleID(ctx context.Context, articleID int32) (int64, error)
	DeleteDeliveriesByWebhookID(ctx context.Context, webhookID int32) (int64, error)
	SelectWebhooksByArticleID(ctx context.Context, articleID int32) ([]Webhook, error)
	SelectArticlesByWebhookID(ctx context.Context, webhookID int32) ([]Article, error)

	Migrate(ctx context.Context) error
	Close() error
}
