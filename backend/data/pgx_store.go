package data

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxStore is the PostgreSQL Store.
type PgxStore struct {
	pool *pgxpool.Pool
}

func NewPgxStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{pool: pool}
}

var constraintFields = map[string]string{
	"flux_url_unq":                "url",
	"webhooks_url_unq":            "url",
	"bindings_pkey":               "binding",
	"deliveries_pkey":             "delivery",
	"bindings_flux_id_fkey":       "fluxId",
	"bindings_webhook_id_fkey":    "webhookId",
	"articles_source_id_fkey":     "sourceId",
	"deliveries_content_id_fkey":  "contentId",
	"deliveries_receiver_id_fkey": "receiverId",
}

func translatePgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		field, ok := constraintFields[pgErr.ConstraintName]
		if !ok {
			field = pgErr.ConstraintName
		}

		switch pgErr.Code {
		case "23505":
			return DuplicationError{Field: field}
		case "23503":
			return ReferenceError{Field: field}
		}
	}

	return err
}

func (s *PgxStore) InsertFlux(ctx context.Context, url string) (*Flux, error) {
	return InsertFlux(ctx, s.pool, url)
}

func (s *PgxStore) SelectAllFlux(ctx context.Context) ([]Flux, error) {
	return SelectAllFlux(ctx, s.pool)
}

func (s *PgxStore) SelectFluxByPK(ctx context.Context, id int32) (*Flux, error) {
	return SelectFluxByPK(ctx, s.pool, id)
}

func (s *PgxStore) UpdateFluxURL(ctx context.Context, id int32, url string) (*Flux, error) {
	return UpdateFluxURL(ctx, s.pool, id, url)
}

func (s *PgxStore) DeleteFlux(ctx context.Context, id int32) (*Flux, error) {
	return DeleteFlux(ctx, s.pool, id)
}

func (s *PgxStore) InsertWebhook(ctx context.Context, url string) (*Webhook, error) {
	return InsertWebhook(ctx, s.pool, url)
}

func (s *PgxStore) SelectAllWebhooks(ctx context.Context) ([]Webhook, error) {
	return SelectAllWebhooks(ctx, s.pool)
}

func (s *PgxStore) SelectWebhookByPK(ctx context.Context, id int32) (*Webhook, error) {
	return SelectWebhookByPK(ctx, s.pool, id)
}

func (s *PgxStore) UpdateWebhookURL(ctx context.Context, id int32, url string) (*Webhook, error) {
	return UpdateWebhookURL(ctx, s.pool, id, url)
}

func (s *PgxStore) DeleteWebhook(ctx context.Context, id int32) (*Webhook, error) {
	return DeleteWebhook(ctx, s.pool, id)
}

func (s *PgxStore) InsertBinding(ctx context.Context, fluxID, webhookID int32) (*Binding, error) {
	return InsertBinding(ctx, s.pool, fluxID, webhookID)
}

func (s *PgxStore) DeleteBinding(ctx context.Context, fluxID, webhookID int32) (*Binding, error) {
	return DeleteBinding(ctx, s.pool, fluxID, webhookID)
}

func (s *PgxStore) SelectWebhooksByFluxID(ctx context.Context, fluxID int32) ([]Webhook, error) {
	return SelectWebhooksByFluxID(ctx, s.pool, fluxID)
}

func (s *PgxStore) SelectFluxByWebhookID(ctx context.Context, webhookID int32) ([]Flux, error) {
	return SelectFluxByWebhookID(ctx, s.pool, webhookID)
}

func (s *PgxStore) InsertArticle(ctx context.Context, row *Article) error {
	return InsertArticle(ctx, s.pool, row)
}

func (s *PgxStore) SelectAllArticles(ctx context.Context) ([]Article, error) {
	return SelectAllArticles(ctx, s.pool)
}

func (s *PgxStore) SelectArticlesByFluxID(ctx context.Context, fluxID int32) ([]Article, error) {
	return SelectArticlesByFluxID(ctx, s.pool, fluxID)
}

func (s *PgxStore) DeleteArticlesByFluxID(ctx context.Context, fluxID int32) (int64, error) {
	return DeleteArticlesByFluxID(ctx, s.pool, fluxID)
}

func (s *PgxStore) InsertDelivery(ctx context.Context, webhookID, articleID int32) (*Delivery, error) {
	return InsertDelivery(ctx, s.pool, webhookID, articleID)
}

func (s *PgxStore) DeleteDelivery(ctx context.Context, webhookID, articleID int32) (*Delivery, error) {
	return DeleteDelivery(ctx, s.pool, webhookID, articleID)
}

func (s *PgxStore) DeleteDeliveriesByArticleID(ctx context.Context, articleID int32) (int64, error) {
	return DeleteDeliveriesByArticleID(ctx, s.pool, articleID)
}

func (s *PgxStore) DeleteDeliveriesByWebhookID(ctx context.Context, webhookID int32) (int64, error) {
	return DeleteDeliveriesByWebhookID(ctx, s.pool, webhookID)
}

func (s *PgxStore) SelectWebhooksByArticleID(ctx context.Context, articleID int32) ([]Webhook, error) {
	return SelectWebhooksByArticleID(ctx, s.pool, articleID)
}

func (s *PgxStore) SelectArticlesByWebhookID(ctx context.Context, webhookID int32) ([]Article, error) {
	return SelectArticlesByWebhookID(ctx, s.pool, webhookID)
}

func (s *PgxStore) Migrate(ctx context.Context) error {
	return MigratePgx(ctx, s.pool)
}

func (s *PgxStore) Close() error {
	s.pool.Close()
	return nil
}
