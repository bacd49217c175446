package data

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxrecord"
)

const selectWebhookSQL = `select "id", "url" from "webhooks"`

func InsertWebhook(ctx context.Context, db pgxrecord.DB, url string) (*Webhook, error) {
	row, err := pgxrecord.InsertRowReturning(ctx, db, pgx.Identifier{"webhooks"}, map[string]any{"url": url}, `"id", "url"`, pgx.RowToAddrOfStructByName[Webhook])
	if err != nil {
		return nil, translatePgError(err)
	}

	return row, nil
}

func SelectAllWebhooks(ctx context.Context, db pgxrecord.DB) ([]Webhook, error) {
	rows, _ := db.Query(ctx, selectWebhookSQL+` order by "id"`)
	return pgx.CollectRows(rows, pgx.RowToStructByName[Webhook])
}

func SelectWebhookByPK(ctx context.Context, db pgxrecord.DB, id int32) (*Webhook, error) {
	rows, _ := db.Query(ctx, selectWebhookSQL+` where "id"=$1`, id)
	row, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Webhook])
	if err != nil {
		return nil, translatePgError(err)
	}

	return row, nil
}

func UpdateWebhookURL(ctx context.Context, db pgxrecord.DB, id int32, url string) (*Webhook, error) {
	row := &Webhook{}
	err := db.QueryRow(ctx, `update "webhooks" set "url"=$1 where "id"=$2 returning "id", "url"`, url, id).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translatePgError(err)
	}

	return row, nil
}

func DeleteWebhook(ctx context.Context, db pgxrecord.DB, id int32) (*Webhook, error) {
	row := &Webhook{}
	err := db.QueryRow(ctx, `delete from "webhooks" where "id"=$1 returning "id", "url"`, id).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translatePgError(err)
	}

	return row, nil
}

// SelectWebhooksByFluxID returns the webhooks currently bound to a flux.
func SelectWebhooksByFluxID(ctx context.Context, db pgxrecord.DB, fluxID int32) ([]Webhook, error) {
	rows, _ := db.Query(ctx, `select "webhooks"."id", "webhooks"."url"
from "webhooks"
  join "bindings" on "webhooks"."id"="bindings"."webhook_id"
where "bindings"."flux_id"=$1
order by "webhooks"."id"`, fluxID)
	return pgx.CollectRows(rows, pgx.RowToStructByName[Webhook])
}

func SelectWebhooksByArticleID(ctx context.Context, db pgxrecord.DB, articleID int32) ([]Webhook, error) {
	rows, _ := db.Query(ctx, `select "webhooks"."id", "webhooks"."url"
from "webhooks"
  join "deliveries" on "webhooks"."id"="deliveries"."receiver_id"
where "deliveries"."content_id"=$1
order by "webhooks"."id"`, articleID)
	return pgx.CollectRows(rows, pgx.RowToStructByName[Webhook])
}
