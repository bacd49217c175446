package data

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxrecord"
)

const selectFluxSQL = `select "id", "url" from "flux"`

func InsertFlux(ctx context.Context, db pgxrecord.DB, url string) (*Flux, error) {
	row, err := pgxrecord.InsertRowReturning(ctx, db, pgx.Identifier{"flux"}, map[string]any{"url": url}, `"id", "url"`, pgx.RowToAddrOfStructByName[Flux])
	if err != nil {
		return nil, translatePgError(err)
	}

	return row, nil
}

func SelectAllFlux(ctx context.Context, db pgxrecord.DB) ([]Flux, error) {
	rows, _ := db.Query(ctx, selectFluxSQL+` order by "id"`)
	return pgx.CollectRows(rows, pgx.RowToStructByName[Flux])
}

func SelectFluxByPK(ctx context.Context, db pgxrecord.DB, id int32) (*Flux, error) {
	rows, _ := db.Query(ctx, selectFluxSQL+` where "id"=$1`, id)
	row, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Flux])
	if err != nil {
		return nil, translatePgError(err)
	}

	return row, nil
}

func UpdateFluxURL(ctx context.Context, db pgxrecord.DB, id int32, url string) (*Flux, error) {
	row := &Flux{}
	err := db.QueryRow(ctx, `update "flux" set "url"=$1 where "id"=$2 returning "id", "url"`, url, id).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translatePgError(err)
	}

	return row, nil
}

// DeleteFlux relies on the on delete cascade foreign keys of bindings, articles and deliveries.
func DeleteFlux(ctx context.Context, db pgxrecord.DB, id int32) (*Flux, error) {
	row := &Flux{}
	err := db.QueryRow(ctx, `delete from "flux" where "id"=$1 returning "id", "url"`, id).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translatePgError(err)
	}

	return row, nil
}

func SelectFluxByWebhookID(ctx context.Context, db pgxrecord.DB, webhookID int32) ([]Flux, error) {
	rows, _ := db.Query(ctx, `select "flux"."id", "flux"."url"
from "flux"
  join "bindings" on "flux"."id"="bindings"."flux_id"
where "bindings"."webhook_id"=$1
order by "flux"."id"`, webhookID)
	return pgx.CollectRows(rows, pgx.RowToStructByName[Flux])
}
