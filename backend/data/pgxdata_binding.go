package data

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxrecord"
)

func InsertBinding(ctx context.Context, db pgxrecord.DB, fluxID, webhookID int32) (*Binding, error) {
	row, err := pgxrecord.InsertRowReturning(ctx, db, pgx.Identifier{"bindings"},
		map[string]any{"flux_id": fluxID, "webhook_id": webhookID},
		`"flux_id", "webhook_id"`,
		pgx.RowToAddrOfStructByName[Binding],
	)
	if err != nil {
		return nil, translatePgError(err)
	}

	return row, nil
}

func DeleteBinding(ctx context.Context, db pgxrecord.DB, fluxID, webhookID int32) (*Binding, error) {
	row := &Binding{}
	err := db.QueryRow(ctx,
		`delete from "bindings" where "flux_id"=$1 and "webhook_id"=$2 returning "flux_id", "webhook_id"`,
		fluxID, webhookID,
	).Scan(&row.FluxID, &row.WebhookID)
	if err != nil {
		return nil, translatePgError(err)
	}

	return row, nil
}
