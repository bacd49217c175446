package data

import (
	"context"

	"github.com/jackc/pgxrecord"
)

func InsertDelivery(ctx context.Context, db pgxrecord.DB, webhookID, articleID int32) (*Delivery, error) {
	_, err := db.Exec(ctx, `insert into "deliveries"("content_id", "receiver_id") values($1, $2)`, articleID, webhookID)
	if err != nil {
		return nil, translatePgError(err)
	}

	return &Delivery{ContentID: articleID, ReceiverID: webhookID}, nil
}

func DeleteDelivery(ctx context.Context, db pgxrecord.DB, webhookID, articleID int32) (*Delivery, error) {
	_, err := pgxrecord.ExecRow(ctx, db, `delete from "deliveries" where "content_id"=$1 and "receiver_id"=$2`, articleID, webhookID)
	if err != nil {
		return nil, translatePgError(err)
	}

	return &Delivery{ContentID: articleID, ReceiverID: webhookID}, nil
}

func DeleteDeliveriesByArticleID(ctx context.Context, db pgxrecord.DB, articleID int32) (int64, error) {
	commandTag, err := db.Exec(ctx, `delete from "deliveries" where "content_id"=$1`, articleID)
	if err != nil {
		return 0, translatePgError(err)
	}

	return commandTag.RowsAffected(), nil
}

func DeleteDeliveriesByWebhookID(ctx context.Context, db pgxrecord.DB, webhookID int32) (int64, error) {
	commandTag, err := db.Exec(ctx, `delete from "deliveries" where "receiver_id"=$1`, webhookID)
	if err != nil {
		return 0, translatePgError(err)
	}

	return commandTag.RowsAffected(), nil
}
