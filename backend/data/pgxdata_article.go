package data

import (
	"context"
	"strings"

	"github.com/jackc/pgsql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxrecord"
	"github.com/jackc/pgxutil"
)

const selectArticleSQL = `select "id", "title", "description", "url", "source_id" from "articles"`

func InsertArticle(ctx context.Context, db pgxrecord.DB, row *Article) error {
	args := pgsql.Args{}

	var columns, values []string

	columns = append(columns, `title`)
	values = append(values, args.Use(&row.Title).String())
	columns = append(columns, `description`)
	values = append(values, args.Use(&row.Description).String())
	columns = append(columns, `url`)
	values = append(values, args.Use(&row.URL).String())
	columns = append(columns, `source_id`)
	values = append(values, args.Use(&row.SourceID).String())

	sql := `insert into "articles"(` + strings.Join(columns, ", ") + `)
values(` + strings.Join(values, ",") + `)
returning "id"
  `

	id, err := pgxutil.SelectValue[int32](ctx, db, sql, args.Values()...)
	if err != nil {
		return translatePgError(err)
	}
	row.ID = id

	return nil
}

func SelectAllArticles(ctx context.Context, db pgxrecord.DB) ([]Article, error) {
	rows, _ := db.Query(ctx, selectArticleSQL+` order by "id"`)
	return pgx.CollectRows(rows, pgx.RowToStructByName[Article])
}

func SelectArticlesByFluxID(ctx context.Context, db pgxrecord.DB, fluxID int32) ([]Article, error) {
	rows, _ := db.Query(ctx, selectArticleSQL+` where "source_id"=$1 order by "id"`, fluxID)
	return pgx.CollectRows(rows, pgx.RowToStructByName[Article])
}

func SelectArticlesByWebhookID(ctx context.Context, db pgxrecord.DB, webhookID int32) ([]Article, error) {
	rows, _ := db.Query(ctx, `select "articles"."id", "articles"."title", "articles"."description", "articles"."url", "articles"."source_id"
from "articles"
  join "deliveries" on "articles"."id"="deliveries"."content_id"
where "deliveries"."receiver_id"=$1
order by "articles"."id"`, webhookID)
	return pgx.CollectRows(rows, pgx.RowToStructByName[Article])
}

func DeleteArticlesByFluxID(ctx context.Context, db pgxrecord.DB, fluxID int32) (int64, error) {
	commandTag, err := db.Exec(ctx, `delete from "articles" where "source_id"=$1`, fluxID)
	if err != nil {
		return 0, translatePgError(err)
	}

	return commandTag.RowsAffected(), nil
}
