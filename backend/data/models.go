package data

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Flux struct {
	ID  int32  `db:"id" json:"id"`
	URL string `db:"url" json:"url"`
}

type Webhook struct {
	ID  int32  `db:"id" json:"id"`
	URL string `db:"url" json:"url"`
}

type Binding struct {
	FluxID    int32 `db:"flux_id" json:"fluxId"`
	WebhookID int32 `db:"webhook_id" json:"webhookId"`
}

type Article struct {
	ID          int32       `db:"id" json:"id"`
	Title       string      `db:"title" json:"title"`
	Description pgtype.Text `db:"description" json:"description"`
	URL         pgtype.Text `db:"url" json:"url"`
	SourceID    int32       `db:"source_id" json:"sourceId"`
}

type Delivery struct {
	ContentID  int32 `db:"content_id" json:"contentId"`
	ReceiverID int32 `db:"receiver_id" json:"receiverId"`
}

// NewText returns a null pgtype.Text for the empty string.
func NewText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
