package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Notification is a fire-and-forget message addressed to a user, optionally
// referencing an auction. Immutable after creation apart from the read flag;
// it deliberately does not cascade with the auction it references.
type Notification struct {
	bun.BaseModel `bun:"table:notifications"`

	ID        int64  `bun:",pk,autoincrement"`
	UserID    int64  `bun:"user_id,notnull"`
	AuctionID *int64 `bun:"auction_id"`

	Title string `bun:"title,notnull"`
	Text  string `bun:"text,notnull"`

	IsRead bool `bun:"is_read,notnull,default:false"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
