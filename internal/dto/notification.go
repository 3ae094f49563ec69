package dto

import "time"

// NotificationResponse is a notification as exposed via transport layers.
type NotificationResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	AuctionID *int64    `json:"auction_id,omitempty"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// MarkReadRequest marks one notification, or all of the caller's unread
// notifications, as read.
type MarkReadRequest struct {
	ID      int64 `json:"id,omitempty"`
	AllRead bool  `json:"all_read,omitempty"`
}
