package domain

import "time"

// User is an office worker tracked by the parking policy.
// DisplayName is unique and serves as the external key the HTTP API accepts.
type User struct {
	ID          string
	DisplayName string
	ChatHandle  string // messaging handle used for channel mentions
	ChatID      *int64 // direct-message chat id, nil until linked
	TotalSaved  int    // cumulative units saved, incremented on repark only
	CreatedAt   time.Time
}
