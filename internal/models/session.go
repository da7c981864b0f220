package models

import "time"

// Session is a handle to one remote browser instance rented from the
// provider. A session is either in the pool's available queue or in its
// in-use set, never both.
type Session struct {
	ID         string    `json:"id"`         // Opaque identifier issued by the provider
	ConnectURL string    `json:"connectUrl"` // CDP websocket endpoint for this session
	CreatedAt  time.Time `json:"createdAt"`
	UseCount   int       `json:"useCount"` // Number of domain attempts this session has served
	Reused     bool      `json:"reused"`   // True when handed out from the available queue
}
