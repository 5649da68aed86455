package pending

import (
	"encoding/json"
	"time"
)

const DefaultTTL = time.Hour

// PendingOrder holds the order payload captured at checkout until the
// payment webhook confirms it or the entry expires.
type PendingOrder struct {
	CheckoutSessionID string          `json:"checkout_session_id" db:"checkout_session_id"`
	Payload           json.RawMessage `json:"payload" db:"payload"`
	ExpiresAt         time.Time       `json:"expires_at" db:"expires_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// Expired reports whether now is strictly after ExpiresAt.
func (p *PendingOrder) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
