package models

import "time"

type SessionStatus string

const (
	SessionStatusIdle         SessionStatus = "idle"
	SessionStatusPendingClaim SessionStatus = "pending_claim"
	SessionStatusActive       SessionStatus = "active"
	SessionStatusExpired      SessionStatus = "expired"
)

// Session is the authoritative lifecycle record of the Worminal.
// It is owned by the coordination core and replaced wholesale on every
// committed snapshot; nothing outside the core mutates it.
type Session struct {
	ID            string        `json:"id"`
	Status        SessionStatus `json:"status"`
	OwnerIdentity string        `json:"owner_identity"`
	OpenForAnyone bool          `json:"open_for_anyone"`
	ClaimedAt     *time.Time    `json:"claimed_at,omitempty"`
	PromptsUsed   int           `json:"prompts_used"`
	PromptsLimit  int           `json:"prompts_limit"`
}

// SessionSnapshot pairs a session with the server-reported time until
// expiry at the moment the snapshot was taken.
type SessionSnapshot struct {
	Session         *Session
	TimeRemainingMS int64
}
