package models

type ClaimReason string

const (
	ClaimReasonNoPendingSession ClaimReason = "no_pending_session"
	ClaimReasonNotOwner         ClaimReason = "not_owner"
	ClaimReasonAlreadyClaimed   ClaimReason = "already_claimed"
	ClaimReasonError            ClaimReason = "error"
)

// ClaimEligibility is derived from the current session and identity,
// never persisted. The zero value means "cannot claim, no reason known".
type ClaimEligibility struct {
	CanClaim bool        `json:"can_claim"`
	Reason   ClaimReason `json:"reason,omitempty"`
}

// AccessView is a pure projection of the current session, identity and
// eligibility. At most one flag is true at a time; all three are false
// when no session exists.
type AccessView struct {
	HasAccess            bool
	NeedsToClaim         bool
	ShouldShowPublicView bool
}

// Identity is what the auth collaborator supplies about the local user.
type Identity struct {
	Authenticated bool
	UserID        string
	Username      string
}
