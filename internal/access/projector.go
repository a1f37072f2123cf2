package access

import "github.com/nema-ac/worminal/internal/models"

// ProjectorInputs is one consistent snapshot of everything the view
// derivation reads. The caller assembles it atomically so the three
// flags are never computed from interleaved partial updates.
type ProjectorInputs struct {
	Session      *models.Session
	Identity     models.Identity
	Eligibility  models.ClaimEligibility
	ServerAccess bool
}

// Project derives the three-way UI partition: own the session, can
// claim it, or spectate. At most one flag is true; all are false when
// no session exists.
func Project(in ProjectorInputs) models.AccessView {
	var view models.AccessView
	if in.Session == nil {
		return view
	}

	view.HasAccess = in.Identity.Authenticated &&
		in.Session.Status == models.SessionStatusActive &&
		in.ServerAccess

	view.NeedsToClaim = in.Identity.Authenticated &&
		in.Session.Status == models.SessionStatusPendingClaim &&
		in.Eligibility.CanClaim &&
		in.Session.ClaimedAt == nil

	view.ShouldShowPublicView = in.Session.OwnerIdentity != "" &&
		!view.HasAccess &&
		!view.NeedsToClaim &&
		!in.Eligibility.CanClaim

	return view
}
