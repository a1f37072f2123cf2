package access

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nema-ac/worminal/internal/logger"
	"github.com/nema-ac/worminal/internal/models"
)

type claimAPI interface {
	CanClaim(ctx context.Context) (models.ClaimEligibility, error)
	Claim(ctx context.Context) (*models.Session, error)
}

// CheckEligibility is the local claim heuristic. It is advisory only:
// a positive result still requires the authoritative can-claim call,
// because the server is the sole arbiter of races between identities.
func CheckEligibility(session *models.Session, ident models.Identity) models.ClaimEligibility {
	if session == nil || session.Status != models.SessionStatusPendingClaim {
		return models.ClaimEligibility{Reason: models.ClaimReasonNoPendingSession}
	}
	if session.ClaimedAt != nil {
		return models.ClaimEligibility{Reason: models.ClaimReasonAlreadyClaimed}
	}
	if !ident.Authenticated {
		return models.ClaimEligibility{Reason: models.ClaimReasonNotOwner}
	}
	if !session.OpenForAnyone && session.OwnerIdentity != ident.UserID {
		return models.ClaimEligibility{Reason: models.ClaimReasonNotOwner}
	}
	return models.ClaimEligibility{CanClaim: true}
}

// ClaimCoordinator evaluates claim eligibility and executes claim
// attempts. The in-flight guard is owned state on the instance, reset
// on teardown, never a package-level flag.
type ClaimCoordinator struct {
	api claimAPI
	log *logrus.Entry

	mu          sync.Mutex
	inFlight    bool
	eligibility models.ClaimEligibility
}

func NewClaimCoordinator(api claimAPI) *ClaimCoordinator {
	return &ClaimCoordinator{
		api: api,
		log: logger.For("claim"),
		eligibility: models.ClaimEligibility{
			Reason: models.ClaimReasonNoPendingSession,
		},
	}
}

// RefreshEligibility recomputes eligibility for the given session and
// identity. When the local heuristic passes, the authoritative
// can-claim call decides; a failed call yields a negative result with
// reason error rather than propagating.
func (c *ClaimCoordinator) RefreshEligibility(ctx context.Context, session *models.Session, ident models.Identity) models.ClaimEligibility {
	elig := CheckEligibility(session, ident)
	if elig.CanClaim {
		server, err := c.api.CanClaim(ctx)
		if err != nil {
			c.log.WithError(err).Warn("can-claim check failed")
			elig = models.ClaimEligibility{Reason: models.ClaimReasonError}
		} else {
			elig = server
		}
	}

	c.mu.Lock()
	c.eligibility = elig
	c.mu.Unlock()
	return elig
}

func (c *ClaimCoordinator) Eligibility() models.ClaimEligibility {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eligibility
}

// Claim executes a claim attempt. Only callable with a positive
// eligibility result; concurrent calls while one is in flight are
// rejected synchronously. Local session state is never mutated here:
// the caller's follow-up refresh is the sole source of truth.
func (c *ClaimCoordinator) Claim(ctx context.Context) (*models.Session, error) {
	c.mu.Lock()
	if !c.eligibility.CanClaim {
		c.mu.Unlock()
		return nil, models.ErrClaimNotAllowed
	}
	if c.inFlight {
		c.mu.Unlock()
		return nil, models.ErrClaimInFlight
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	session, err := c.api.Claim(ctx)
	if err != nil {
		c.log.WithError(err).Warn("claim failed")
		return nil, err
	}
	c.log.Info("claim succeeded")
	return session, nil
}

// Reset clears the in-flight guard and eligibility, for coordinator
// teardown.
func (c *ClaimCoordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	c.eligibility = models.ClaimEligibility{Reason: models.ClaimReasonNoPendingSession}
}
