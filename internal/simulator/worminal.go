package simulator

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nema-ac/worminal/internal/models"
)

const messageHistoryLimit = 50

var (
	errNoPendingSession = errors.New("no pending session")
	errNotOwner         = errors.New("session reserved for another identity")
	errAlreadyClaimed   = errors.New("session already claimed")
)

// Worminal holds the simulator's authoritative session state: one
// session at a time, claimable while pending, ticking toward expiry
// while active.
type Worminal struct {
	duration time.Duration
	nemaName string

	mu        sync.Mutex
	session   *models.Session
	deadline  time.Time
	claimedBy string // username, for the spectator-facing label
	messages  []models.Message
	states    []string
}

// NewWorminal starts a pending session. ownerID reserves the claim for
// one identity; with openForAnyone set, any authenticated identity may
// claim.
func NewWorminal(ownerID string, openForAnyone bool, duration time.Duration, promptLimit int, nemaName string) *Worminal {
	return &Worminal{
		duration: duration,
		nemaName: nemaName,
		session: &models.Session{
			ID:            uuid.NewString(),
			Status:        models.SessionStatusPendingClaim,
			OwnerIdentity: ownerID,
			OpenForAnyone: openForAnyone,
			PromptsLimit:  promptLimit,
		},
		states: []string{"idle"},
	}
}

// Snapshot returns a copy of the session and the remaining time.
func (w *Worminal) Snapshot() (*models.Session, int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionCopyLocked(), w.remainingMSLocked()
}

func (w *Worminal) CanClaim(userID string) (bool, models.ClaimReason) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.session.Status == models.SessionStatusActive:
		return false, models.ClaimReasonAlreadyClaimed
	case w.session.Status != models.SessionStatusPendingClaim:
		return false, models.ClaimReasonNoPendingSession
	case !w.session.OpenForAnyone && w.session.OwnerIdentity != userID:
		return false, models.ClaimReasonNotOwner
	default:
		return true, ""
	}
}

// Claim resolves races under the lock: the first eligible caller wins,
// everyone after gets errAlreadyClaimed.
func (w *Worminal) Claim(userID, username string) (*models.Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.session.Status {
	case models.SessionStatusActive:
		return nil, errAlreadyClaimed
	case models.SessionStatusPendingClaim:
	default:
		return nil, errNoPendingSession
	}
	if !w.session.OpenForAnyone && w.session.OwnerIdentity != userID {
		return nil, errNotOwner
	}

	now := time.Now()
	w.session.Status = models.SessionStatusActive
	w.session.OwnerIdentity = userID
	w.session.ClaimedAt = &now
	w.deadline = now.Add(w.duration)
	w.claimedBy = username
	w.states = append(w.states, "active")

	return w.sessionCopyLocked(), nil
}

func (w *Worminal) HasAccess(userID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session.Status == models.SessionStatusActive && w.session.OwnerIdentity == userID
}

// RecordMessage appends a chat message to the mirror; messages from the
// session holder consume prompts while the session is active.
func (w *Worminal) RecordMessage(msg models.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.messages = append(w.messages, msg)
	if len(w.messages) > messageHistoryLimit {
		w.messages = w.messages[len(w.messages)-messageHistoryLimit:]
	}

	if w.session.Status == models.SessionStatusActive &&
		msg.UserID == w.session.OwnerIdentity &&
		w.session.PromptsUsed < w.session.PromptsLimit {
		w.session.PromptsUsed++
	}
}

// ExpireIfDue flips an active session past its deadline to expired.
// Returns true on the transition.
func (w *Worminal) ExpireIfDue() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.session.Status != models.SessionStatusActive || time.Now().Before(w.deadline) {
		return false
	}
	w.session.Status = models.SessionStatusExpired
	w.states = append(w.states, "expired")
	return true
}

// PublicState builds the spectator snapshot. Time remaining is reported
// in seconds on this surface.
func (w *Worminal) PublicState() *models.PublicSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	messages := make([]models.Message, len(w.messages))
	copy(messages, w.messages)
	states := make([]string, len(w.states))
	copy(states, w.states)

	return &models.PublicSnapshot{
		User: w.claimedBy,
		Nema: models.NemaState{
			Name:     w.nemaName,
			Messages: messages,
			States:   states,
		},
		Status:        w.session.Status,
		TimeRemaining: w.remainingMSLocked() / 1000,
	}
}

func (w *Worminal) sessionCopyLocked() *models.Session {
	cp := *w.session
	if w.session.ClaimedAt != nil {
		at := *w.session.ClaimedAt
		cp.ClaimedAt = &at
	}
	return &cp
}

func (w *Worminal) remainingMSLocked() int64 {
	if w.session.Status != models.SessionStatusActive {
		return 0
	}
	ms := time.Until(w.deadline).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
