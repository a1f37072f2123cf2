package access

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nema-ac/worminal/internal/logger"
	"github.com/nema-ac/worminal/internal/models"
)

type coordinatorAPI interface {
	sessionFetcher
	claimAPI
	publicFetcher
	CheckAccess(ctx context.Context) (bool, error)
}

// IdentityProvider is the auth collaborator: it supplies the local
// identity and notifies when it changes.
type IdentityProvider interface {
	Identity() models.Identity
	OnChange(fn func(models.Identity))
}

// Realtime is the slice of the transport the coordinator drives:
// lifecycle frames trigger resyncs, identity changes trigger a
// disconnect-then-reconnect cycle.
type Realtime interface {
	Connect()
	Disconnect()
	OnLifecycle(fn func(event string))
}

type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	SettleDelay    time.Duration
}

// Coordinator merges the independently timed inputs - poll snapshots,
// countdown ticks, lifecycle frames, claim attempts, identity changes -
// into one consistent view. It owns the session snapshot; every input
// change commits under its lock and the view is recomputed atomically
// from the committed inputs.
type Coordinator struct {
	cfg Config
	api coordinatorAPI
	ids IdentityProvider
	rt  Realtime
	log *logrus.Entry

	poller    *SessionPoller
	claims    *ClaimCoordinator
	feed      *PublicFeedPoller
	countdown *Countdown

	onViewChange func(models.AccessView)

	mu           sync.Mutex
	snapshot     *models.SessionSnapshot
	lastErr      error
	serverAccess bool
	view         models.AccessView
	feedActive   bool
	started      bool
	closed       bool
}

func NewCoordinator(cfg Config, api coordinatorAPI, ids IdentityProvider, rt Realtime) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}

	c := &Coordinator{
		cfg: cfg,
		api: api,
		ids: ids,
		rt:  rt,
		log: logger.For("coordinator"),
	}
	c.poller = NewSessionPoller(api, cfg.PollInterval, cfg.RequestTimeout, c.applySnapshot)
	c.claims = NewClaimCoordinator(api)
	c.feed = NewPublicFeedPoller(api, cfg.PollInterval, cfg.RequestTimeout, nil)
	c.countdown = NewCountdown(c.poller.Refresh)

	rt.OnLifecycle(func(event string) {
		c.log.WithField("event", event).Info("session lifecycle frame")
		c.poller.Refresh()
	})
	ids.OnChange(c.handleIdentityChange)

	return c
}

// OnViewChange registers the view listener. Set before Start.
func (c *Coordinator) OnViewChange(fn func(models.AccessView)) {
	c.onViewChange = fn
}

func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.countdown.Start()
	c.rt.Connect()
	c.poller.Start()
}

// Close tears down all intervals, the feed and the transport. The
// claim in-flight guard is reset with the instance.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.poller.Stop()
	c.countdown.Stop()
	c.feed.Deactivate()
	c.rt.Disconnect()
	c.claims.Reset()
}

// Claim attempts to take the pending session. Success and failure both
// trigger an immediate refresh so the next view reflects the
// authoritative outcome; local session state is never touched here.
func (c *Coordinator) Claim(ctx context.Context) (*models.Session, error) {
	session, err := c.claims.Claim(ctx)
	c.poller.Refresh()
	return session, err
}

// Refresh forces an immediate session resync.
func (c *Coordinator) Refresh() {
	c.poller.Refresh()
}

func (c *Coordinator) View() models.AccessView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *Coordinator) Session() *models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil
	}
	return c.snapshot.Session
}

// TimeRemaining returns the locally ticking countdown in milliseconds.
func (c *Coordinator) TimeRemaining() int64 {
	return c.countdown.Remaining()
}

// LastErr returns the most recent poll failure, nil after a successful
// poll. A failed tick never halts the schedule.
func (c *Coordinator) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Coordinator) Eligibility() models.ClaimEligibility {
	return c.claims.Eligibility()
}

// PublicFeed exposes the spectator mirror; its snapshot is nil unless
// the view says the public view should be shown.
func (c *Coordinator) PublicFeed() *PublicFeedPoller {
	return c.feed
}

// applySnapshot commits a poll result. Called in request-issue order by
// the poller's sequence gate; a fetch error retains the previous
// snapshot and only surfaces the error.
func (c *Coordinator) applySnapshot(snap *models.SessionSnapshot, err error) {
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.snapshot = snap
	c.lastErr = nil
	c.mu.Unlock()

	c.countdown.Reset(snap.TimeRemainingMS)

	ident := c.ids.Identity()
	session := snap.Session

	// The authoritative access sub-check: owning identity comparison is
	// not enough, the session can be reassigned under a stale snapshot.
	serverAccess := false
	if session != nil && session.Status == models.SessionStatusActive && ident.Authenticated {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		ok, aerr := c.api.CheckAccess(ctx)
		cancel()
		if aerr != nil {
			c.log.WithError(aerr).Warn("access check failed")
		} else {
			serverAccess = ok
		}
	}
	c.mu.Lock()
	c.serverAccess = serverAccess
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	c.claims.RefreshEligibility(ctx, session, ident)
	cancel()

	c.recompute()
}

func (c *Coordinator) handleIdentityChange(ident models.Identity) {
	c.mu.Lock()
	running := c.started && !c.closed
	c.mu.Unlock()
	if !running {
		return
	}

	c.log.WithField("authenticated", ident.Authenticated).Info("identity changed")

	// Reconnect the socket with the new credentials, after a short
	// settling delay so cookie/token propagation completes first.
	go func() {
		c.rt.Disconnect()
		time.Sleep(c.cfg.SettleDelay)
		c.rt.Connect()
	}()

	c.poller.Refresh()
	c.recompute()
}

// recompute derives the view from one consistent set of committed
// inputs and reconciles feed activation with the result.
func (c *Coordinator) recompute() {
	ident := c.ids.Identity()
	elig := c.claims.Eligibility()

	c.mu.Lock()
	var session *models.Session
	if c.snapshot != nil {
		session = c.snapshot.Session
	}
	view := Project(ProjectorInputs{
		Session:      session,
		Identity:     ident,
		Eligibility:  elig,
		ServerAccess: c.serverAccess,
	})
	changed := view != c.view
	c.view = view
	wantFeed := view.ShouldShowPublicView
	feedChanged := wantFeed != c.feedActive
	c.feedActive = wantFeed
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	if feedChanged {
		if wantFeed {
			c.feed.Activate()
		} else {
			c.feed.Deactivate()
		}
	}
	if changed && c.onViewChange != nil {
		c.onViewChange(view)
	}
}
