package access

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nema-ac/worminal/internal/logger"
	"github.com/nema-ac/worminal/internal/models"
)

type publicFetcher interface {
	GetPublicState(ctx context.Context) (*models.PublicSnapshot, error)
}

// PublicFeedPoller mirrors the session for spectators. It is active
// only while the projected view says the local identity should see the
// public view; deactivation clears the held snapshot immediately so
// stale spectator data is never served once the identity gains direct
// access. It owns its own countdown, seeded from the snapshot's
// remaining time (reported in seconds, converted here).
type PublicFeedPoller struct {
	api      publicFetcher
	interval time.Duration
	timeout  time.Duration
	onUpdate func()
	log      *logrus.Entry

	gate      seqGate
	countdown *Countdown

	mu        sync.Mutex
	active    bool
	epoch     int
	stopCh    chan struct{}
	refreshCh chan struct{}
	snapshot  *models.PublicSnapshot
	lastErr   error
}

func NewPublicFeedPoller(api publicFetcher, interval, timeout time.Duration, onUpdate func()) *PublicFeedPoller {
	f := &PublicFeedPoller{
		api:      api,
		interval: interval,
		timeout:  timeout,
		onUpdate: onUpdate,
		log:      logger.For("public-feed"),
	}
	f.countdown = NewCountdown(f.Refresh)
	return f
}

// Activate starts polling. No-op when already active.
func (f *PublicFeedPoller) Activate() {
	f.mu.Lock()
	if f.active {
		f.mu.Unlock()
		return
	}
	f.active = true
	f.epoch++
	f.stopCh = make(chan struct{})
	f.refreshCh = make(chan struct{}, 1)
	stopCh, refreshCh, epoch := f.stopCh, f.refreshCh, f.epoch
	f.mu.Unlock()

	f.countdown.Start()
	f.log.Info("activated")
	go f.loop(stopCh, refreshCh, epoch)
}

// Deactivate stops polling and clears the held snapshot.
func (f *PublicFeedPoller) Deactivate() {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return
	}
	f.active = false
	f.epoch++
	close(f.stopCh)
	f.snapshot = nil
	f.lastErr = nil
	f.mu.Unlock()

	f.countdown.Stop()
	f.countdown.Reset(0)
	f.log.Info("deactivated")
}

// Refresh requests an immediate re-poll, e.g. on the feed countdown's
// expiry crossing.
func (f *PublicFeedPoller) Refresh() {
	f.mu.Lock()
	refreshCh := f.refreshCh
	active := f.active
	f.mu.Unlock()
	if !active || refreshCh == nil {
		return
	}
	select {
	case refreshCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the current public mirror, nil while inactive or
// before the first successful fetch.
func (f *PublicFeedPoller) Snapshot() *models.PublicSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *PublicFeedPoller) LastErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Remaining returns the locally ticking remaining time in milliseconds.
func (f *PublicFeedPoller) Remaining() int64 {
	return f.countdown.Remaining()
}

func (f *PublicFeedPoller) loop(stopCh chan struct{}, refreshCh chan struct{}, epoch int) {
	f.fetch(epoch)

	timer := time.NewTimer(f.interval)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
			f.fetch(epoch)
			timer.Reset(f.interval)
		case <-refreshCh:
			f.fetch(epoch)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(f.interval)
		}
	}
}

func (f *PublicFeedPoller) fetch(epoch int) {
	seq := f.gate.issue()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		snap, err := f.api.GetPublicState(ctx)

		committed := f.gate.commit(seq, func() {
			f.apply(snap, err, epoch)
		})
		if !committed {
			f.log.Debug("discarded stale public response")
		}
	}()
}

func (f *PublicFeedPoller) apply(snap *models.PublicSnapshot, err error, epoch int) {
	f.mu.Lock()
	if !f.active || epoch != f.epoch {
		f.mu.Unlock()
		return
	}
	if err != nil {
		// Keep the last-known-good snapshot; the next tick retries.
		f.lastErr = err
		f.mu.Unlock()
		f.log.WithError(err).Warn("public fetch failed")
		return
	}
	f.snapshot = snap
	f.lastErr = nil
	f.mu.Unlock()

	// The public endpoint reports seconds, the countdown ticks
	// milliseconds.
	f.countdown.Reset(snap.TimeRemaining * 1000)

	if f.onUpdate != nil {
		f.onUpdate()
	}
}
