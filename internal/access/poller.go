package access

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nema-ac/worminal/internal/logger"
	"github.com/nema-ac/worminal/internal/models"
)

type sessionFetcher interface {
	GetSession(ctx context.Context) (*models.SessionSnapshot, error)
}

// SessionPoller fetches the authoritative session snapshot on a fixed
// interval. An on-demand Refresh fetches immediately and resets the
// schedule rather than adding a second interval. Fetches run off the
// loop goroutine so a slow request never stalls the schedule; the
// sequence gate discards responses that complete out of order.
type SessionPoller struct {
	api        sessionFetcher
	interval   time.Duration
	timeout    time.Duration
	onSnapshot func(*models.SessionSnapshot, error)
	log        *logrus.Entry

	gate      seqGate
	refreshCh chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewSessionPoller(api sessionFetcher, interval, timeout time.Duration, onSnapshot func(*models.SessionSnapshot, error)) *SessionPoller {
	return &SessionPoller{
		api:        api,
		interval:   interval,
		timeout:    timeout,
		onSnapshot: onSnapshot,
		log:        logger.For("session-poller"),
		refreshCh:  make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

func (p *SessionPoller) Start() {
	go p.loop()
}

func (p *SessionPoller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

// Refresh requests an immediate fetch. Coalesces if one is already
// queued.
func (p *SessionPoller) Refresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

func (p *SessionPoller) loop() {
	p.fetch()

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-timer.C:
			p.fetch()
			timer.Reset(p.interval)
		case <-p.refreshCh:
			p.fetch()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.interval)
		}
	}
}

func (p *SessionPoller) fetch() {
	seq := p.gate.issue()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		snap, err := p.api.GetSession(ctx)
		if err != nil {
			p.log.WithError(err).Warn("session fetch failed")
		}

		select {
		case <-p.stopCh:
			return
		default:
		}

		if !p.gate.commit(seq, func() { p.onSnapshot(snap, err) }) {
			p.log.Debug("discarded stale session response")
		}
	}()
}
