package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nema-ac/worminal/internal/logger"
	"github.com/nema-ac/worminal/internal/models"
)

// Inbound frames carrying a type discriminator are session-lifecycle
// notifications, routed to the lifecycle callback instead of the chat
// history.
const (
	EventSessionClaim   = "session_claim"
	EventSessionClaimed = "session_claimed"
)

type Config struct {
	URL            string
	ReconnectDelay time.Duration
	MaxReconnects  int
	DedupWindow    time.Duration
	DedupRetention time.Duration
}

// IdentitySource supplies the credentials and display identity used for
// dialing and for optimistic outbound messages.
type IdentitySource interface {
	Token() string
	Identity() models.Identity
}

type inboundFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Transport maintains the bidirectional Worminal socket: it reconnects
// with a fixed backoff up to a capped number of attempts, appends
// optimistic outbound messages before transmission, and deduplicates
// inbound frames. It is the sole owner of ConnectionState and of the
// message history.
type Transport struct {
	cfg Config
	ids IdentitySource
	log *logrus.Entry

	onMessage   func(models.Message)
	onLifecycle func(event string)
	onState     func(models.ConnectionState)

	mu       sync.Mutex
	conn     *websocket.Conn
	state    models.ConnectionState
	fatalErr error
	manual   bool
	// gen identifies the current connection epoch; read loops and
	// scheduled reconnects from an older epoch are ignored.
	gen int

	messages []models.Message
	dedup    *dedupIndex
}

func New(cfg Config, ids IdentitySource) *Transport {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 5
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 2 * time.Second
	}
	if cfg.DedupRetention <= 0 {
		cfg.DedupRetention = 5 * time.Second
	}
	return &Transport{
		cfg:   cfg,
		ids:   ids,
		log:   logger.For("transport"),
		state: models.ConnectionState{Status: models.ConnectionStatusDisconnected},
		dedup: newDedupIndex(cfg.DedupWindow, cfg.DedupRetention),
	}
}

func (t *Transport) OnMessage(fn func(models.Message))       { t.onMessage = fn }
func (t *Transport) OnLifecycle(fn func(event string))       { t.onLifecycle = fn }
func (t *Transport) OnState(fn func(models.ConnectionState)) { t.onState = fn }

// Connect dials the socket. A failed dial enters the reconnect chain;
// calling Connect while connecting or connected is a no-op.
func (t *Transport) Connect() {
	t.mu.Lock()
	if t.state.Status != models.ConnectionStatusDisconnected {
		t.mu.Unlock()
		return
	}
	t.manual = false
	t.fatalErr = nil
	t.gen++
	gen := t.gen
	t.state = models.ConnectionState{Status: models.ConnectionStatusConnecting}
	t.mu.Unlock()
	t.notifyState()

	t.dial(gen)
}

// Disconnect closes the socket with explicit caller intent: any read
// loop or scheduled reconnect from the current epoch is suppressed.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.manual = true
	t.gen++
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.state = models.ConnectionState{Status: models.ConnectionStatusDisconnected}
	t.fatalErr = nil
	t.mu.Unlock()
	t.notifyState()
}

// Send appends an optimistic local message and transmits the raw text.
// Only permitted while connected; empty text is rejected before
// transmission.
func (t *Transport) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return models.ErrEmptyMessage
	}

	ident := t.ids.Identity()
	now := time.Now()

	t.mu.Lock()
	if t.state.Status != models.ConnectionStatusConnected || t.conn == nil {
		t.mu.Unlock()
		return models.ErrNotConnected
	}
	msg := models.Message{
		ID:           uuid.NewString(),
		UserID:       ident.UserID,
		Username:     ident.Username,
		Text:         text,
		TimestampMS:  now.UnixMilli(),
		IsOptimistic: true,
	}
	t.messages = append(t.messages, msg)
	// Register the optimistic message so the server-side echo lands in
	// the dedup window instead of the history.
	t.dedup.record(ident.UserID, text, now)
	err := t.conn.WriteMessage(websocket.TextMessage, []byte(text))
	t.mu.Unlock()

	if t.onMessage != nil {
		t.onMessage(msg)
	}
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// State returns the current connection state.
func (t *Transport) State() models.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the fatal error set once the reconnect cap is exhausted,
// or nil.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fatalErr
}

// Messages returns a copy of the message history.
func (t *Transport) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transport) dial(gen int) {
	header := http.Header{}
	if tok := t.ids.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(t.cfg.URL, header)
	if resp != nil {
		resp.Body.Close()
	}

	t.mu.Lock()
	if t.manual || gen != t.gen {
		t.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		t.log.WithError(err).Warn("dial failed")
		t.scheduleReconnectLocked(gen)
		t.mu.Unlock()
		t.notifyState()
		return
	}

	t.conn = conn
	t.state = models.ConnectionState{Status: models.ConnectionStatusConnected}
	t.mu.Unlock()
	t.notifyState()
	t.log.Info("connected")

	go t.readLoop(conn, gen)
}

func (t *Transport) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleReadError(gen)
			return
		}
		t.handleFrame(data)
	}
}

func (t *Transport) handleReadError(gen int) {
	t.mu.Lock()
	if t.manual || gen != t.gen {
		t.mu.Unlock()
		return
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.scheduleReconnectLocked(gen)
	t.mu.Unlock()
	t.notifyState()
}

// scheduleReconnectLocked transitions to disconnected and arms the next
// reconnect attempt, or goes terminal once the cap is exhausted.
// Caller holds t.mu.
func (t *Transport) scheduleReconnectLocked(gen int) {
	attempt := t.state.ReconnectAttempt + 1
	if attempt > t.cfg.MaxReconnects {
		t.state = models.ConnectionState{
			Status:           models.ConnectionStatusDisconnected,
			ReconnectAttempt: t.cfg.MaxReconnects,
		}
		t.fatalErr = models.ErrReconnectFailed
		t.log.WithField("attempts", t.cfg.MaxReconnects).Error("giving up on reconnect")
		return
	}

	t.state = models.ConnectionState{
		Status:           models.ConnectionStatusDisconnected,
		ReconnectAttempt: attempt,
	}
	t.log.WithField("attempt", attempt).Info("reconnecting")

	time.AfterFunc(t.cfg.ReconnectDelay, func() {
		t.mu.Lock()
		if t.manual || gen != t.gen || t.fatalErr != nil {
			t.mu.Unlock()
			return
		}
		t.gen++
		next := t.gen
		t.state.Status = models.ConnectionStatusConnecting
		t.mu.Unlock()
		t.notifyState()

		t.dial(next)
	})
}

func (t *Transport) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.log.WithError(err).Warn("dropping malformed frame")
		return
	}

	if frame.Type == EventSessionClaim || frame.Type == EventSessionClaimed {
		if t.onLifecycle != nil {
			t.onLifecycle(frame.Type)
		}
		return
	}

	now := time.Now()
	t.mu.Lock()
	if t.dedup.observe(frame.UserID, frame.Text, now) {
		t.mu.Unlock()
		t.log.WithField("user_id", frame.UserID).Debug("dropped duplicate frame")
		return
	}
	msg := models.Message{
		ID:          uuid.NewString(),
		UserID:      frame.UserID,
		Username:    frame.Username,
		Text:        frame.Text,
		TimestampMS: now.UnixMilli(),
	}
	t.messages = append(t.messages, msg)
	t.mu.Unlock()

	if t.onMessage != nil {
		t.onMessage(msg)
	}
}

func (t *Transport) notifyState() {
	if t.onState == nil {
		return
	}
	t.mu.Lock()
	st := t.state
	t.mu.Unlock()
	t.onState(st)
}
