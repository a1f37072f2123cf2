package access_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nema-ac/worminal/internal/access"
	"github.com/nema-ac/worminal/internal/api"
	"github.com/nema-ac/worminal/internal/identity"
	"github.com/nema-ac/worminal/internal/models"
	"github.com/nema-ac/worminal/internal/simulator"
)

// fakeRealtime stands in for the websocket transport; the coordinator
// only needs connect/disconnect calls and a lifecycle callback it can
// fire on demand.
type fakeRealtime struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	onLifecycle func(string)
}

func (f *fakeRealtime) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

func (f *fakeRealtime) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeRealtime) OnLifecycle(fn func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onLifecycle = fn
}

func (f *fakeRealtime) fire(event string) {
	f.mu.Lock()
	fn := f.onLifecycle
	f.mu.Unlock()
	if fn != nil {
		fn(event)
	}
}

func (f *fakeRealtime) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func waitForView(t *testing.T, coord *access.Coordinator, want func(v models.AccessView) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if want(coord.View()) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("view never settled, last = %+v", coord.View())
}

func newSimulator(t *testing.T, cfg simulator.ServerConfig) *httptest.Server {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-secret"
	}
	if cfg.Users == nil {
		cfg.Users = map[string]string{"alice": "pw", "bob": "pw", "eve": "pw"}
	}
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = time.Minute
	}
	srv, err := simulator.NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

// loggedInClient builds an api.Client bound to a fresh identity
// provider holding username's token.
func loggedInClient(t *testing.T, ts *httptest.Server, username string) (*api.Client, *identity.Provider) {
	t.Helper()
	ids := identity.NewProvider()
	client := api.NewClient(ts.URL, time.Second, ids)
	token, err := client.Login(context.Background(), username, "pw")
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	if err := ids.SetToken(token); err != nil {
		t.Fatalf("set token: %v", err)
	}
	return client, ids
}

func startStack(t *testing.T, ts *httptest.Server, username string) (*access.Coordinator, *fakeRealtime) {
	t.Helper()
	client, ids := loggedInClient(t, ts, username)

	rt := &fakeRealtime{}
	coord := access.NewCoordinator(access.Config{
		PollInterval:   50 * time.Millisecond,
		RequestTimeout: time.Second,
		SettleDelay:    10 * time.Millisecond,
	}, client, ids, rt)
	coord.Start()
	t.Cleanup(coord.Close)
	return coord, rt
}

func TestCoordinatorClaimFlow(t *testing.T) {
	ts := newSimulator(t, simulator.ServerConfig{Owner: "alice"})

	coord, rt := startStack(t, ts, "alice")

	waitForView(t, coord, func(v models.AccessView) bool { return v.NeedsToClaim })

	session, err := coord.Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if session.ClaimedAt == nil {
		t.Error("claimed session has no claimedAt")
	}

	waitForView(t, coord, func(v models.AccessView) bool { return v.HasAccess })

	if got := coord.View(); got.NeedsToClaim || got.ShouldShowPublicView {
		t.Errorf("post-claim view = %+v", got)
	}
	if coord.TimeRemaining() <= 0 {
		t.Error("countdown not armed after claim")
	}
	if rt.connectCount() == 0 {
		t.Error("transport never connected")
	}
}

func TestCoordinatorSpectatorSeesPublicFeed(t *testing.T) {
	ts := newSimulator(t, simulator.ServerConfig{
		Owner:    "alice",
		NemaName: "nema",
	})

	// Alice claims out of band.
	aliceClient, _ := loggedInClient(t, ts, "alice")
	if _, err := aliceClient.Claim(context.Background()); err != nil {
		t.Fatalf("alice claim: %v", err)
	}

	// Bob is authenticated but not the holder: spectator view.
	coord, _ := startStack(t, ts, "bob")
	waitForView(t, coord, func(v models.AccessView) bool { return v.ShouldShowPublicView })

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if snap := coord.PublicFeed().Snapshot(); snap != nil {
			if snap.User != "alice" {
				t.Errorf("public snapshot user = %q, want alice", snap.User)
			}
			if snap.Nema.Name != "nema" {
				t.Errorf("public snapshot nema = %q", snap.Nema.Name)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("public feed never produced a snapshot")
}

func TestCoordinatorLifecycleFrameTriggersResync(t *testing.T) {
	ts := newSimulator(t, simulator.ServerConfig{OpenForAnyone: true})

	coord, rt := startStack(t, ts, "alice")
	waitForView(t, coord, func(v models.AccessView) bool { return v.NeedsToClaim })

	// Eve's claim arrives as a lifecycle frame before the next scheduled
	// poll; the coordinator resyncs immediately.
	eveClient, _ := loggedInClient(t, ts, "eve")
	if _, err := eveClient.Claim(context.Background()); err != nil {
		t.Fatalf("eve claim: %v", err)
	}
	rt.fire("session_claimed")

	waitForView(t, coord, func(v models.AccessView) bool { return !v.NeedsToClaim })
	if coord.View().HasAccess {
		t.Error("alice has access after losing the session")
	}
}

func TestCoordinatorLostClaimRace(t *testing.T) {
	ts := newSimulator(t, simulator.ServerConfig{OpenForAnyone: true})

	coord, _ := startStack(t, ts, "bob")
	waitForView(t, coord, func(v models.AccessView) bool { return v.NeedsToClaim })

	// The session is snatched between bob's eligibility check and his
	// claim request.
	eveClient, _ := loggedInClient(t, ts, "eve")
	if _, err := eveClient.Claim(context.Background()); err != nil {
		t.Fatalf("eve claim: %v", err)
	}

	_, err := coord.Claim(context.Background())
	if err == nil {
		t.Fatal("Claim() succeeded on an already claimed session")
	}

	// The forced refresh lands and bob drops into the spectator view.
	waitForView(t, coord, func(v models.AccessView) bool { return v.ShouldShowPublicView })
}
