package simulator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nema-ac/worminal/internal/api"
	"github.com/nema-ac/worminal/internal/models"
)

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-secret"
	}
	if cfg.Users == nil {
		cfg.Users = map[string]string{"alice": "pw", "bob": "pw"}
	}
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = time.Minute
	}

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func login(t *testing.T, ts *httptest.Server, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(api.LoginRequest{Username: username, Password: password})
	resp, err := http.Post(ts.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var out api.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out.Token
}

func doAuthed(t *testing.T, ts *httptest.Server, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestLoginRejectsBadPassword(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, ServerConfig{})
	body, _ := json.Marshal(api.LoginRequest{Username: "alice", Password: "wrong"})
	resp, err := http.Post(ts.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSessionStartsPending(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, ServerConfig{Owner: "alice"})
	resp, err := http.Get(ts.URL + "/worminal/session")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out api.SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Session.Status != models.SessionStatusPendingClaim {
		t.Errorf("status = %s, want pending_claim", out.Session.Status)
	}
	if out.Session.ClaimedAt != nil {
		t.Error("pending session has claimedAt set")
	}
	if out.TimeRemainingMS != 0 {
		t.Errorf("time remaining = %d before claim, want 0", out.TimeRemainingMS)
	}
}

func TestClaimFlowAndRace(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, ServerConfig{Owner: "", OpenForAnyone: true})
	aliceTok := login(t, ts, "alice", "pw")
	bobTok := login(t, ts, "bob", "pw")

	// Alice wins the claim.
	resp := doAuthed(t, ts, http.MethodPost, "/worminal/claim", aliceTok)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("alice claim status = %d, want 200", resp.StatusCode)
	}
	var claimed api.ClaimResponse
	if err := json.NewDecoder(resp.Body).Decode(&claimed); err != nil {
		t.Fatal(err)
	}
	if claimed.Session.Status != models.SessionStatusActive || claimed.Session.ClaimedAt == nil {
		t.Errorf("claimed session = %+v", claimed.Session)
	}

	// Bob lost the race.
	resp2 := doAuthed(t, ts, http.MethodPost, "/worminal/claim", bobTok)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Errorf("bob claim status = %d, want 409", resp2.StatusCode)
	}

	// Access reflects the outcome.
	acc := doAuthed(t, ts, http.MethodGet, "/worminal/access", aliceTok)
	defer acc.Body.Close()
	var aliceAccess api.AccessResponse
	json.NewDecoder(acc.Body).Decode(&aliceAccess)
	if !aliceAccess.HasAccess {
		t.Error("alice has no access to her own session")
	}

	acc2 := doAuthed(t, ts, http.MethodGet, "/worminal/access", bobTok)
	defer acc2.Body.Close()
	var bobAccess api.AccessResponse
	json.NewDecoder(acc2.Body).Decode(&bobAccess)
	if bobAccess.HasAccess {
		t.Error("bob has access to alice's session")
	}
}

func TestCanClaimRespectsOwner(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, ServerConfig{Owner: "alice"})
	bobTok := login(t, ts, "bob", "pw")

	resp := doAuthed(t, ts, http.MethodGet, "/worminal/can-claim", bobTok)
	defer resp.Body.Close()
	var out api.CanClaimResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.CanClaim {
		t.Error("bob may claim alice's reserved session")
	}
	if out.Reason != string(models.ClaimReasonNotOwner) {
		t.Errorf("reason = %q, want not_owner", out.Reason)
	}

	// Claiming anyway is forbidden.
	claim := doAuthed(t, ts, http.MethodPost, "/worminal/claim", bobTok)
	defer claim.Body.Close()
	if claim.StatusCode != http.StatusForbidden {
		t.Errorf("claim status = %d, want 403", claim.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, ServerConfig{})
	for _, path := range []string{"/worminal/can-claim", "/worminal/access"} {
		resp := doAuthed(t, ts, http.MethodGet, path, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestPublicStateReportsSeconds(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, ServerConfig{
		Owner:           "alice",
		SessionDuration: 30 * time.Second,
		NemaName:        "nema",
	})
	aliceTok := login(t, ts, "alice", "pw")

	resp := doAuthed(t, ts, http.MethodPost, "/worminal/claim", aliceTok)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status = %d", resp.StatusCode)
	}

	pub, err := http.Get(ts.URL + "/worminal/")
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Body.Close()

	var snap models.PublicSnapshot
	if err := json.NewDecoder(pub.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.User != "alice" {
		t.Errorf("public user = %q, want alice", snap.User)
	}
	if snap.Status != models.SessionStatusActive {
		t.Errorf("public status = %s, want active", snap.Status)
	}
	if snap.TimeRemaining <= 0 || snap.TimeRemaining > 30 {
		t.Errorf("time remaining = %d, want 0 < s <= 30", snap.TimeRemaining)
	}
	if snap.Nema.Name != "nema" {
		t.Errorf("nema name = %q", snap.Nema.Name)
	}
}
