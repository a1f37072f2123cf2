package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nema-ac/worminal/internal/models"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func TestGetSessionFoldsOpenForAnyone(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/worminal/session" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(SessionResponse{
			Session: &models.Session{
				ID:     "s1",
				Status: models.SessionStatusPendingClaim,
			},
			TimeRemainingMS: 45000,
			OpenForAnyone:   true,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	snap, err := c.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if snap.TimeRemainingMS != 45000 {
		t.Errorf("TimeRemainingMS = %d, want 45000", snap.TimeRemainingMS)
	}
	if !snap.Session.OpenForAnyone {
		t.Error("top-level open_for_anyone was not folded into the session")
	}
}

func TestAuthenticatedCallsCarryBearerToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(AccessResponse{HasAccess: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, staticToken("tok123"))
	ok, err := c.CheckAccess(context.Background())
	if err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}
	if !ok {
		t.Error("CheckAccess() = false, want true")
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok123")
	}
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   ErrorKind
	}{
		{name: "client error is network", status: http.StatusForbidden, want: KindNetwork},
		{name: "server error is server", status: http.StatusBadGateway, want: KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.status)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, time.Second, nil)
			_, err := c.GetSession(context.Background())
			if err == nil {
				t.Fatal("GetSession() error = nil, want status error")
			}

			var se *StatusError
			if !errors.As(err, &se) || se.Status != tt.status {
				t.Fatalf("error = %v, want StatusError with status %d", err, tt.status)
			}
			if got := KindOf(err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTimeoutKind(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetSession(ctx)
	if err == nil {
		t.Fatal("GetSession() error = nil, want timeout")
	}
	if got := KindOf(err); got != KindTimeout {
		t.Errorf("KindOf() = %s, want %s", got, KindTimeout)
	}
}

func TestClaimConflictMapsToAlreadyClaimed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session already claimed", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	_, err := c.Claim(context.Background())
	if !errors.Is(err, models.ErrAlreadyClaimed) {
		t.Errorf("Claim() error = %v, want ErrAlreadyClaimed", err)
	}
}
