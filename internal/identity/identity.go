package identity

import (
	"errors"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nema-ac/worminal/internal/models"
)

// Provider holds the local bearer token and the identity derived from
// its claims. It is the auth collaborator the coordination core consumes:
// components read Identity(), the transport reads Token(), and change
// listeners drive the disconnect-then-reconnect cycle.
type Provider struct {
	mu        sync.RWMutex
	token     string
	ident     models.Identity
	listeners []func(models.Identity)
}

func NewProvider() *Provider {
	return &Provider{}
}

// SetToken installs a bearer token and derives the identity from its
// claims. The token is parsed without signature verification: the server
// is the one that verifies it, the client only needs the display identity.
func (p *Provider) SetToken(token string) error {
	ident, err := identityFromToken(token)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.token = token
	p.ident = ident
	listeners := append([]func(models.Identity){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(ident)
	}
	return nil
}

// Clear drops the token, returning the provider to the unauthenticated
// state and notifying listeners.
func (p *Provider) Clear() {
	p.mu.Lock()
	p.token = ""
	p.ident = models.Identity{}
	ident := p.ident
	listeners := append([]func(models.Identity){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(ident)
	}
}

func (p *Provider) Identity() models.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ident
}

// Token implements api.TokenSource.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// OnChange registers a listener invoked after every sign-in or sign-out.
func (p *Provider) OnChange(fn func(models.Identity)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func identityFromToken(token string) (models.Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return models.Identity{}, errors.New("invalid token")
	}

	userID, _ := claims["user_id"].(string)
	username, _ := claims["username"].(string)
	if userID == "" {
		return models.Identity{}, errors.New("missing user_id claim")
	}

	return models.Identity{
		Authenticated: true,
		UserID:        userID,
		Username:      username,
	}, nil
}
