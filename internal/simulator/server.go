package simulator

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nema-ac/worminal/internal/api"
	"github.com/nema-ac/worminal/internal/logger"
	"github.com/nema-ac/worminal/internal/models"
	"github.com/nema-ac/worminal/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ServerConfig struct {
	JWTSecret       string
	Users           map[string]string // username -> password
	Owner           string            // username entitled to claim
	OpenForAnyone   bool
	SessionDuration time.Duration
	PromptLimit     int
	NemaName        string
}

// Server is an in-memory Worminal backend exposing the REST and
// WebSocket surface the client coordination core consumes. It exists
// for local development and integration tests; nothing is persisted.
type Server struct {
	auth   *AuthService
	hub    *Hub
	worm   *Worminal
	engine *gin.Engine
	log    *logrus.Entry

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = 10 * time.Minute
	}
	if cfg.PromptLimit <= 0 {
		cfg.PromptLimit = 50
	}
	if cfg.NemaName == "" {
		cfg.NemaName = "nema"
	}

	auth := NewAuthService(cfg.JWTSecret)
	for username, password := range cfg.Users {
		if _, err := auth.AddUser(username, password); err != nil {
			return nil, err
		}
	}

	s := &Server{
		auth:   auth,
		hub:    NewHub(),
		worm:   NewWorminal(auth.UserID(cfg.Owner), cfg.OpenForAnyone, cfg.SessionDuration, cfg.PromptLimit, cfg.NemaName),
		log:    logger.For("simulator"),
		stopCh: make(chan struct{}),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.POST("/auth/login", s.handleLogin)

	worminal := r.Group("/worminal")
	{
		worminal.GET("/", s.handlePublicState)
		worminal.GET("/session", s.handleGetSession)
		worminal.GET("/ws", s.handleWebSocket)
		worminal.GET("/can-claim", jwtAuth(auth), s.handleCanClaim)
		worminal.POST("/claim", jwtAuth(auth), s.handleClaim)
		worminal.GET("/access", jwtAuth(auth), s.handleAccess)
	}

	s.engine = r
	go s.expiryLoop()
	return s, nil
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run(addr string) error {
	s.log.WithField("addr", addr).Info("simulator listening")
	return s.engine.Run(addr)
}

func (s *Server) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Auth exposes token issuance for tests.
func (s *Server) Auth() *AuthService {
	return s.auth
}

func (s *Server) expiryLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.worm.ExpireIfDue() {
				s.log.Info("session expired")
			}
		}
	}
}

func (s *Server) handleLogin(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, api.LoginResponse{Token: token})
}

func (s *Server) handleGetSession(c *gin.Context) {
	session, remainingMS := s.worm.Snapshot()
	c.JSON(http.StatusOK, api.SessionResponse{
		Session:         session,
		TimeRemainingMS: remainingMS,
		OpenForAnyone:   session.OpenForAnyone,
	})
}

func (s *Server) handleCanClaim(c *gin.Context) {
	ok, reason := s.worm.CanClaim(c.GetString("user_id"))
	c.JSON(http.StatusOK, api.CanClaimResponse{CanClaim: ok, Reason: string(reason)})
}

func (s *Server) handleClaim(c *gin.Context) {
	session, err := s.worm.Claim(c.GetString("user_id"), c.GetString("username"))
	if err != nil {
		switch err {
		case errAlreadyClaimed:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errNotOwner:
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	s.hub.Broadcast(gin.H{"type": transport.EventSessionClaimed})
	c.JSON(http.StatusOK, api.ClaimResponse{Session: session})
}

func (s *Server) handleAccess(c *gin.Context) {
	c.JSON(http.StatusOK, api.AccessResponse{HasAccess: s.worm.HasAccess(c.GetString("user_id"))})
}

func (s *Server) handlePublicState(c *gin.Context) {
	c.JSON(http.StatusOK, s.worm.PublicState())
}

// handleWebSocket upgrades the chat socket. Spectators may connect
// unauthenticated and only receive; text from authenticated clients is
// broadcast with the sender identity attached server-side.
func (s *Server) handleWebSocket(c *gin.Context) {
	ident := s.identityFromRequest(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s.hub.Add(conn, ident.UserID, ident.Username)
	defer s.hub.Remove(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		text := strings.TrimSpace(string(data))
		if text == "" || !ident.Authenticated {
			continue
		}

		msg := models.Message{
			ID:          uuid.NewString(),
			UserID:      ident.UserID,
			Username:    ident.Username,
			Text:        text,
			TimestampMS: time.Now().UnixMilli(),
		}
		s.worm.RecordMessage(msg)
		s.hub.Broadcast(gin.H{
			"user_id":  msg.UserID,
			"username": msg.Username,
			"text":     msg.Text,
		})
	}
}

func (s *Server) identityFromRequest(c *gin.Context) models.Identity {
	token := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return models.Identity{}
	}

	ident, err := s.auth.ValidateToken(token)
	if err != nil {
		return models.Identity{}
	}
	return ident
}
