package simulator

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nema-ac/worminal/internal/models"
)

type user struct {
	id           string
	passwordHash []byte
}

// AuthService issues and validates the bearer tokens the simulator
// hands out in place of the production wallet-signature login.
type AuthService struct {
	secret []byte

	mu    sync.RWMutex
	users map[string]*user
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{
		secret: []byte(secret),
		users:  make(map[string]*user),
	}
}

// AddUser registers a user and returns their identity id.
func (s *AuthService) AddUser(username, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := &user{id: uuid.NewString(), passwordHash: hash}
	s.users[username] = u
	return u.id, nil
}

// UserID returns the identity id for a username, empty when unknown.
func (s *AuthService) UserID(username string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[username]; ok {
		return u.id
	}
	return ""
}

func (s *AuthService) Login(username, password string) (string, error) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return "", errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}
	return s.GenerateToken(u.id, username)
}

func (s *AuthService) GenerateToken(userID, username string) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *AuthService) ValidateToken(tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return models.Identity{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, errors.New("invalid claims")
	}
	userID, _ := claims["user_id"].(string)
	username, _ := claims["username"].(string)
	if userID == "" {
		return models.Identity{}, errors.New("invalid user_id in token")
	}

	return models.Identity{Authenticated: true, UserID: userID, Username: username}, nil
}

func jwtAuth(auth *AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		ident, err := auth.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("user_id", ident.UserID)
		c.Set("username", ident.Username)
		c.Next()
	}
}
