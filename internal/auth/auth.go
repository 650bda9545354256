package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ksred/atlas-api/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Test credentials
var (
	TestAPIKey    = "test-api-key"
	TestAPISecret = "test-api-secret"
)

// Credentials represents the API authentication credentials
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure. CompanyID is the tenant every
// downstream query is scoped to; UserID is the acting treasurer.
type Claims struct {
	jwt.RegisteredClaims
	CompanyID   string   `json:"company_id"`
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}

type registration struct {
	secret    string
	companyID string
	userID    string
}

// Service handles authentication and authorization operations
type Service struct {
	jwtSecret []byte
	expiry    time.Duration
	// In a real implementation, this would be replaced with a database
	apiCredentials map[string]registration // map[APIKey]registration
}

// NewService creates a new authentication service with the given JWT secret
func NewService(jwtSecret string, expiry time.Duration) *Service {
	return &Service{
		jwtSecret:      []byte(jwtSecret),
		expiry:         expiry,
		apiCredentials: make(map[string]registration),
	}
}

// GenerateToken generates a JWT token for valid API credentials, carrying
// the company and user the key is registered to.
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	reg, ok := s.apiCredentials[creds.APIKey]
	if !ok || reg.secret != creds.APISecret {
		return nil, ErrInvalidCredentials
	}

	expiration := time.Now().Add(s.expiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		CompanyID:   reg.companyID,
		UserID:      reg.userID,
		Permissions: []string{"hedge"},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// RegisterAPICredentials registers API credentials bound to a company and
// user (for testing/demo purposes)
func (s *Service) RegisterAPICredentials(apiKey, apiSecret, companyID, userID string) {
	s.apiCredentials[apiKey] = registration{
		secret:    apiSecret,
		companyID: companyID,
		userID:    userID,
	}
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GenerateTokenHandler handles POST requests to generate JWT tokens
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}

// CompanyID extracts the tenant from the request context set by the JWT
// middleware. Empty when unauthenticated.
func CompanyID(c *gin.Context) string {
	return c.GetString("companyID")
}

// UserID extracts the acting user from the request context.
func UserID(c *gin.Context) string {
	return c.GetString("userID")
}
