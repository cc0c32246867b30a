package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// UserIdentityExpiration defines the duration for user identity tokens.
	UserIdentityExpiration = 24 * time.Hour

	// TokenIssuer identifies the issuer of the token.
	TokenIssuer = "rtchat-server"
)

// GenerateToken creates and signs a new JWT Token string based on the provided Payload struct.
func GenerateToken(payload *Payload, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	payload.StandardClaims = jwt.StandardClaims{
		ExpiresAt: now.Add(duration).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    TokenIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}

// ParseToken parses and validates the JWT Token string using the provided secretKey.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	return claims, nil
}

// Service issues and verifies identity tokens. It is the authentication
// collaborator consumed by the event router and the HTTP handlers.
type Service struct {
	secretKey string
}

// NewService constructs a token Service signing with the given secret.
func NewService(secretKey string) *Service {
	return &Service{secretKey: secretKey}
}

// IssueToken signs an identity token for the given user.
func (s *Service) IssueToken(userID string, username string) (string, error) {
	payload := &Payload{
		ID:       userID,
		Username: username,
	}
	return GenerateToken(payload, s.secretKey, UserIdentityExpiration)
}

// VerifyToken validates the token and returns the embedded user identity.
func (s *Service) VerifyToken(tokenString string) (userID string, username string, err error) {
	payload, err := ParseToken(tokenString, s.secretKey)
	if err != nil {
		return "", "", err
	}
	return payload.ID, payload.Username, nil
}
