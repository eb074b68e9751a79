package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Principal identifies the caller of a sync request. The organization is
// always derived from the verified token, never from the request body;
// that is the tenant-isolation boundary.
type Principal struct {
	OrgID    uuid.UUID
	DeviceID uuid.UUID
}

// AuthService verifies the bearer tokens issued by the identity system.
// Account registration, login and session management live outside this
// service; sync only consumes the verification surface.
type AuthService struct {
	jwtSecret string
	jwtExpiry time.Duration
}

func NewAuthService(jwtSecret string, jwtExpiry time.Duration) *AuthService {
	return &AuthService{
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

// MintToken issues a token for an organization's device. Used by the
// agent bootstrap and by tests; production tokens come from the identity
// system with the same claims.
func (s *AuthService) MintToken(orgID, deviceID uuid.UUID) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.jwtExpiry)
	claims := jwt.MapClaims{
		"org":       orgID.String(),
		"device_id": deviceID.String(),
		"exp":       expiresAt.Unix(),
		"iat":       time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *AuthService) VerifyToken(tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	orgStr, ok := claims["org"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	orgID, err := uuid.Parse(orgStr)
	if err != nil {
		return nil, ErrInvalidToken
	}

	deviceStr, ok := claims["device_id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	deviceID, err := uuid.Parse(deviceStr)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Principal{
		OrgID:    orgID,
		DeviceID: deviceID,
	}, nil
}
