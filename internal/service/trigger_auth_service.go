package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
)

// TriggerClaims identifies the caller allowed to start a run.
type TriggerClaims struct {
	jwt.RegisteredClaims
}

// TriggerAuthConfig configures trigger token verification.
type TriggerAuthConfig struct {
	Secret string
	Issuer string
}

// TriggerAuthService issues and validates HS256 tokens for the trigger server.
type TriggerAuthService struct {
	config TriggerAuthConfig
}

// NewTriggerAuthService constructs the service.
func NewTriggerAuthService(config TriggerAuthConfig) *TriggerAuthService {
	return &TriggerAuthService{config: config}
}

// Enabled reports whether a signing secret is configured.
func (s *TriggerAuthService) Enabled() bool {
	return s != nil && s.config.Secret != ""
}

// IssueToken signs a token for subject valid for ttl.
func (s *TriggerAuthService) IssueToken(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", appErrors.Clone(appErrors.ErrConfigInvalid, "trigger secret is not configured")
	}
	issuedAt := time.Now().UTC()
	claims := &TriggerClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    s.config.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
}

// ValidateToken parses and validates a trigger token returning the claims.
func (s *TriggerAuthService) ValidateToken(tokenString string) (*TriggerClaims, error) {
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "trigger authentication is not configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &TriggerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*TriggerClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
