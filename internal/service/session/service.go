package session

import (
	"crypto/subtle"
	"errors"
	"strings"

	"log/slog"

	"github.com/shiplane/shiplane/pkg/config"
	jwtpkg "github.com/shiplane/shiplane/pkg/jwt"
)

// ErrInvalidCredentials signals a rejected session issue request.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service issues and validates session cookies for the control plane UI.
type Service struct {
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{logger: logger, cfg: cfg}
}

// Issue exchanges the operator token for a signed session cookie value.
func (s Service) Issue(userID, operatorToken string) (string, error) {
	expected := strings.TrimSpace(s.cfg.OperatorToken)
	if expected == "" {
		return "", errors.New("operator token not configured")
	}
	provided := strings.TrimSpace(operatorToken)
	if len(provided) != len(expected) || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return "", ErrInvalidCredentials
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("user id required")
	}
	token, err := jwtpkg.GenerateToken(userID, s.cfg.JWTSecret, s.cfg.SessionTTL)
	if err != nil {
		return "", err
	}
	s.logger.Info("session issued", "user_id", userID)
	return token, nil
}

// Authorize validates a session cookie value and returns its claims.
func (s Service) Authorize(token string) (*jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errors.New("session token required")
	}
	return jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
}
