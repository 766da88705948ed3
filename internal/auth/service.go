// Package auth implements the shared-token login and the cookie sessions
// that guard the HTTP API and the sockets.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/windschord/claude-work/internal/common/config"
	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
	"github.com/windschord/claude-work/internal/store"
)

// Repository stores login sessions.
type Repository interface {
	CreateAuthSession(ctx context.Context, as *store.AuthSession) error
	ListActiveAuthSessions(ctx context.Context, now time.Time) ([]*store.AuthSession, error)
	DeleteAuthSession(ctx context.Context, id string) error
	DeleteExpiredAuthSessions(ctx context.Context, now time.Time) (int64, error)
}

// Service issues and verifies login sessions. The client keeps a random
// session id in a cookie; the server keeps only its bcrypt hash.
type Service struct {
	repo       Repository
	enabled    bool
	token      string
	ttl        time.Duration
	cookieName string
	cost       int
	now        func() time.Time
	logger     *logger.Logger
}

// NewService creates the auth service from cfg.
func NewService(repo Repository, cfg config.AuthConfig, log *logger.Logger) *Service {
	ttl := cfg.SessionTTL()
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "session_id"
	}
	return &Service{
		repo:       repo,
		enabled:    cfg.Enabled,
		token:      cfg.Token,
		ttl:        ttl,
		cookieName: cookieName,
		cost:       bcrypt.DefaultCost,
		now:        time.Now,
		logger:     log.WithFields(zap.String("component", "auth")),
	}
}

func (s *Service) Enabled() bool      { return s.enabled }
func (s *Service) CookieName() string { return s.cookieName }
func (s *Service) TTL() time.Duration { return s.ttl }

// Login checks token against the configured token and, on a match, stores a
// new session and returns its id for the cookie.
func (s *Service) Login(ctx context.Context, token string) (string, error) {
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		return "", apperrors.Unauthorized("Invalid token")
	}

	sessionID := uuid.New().String()
	hash, err := bcrypt.GenerateFromPassword([]byte(sessionID), s.cost)
	if err != nil {
		return "", apperrors.InternalError("failed to hash session id", err)
	}
	as := &store.AuthSession{
		TokenHash: string(hash),
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.repo.CreateAuthSession(ctx, as); err != nil {
		return "", apperrors.InternalError("failed to store session", err)
	}
	s.logger.Info("login succeeded", zap.String("auth_session_id", as.ID))
	return sessionID, nil
}

// VerifySession returns the login session sessionID belongs to. Hashes are
// salted, so every active session is checked in turn.
func (s *Service) VerifySession(ctx context.Context, sessionID string) (*store.AuthSession, error) {
	if sessionID == "" {
		return nil, apperrors.Unauthorized("Not authenticated")
	}
	sessions, err := s.repo.ListActiveAuthSessions(ctx, s.now())
	if err != nil {
		return nil, apperrors.InternalError("failed to load sessions", err)
	}
	for _, as := range sessions {
		if bcrypt.CompareHashAndPassword([]byte(as.TokenHash), []byte(sessionID)) == nil {
			return as, nil
		}
	}
	return nil, apperrors.Unauthorized("Invalid or expired session")
}

// Logout deletes the session sessionID belongs to. Unknown ids are ignored.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	as, err := s.VerifySession(ctx, sessionID)
	if err != nil {
		if apperrors.GetHTTPStatus(err) == http.StatusUnauthorized {
			return nil
		}
		return err
	}
	if err := s.repo.DeleteAuthSession(ctx, as.ID); err != nil {
		return apperrors.InternalError("failed to delete session", err)
	}
	s.logger.Info("logout", zap.String("auth_session_id", as.ID))
	return nil
}

// PurgeExpired deletes expired sessions.
func (s *Service) PurgeExpired(ctx context.Context) error {
	n, err := s.repo.DeleteExpiredAuthSessions(ctx, s.now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Debug("purged expired sessions", zap.Int64("count", n))
	}
	return nil
}
