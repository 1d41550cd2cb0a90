// Package auth performs direct password logins at the terminal.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"arenakiosk/internal/identity"
	"arenakiosk/internal/models"
	"arenakiosk/internal/store"
)

var (
	// ErrInvalidCredentials represents login failure in every identity collection.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrMissingCredentials is returned for an empty username or password.
	ErrMissingCredentials = errors.New("auth: username and password required")
)

// Authenticator is the password endpoint of the store.
type Authenticator interface {
	AuthWithPassword(ctx context.Context, collection, identity, password string) (*store.AuthResult, error)
}

// Session is the login context updated on success.
type Session interface {
	Login(ctx context.Context, id identity.Identity) error
	Logout(ctx context.Context) error
}

// Service logs customers in against the identity collections, in order.
type Service struct {
	store       Authenticator
	collections []string
	session     Session
	logger      *zap.Logger
}

// NewService builds Service.
func NewService(store Authenticator, collections []string, session Session, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		collections: collections,
		session:     session,
		logger:      logger,
	}
}

// Login authenticates username and stores the identity as a direct login.
func (s *Service) Login(ctx context.Context, username, password string) (identity.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return identity.Identity{}, ErrMissingCredentials
	}

	var lastErr error
	for _, collection := range s.collections {
		res, err := s.store.AuthWithPassword(ctx, collection, username, password)
		if err != nil {
			if !rejected(err) {
				s.logger.Warn("password login failed", zap.String("collection", collection), zap.Error(err))
				lastErr = err
			}
			continue
		}

		var user models.User
		if err := json.Unmarshal(res.Record, &user); err != nil || user.ID == "" {
			lastErr = fmt.Errorf("auth: unreadable %s record: %v", collection, err)
			continue
		}
		id := identity.Identity{
			UserID:   user.ID,
			Username: user.DisplayName(),
			Token:    res.Token,
			Source:   identity.SourceDirect,
		}
		if id.Username == "" {
			id.Username = username
		}
		if err := s.session.Login(ctx, id); err != nil {
			return identity.Identity{}, err
		}
		return id, nil
	}

	if lastErr != nil {
		return identity.Identity{}, lastErr
	}
	s.logger.Info("login rejected", zap.String("username", username))
	return identity.Identity{}, ErrInvalidCredentials
}

// Logout clears the local identity.
func (s *Service) Logout(ctx context.Context) error {
	return s.session.Logout(ctx)
}

// rejected reports whether err means wrong credentials rather than an unreachable store.
func rejected(err error) bool {
	if errors.Is(err, store.ErrUnauthorized) || errors.Is(err, store.ErrNotFound) {
		return true
	}
	var statusErr *store.StatusError
	return errors.As(err, &statusErr) && statusErr.Status == http.StatusBadRequest
}
