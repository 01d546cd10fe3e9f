// Package session manages the signed-in identity: it exchanges credentials
// for a bearer token, derives display claims from it, and persists the token
// across runs. Claims are decoded without signature verification on purpose:
// they are UI hints only, and every request is re-authorized by the gateway.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"atenex-cli/internal/model"
)

// Route is the landing surface a session maps to.
type Route string

const (
	RouteLogin Route = "/login"
	RouteChat  Route = "/chat"
	RouteAdmin Route = "/admin"
)

// LoginAPI exchanges credentials for a bearer token.
type LoginAPI interface {
	Login(ctx context.Context, email, password string) (string, error)
}

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type claims struct {
	jwt.RegisteredClaims
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	FullName  string   `json:"full_name"`
	CompanyID string   `json:"company_id"`
	Roles     []string `json:"roles"`
}

// Store owns the active session. Safe for concurrent use; writes only happen
// from explicit sign-in/sign-out and the initial load.
type Store struct {
	api        LoginAPI
	log        *zap.Logger
	adminEmail string
	dir        string

	mu      sync.RWMutex
	token   string
	session *model.Session
}

// NewStore builds a Store persisting the token under dir. An empty dir means
// the default config dir ($XDG_CONFIG_HOME/atenex or ~/.config/atenex).
func NewStore(api LoginAPI, adminEmail, dir string, log *zap.Logger) *Store {
	if dir == "" {
		dir = defaultDir()
	}
	return &Store{api: api, log: log, adminEmail: adminEmail, dir: dir}
}

func defaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "atenex")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "atenex")
}

func (s *Store) tokenPath() string { return filepath.Join(s.dir, "token.json") }

// Token returns the active bearer token, empty when signed out.
// Implements the API client's token source.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Current returns the active session or nil.
func (s *Store) Current() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Load adopts a previously persisted token. An expired or malformed token is
// cleared silently: the user simply starts signed out, no error surfaces.
// The returned route respects the admin redirect invariant.
func (s *Store) Load() (*model.Session, Route) {
	raw, err := os.ReadFile(s.tokenPath())
	if err != nil {
		return nil, RouteLogin
	}
	var tf tokenFile
	if err := json.Unmarshal(raw, &tf); err != nil || tf.AccessToken == "" {
		s.clearPersisted()
		return nil, RouteLogin
	}

	sess, expiresAt, err := s.decode(tf.AccessToken)
	if err != nil {
		s.log.Warn("persisted token is invalid, clearing", zap.Error(err))
		s.clearPersisted()
		return nil, RouteLogin
	}
	if !expiresAt.IsZero() && time.Now().After(expiresAt) {
		s.log.Warn("persisted token is expired, clearing")
		s.clearPersisted()
		return nil, RouteLogin
	}

	s.mu.Lock()
	s.token = tf.AccessToken
	s.session = sess
	s.mu.Unlock()
	return sess, RouteFor(sess)
}

// SignIn exchanges credentials for a token, adopts and persists it. On any
// failure the session state is cleared first so no partial identity remains.
func (s *Store) SignIn(ctx context.Context, email, password string) (*model.Session, Route, error) {
	token, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.reset()
		return nil, RouteLogin, fmt.Errorf("login failed: %w", err)
	}

	sess, expiresAt, err := s.decode(token)
	if err != nil {
		s.reset()
		return nil, RouteLogin, fmt.Errorf("login succeeded but the token is invalid: %w", err)
	}
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(15 * time.Minute)
	}

	if err := s.persist(token, expiresAt); err != nil {
		s.log.Warn("could not persist token", zap.Error(err))
	}

	s.mu.Lock()
	s.token = token
	s.session = sess
	s.mu.Unlock()

	s.log.Info("signed in",
		zap.String("user_id", sess.UserID),
		zap.Bool("is_admin", sess.IsAdmin),
	)
	return sess, RouteFor(sess), nil
}

// SignOut clears the persisted token and the in-memory session. It always
// lands on the login route, even when cleanup fails, so the user is never
// stranded in an authenticated-looking broken state.
func (s *Store) SignOut() Route {
	s.reset()
	return RouteLogin
}

func (s *Store) reset() {
	s.mu.Lock()
	s.token = ""
	s.session = nil
	s.mu.Unlock()
	s.clearPersisted()
}

func (s *Store) clearPersisted() {
	if err := os.Remove(s.tokenPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("could not remove token file", zap.Error(err))
	}
}

func (s *Store) persist(token string, expiresAt time.Time) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(tokenFile{AccessToken: token, ExpiresAt: expiresAt}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.tokenPath(), raw, 0o600)
}

// decode reads the token's claims without verifying its signature and
// derives the session. Expiry is returned for the caller to check; a token
// without a subject claim is invalid.
func (s *Store) decode(token string) (*model.Session, time.Time, error) {
	var cl claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &cl); err != nil {
		return nil, time.Time{}, err
	}
	if cl.Subject == "" {
		return nil, time.Time{}, errors.New("token has no subject claim")
	}

	name := cl.Name
	if name == "" {
		name = cl.FullName
	}
	if name == "" && cl.Email != "" {
		name = strings.SplitN(cl.Email, "@", 2)[0]
	}

	isAdmin := cl.Email != "" && cl.Email == s.adminEmail
	for _, r := range cl.Roles {
		if r == "admin" {
			isAdmin = true
		}
	}

	sess := &model.Session{
		UserID:    cl.Subject,
		Email:     cl.Email,
		Name:      name,
		CompanyID: cl.CompanyID,
		Roles:     cl.Roles,
		IsAdmin:   isAdmin,
	}

	var expiresAt time.Time
	if cl.ExpiresAt != nil {
		expiresAt = cl.ExpiresAt.Time
	}
	return sess, expiresAt, nil
}

// RouteFor maps a session to its landing route: admins always land on the
// admin route, everyone else on chat, no session on login.
func RouteFor(sess *model.Session) Route {
	switch {
	case sess == nil:
		return RouteLogin
	case sess.IsAdmin:
		return RouteAdmin
	default:
		return RouteChat
	}
}
