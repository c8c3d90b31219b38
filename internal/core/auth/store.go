// Package auth holds the client-side mirror of remote session state:
// who is signed in, whether a session check is still running, and the
// outcome of the last auth operation.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"Quill/internal/appwrite"
	"Quill/internal/core/phase"
)

// Operation names used for phase tracking.
const (
	OpLogin     = "login"
	OpSignup    = "signup"
	OpLogout    = "logout"
	OpCheckAuth = "checkAuth"
)

// Store mirrors the remote session. Invariant: Authenticated is true iff
// a non-nil user is held.
type Store struct {
	api    AccountAPI
	logger *slog.Logger

	mu            sync.Mutex
	user          *User
	authenticated bool
	checking      bool
	ops           *phase.Tracker
}

// Snapshot is the read surface the presentation shell renders from.
type Snapshot struct {
	User          *User
	Authenticated bool
	// Checking is true until the startup session check settles; protected
	// views should not render before it clears.
	Checking bool
	Loading  bool
	Error    string
}

// NewStore creates an auth store. Checking starts true and clears when
// CheckAuth settles. logger may be nil.
func NewStore(api AccountAPI, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		api:      api,
		logger:   logger,
		checking: true,
		ops:      phase.NewTracker(),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		User:          copyUser(s.user),
		Authenticated: s.authenticated,
		Checking:      s.checking,
		Loading:       s.ops.Busy(),
		Error:         s.ops.LastError(),
	}
}

// Op returns the phase result for one named operation.
func (s *Store) Op(name string) phase.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.Op(name)
}

// CurrentUser returns the signed-in user, if any. This is the identity
// source the content store captures at call time when stamping authorship.
func (s *Store) CurrentUser() (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated || s.user == nil {
		return nil, false
	}
	return copyUser(s.user), true
}

// Login establishes a session with email/password credentials.
// Blank credentials are rejected locally without a remote call.
func (s *Store) Login(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		s.reject(OpLogin, ErrEmptyCredentials.Error())
		return ErrEmptyCredentials
	}
	s.begin(OpLogin)

	if _, err := s.api.CreateSession(ctx, email, password); err != nil {
		s.reject(OpLogin, loginFailureMessage(err))
		return err
	}
	account, err := s.api.CurrentUser(ctx)
	if err != nil {
		s.reject(OpLogin, err.Error())
		return err
	}

	s.fulfillIdentity(OpLogin, account)
	return nil
}

// Signup creates a remote account, then immediately establishes a
// session. When the account exists but the session step fails, the
// returned error wraps ErrPartialSignup so the caller can steer the user
// to login rather than a second signup.
func (s *Store) Signup(ctx context.Context, email, password, name string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		s.reject(OpSignup, ErrEmptyCredentials.Error())
		return ErrEmptyCredentials
	}
	s.begin(OpSignup)

	if _, err := s.api.CreateAccount(ctx, email, password, name); err != nil {
		s.reject(OpSignup, err.Error())
		return err
	}

	if _, err := s.api.CreateSession(ctx, email, password); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrPartialSignup, err)
		s.reject(OpSignup, ErrPartialSignup.Error()+"; please log in")
		return wrapped
	}
	account, err := s.api.CurrentUser(ctx)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrPartialSignup, err)
		s.reject(OpSignup, ErrPartialSignup.Error()+"; please log in")
		return wrapped
	}

	s.fulfillIdentity(OpSignup, account)
	return nil
}

// Logout destroys the current remote session. Local identity is cleared
// unconditionally: once teardown was attempted the held session is not
// trustworthy regardless of the remote outcome detail.
func (s *Store) Logout(ctx context.Context) error {
	s.begin(OpLogout)

	err := s.api.DestroySession(ctx, "current")

	s.mu.Lock()
	s.user = nil
	s.authenticated = false
	if err != nil {
		s.ops.Reject(OpLogout, err.Error())
	} else {
		s.ops.Fulfill(OpLogout)
	}
	s.mu.Unlock()
	return err
}

// CheckAuth re-validates any existing remote session at process start.
// Having no valid session is an expected outcome, not a failure: it
// leaves the store unauthenticated with no user-visible error.
func (s *Store) CheckAuth(ctx context.Context) {
	s.begin(OpCheckAuth)

	account, err := s.api.CurrentUser(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checking = false
	if err != nil {
		s.user = nil
		s.authenticated = false
		s.ops.Settle(OpCheckAuth)
		s.logger.Debug("no existing session", "error", err)
		return
	}
	s.user = userFromAccount(account)
	s.authenticated = true
	s.ops.Fulfill(OpCheckAuth)
}

func (s *Store) begin(op string) {
	s.mu.Lock()
	s.ops.Begin(op)
	s.mu.Unlock()
}

func (s *Store) reject(op, msg string) {
	s.mu.Lock()
	s.ops.Reject(op, msg)
	s.mu.Unlock()
	s.logger.Warn("auth operation failed", "operation", op, "error", msg)
}

// fulfillIdentity installs the remote account as the signed-in user.
func (s *Store) fulfillIdentity(op string, account *appwrite.Account) {
	s.mu.Lock()
	s.user = userFromAccount(account)
	s.authenticated = true
	s.ops.Fulfill(op)
	s.mu.Unlock()
}

// loginFailureMessage turns a session-creation error into a display
// string, collapsing credential rejections into a friendlier message.
func loginFailureMessage(err error) string {
	if appwrite.IsAuthError(err) {
		return "invalid email or password"
	}
	return err.Error()
}

func userFromAccount(account *appwrite.Account) *User {
	return &User{
		ID:        account.ID,
		Name:      account.Name,
		Email:     account.Email,
		CreatedAt: account.CreatedAt,
	}
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	copied := *u
	return &copied
}
