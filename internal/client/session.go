package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	authdom "collab/backend/internal/domain/auth"
	"collab/backend/internal/domain/user"
)

type State int

const (
	SignedOut State = iota
	SignedIn
)

func (s State) String() string {
	if s == SignedIn {
		return "signed-in"
	}
	return "signed-out"
}

// Credentials is what a signed-in session holds. It is also the on-disk
// format written by Save.
type Credentials struct {
	UID          string       `json:"uid"`
	User         *user.Record `json:"user,omitempty"`
	IDToken      string       `json:"idToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

// Expired reports whether the ID token is past (or within skew of) its expiry.
func (c *Credentials) Expired(now time.Time, skew time.Duration) bool {
	return c.ExpiresAt.IsZero() || !now.Add(skew).Before(c.ExpiresAt)
}

// Change is delivered to subscribers on every transition.
type Change struct {
	From, To State
	Creds    *Credentials
}

type authReply struct {
	Success      bool         `json:"success"`
	User         *user.Record `json:"user"`
	UID          string       `json:"uid"`
	IDToken      string       `json:"idToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int          `json:"expiresIn"`
	Error        string       `json:"error"`
}

// Session is the client-side sign-in state. Failed sign-ins leave it
// signed out and return the server's message as an *APIError.
type Session struct {
	api *Client

	mu     sync.RWMutex
	state  State
	creds  *Credentials
	subs   map[int]func(Change)
	nextID int
	now    func() time.Time
}

func NewSession(api *Client) *Session {
	return &Session{api: api, subs: map[int]func(Change){}, now: time.Now}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Credentials returns a copy of the current credentials, or nil when signed out.
func (s *Session) Credentials() *Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return nil
	}
	c := *s.creds
	return &c
}

// IDToken implements TokenSource.
func (s *Session) IDToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return ""
	}
	return s.creds.IDToken
}

// Subscribe registers fn for transitions and returns a function removing it.
// Subscribers are called synchronously, in transition order.
func (s *Session) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) transition(to State, creds *Credentials) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.creds = creds
	fns := make([]func(Change), 0, len(s.subs))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	var snapshot *Credentials
	if creds != nil {
		c := *creds
		snapshot = &c
	}
	for _, fn := range fns {
		fn(Change{From: from, To: to, Creds: snapshot})
	}
}

func (s *Session) authCall(ctx context.Context, path, bearer string, body any) (*authReply, error) {
	var out authReply
	if err := s.api.do(ctx, http.MethodPost, path, bearer, body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &APIError{Status: http.StatusOK, Message: out.Error}
	}
	return &out, nil
}

func (s *Session) establish(ctx context.Context, path string, body any) (*Credentials, error) {
	out, err := s.authCall(ctx, path, "", body)
	if err != nil {
		return nil, err
	}
	creds := &Credentials{
		UID:          out.UID,
		User:         out.User,
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    s.now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}
	s.transition(SignedIn, creds)
	return creds, nil
}

func (s *Session) SignIn(ctx context.Context, email, password string) (*Credentials, error) {
	return s.establish(ctx, "/api/auth/signin", authdom.Credentials{Email: email, Password: password})
}

func (s *Session) SignUp(ctx context.Context, email, password, displayName string) (*Credentials, error) {
	return s.establish(ctx, "/api/auth/signup", authdom.SignUpInput{
		Credentials: authdom.Credentials{Email: email, Password: password},
		DisplayName: displayName,
	})
}

func (s *Session) SignInWithProvider(ctx context.Context, cred authdom.IdpCredential) (*Credentials, error) {
	return s.establish(ctx, "/api/auth/oauth", cred)
}

// SignOut revokes the server-side refresh tokens and always ends signed out,
// even when the revoke call fails.
func (s *Session) SignOut(ctx context.Context) error {
	tok := s.IDToken()
	if tok == "" {
		return nil
	}
	_, err := s.authCall(ctx, "/api/auth/signout", tok, nil)
	s.transition(SignedOut, nil)
	return err
}

func (s *Session) ResetPassword(ctx context.Context, email string) error {
	_, err := s.authCall(ctx, "/api/auth/password-reset", "", map[string]string{"email": email})
	return err
}

// Refresh exchanges the refresh token for a new ID token. A rejected refresh
// token signs the session out.
func (s *Session) Refresh(ctx context.Context) error {
	cur := s.Credentials()
	if cur == nil || cur.RefreshToken == "" {
		return errors.New("not signed in")
	}
	out, err := s.authCall(ctx, "/api/auth/refresh", "", map[string]string{"refreshToken": cur.RefreshToken})
	if err != nil {
		if st := StatusOf(err); st == http.StatusUnauthorized || st == http.StatusBadRequest {
			s.transition(SignedOut, nil)
		}
		return err
	}
	cur.IDToken = out.IDToken
	if out.RefreshToken != "" {
		cur.RefreshToken = out.RefreshToken
	}
	cur.ExpiresAt = s.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	s.transition(SignedIn, cur)
	return nil
}

// EnsureFresh refreshes the ID token when it expires within skew.
func (s *Session) EnsureFresh(ctx context.Context, skew time.Duration) error {
	cur := s.Credentials()
	if cur == nil {
		return errors.New("not signed in")
	}
	if !cur.Expired(s.now(), skew) {
		return nil
	}
	return s.Refresh(ctx)
}

// Restore puts previously saved credentials back without a network call.
func (s *Session) Restore(creds *Credentials) {
	if creds == nil || creds.IDToken == "" {
		s.transition(SignedOut, nil)
		return
	}
	c := *creds
	s.transition(SignedIn, &c)
}

// Save writes the credentials to path with owner-only permissions, or
// removes the file when signed out.
func (s *Session) Save(path string) error {
	creds := s.Credentials()
	if creds == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove session file: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	buf, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// LoadCredentials reads a file written by Save. A missing file yields nil.
func LoadCredentials(path string) (*Credentials, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(buf, &c); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return &c, nil
}
