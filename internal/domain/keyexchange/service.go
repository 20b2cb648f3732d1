package keyexchange

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"collab/backend/internal/domain/usage"
	"collab/backend/internal/logging"
	"collab/backend/internal/middleware"
	"collab/backend/internal/ratelimit"
)

const (
	// MinTokenLength rejects obviously short bearer values before comparison.
	MinTokenLength = 16
	// ExpiresIn is the advisory validity returned to clients. It is not enforced.
	ExpiresIn = 3600
	// ScopeKeysRead authorises an ID token to receive the key.
	ScopeKeysRead = "keys:read"
)

type Result struct {
	APIKey    string `json:"apiKey"`
	Timestamp string `json:"timestamp"`
	ExpiresIn int    `json:"expiresIn"`
}

type Config struct {
	// AdminTokens are the shared secrets accepted as bearer values.
	AdminTokens []string
	// Secret is the value handed out on success.
	Secret string
}

type Service struct {
	cfg      Config
	digests  [][sha256.Size]byte
	limiter  *ratelimit.Limiter
	verifier middleware.TokenVerifier
	usage    usage.Recorder
	log      *zap.Logger
	now      func() time.Time
}

// NewService builds the key-exchange gate. verifier may be nil, in which case
// only the shared admin tokens are accepted.
func NewService(cfg Config, limiter *ratelimit.Limiter, verifier middleware.TokenVerifier, rec usage.Recorder, log *zap.Logger) *Service {
	s := &Service{
		cfg:      cfg,
		limiter:  limiter,
		verifier: verifier,
		usage:    rec,
		log:      log,
		now:      time.Now,
	}
	for i, t := range cfg.AdminTokens {
		if len(t) < MinTokenLength {
			log.Error("admin token ignored: shorter than minimum length",
				zap.Int("index", i), zap.Int("length", len(t)), zap.Int("min", MinTokenLength))
			continue
		}
		s.digests = append(s.digests, sha256.Sum256([]byte(t)))
	}
	if len(s.digests) == 0 && verifier == nil {
		log.Error("key exchange has no usable admin token and no ID-token verifier")
	}
	return s
}

// Exchange runs the gate for one request: rate limit by ip, configuration
// check, bearer validation. Every attempt is written to the usage log with at
// most a short token prefix.
func (s *Service) Exchange(ctx context.Context, ip, authorization string) (*Result, error) {
	token := bearer(authorization)
	entry := usage.Entry{
		Kind:        usage.KindKeyExchange,
		IP:          ip,
		TokenPrefix: logging.TokenPrefix(token),
	}

	res, caller, err := s.exchange(ctx, ip, token)
	entry.Caller = caller
	entry.Success = err == nil
	if err != nil {
		entry.Reason = err.Error()
		s.log.Warn("key exchange rejected", zap.String("ip", ip), zap.String("token_prefix", entry.TokenPrefix), zap.Error(err))
	} else {
		s.log.Info("key exchange granted", zap.String("ip", ip), zap.String("caller", caller))
	}
	s.usage.Log(ctx, entry)
	return res, err
}

func (s *Service) exchange(ctx context.Context, ip, token string) (*Result, string, error) {
	d, err := s.limiter.Allow(ctx, ip)
	if err != nil {
		// A broken shared store must not lock every caller out.
		s.log.Warn("rate limit store failed", zap.Error(err))
	} else if !d.Allowed {
		return nil, "", &RateLimitedError{Decision: d}
	}

	if s.cfg.Secret == "" || (len(s.digests) == 0 && s.verifier == nil) {
		return nil, "", ErrMisconfigured
	}

	if len(token) < MinTokenLength {
		return nil, "", fmt.Errorf("%w: missing or malformed token", ErrUnauthorized)
	}

	if s.matchShared(token) {
		return s.result(), "admin-token", nil
	}

	if uid, ok := s.matchPrincipal(ctx, token); ok {
		return s.result(), uid, nil
	}
	return nil, "", fmt.Errorf("%w: invalid token", ErrUnauthorized)
}

// matchShared compares SHA-256 digests so the comparison length never depends
// on the secret, and checks every configured token without short-circuiting.
func (s *Service) matchShared(token string) bool {
	sum := sha256.Sum256([]byte(token))
	match := 0
	for i := range s.digests {
		match |= subtle.ConstantTimeCompare(sum[:], s.digests[i][:])
	}
	return match == 1
}

// matchPrincipal accepts a verified Firebase ID token whose claims grant admin
// or the keys:read scope.
func (s *Service) matchPrincipal(ctx context.Context, token string) (string, bool) {
	if s.verifier == nil || strings.Count(token, ".") != 2 {
		return "", false
	}
	tok, err := s.verifier.VerifyIDToken(ctx, token)
	if err != nil {
		return "", false
	}
	if middleware.IsAdmin(tok.Claims) || middleware.HasScope(tok.Claims, ScopeKeysRead) {
		return tok.UID, true
	}
	return "", false
}

func (s *Service) result() *Result {
	return &Result{
		APIKey:    s.cfg.Secret,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		ExpiresIn: ExpiresIn,
	}
}

func bearer(h string) string {
	const p = "bearer "
	if len(h) < len(p) || !strings.EqualFold(h[:len(p)], p) {
		return ""
	}
	return strings.TrimSpace(h[len(p):])
}
