package keyexchange

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"collab/backend/internal/domain/usage"
	"collab/backend/internal/middleware"
	"collab/backend/internal/ratelimit"
)

const (
	adminToken  = "admin-token-0123456789abcdef"
	backupToken = "backup-token-0123456789abcdef"
	apiKey      = "AIza-secret-api-key"
)

type recordingUsage struct {
	mu      sync.Mutex
	entries []usage.Entry
}

func (r *recordingUsage) Log(_ context.Context, e usage.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingUsage) Track(context.Context, string, string, map[string]any) {}

type fakeVerifier map[string]*auth.Token

func (f fakeVerifier) VerifyIDToken(_ context.Context, tok string) (*auth.Token, error) {
	if t, ok := f[tok]; ok {
		return t, nil
	}
	return nil, errors.New("invalid")
}

func newService(t *testing.T, cfg Config, max int, v fakeVerifier) (*Service, *recordingUsage) {
	t.Helper()
	store := ratelimit.NewMemoryStore(0, time.Minute, nil)
	t.Cleanup(store.Stop)
	rec := &recordingUsage{}
	var verifier middleware.TokenVerifier
	if v != nil {
		verifier = v
	}
	return NewService(cfg, ratelimit.New(store, max, time.Minute), verifier, rec, zap.NewNop()), rec
}

func defaultConfig() Config {
	return Config{AdminTokens: []string{adminToken, backupToken}, Secret: apiKey}
}

func TestExchangeSuccess(t *testing.T) {
	svc, rec := newService(t, defaultConfig(), 10, nil)

	for _, tok := range []string{adminToken, backupToken} {
		res, err := svc.Exchange(context.Background(), "198.51.100.1", "Bearer "+tok)
		require.NoError(t, err)
		assert.Equal(t, apiKey, res.APIKey)
		assert.Equal(t, 3600, res.ExpiresIn)
		_, perr := time.Parse(time.RFC3339, res.Timestamp)
		assert.NoError(t, perr)
	}

	require.Len(t, rec.entries, 2)
	assert.Equal(t, adminToken[:8]+"...", rec.entries[0].TokenPrefix)
	assert.Equal(t, backupToken[:8]+"...", rec.entries[1].TokenPrefix)
	assert.Equal(t, "admin-token", rec.entries[0].Caller)
	for _, e := range rec.entries {
		assert.True(t, e.Success)
		assert.Equal(t, usage.KindKeyExchange, e.Kind)
		assert.Equal(t, "admin-token", e.Caller)
	}
}

func TestExchangeRejectsMalformedTokens(t *testing.T) {
	svc, rec := newService(t, defaultConfig(), 1000, nil)

	headers := []string{
		"",
		"Bearer",
		"Bearer ",
		"Basic " + adminToken,
		adminToken,
		"Bearer short",
		"Bearer " + adminToken[:len(adminToken)-1],
		"Bearer " + adminToken + "x",
		"Bearer " + strings.ToUpper(adminToken),
		"Bearer " + apiKey,
	}
	for _, h := range headers {
		res, err := svc.Exchange(context.Background(), "198.51.100.2", h)
		assert.Nil(t, res, "header %q", h)
		assert.True(t, IsErrUnauthorized(err), "header %q: %v", h, err)
	}

	for _, e := range rec.entries {
		assert.False(t, e.Success)
		assert.NotContains(t, e.TokenPrefix, adminToken)
		assert.LessOrEqual(t, len(strings.TrimSuffix(e.TokenPrefix, "...")), 8)
	}
}

func TestExchangeRateLimitBeforeTokenCheck(t *testing.T) {
	svc, rec := newService(t, defaultConfig(), 10, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := svc.Exchange(ctx, "203.0.113.5", "Bearer wrong-token-000000000000")
		require.True(t, IsErrUnauthorized(err))
	}

	res, err := svc.Exchange(ctx, "203.0.113.5", "Bearer "+adminToken)
	assert.Nil(t, res)
	require.True(t, IsErrRateLimited(err))
	var rl *RateLimitedError
	require.True(t, errors.As(err, &rl))
	assert.GreaterOrEqual(t, rl.Decision.RetryAfterSeconds(), 1)

	// other addresses are unaffected
	_, err = svc.Exchange(ctx, "203.0.113.6", "Bearer "+adminToken)
	assert.NoError(t, err)

	assert.Len(t, rec.entries, 12)
	assert.False(t, rec.entries[10].Success)
}

func TestExchangeMisconfigured(t *testing.T) {
	svc, _ := newService(t, Config{AdminTokens: []string{adminToken}}, 10, nil)
	_, err := svc.Exchange(context.Background(), "ip", "Bearer "+adminToken)
	assert.True(t, IsErrMisconfigured(err))

	svc, _ = newService(t, Config{Secret: apiKey}, 10, nil)
	_, err = svc.Exchange(context.Background(), "ip", "Bearer "+adminToken)
	assert.True(t, IsErrMisconfigured(err))
}

func TestExchangeAcceptsScopedIDToken(t *testing.T) {
	v := fakeVerifier{
		"header.admin.sig":   {UID: "admin-uid", Claims: map[string]any{"admin": true}},
		"header.scoped.sig0": {UID: "svc-uid", Claims: map[string]any{"scope": "keys:read"}},
		"header.plain.sig00": {UID: "user-uid", Claims: map[string]any{"role": "user"}},
	}
	svc, rec := newService(t, defaultConfig(), 100, v)
	ctx := context.Background()

	res, err := svc.Exchange(ctx, "ip", "Bearer header.admin.sig")
	require.NoError(t, err)
	assert.Equal(t, apiKey, res.APIKey)

	_, err = svc.Exchange(ctx, "ip", "Bearer header.scoped.sig0")
	require.NoError(t, err)

	_, err = svc.Exchange(ctx, "ip", "Bearer header.plain.sig00")
	assert.True(t, IsErrUnauthorized(err))

	assert.Equal(t, "admin-uid", rec.entries[0].Caller)
	assert.Equal(t, "svc-uid", rec.entries[1].Caller)
}

// The comparison works on fixed-size digests, so a token differing at its
// first byte should cost the same as one differing at its last byte.
func TestMatchSharedTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("timing measurement skipped in -short mode")
	}
	svc, _ := newService(t, defaultConfig(), 10, nil)

	early := "X" + adminToken[1:]
	late := adminToken[:len(adminToken)-1] + "X"

	measure := func(tok string) time.Duration {
		const rounds = 2000
		samples := make([]time.Duration, 0, 50)
		for s := 0; s < 50; s++ {
			start := time.Now()
			for i := 0; i < rounds; i++ {
				if svc.matchShared(tok) {
					t.Fatal("unexpected match")
				}
			}
			samples = append(samples, time.Since(start))
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
		return samples[len(samples)/2]
	}

	a, b := measure(early), measure(late)
	ratio := float64(a) / float64(b)
	assert.InDelta(t, 1.0, ratio, 0.5, "median early=%v late=%v", a, b)
}

func TestShortConfiguredTokensAreDropped(t *testing.T) {
	store := ratelimit.NewMemoryStore(0, time.Minute, nil)
	t.Cleanup(store.Stop)
	core, logs := observer.New(zap.WarnLevel)
	cfg := Config{AdminTokens: []string{"s3cret-admin", adminToken}, Secret: apiKey}
	svc := NewService(cfg, ratelimit.New(store, 10, time.Minute), nil, &recordingUsage{}, zap.New(core))

	entries := logs.FilterMessage("admin token ignored: shorter than minimum length").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(0), entries[0].ContextMap()["index"])

	_, err := svc.Exchange(context.Background(), "198.51.100.1", "Bearer "+adminToken)
	assert.NoError(t, err)
}

func TestOnlyShortConfiguredTokensIsMisconfigured(t *testing.T) {
	store := ratelimit.NewMemoryStore(0, time.Minute, nil)
	t.Cleanup(store.Stop)
	core, logs := observer.New(zap.WarnLevel)
	cfg := Config{AdminTokens: []string{"s3cret-admin"}, Secret: apiKey}
	svc := NewService(cfg, ratelimit.New(store, 10, time.Minute), nil, &recordingUsage{}, zap.New(core))

	assert.Equal(t, 1, logs.FilterMessage("key exchange has no usable admin token and no ID-token verifier").Len())

	_, err := svc.Exchange(context.Background(), "198.51.100.1", "Bearer s3cret-admin")
	assert.ErrorIs(t, err, ErrMisconfigured)
}
