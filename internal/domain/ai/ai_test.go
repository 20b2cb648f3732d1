package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"collab/backend/internal/domain/usage"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []usage.Entry
}

func (m *memRecorder) Log(_ context.Context, e usage.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *memRecorder) Track(context.Context, string, string, map[string]any) {}

func geminiServer(t *testing.T, status int, body string, seen *GenerateRequest, path *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*path = r.URL.Path
		assert.Equal(t, "server-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okBody = `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello "},{"text":"there"}]},"finishReason":"STOP"}]}`

func TestGenerateForwardsToModel(t *testing.T) {
	var seen GenerateRequest
	var path string
	srv := geminiServer(t, http.StatusOK, okBody, &seen, &path)
	rec := &memRecorder{}
	svc := NewService(Config{APIKey: "server-key", DefaultModel: "gemini-1.5-flash"},
		NewClient("server-key", WithBaseURL(srv.URL)), rec, zap.NewNop())

	res, err := svc.Generate(context.Background(), "u1", "1.2.3.4", GenerateInput{
		Prompt:   "Say hi",
		Model:    "gemini-1.5-pro",
		Features: []string{"code", "CODE", "unknown"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Hello there", res.Text)
	assert.Equal(t, "gemini-1.5-pro", res.Model)
	assert.JSONEq(t, okBody, string(res.Data))
	assert.Equal(t, "/v1beta/models/gemini-1.5-pro:generateContent", path)

	require.Len(t, seen.Contents, 1)
	assert.Equal(t, "Say hi", seen.Contents[0].Parts[0].Text)
	require.NotNil(t, seen.SystemInstruction)
	assert.Len(t, seen.SystemInstruction.Parts, 1)

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, "u1", e.Caller)
	assert.Equal(t, usage.KindAIGenerate, e.Kind)
	assert.True(t, e.Success)
	assert.Equal(t, 6, e.PromptChars)
}

func TestGenerateUnknownModelUsesDefault(t *testing.T) {
	var seen GenerateRequest
	var path string
	srv := geminiServer(t, http.StatusOK, okBody, &seen, &path)
	svc := NewService(Config{APIKey: "server-key", DefaultModel: "gemini-2.0-flash"},
		NewClient("server-key", WithBaseURL(srv.URL)), usage.Nop{}, zap.NewNop())

	res, err := svc.Generate(context.Background(), "u1", "", GenerateInput{Prompt: "x", Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", res.Model)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", path)
	assert.Nil(t, seen.SystemInstruction)
}

func TestGenerateUpstreamFailure(t *testing.T) {
	var seen GenerateRequest
	var path string
	srv := geminiServer(t, http.StatusTooManyRequests, `{"error":{"code":429,"message":"Resource has been exhausted"}}`, &seen, &path)
	rec := &memRecorder{}
	svc := NewService(Config{APIKey: "server-key"}, NewClient("server-key", WithBaseURL(srv.URL)), rec, zap.NewNop())

	_, err := svc.Generate(context.Background(), "u1", "", GenerateInput{Prompt: "x"})
	assert.True(t, IsErrUpstream(err))
	assert.Contains(t, err.Error(), "Resource has been exhausted")
	require.Len(t, rec.entries, 1)
	assert.False(t, rec.entries[0].Success)
}

type countingGenerator struct{ calls int }

func (c *countingGenerator) GenerateContent(context.Context, string, *GenerateRequest) (*GenerateResponse, error) {
	c.calls++
	return &GenerateResponse{Raw: json.RawMessage(`{}`)}, nil
}

func TestGenerateValidation(t *testing.T) {
	gen := &countingGenerator{}
	rec := &memRecorder{}
	svc := NewService(Config{APIKey: "k"}, gen, rec, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Generate(ctx, "u1", "", GenerateInput{Prompt: "   "})
	assert.True(t, IsErrBadRequest(err))

	_, err = svc.Generate(ctx, "u1", "", GenerateInput{Prompt: strings.Repeat("a", MaxPromptChars+1)})
	assert.True(t, IsErrBadRequest(err))

	_, err = svc.Generate(ctx, "u1", "", GenerateInput{Prompt: strings.Repeat("é", MaxPromptChars)})
	require.NoError(t, err)

	assert.Equal(t, 1, gen.calls)
	assert.Len(t, rec.entries, 3)
}

func TestGenerateMissingKey(t *testing.T) {
	gen := &countingGenerator{}
	svc := NewService(Config{}, gen, usage.Nop{}, zap.NewNop())
	_, err := svc.Generate(context.Background(), "u1", "", GenerateInput{Prompt: "hi"})
	assert.True(t, IsErrMisconfigured(err))
	assert.Zero(t, gen.calls)
}

func TestGenerateRateCapHonoursContext(t *testing.T) {
	gen := &countingGenerator{}
	svc := NewService(Config{APIKey: "k", MaxRPS: 0.001}, gen, usage.Nop{}, zap.NewNop())

	_, err := svc.Generate(context.Background(), "u1", "", GenerateInput{Prompt: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Generate(ctx, "u1", "", GenerateInput{Prompt: "second"})
	assert.True(t, IsErrUpstream(err))
	assert.Equal(t, 1, gen.calls)
}

func TestClientHidesKeyOnTransportError(t *testing.T) {
	c := NewClient("super-secret-key", WithBaseURL("http://127.0.0.1:1"))
	_, err := c.GenerateContent(context.Background(), "gemini-pro", &GenerateRequest{})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-key")
}
