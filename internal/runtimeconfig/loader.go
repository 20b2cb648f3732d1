package runtimeconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultTimeout = 5 * time.Second

type Status int

const (
	StatusLoaded Status = iota + 1
	StatusIncomplete
	StatusFallback
)

func (s Status) String() string {
	switch s {
	case StatusLoaded:
		return "config loaded"
	case StatusIncomplete:
		return "config incomplete"
	case StatusFallback:
		return "config load failed, using fallback"
	}
	return "config pending"
}

// Result is what the loader signals once. Config is never empty.
type Result struct {
	Status  Status
	Config  Config
	Missing []string // required keys absent, for StatusIncomplete
	Err     error    // cause, for StatusFallback
	Elapsed time.Duration
}

// Degraded reports whether the client runs on fallback values.
func (r Result) Degraded() bool { return r.Status == StatusFallback }

type LoaderOption func(*Loader)

func WithTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) LoaderOption {
	return func(l *Loader) { l.httpClient = hc }
}

func WithLogger(log *zap.Logger) LoaderOption {
	return func(l *Loader) { l.log = log }
}

// Loader fetches the runtime configuration once. Consumers wait on Ready or
// subscribe with OnReady; nothing should read configuration before that.
type Loader struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
	log        *zap.Logger

	once      sync.Once
	ready     chan struct{}
	mu        sync.Mutex
	result    Result
	listeners []func(Result)
}

// NewLoader builds a loader for the /api/config endpoint under baseURL.
func NewLoader(baseURL string, opts ...LoaderOption) *Loader {
	l := &Loader{
		url:        strings.TrimSuffix(baseURL, "/") + "/api/config",
		timeout:    DefaultTimeout,
		httpClient: http.DefaultClient,
		log:        zap.NewNop(),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnReady registers fn to be called with the result. Listeners registered
// after the signal are called immediately.
func (l *Loader) OnReady(fn func(Result)) {
	l.mu.Lock()
	select {
	case <-l.ready:
		res := l.result
		l.mu.Unlock()
		fn(res)
		return
	default:
	}
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *Loader) Ready() <-chan struct{} { return l.ready }

// Result returns the loaded result and whether loading has finished.
func (l *Loader) Result() (Result, bool) {
	select {
	case <-l.ready:
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the loader has signalled or ctx ends.
func (l *Loader) Wait(ctx context.Context) (Result, error) {
	select {
	case <-l.ready:
		res, _ := l.Result()
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Load fetches the configuration on the first call and returns the stored
// result afterwards. It never fails: errors produce StatusFallback.
func (l *Loader) Load(ctx context.Context) Result {
	l.once.Do(func() {
		start := time.Now()
		res := l.fetch(ctx)
		res.Elapsed = time.Since(start)
		l.logResult(res)

		l.mu.Lock()
		l.result = res
		listeners := l.listeners
		l.listeners = nil
		close(l.ready)
		l.mu.Unlock()

		for _, fn := range listeners {
			fn(res)
		}
	})
	res, _ := l.Result()
	return res
}

type wirePayload struct {
	Success bool               `json:"success"`
	Config  map[string]*string `json:"config"`
	Error   string             `json:"error"`
}

func (l *Loader) fetch(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	fallback := func(err error) Result {
		return Result{Status: StatusFallback, Config: Fallback(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return fallback(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fallback(fmt.Errorf("config request timed out after %s", l.timeout))
		}
		return fallback(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fallback(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fallback(fmt.Errorf("config endpoint returned status %d", resp.StatusCode))
	}

	var p wirePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return fallback(fmt.Errorf("malformed config payload: %w", err))
	}
	if !p.Success {
		return fallback(fmt.Errorf("config endpoint reported failure: %s", p.Error))
	}

	values := make(map[string]string, len(p.Config))
	for k, v := range p.Config {
		if v != nil {
			values[k] = *v
		}
	}
	cfg := Defaults().Merge(values)
	if missing := cfg.Missing(Required...); len(missing) > 0 {
		return Result{Status: StatusIncomplete, Config: cfg, Missing: missing}
	}
	return Result{Status: StatusLoaded, Config: cfg}
}

func (l *Loader) logResult(res Result) {
	switch res.Status {
	case StatusLoaded:
		l.log.Info(res.Status.String(), zap.Duration("elapsed", res.Elapsed))
	case StatusIncomplete:
		l.log.Warn(res.Status.String(), zap.Strings("missing", res.Missing))
	case StatusFallback:
		l.log.Warn(res.Status.String(), zap.Bool("degraded", true), zap.Error(res.Err))
	}
}
