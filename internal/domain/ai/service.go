package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"collab/backend/internal/domain/usage"
)

const MaxPromptChars = 30000

var (
	ErrBadRequest    = errors.New("bad request")
	ErrMisconfigured = errors.New("AI service not configured")
	ErrUpstream      = errors.New("AI service error")
)

func IsErrBadRequest(err error) bool    { return errors.Is(err, ErrBadRequest) }
func IsErrMisconfigured(err error) bool { return errors.Is(err, ErrMisconfigured) }
func IsErrUpstream(err error) bool      { return errors.Is(err, ErrUpstream) }

var allowedModels = map[string]bool{
	"gemini-1.5-flash": true,
	"gemini-1.5-pro":   true,
	"gemini-pro":       true,
	"gemini-2.0-flash": true,
}

var featureInstructions = map[string]string{
	"code":       "You are a senior software engineer helping a team. Answer with working code and short explanations.",
	"summarize":  "Summarize the user's content concisely, keeping decisions and action items.",
	"brainstorm": "Brainstorm several distinct ideas as a bulleted list.",
	"review":     "Review the user's text or code and list concrete problems and improvements.",
	"tasks":      "Break the user's goal into a short ordered list of actionable project tasks.",
	"translate":  "Translate the user's content, preserving formatting.",
}

// Generator is the upstream model API.
type Generator interface {
	GenerateContent(ctx context.Context, model string, req *GenerateRequest) (*GenerateResponse, error)
}

type Config struct {
	APIKey       string
	DefaultModel string
	MaxRPS       float64
}

type Service struct {
	gen          Generator
	hasKey       bool
	defaultModel string
	limiter      *rate.Limiter
	usage        usage.Recorder
	log          *zap.Logger
}

func NewService(cfg Config, gen Generator, rec usage.Recorder, log *zap.Logger) *Service {
	s := &Service{
		gen:          gen,
		hasKey:       cfg.APIKey != "",
		defaultModel: cfg.DefaultModel,
		usage:        rec,
		log:          log,
	}
	if !allowedModels[s.defaultModel] {
		s.defaultModel = "gemini-1.5-flash"
	}
	if cfg.MaxRPS > 0 {
		burst := int(cfg.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}
	return s
}

type GenerateInput struct {
	Prompt   string   `json:"prompt"`
	Model    string   `json:"model,omitempty"`
	Features []string `json:"features,omitempty"`
}

type Result struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	Model     string          `json:"model"`
}

// ResolveModel returns model when it is allowed and the default otherwise.
func (s *Service) ResolveModel(model string) string {
	model = strings.TrimSpace(model)
	if allowedModels[model] {
		return model
	}
	return s.defaultModel
}

func systemInstruction(features []string) *Content {
	var parts []Part
	seen := map[string]bool{}
	for _, f := range features {
		f = strings.ToLower(strings.TrimSpace(f))
		if seen[f] {
			continue
		}
		seen[f] = true
		if text, ok := featureInstructions[f]; ok {
			parts = append(parts, Part{Text: text})
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return &Content{Parts: parts}
}

// Generate forwards one prompt upstream. It never retries; every call leaves
// a usage entry attributed to uid.
func (s *Service) Generate(ctx context.Context, uid, ip string, in GenerateInput) (*Result, error) {
	model := s.ResolveModel(in.Model)
	entry := usage.Entry{
		Caller:      uid,
		Kind:        usage.KindAIGenerate,
		IP:          ip,
		Model:       model,
		PromptChars: utf8.RuneCountInString(in.Prompt),
	}

	res, err := s.generate(ctx, model, in)
	entry.Success = err == nil
	if err != nil {
		entry.Reason = err.Error()
	}
	s.usage.Log(ctx, entry)
	return res, err
}

func (s *Service) generate(ctx context.Context, model string, in GenerateInput) (*Result, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrBadRequest)
	}
	if utf8.RuneCountInString(in.Prompt) > MaxPromptChars {
		return nil, fmt.Errorf("%w: prompt exceeds %d characters", ErrBadRequest, MaxPromptChars)
	}
	if !s.hasKey {
		return nil, ErrMisconfigured
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	}

	resp, err := s.gen.GenerateContent(ctx, model, &GenerateRequest{
		Contents:          []Content{{Role: "user", Parts: []Part{{Text: in.Prompt}}}},
		SystemInstruction: systemInstruction(in.Features),
	})
	if err != nil {
		s.log.Warn("ai upstream failed", zap.String("model", model), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return &Result{
		Success:   true,
		Data:      resp.Raw,
		Text:      resp.Text,
		Timestamp: time.Now().UTC(),
		Model:     model,
	}, nil
}
