// Package engine is the entry point for host applications: health, chat,
// preload, status and model listing over the shared model instance.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llmcore/internal/config"
	"llmcore/internal/generate"
	"llmcore/internal/llmerr"
	"llmcore/internal/manager"
	"llmcore/internal/metrics"
	"llmcore/internal/prompt"
	"llmcore/internal/sysinfo"
	"llmcore/pkg/types"
)

// ModelLister enumerates model artifacts on disk.
type ModelLister interface {
	Scan() ([]types.ModelEntry, error)
}

// Options wires a Service. Manager is required.
type Options struct {
	Manager *manager.Manager
	Lister  ModelLister
	Memory  sysinfo.Probe
	// Config supplies the context window and request defaults.
	Config  config.Config
	Sampler *generate.Sampler
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Service serves requests against the shared model. It is safe for
// concurrent use; generations are serialized on the model's slot.
type Service struct {
	mgr     *manager.Manager
	lister  ModelLister
	mem     sysinfo.Probe
	cfg     config.Config
	sampler *generate.Sampler
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func New(opts Options) *Service {
	s := &Service{
		mgr:     opts.Manager,
		lister:  opts.Lister,
		mem:     opts.Memory,
		cfg:     opts.Config.WithDefaults(),
		sampler: opts.Sampler,
		log:     opts.Logger.With().Str("component", "engine").Logger(),
		metrics: opts.Metrics,
	}
	if s.mem == nil {
		s.mem = sysinfo.Host{}
	}
	if s.sampler == nil {
		s.sampler = generate.NewSampler(nil)
	}
	return s
}

// Health loads the model if needed and reports whether it is usable. It
// never returns an error; failures are described in the response.
func (s *Service) Health(ctx context.Context) types.HealthResponse {
	start := time.Now()
	inst, err := s.mgr.GetOrLoad(ctx)
	s.metrics.ObserveRequest("health", err, time.Since(start))
	if err != nil {
		return types.HealthResponse{Available: false, Error: err.Error(), IsOnDevice: true}
	}
	return types.HealthResponse{Available: true, ModelName: inst.Name, IsOnDevice: true}
}

// Preload forces the model load and confirms it.
func (s *Service) Preload(ctx context.Context) (types.PreloadResponse, error) {
	start := time.Now()
	inst, err := s.mgr.GetOrLoad(ctx)
	s.metrics.ObserveRequest("preload", err, time.Since(start))
	if err != nil {
		return types.PreloadResponse{}, err
	}
	return types.PreloadResponse{Message: fmt.Sprintf("model %s loaded", inst.Name)}, nil
}

// Chat produces one assistant reply for the conversation.
func (s *Service) Chat(ctx context.Context, req types.ChatRequest) (types.ChatResponse, error) {
	return s.ChatStream(ctx, req, nil)
}

// ChatStream is Chat with onToken receiving each generated fragment as it
// is produced. The returned content is the trimmed concatenation.
func (s *Service) ChatStream(ctx context.Context, req types.ChatRequest, onToken func(string)) (types.ChatResponse, error) {
	start := time.Now()
	log := s.log.With().Str("request_id", uuid.NewString()).Logger()
	resp, err := s.chat(ctx, log, req, onToken)
	dur := time.Since(start)
	s.metrics.ObserveRequest("chat", err, dur)
	if err != nil {
		log.Error().Err(err).Str("kind", string(llmerr.KindOf(err))).Dur("dur", dur).Msg("chat failed")
		return types.ChatResponse{}, err
	}
	log.Info().
		Str("model", resp.ModelName).
		Uint32("prompt_tokens", resp.PromptTokens).
		Uint32("tokens", resp.TokensGenerated).
		Str("finish_reason", resp.FinishReason).
		Dur("dur", dur).
		Msg("chat done")
	return resp, nil
}

func (s *Service) chat(ctx context.Context, log zerolog.Logger, req types.ChatRequest, onToken func(string)) (types.ChatResponse, error) {
	temp := s.cfg.Temperature()
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	if temp < 0 || math.IsNaN(float64(temp)) || math.IsInf(float64(temp), 0) {
		return types.ChatResponse{}, llmerr.Newf(llmerr.KindInvalidRequest, "chat", "temperature must be a finite value >= 0, got %v", temp)
	}
	maxTokens := s.cfg.DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	inst, err := s.mgr.GetOrLoad(ctx)
	if err != nil {
		return types.ChatResponse{}, err
	}
	release, err := inst.Acquire(ctx)
	if err != nil {
		return types.ChatResponse{}, err
	}
	defer release()

	text := prompt.Format(req.Turns, req.SystemInstruction)
	log.Debug().
		Int("turns", len(req.Turns)).
		Float32("temperature", temp).
		Uint32("max_tokens", maxTokens).
		Msg("generation start")
	res, err := generate.Run(inst.Model(), inst.Tokenizer(), text, generate.Options{
		ContextSize: s.cfg.ContextSize,
		Temperature: temp,
		MaxTokens:   tokenBudget(maxTokens),
		Sampler:     s.sampler,
		OnToken:     onToken,
	})
	if err != nil {
		return types.ChatResponse{}, err
	}
	s.metrics.ObserveGeneration(res.PromptTokens, res.TokensGenerated, res.FinishReason())
	return types.ChatResponse{
		Content:         res.Content,
		ModelName:       inst.Name,
		Done:            true,
		TokensGenerated: uint32(res.TokensGenerated),
		PromptTokens:    uint32(res.PromptTokens),
		FinishReason:    res.FinishReason(),
	}, nil
}

// tokenBudget converts max_tokens to int without wrapping on 32-bit
// platforms. Budgets beyond the context window end in window exhaustion.
func tokenBudget(n uint32) int {
	if uint64(n) > uint64(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}

// Status reports engine state without loading the model.
func (s *Service) Status() types.StatusResponse {
	st := s.mgr.Status()
	st.ContextSize = s.cfg.ContextSize
	if mem, err := s.mem.Memory(); err == nil {
		st.MemTotalBytes = mem.Total
		st.MemAvailableBytes = mem.Available
	}
	return st
}

// Models lists the model artifacts visible to the locator.
func (s *Service) Models() (types.ModelsResponse, error) {
	if s.lister == nil {
		return types.ModelsResponse{Models: []types.ModelEntry{}}, nil
	}
	entries, err := s.lister.Scan()
	if err != nil {
		return types.ModelsResponse{}, err
	}
	if entries == nil {
		entries = []types.ModelEntry{}
	}
	return types.ModelsResponse{Models: entries}, nil
}

// Close releases the model once the running generation, if any, finishes.
func (s *Service) Close(ctx context.Context) error { return s.mgr.Close(ctx) }
