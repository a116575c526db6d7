// Package generate runs the prefill and decode/sample loop for one request.
package generate

import (
	"errors"
	"fmt"
	"strings"

	"llmcore/internal/backend"
	"llmcore/internal/llmerr"
	"llmcore/internal/prompt"
	"llmcore/internal/tokenizer"
)

// State is the position of a Session in the generation state machine.
type State int

const (
	StatePrefill State = iota
	StateDecoding
	StateEndOfSequence
	StateMaxTokensReached
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePrefill:
		return "prefill"
	case StateDecoding:
		return "decoding"
	case StateEndOfSequence:
		return "end_of_sequence"
	case StateMaxTokensReached:
		return "max_tokens_reached"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options are the per-request generation parameters.
type Options struct {
	ContextSize int
	Temperature float32
	MaxTokens   int
	Sampler     *Sampler
	// OnToken, when set, receives each fragment in order once its token
	// has been submitted to the context.
	OnToken func(piece string)
}

// Result is the outcome of a finished Session.
type Result struct {
	Content         string
	TokensGenerated int
	PromptTokens    int
	// Final is StateEndOfSequence or StateMaxTokensReached.
	Final State
}

// FinishReason maps Final to the wire vocabulary.
func (r Result) FinishReason() string {
	if r.Final == StateMaxTokensReached {
		return "length"
	}
	return "stop"
}

var errNotDecoding = errors.New("session is not decoding")

// Session is the transient state of one generation request. It owns its
// execution context, which is never shared.
type Session struct {
	model backend.Model
	tok   *tokenizer.Adapter
	opts  Options

	ctx       backend.Context
	prompt    []backend.Token
	cursor    int
	out       strings.Builder
	generated int
	state     State
	final     State
}

// NewSession prepares a session; no backend work happens until Prefill.
func NewSession(model backend.Model, tok *tokenizer.Adapter, opts Options) *Session {
	if opts.Sampler == nil {
		opts.Sampler = NewSampler(nil)
	}
	return &Session{model: model, tok: tok, opts: opts, state: StatePrefill}
}

func (s *Session) State() State      { return s.state }
func (s *Session) Cursor() int       { return s.cursor }
func (s *Session) Generated() int    { return s.generated }
func (s *Session) PromptTokens() int { return len(s.prompt) }
func (s *Session) Text() string      { return s.out.String() }

// Prefill creates the execution context, encodes text and submits the whole
// prompt as one batch.
func (s *Session) Prefill(text string) error {
	if s.state != StatePrefill {
		return fmt.Errorf("prefill: session already in state %s", s.state)
	}
	ctx, err := s.model.NewContext(s.opts.ContextSize)
	if err != nil {
		return llmerr.New(llmerr.KindContextCreate, "prefill", err)
	}
	s.ctx = ctx
	toks, err := s.tok.Encode(text)
	if err != nil {
		return err
	}
	if len(toks) >= s.opts.ContextSize {
		return llmerr.Newf(llmerr.KindBatch, "prefill",
			"prompt of %d tokens leaves no room in the %d-token context window", len(toks), s.opts.ContextSize)
	}
	if err := s.ctx.Decode(toks, 0); err != nil {
		return llmerr.New(llmerr.KindBatch, "prefill", err)
	}
	s.prompt = toks
	s.cursor = len(toks)
	s.state = StateDecoding
	if s.opts.MaxTokens <= 0 {
		s.state = StateMaxTokensReached
	}
	return nil
}

// Step samples one token. It returns StateDecoding while more steps may
// follow, or the terminal state reached.
func (s *Session) Step() (State, error) {
	if s.state != StateDecoding {
		return s.state, errNotDecoding
	}
	tok := s.ctx.Sample(s.opts.Sampler.Params(s.opts.Temperature))
	if s.tok.IsEndOfGeneration(tok) {
		s.state = StateEndOfSequence
		return s.state, nil
	}
	piece, err := s.tok.Decode(tok)
	if err != nil {
		return s.state, err
	}
	if s.cursor >= s.opts.ContextSize {
		return s.state, llmerr.Newf(llmerr.KindBatch, "decode",
			"context window of %d tokens exhausted after %d generated tokens", s.opts.ContextSize, s.generated)
	}
	if err := s.ctx.Decode([]backend.Token{tok}, s.cursor); err != nil {
		return s.state, llmerr.New(llmerr.KindBatch, fmt.Sprintf("decode token %d", s.generated+1), err)
	}
	s.cursor++
	// A fragment is only visible once its token is part of the context.
	s.out.WriteString(piece)
	s.generated++
	if s.opts.OnToken != nil {
		s.opts.OnToken(piece)
	}
	if s.generated >= s.opts.MaxTokens {
		s.state = StateMaxTokensReached
	}
	return s.state, nil
}

// Finish trims the output, strips a trailing end-of-turn marker and moves
// the session to StateDone.
func (s *Session) Finish() Result {
	if s.state != StateDone {
		s.final = s.state
	}
	s.state = StateDone
	content := strings.TrimSpace(s.out.String())
	if strings.HasSuffix(content, prompt.EndOfTurn) {
		content = strings.TrimSpace(strings.TrimSuffix(content, prompt.EndOfTurn))
	}
	return Result{
		Content:         content,
		TokensGenerated: s.generated,
		PromptTokens:    len(s.prompt),
		Final:           s.final,
	}
}

// Close releases the execution context.
func (s *Session) Close() error {
	if s.ctx == nil {
		return nil
	}
	err := s.ctx.Close()
	s.ctx = nil
	return err
}

// Run drives a fresh session from prefill to completion. On any error the
// accumulated text is discarded.
func Run(model backend.Model, tok *tokenizer.Adapter, text string, opts Options) (Result, error) {
	s := NewSession(model, tok, opts)
	defer s.Close()
	if err := s.Prefill(text); err != nil {
		return Result{}, err
	}
	for s.State() == StateDecoding {
		if _, err := s.Step(); err != nil {
			return Result{}, err
		}
	}
	return s.Finish(), nil
}
