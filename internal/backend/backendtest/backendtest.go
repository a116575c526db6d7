// Package backendtest provides a scriptable in-memory backend for tests.
//
// Text is tokenized one rune per token (token id == rune), so 'A' is
// Token(65). BOS and EOG use ids below the printable range.
package backendtest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"llmcore/internal/backend"
)

const (
	BOS backend.Token = 1
	EOG backend.Token = 2
)

// Backend counts Init and LoadModel calls and hands out Model.
type Backend struct {
	InitErr   error
	LoadErr   error
	LoadDelay time.Duration
	Model     *Model

	inits atomic.Int64
	loads atomic.Int64

	mu    sync.Mutex
	paths []string
	opts  []backend.LoadOptions
}

// New returns a Backend serving a default Model.
func New() *Backend { return &Backend{Model: NewModel()} }

func (b *Backend) Init() error {
	b.inits.Add(1)
	return b.InitErr
}

func (b *Backend) LoadModel(path string, opts backend.LoadOptions) (backend.Model, error) {
	b.loads.Add(1)
	if b.LoadDelay > 0 {
		time.Sleep(b.LoadDelay)
	}
	b.mu.Lock()
	b.paths = append(b.paths, path)
	b.opts = append(b.opts, opts)
	b.mu.Unlock()
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	return b.Model, nil
}

func (b *Backend) Inits() int { return int(b.inits.Load()) }
func (b *Backend) Loads() int { return int(b.loads.Load()) }

// LoadedPaths returns the paths passed to LoadModel, in call order.
func (b *Backend) LoadedPaths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.paths...)
}

// LoadOptions returns the options passed to LoadModel, in call order.
func (b *Backend) LoadOptions() []backend.LoadOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.LoadOptions(nil), b.opts...)
}

// Model is a fake model. Zero-valued fields disable the matching behavior.
type Model struct {
	// Script lists the tokens Sample returns in order, per context. The last
	// entry repeats once the script is exhausted.
	Script []backend.Token
	// Pool is sampled by seed when Script is empty and the step is not greedy.
	Pool []backend.Token
	// GreedyToken is returned for greedy steps when Script is empty.
	GreedyToken backend.Token
	// Pieces overrides the rendering of individual tokens.
	Pieces map[backend.Token]string

	TokenizeErr error
	PieceErr    error
	ContextErr  error
	// DecodeErrAt fails the n-th Decode call of a context (1 is prefill).
	DecodeErrAt int

	contexts atomic.Int64
	closed   atomic.Bool

	mu     sync.Mutex
	params []backend.SampleParams
	ctxs   []*Context
}

// NewModel returns a Model whose greedy choice is 'A'.
func NewModel() *Model {
	return &Model{
		GreedyToken: 'A',
		Pool:        []backend.Token{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h'},
		Pieces:      map[backend.Token]string{BOS: "", EOG: ""},
	}
}

func (m *Model) Tokenize(text string, addBOS bool) ([]backend.Token, error) {
	if m.TokenizeErr != nil {
		return nil, m.TokenizeErr
	}
	out := make([]backend.Token, 0, len(text)+1)
	if addBOS {
		out = append(out, BOS)
	}
	for _, r := range text {
		out = append(out, backend.Token(r))
	}
	return out, nil
}

func (m *Model) TokenToPiece(tok backend.Token) (string, error) {
	if m.PieceErr != nil {
		return "", m.PieceErr
	}
	if p, ok := m.Pieces[tok]; ok {
		return p, nil
	}
	return string(rune(tok)), nil
}

func (m *Model) IsEOG(tok backend.Token) bool { return tok == EOG }

func (m *Model) NewContext(nCtx int) (backend.Context, error) {
	if m.ContextErr != nil {
		return nil, m.ContextErr
	}
	m.contexts.Add(1)
	c := &Context{model: m, nCtx: nCtx}
	m.mu.Lock()
	m.ctxs = append(m.ctxs, c)
	m.mu.Unlock()
	return c, nil
}

func (m *Model) Close() error {
	m.closed.Store(true)
	return nil
}

// Contexts returns how many execution contexts were created.
func (m *Model) Contexts() int { return int(m.contexts.Load()) }

// Closed reports whether Close was called.
func (m *Model) Closed() bool { return m.closed.Load() }

// SampleParams returns every SampleParams seen, across contexts.
func (m *Model) SampleParams() []backend.SampleParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]backend.SampleParams(nil), m.params...)
}

// LastContext returns the most recently created context, or nil.
func (m *Model) LastContext() *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ctxs) == 0 {
		return nil
	}
	return m.ctxs[len(m.ctxs)-1]
}

// Context is a fake execution context that checks position continuity.
type Context struct {
	model   *Model
	nCtx    int
	next    int
	decodes int
	samples int
	batches [][]backend.Token
	closed  bool
}

var errPosition = errors.New("batch position out of order")

func (c *Context) Decode(tokens []backend.Token, pos int) error {
	c.decodes++
	if c.model.DecodeErrAt > 0 && c.decodes == c.model.DecodeErrAt {
		return errors.New("decode failed")
	}
	if pos != c.next {
		return errPosition
	}
	if pos+len(tokens) > c.nCtx {
		return errors.New("context window exceeded")
	}
	c.batches = append(c.batches, append([]backend.Token(nil), tokens...))
	c.next += len(tokens)
	return nil
}

func (c *Context) Sample(p backend.SampleParams) backend.Token {
	m := c.model
	m.mu.Lock()
	m.params = append(m.params, p)
	m.mu.Unlock()
	i := c.samples
	c.samples++
	switch {
	case len(m.Script) > 0:
		if i >= len(m.Script) {
			i = len(m.Script) - 1
		}
		return m.Script[i]
	case p.Greedy() || len(m.Pool) == 0:
		return m.GreedyToken
	default:
		return m.Pool[int(p.Seed%uint32(len(m.Pool)))]
	}
}

func (c *Context) Close() error {
	c.closed = true
	return nil
}

// Batches returns the submitted batches in order; the first is the prompt.
func (c *Context) Batches() [][]backend.Token { return c.batches }

// Position is the next free position.
func (c *Context) Position() int { return c.next }

// Closed reports whether Close was called.
func (c *Context) Closed() bool { return c.closed }
