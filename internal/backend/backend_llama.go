//go:build llama

package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// Options configures the llama.cpp runtime.
type Options struct {
	// Directory holding the llama.cpp shared libraries. Empty means
	// $YZMA_LIB, then ./lib next to the working directory or executable.
	LibraryPath string
}

type llamaBackend struct {
	opts   Options
	mu     sync.Mutex
	inited bool
}

// NewLlama returns a Backend bound to llama.cpp through yzma.
func NewLlama(opts Options) Backend { return &llamaBackend{opts: opts} }

func (b *llamaBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inited {
		return nil
	}
	lib := b.libraryPath()
	if err := llama.Load(lib); err != nil {
		return fmt.Errorf("load llama.cpp libraries from %s: %w", lib, err)
	}
	llama.Init()
	b.inited = true
	return nil
}

func (b *llamaBackend) libraryPath() string {
	if p := strings.TrimSpace(b.opts.LibraryPath); p != "" {
		return p
	}
	if p := os.Getenv("YZMA_LIB"); p != "" {
		return p
	}
	candidates := []string{"lib"}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "lib"))
	}
	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && fi.IsDir() {
			if abs, err := filepath.Abs(c); err == nil {
				return abs
			}
			return c
		}
	}
	return "lib"
}

func (b *llamaBackend) LoadModel(path string, opts LoadOptions) (Model, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	params := llama.ModelDefaultParams()
	params.NGpuLayers = int32(opts.GPULayers)
	mdl, err := llama.ModelLoadFromFile(path, params)
	if err != nil {
		return nil, err
	}
	return &llamaModel{model: mdl, vocab: llama.ModelGetVocab(mdl)}, nil
}

type llamaModel struct {
	model llama.Model
	vocab llama.Vocab
}

func (m *llamaModel) Tokenize(text string, addBOS bool) ([]Token, error) {
	raw := llama.Tokenize(m.vocab, text, addBOS, true)
	if len(raw) == 0 && text != "" {
		return nil, errors.New("tokenizer returned no tokens")
	}
	out := make([]Token, len(raw))
	for i, t := range raw {
		out[i] = Token(t)
	}
	return out, nil
}

func (m *llamaModel) TokenToPiece(tok Token) (string, error) {
	return renderPiece(tok, func(buf []byte) int32 {
		return llama.TokenToPiece(m.vocab, llama.Token(tok), buf, 0, true)
	})
}

func (m *llamaModel) IsEOG(tok Token) bool {
	return llama.VocabIsEOG(m.vocab, llama.Token(tok))
}

func (m *llamaModel) NewContext(nCtx int) (Context, error) {
	params := llama.ContextDefaultParams()
	params.NCtx = uint32(nCtx)
	// Prefill submits the whole prompt as one batch.
	params.NBatch = uint32(nCtx)
	lctx, err := llama.InitFromModel(m.model, params)
	if err != nil {
		return nil, err
	}
	return &llamaContext{ctx: lctx}, nil
}

func (m *llamaModel) Close() error { return llama.ModelFree(m.model) }

type llamaContext struct {
	ctx  llama.Context
	next int
}

func (c *llamaContext) Decode(tokens []Token, pos int) error {
	if len(tokens) == 0 {
		return errors.New("empty batch")
	}
	// BatchGetOne places tokens after the context's current memory; the
	// caller's position must agree with it.
	if pos != c.next {
		return fmt.Errorf("batch position %d does not follow %d", pos, c.next)
	}
	raw := make([]llama.Token, len(tokens))
	for i, t := range tokens {
		raw[i] = llama.Token(t)
	}
	batch := llama.BatchGetOne(raw)
	rc, err := llama.Decode(c.ctx, batch)
	if err != nil {
		return err
	}
	if err := decodeStatus(rc); err != nil {
		return err
	}
	c.next += len(tokens)
	return nil
}

func (c *llamaContext) Sample(p SampleParams) Token {
	chain := llama.SamplerChainInit(llama.SamplerChainDefaultParams())
	defer llama.SamplerFree(chain)
	if p.Greedy() {
		llama.SamplerChainAdd(chain, llama.SamplerInitGreedy())
	} else {
		llama.SamplerChainAdd(chain, llama.SamplerInitTempExt(p.Temperature, 0, 1.0))
		llama.SamplerChainAdd(chain, llama.SamplerInitDist(p.Seed))
	}
	return Token(llama.SamplerSample(chain, c.ctx, -1))
}

func (c *llamaContext) Close() error { return llama.Free(c.ctx) }
