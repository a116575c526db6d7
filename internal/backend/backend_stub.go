//go:build !llama

package backend

// This file provides a stub backend compiled when the 'llama' build tag is
// NOT set. The real binding lives in backend_llama.go.

import "errors"

// ErrNotBuilt is returned by the stub's Init.
var ErrNotBuilt = errors.New("llama support not built (missing 'llama' build tag)")

// Options configures the llama.cpp runtime.
type Options struct {
	// Directory holding the llama.cpp shared libraries.
	LibraryPath string
}

type llamaBackend struct{ opts Options }

// NewLlama returns the stub backend.
func NewLlama(opts Options) Backend { return &llamaBackend{opts: opts} }

func (b *llamaBackend) Init() error { return ErrNotBuilt }

func (b *llamaBackend) LoadModel(path string, opts LoadOptions) (Model, error) {
	return nil, ErrNotBuilt
}
