//go:build llama

package backend

import (
	"os"
	"testing"
)

// Runs against real llama.cpp libraries: YZMA_LIB names their directory and
// LLMCORE_TEST_MODEL an optional GGUF file for the generation round trip.
func TestLlama_InitLoadGenerate(t *testing.T) {
	lib := os.Getenv("YZMA_LIB")
	if lib == "" {
		t.Skip("YZMA_LIB not set")
	}
	b := NewLlama(Options{LibraryPath: lib})
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := b.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if _, err := b.LoadModel("", LoadOptions{}); err == nil {
		t.Fatalf("empty path must fail")
	}

	path := os.Getenv("LLMCORE_TEST_MODEL")
	if path == "" {
		t.Skip("LLMCORE_TEST_MODEL not set")
	}
	m, err := b.LoadModel(path, LoadOptions{GPULayers: AllGPULayers})
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	defer m.Close()

	toks, err := m.Tokenize("Hello", true)
	if err != nil || len(toks) == 0 {
		t.Fatalf("Tokenize: %v (%d tokens)", err, len(toks))
	}
	ctx, err := m.NewContext(256)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ctx.Close()
	if err := ctx.Decode(toks, 1); err == nil {
		t.Fatalf("out-of-order position must fail")
	}
	if err := ctx.Decode(toks, 0); err != nil {
		t.Fatalf("prefill: %v", err)
	}
	tok := ctx.Sample(SampleParams{Temperature: 0, Seed: 1234})
	if _, err := m.TokenToPiece(tok); err != nil {
		t.Fatalf("TokenToPiece: %v", err)
	}
	if err := ctx.Decode([]Token{tok}, len(toks)); err != nil {
		t.Fatalf("decode step: %v", err)
	}
	hot := ctx.Sample(SampleParams{Temperature: 0.8, Seed: 42})
	_ = m.IsEOG(hot)
}
