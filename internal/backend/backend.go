// Package backend abstracts the native execution runtime at token granularity.
//
// The real implementation binds llama.cpp through yzma and is compiled with
// the `llama` build tag (backend_llama.go). Without the tag a stub is built
// whose Init fails fast, keeping default builds free of native libraries.
package backend

// Token is a vocabulary id.
type Token int32

// AllGPULayers requests that every transformer layer be offloaded to the
// accelerator when one is available.
const AllGPULayers = -1

// Backend is the process-level execution runtime.
type Backend interface {
	// Init prepares the runtime (shared libraries, device discovery).
	Init() error
	// LoadModel reads a quantized model file and returns an immutable handle.
	LoadModel(path string, opts LoadOptions) (Model, error)
}

// LoadOptions controls model placement.
type LoadOptions struct {
	GPULayers int
}

// Model is a loaded, read-only model. It is safe to share across requests;
// all per-request mutable state lives in a Context.
type Model interface {
	// Tokenize converts text to ids, prepending the beginning-of-sequence
	// marker when addBOS is set.
	Tokenize(text string, addBOS bool) ([]Token, error)
	// TokenToPiece renders one id; the result may be empty.
	TokenToPiece(tok Token) (string, error)
	// IsEOG reports whether tok ends generation.
	IsEOG(tok Token) bool
	// NewContext allocates an execution context holding nCtx positions.
	NewContext(nCtx int) (Context, error)
	Close() error
}

// Context is per-request execution state (KV memory, logits).
type Context interface {
	// Decode submits tokens occupying positions [pos, pos+len(tokens)).
	// Output logits are requested for the final position only.
	Decode(tokens []Token, pos int) error
	// Sample draws the next token from the logits of the last decoded position.
	Sample(p SampleParams) Token
	Close() error
}

// SampleParams selects the sampling policy for one step.
type SampleParams struct {
	// Temperature <= 0 selects greedy decoding.
	Temperature float32
	Seed        uint32
}

// Greedy reports whether the step picks the highest-probability token.
func (p SampleParams) Greedy() bool { return p.Temperature <= 0 }
