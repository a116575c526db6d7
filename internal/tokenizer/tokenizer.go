// Package tokenizer adapts a backend model's vocabulary for the generation loop.
package tokenizer

import (
	"llmcore/internal/backend"
	"llmcore/internal/llmerr"
)

// Adapter encodes prompts and decodes generated tokens.
type Adapter struct {
	model backend.Model
}

func New(m backend.Model) *Adapter { return &Adapter{model: m} }

// Encode converts text to token ids, always prepending the
// beginning-of-sequence marker.
func (a *Adapter) Encode(text string) ([]backend.Token, error) {
	toks, err := a.model.Tokenize(text, true)
	if err != nil {
		return nil, llmerr.New(llmerr.KindTokenize, "encode", err)
	}
	if len(toks) == 0 {
		return nil, llmerr.Newf(llmerr.KindTokenize, "encode", "no tokens produced for %d bytes of text", len(text))
	}
	return toks, nil
}

// Decode renders a single token. Sub-word tokens may yield partial words
// and special tokens may yield "".
func (a *Adapter) Decode(tok backend.Token) (string, error) {
	s, err := a.model.TokenToPiece(tok)
	if err != nil {
		return "", llmerr.New(llmerr.KindTokenize, "decode", err)
	}
	return s, nil
}

// IsEndOfGeneration reports whether tok terminates generation.
func (a *Adapter) IsEndOfGeneration(tok backend.Token) bool { return a.model.IsEOG(tok) }
