package generate

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmcore/internal/backend"
	"llmcore/internal/backend/backendtest"
	"llmcore/internal/llmerr"
	"llmcore/internal/prompt"
	"llmcore/internal/tokenizer"
	"llmcore/pkg/types"
)

func helloPrompt() string {
	return prompt.Format([]types.ConversationTurn{{Role: types.RoleUser, Content: "Hello"}}, nil)
}

func greedyOpts(maxTokens int) Options {
	return Options{ContextSize: 4096, Temperature: 0, MaxTokens: maxTokens}
}

func TestRun_EndOfSequenceAfterOneToken(t *testing.T) {
	m := backendtest.NewModel()
	m.Script = []backend.Token{'A', backendtest.EOG}

	res, err := Run(m, tokenizer.New(m), helloPrompt(), greedyOpts(5))
	require.NoError(t, err)
	assert.Equal(t, "A", res.Content)
	assert.Equal(t, 1, res.TokensGenerated)
	assert.Equal(t, StateEndOfSequence, res.Final)
	assert.Equal(t, "stop", res.FinishReason())
	assert.Less(t, res.TokensGenerated, 5)
}

func TestRun_MaxTokensReachedWithoutEOG(t *testing.T) {
	m := backendtest.NewModel()
	m.Script = []backend.Token{'A'}
	p := helloPrompt()

	res, err := Run(m, tokenizer.New(m), p, greedyOpts(5))
	require.NoError(t, err)
	assert.Equal(t, 5, res.TokensGenerated)
	assert.Equal(t, "AAAAA", res.Content)
	assert.Equal(t, StateMaxTokensReached, res.Final)
	assert.Equal(t, "length", res.FinishReason())
	// Exactly max_tokens samples: no extra step after the bound.
	assert.Len(t, m.SampleParams(), 5)

	ctx := m.LastContext()
	require.NotNil(t, ctx)
	batches := ctx.Batches()
	require.Len(t, batches, 6)
	assert.Equal(t, res.PromptTokens, len(batches[0]))
	for _, b := range batches[1:] {
		assert.Equal(t, []backend.Token{'A'}, b)
	}
	assert.Equal(t, res.PromptTokens+5, ctx.Position())
	assert.True(t, ctx.Closed(), "execution context must be released")
}

func TestSession_StepByStep(t *testing.T) {
	m := backendtest.NewModel()
	m.Script = []backend.Token{'O', 'K', backendtest.EOG}
	s := NewSession(m, tokenizer.New(m), greedyOpts(10))
	defer s.Close()

	assert.Equal(t, StatePrefill, s.State())
	_, err := s.Step()
	require.Error(t, err, "stepping before prefill must fail")

	require.NoError(t, s.Prefill("hi"))
	assert.Equal(t, StateDecoding, s.State())
	assert.Equal(t, 3, s.PromptTokens()) // BOS + 'h' + 'i'
	assert.Equal(t, 3, s.Cursor())

	st, err := s.Step()
	require.NoError(t, err)
	assert.Equal(t, StateDecoding, st)
	assert.Equal(t, 4, s.Cursor())
	assert.Equal(t, "O", s.Text())

	st, err = s.Step()
	require.NoError(t, err)
	assert.Equal(t, StateDecoding, st)

	st, err = s.Step()
	require.NoError(t, err)
	assert.Equal(t, StateEndOfSequence, st)
	assert.Equal(t, 5, s.Cursor(), "end token is neither emitted nor submitted")

	res := s.Finish()
	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, "OK", res.Content)
	assert.Equal(t, 2, res.TokensGenerated)
}

func TestRun_ZeroTemperatureIsDeterministic(t *testing.T) {
	m := backendtest.NewModel()
	tok := tokenizer.New(m)
	first, err := Run(m, tok, helloPrompt(), greedyOpts(8))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := Run(m, tok, helloPrompt(), greedyOpts(8))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	for _, p := range m.SampleParams() {
		assert.True(t, p.Greedy())
		assert.Equal(t, GreedySeed, p.Seed)
	}
}

func TestRun_PositiveTemperatureFixedSourceIsReproducible(t *testing.T) {
	run := func() (Result, []backend.SampleParams) {
		m := backendtest.NewModel()
		opts := Options{ContextSize: 256, Temperature: 0.8, MaxTokens: 16,
			Sampler: NewSampler(rand.NewPCG(42, 7))}
		res, err := Run(m, tokenizer.New(m), helloPrompt(), opts)
		require.NoError(t, err)
		return res, m.SampleParams()
	}
	a, pa := run()
	b, pb := run()
	assert.Equal(t, a, b)
	assert.Equal(t, pa, pb)

	seeds := map[uint32]bool{}
	for _, p := range pa {
		assert.InDelta(t, 0.8, p.Temperature, 1e-6)
		seeds[p.Seed] = true
	}
	assert.Greater(t, len(seeds), 1, "a fresh seed is drawn per step")
}

func TestRun_TokensNeverExceedMax(t *testing.T) {
	for _, max := range []int{0, 1, 2, 7, 31} {
		m := backendtest.NewModel()
		res, err := Run(m, tokenizer.New(m), "x", greedyOpts(max))
		require.NoError(t, err)
		assert.LessOrEqual(t, res.TokensGenerated, max)
		assert.Equal(t, max, res.TokensGenerated)
	}
}

func TestRun_StripsTrailingEndOfTurn(t *testing.T) {
	m := backendtest.NewModel()
	m.Pieces['#'] = " <|im_end|>\n"
	m.Script = []backend.Token{' ', 'H', 'i', '#', backendtest.EOG}

	res, err := Run(m, tokenizer.New(m), helloPrompt(), greedyOpts(10))
	require.NoError(t, err)
	assert.Equal(t, "Hi", res.Content)
	assert.Equal(t, 4, res.TokensGenerated)
}

func TestRun_OnTokenSeesFragmentsInOrder(t *testing.T) {
	m := backendtest.NewModel()
	m.Pieces['w'] = " world"
	m.Script = []backend.Token{'H', 'i', 'w', backendtest.EOG}
	var got []string
	opts := greedyOpts(10)
	opts.OnToken = func(p string) { got = append(got, p) }

	_, err := Run(m, tokenizer.New(m), "q", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"H", "i", " world"}, got)
}

func TestRun_DecodeFailureDiscardsPartialContent(t *testing.T) {
	m := backendtest.NewModel()
	m.Script = []backend.Token{'A'}
	m.DecodeErrAt = 3 // prefill, first token, then fail

	res, err := Run(m, tokenizer.New(m), helloPrompt(), greedyOpts(5))
	require.Error(t, err)
	assert.True(t, llmerr.IsBatch(err), "got %v", err)
	assert.Equal(t, Result{}, res)
	assert.True(t, m.LastContext().Closed())
}

func TestRun_FailedSubmissionStreamsNothing(t *testing.T) {
	m := backendtest.NewModel()
	m.Script = []backend.Token{'A'}
	m.DecodeErrAt = 2 // prefill succeeds, first token submission fails
	var streamed []string
	opts := greedyOpts(5)
	opts.OnToken = func(p string) { streamed = append(streamed, p) }

	res, err := Run(m, tokenizer.New(m), helloPrompt(), opts)
	require.Error(t, err)
	assert.True(t, llmerr.IsBatch(err), "got %v", err)
	assert.Contains(t, err.Error(), "decode token 1")
	assert.Equal(t, Result{}, res)
	assert.Empty(t, streamed)
}

func TestRun_StreamsOnlySubmittedTokensBeforeWindowExhaustion(t *testing.T) {
	m := backendtest.NewModel()
	var streamed []string
	opts := Options{ContextSize: 5, MaxTokens: 10}
	opts.OnToken = func(p string) { streamed = append(streamed, p) }

	_, err := Run(m, tokenizer.New(m), "ab", opts)
	require.Error(t, err)
	assert.True(t, llmerr.IsBatch(err))
	// BOS + "ab" leaves two positions; the third sampled token is never streamed.
	assert.Equal(t, []string{"A", "A"}, streamed)
}

func TestRun_PrefillFailures(t *testing.T) {
	t.Run("context", func(t *testing.T) {
		m := backendtest.NewModel()
		m.ContextErr = errors.New("out of memory")
		_, err := Run(m, tokenizer.New(m), "x", greedyOpts(1))
		assert.True(t, llmerr.IsContextCreate(err), "got %v", err)
	})
	t.Run("tokenize", func(t *testing.T) {
		m := backendtest.NewModel()
		m.TokenizeErr = errors.New("bad utf8")
		_, err := Run(m, tokenizer.New(m), "x", greedyOpts(1))
		assert.True(t, llmerr.IsTokenize(err), "got %v", err)
	})
	t.Run("batch", func(t *testing.T) {
		m := backendtest.NewModel()
		m.DecodeErrAt = 1
		_, err := Run(m, tokenizer.New(m), "x", greedyOpts(1))
		assert.True(t, llmerr.IsBatch(err), "got %v", err)
		assert.Empty(t, m.SampleParams(), "no sampling after failed prefill")
	})
	t.Run("prompt too long", func(t *testing.T) {
		m := backendtest.NewModel()
		_, err := Run(m, tokenizer.New(m), "Hello", Options{ContextSize: 4, MaxTokens: 1})
		assert.True(t, llmerr.IsBatch(err), "got %v", err)
	})
}

func TestRun_ContextWindowExhaustion(t *testing.T) {
	m := backendtest.NewModel()
	// BOS + 2 runes leaves room for exactly two generated tokens.
	opts := Options{ContextSize: 5, MaxTokens: 10}
	s := NewSession(m, tokenizer.New(m), opts)
	defer s.Close()
	require.NoError(t, s.Prefill("ab"))

	var err error
	for s.State() == StateDecoding && err == nil {
		_, err = s.Step()
		assert.LessOrEqual(t, s.Cursor(), opts.ContextSize)
	}
	require.Error(t, err)
	assert.True(t, llmerr.IsBatch(err))
	assert.Equal(t, 5, s.Cursor())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "max_tokens_reached", StateMaxTokensReached.String())
	assert.Equal(t, "state(42)", State(42).String())
}
