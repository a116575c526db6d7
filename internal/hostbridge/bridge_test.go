package hostbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmcore/internal/llmerr"
	"llmcore/pkg/types"
)

type fakeService struct {
	mu       sync.Mutex
	chats    []types.ChatRequest
	pieces   []string
	chatErr  error
	loadErr  error
	panicked bool
}

func (f *fakeService) Health(context.Context) types.HealthResponse {
	return types.HealthResponse{Available: true, ModelName: "fake", IsOnDevice: true}
}

func (f *fakeService) ChatStream(_ context.Context, req types.ChatRequest, onToken func(string)) (types.ChatResponse, error) {
	f.mu.Lock()
	f.chats = append(f.chats, req)
	f.mu.Unlock()
	if f.panicked {
		panic("boom")
	}
	if f.chatErr != nil {
		return types.ChatResponse{}, f.chatErr
	}
	var b strings.Builder
	for _, p := range f.pieces {
		if onToken != nil {
			onToken(p)
		}
		b.WriteString(p)
	}
	return types.ChatResponse{Content: b.String(), ModelName: "fake", Done: true, TokensGenerated: uint32(len(f.pieces)), FinishReason: "stop"}, nil
}

func (f *fakeService) Preload(context.Context) (types.PreloadResponse, error) {
	if f.loadErr != nil {
		return types.PreloadResponse{}, f.loadErr
	}
	return types.PreloadResponse{Message: "model fake loaded"}, nil
}

func (f *fakeService) Status() types.StatusResponse {
	return types.StatusResponse{State: "ready", ModelName: "fake"}
}

func (f *fakeService) Models() (types.ModelsResponse, error) {
	return types.ModelsResponse{Models: []types.ModelEntry{{Name: "fake", Selected: true}}}, nil
}

// serve runs the bridge over input and returns the decoded output lines.
func serve(t *testing.T, svc Service, input string) []map[string]any {
	t.Helper()
	var out bytes.Buffer
	b := New(svc, zerolog.Nop())
	require.NoError(t, b.Serve(context.Background(), strings.NewReader(input), &out))
	var lines []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m), "line %q", l)
		lines = append(lines, m)
	}
	return lines
}

func byID(lines []map[string]any) map[string]map[string]any {
	out := map[string]map[string]any{}
	for _, l := range lines {
		if _, isEvent := l["event"]; isEvent {
			continue
		}
		id, _ := l["id"].(string)
		out[id] = l
	}
	return out
}

func TestServe_SimpleCommands(t *testing.T) {
	in := `{"id":"1","command":"health"}
{"id":"2","command":"status"}
{"id":"3","command":"models"}
{"id":"4","command":"preload"}
`
	got := byID(serve(t, &fakeService{}, in))
	require.Len(t, got, 4)
	for id, r := range got {
		assert.Equal(t, true, r["ok"], "id %s", id)
	}
	health := got["1"]["result"].(map[string]any)
	assert.Equal(t, true, health["is_on_device"])
	assert.Equal(t, "fake", health["model_name"])
	assert.Equal(t, "ready", got["2"]["result"].(map[string]any)["state"])
	assert.Equal(t, "model fake loaded", got["4"]["result"].(map[string]any)["message"])
}

func TestServe_ChatPayloadDecoded(t *testing.T) {
	svc := &fakeService{pieces: []string{"Hi", " there"}}
	in := `{"id":"c","command":"chat","payload":{"turns":[{"role":"user","content":"Hello"}],"system_instruction":"be kind","temperature":0,"max_tokens":7}}` + "\n"
	got := byID(serve(t, svc, in))
	res := got["c"]["result"].(map[string]any)
	assert.Equal(t, "Hi there", res["content"])
	assert.Equal(t, true, res["done"])

	require.Len(t, svc.chats, 1)
	req := svc.chats[0]
	require.Len(t, req.Turns, 1)
	assert.Equal(t, types.RoleUser, req.Turns[0].Role)
	require.NotNil(t, req.SystemInstruction)
	assert.Equal(t, "be kind", *req.SystemInstruction)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, float32(0), *req.Temperature)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, uint32(7), *req.MaxTokens)
}

func TestServe_ChatStreamEmitsTokensBeforeResponse(t *testing.T) {
	svc := &fakeService{pieces: []string{"a", "b", "c"}}
	lines := serve(t, svc, `{"id":"s","command":"chat","payload":{"turns":[],"stream":true}}`+"\n")
	require.Len(t, lines, 4)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, "token", lines[i]["event"])
		assert.Equal(t, want, lines[i]["data"])
		assert.Equal(t, "s", lines[i]["id"])
	}
	assert.Equal(t, true, lines[3]["ok"])
}

func TestServe_ErrorsCarryKind(t *testing.T) {
	svc := &fakeService{
		chatErr: llmerr.New(llmerr.KindBatch, "decode", errors.New("kv full")),
		loadErr: llmerr.Newf(llmerr.KindModelNotFound, "locate model", "missing"),
	}
	in := `{"id":"1","command":"chat","payload":{"turns":[]}}
{"id":"2","command":"preload"}
{"id":"3","command":"dance"}
{"id":"4","command":"chat","payload":"not an object"}
`
	got := byID(serve(t, svc, in))
	assert.Equal(t, "batch", got["1"]["kind"])
	assert.Contains(t, got["1"]["error"], "kv full")
	assert.Equal(t, "model_not_found", got["2"]["kind"])
	assert.Equal(t, "invalid_request", got["3"]["kind"])
	assert.Contains(t, got["3"]["error"], "dance")
	assert.Equal(t, "invalid_request", got["4"]["kind"])
	for _, r := range got {
		assert.Equal(t, false, r["ok"])
	}
}

func TestServe_MalformedLineAndBlankLines(t *testing.T) {
	lines := serve(t, &fakeService{}, "\n{not json\n\n")
	require.Len(t, lines, 1)
	assert.Equal(t, false, lines[0]["ok"])
	assert.Equal(t, "invalid_request", lines[0]["kind"])
}

func TestServe_HandlerPanicIsReported(t *testing.T) {
	lines := serve(t, &fakeService{panicked: true}, `{"id":"p","command":"chat"}`+"\n")
	require.Len(t, lines, 1)
	assert.Equal(t, false, lines[0]["ok"])
	assert.Contains(t, lines[0]["error"], "internal error")
}

func TestServe_ConcurrentRequestsAllAnswered(t *testing.T) {
	svc := &fakeService{pieces: strings.Split("the quick brown fox", "")}
	var in strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&in, `{"id":"%d","command":"chat","payload":{"turns":[],"stream":true}}`+"\n", i)
	}
	lines := serve(t, svc, in.String())
	got := byID(lines)
	require.Len(t, got, 50)
	for i := 0; i < 50; i++ {
		r := got[fmt.Sprint(i)]
		require.NotNil(t, r, "missing response %d", i)
		assert.Equal(t, "the quick brown fox", r["result"].(map[string]any)["content"])
	}
	assert.Len(t, lines, 50*20)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("pipe closed") }

func TestServe_WriteFailureEndsServe(t *testing.T) {
	b := New(&fakeService{}, zerolog.Nop())
	err := b.Serve(context.Background(), strings.NewReader(`{"id":"1","command":"health"}`+"\n"), failingWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipe closed")
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(&fakeService{}, zerolog.Nop()).Serve(ctx, pr, &bytes.Buffer{}) }()
	cancel()
	assert.NoError(t, <-done)
}
