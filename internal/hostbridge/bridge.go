// Package hostbridge serves engine commands over newline-delimited JSON on
// a reader/writer pair, typically the process's stdin and stdout.
//
// Request:  {"id":"1","command":"chat","payload":{...}}
// Response: {"id":"1","ok":true,"result":{...}}
// Failure:  {"id":"1","ok":false,"error":"...","kind":"model_not_found"}
//
// A chat payload with "stream":true additionally emits
// {"id":"1","event":"token","data":"..."} lines before the response.
package hostbridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"llmcore/pkg/types"
)

// maxLineBytes bounds one request line.
const maxLineBytes = 16 << 20

// Service is the engine surface exposed to the host.
type Service interface {
	Health(ctx context.Context) types.HealthResponse
	ChatStream(ctx context.Context, req types.ChatRequest, onToken func(string)) (types.ChatResponse, error)
	Preload(ctx context.Context) (types.PreloadResponse, error)
	Status() types.StatusResponse
	Models() (types.ModelsResponse, error)
}

// Request is one command from the host.
type Request struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers exactly one Request.
type Response struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// TokenEvent carries one streamed fragment of a chat reply.
type TokenEvent struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  string `json:"data"`
}

// ChatPayload is the chat command payload.
type ChatPayload struct {
	types.ChatRequest
	Stream bool `json:"stream,omitempty"`
}

type handler func(ctx context.Context, req Request, emit func(any) error) (any, error)

// Bridge dispatches requests to a Service. Each request runs on its own
// goroutine; output lines never interleave.
type Bridge struct {
	svc      Service
	log      zerolog.Logger
	handlers map[string]handler

	mu  sync.Mutex
	enc *json.Encoder
}

func New(svc Service, log zerolog.Logger) *Bridge {
	b := &Bridge{svc: svc, log: log.With().Str("component", "hostbridge").Logger()}
	b.handlers = map[string]handler{
		"health":  b.health,
		"chat":    b.chat,
		"preload": b.preload,
		"status":  b.status,
		"models":  b.models,
	}
	return b
}

// Commands lists the supported command names.
func (b *Bridge) Commands() []string {
	return []string{"health", "chat", "preload", "status", "models"}
}

// Serve reads requests from r until EOF or ctx is done, then waits for the
// outstanding requests to finish. It returns the first read or write error.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	b.mu.Lock()
	b.enc = json.NewEncoder(w)
	b.enc.SetEscapeHTML(false)
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	// The reader stays outside the group: a blocked read must not hold up
	// shutdown once ctx is done.
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-gctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			readErr <- fmt.Errorf("read request: %w", err)
		}
	}()

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				if werr := b.write(Response{OK: false, Error: "invalid request line: " + err.Error(), Kind: "invalid_request"}); werr != nil {
					_ = g.Wait()
					return werr
				}
				continue
			}
			g.Go(func() error { return b.dispatch(gctx, req) })
		case <-gctx.Done():
			break loop
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	select {
	case err := <-readErr:
		return err
	default:
		return nil
	}
}

func (b *Bridge) dispatch(ctx context.Context, req Request) (err error) {
	start := time.Now()
	h, ok := b.handlers[req.Command]
	if !ok {
		return b.write(Response{ID: req.ID, OK: false, Error: fmt.Sprintf("unknown command %q", req.Command), Kind: "invalid_request"})
	}
	emit := func(v any) error { return b.write(v) }

	var result any
	var herr error
	func() {
		defer func() {
			if p := recover(); p != nil {
				b.log.Error().Str("id", req.ID).Str("command", req.Command).Interface("panic", p).Msg("handler panic")
				herr = fmt.Errorf("internal error: %v", p)
			}
		}()
		result, herr = h(ctx, req, emit)
	}()

	ev := b.log.Debug()
	if herr != nil {
		ev = b.log.Info().Err(herr)
	}
	ev.Str("id", req.ID).Str("command", req.Command).Dur("dur", time.Since(start)).Msg("command done")

	if herr != nil {
		var we writeError
		if errors.As(herr, &we) {
			return we.err
		}
		return b.write(errorResponse(req.ID, herr))
	}
	return b.write(Response{ID: req.ID, OK: true, Result: result})
}

// write encodes one line under the output lock.
func (b *Bridge) write(v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enc.Encode(v); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func (b *Bridge) health(ctx context.Context, _ Request, _ func(any) error) (any, error) {
	return b.svc.Health(ctx), nil
}

func (b *Bridge) chat(ctx context.Context, req Request, emit func(any) error) (any, error) {
	var p ChatPayload
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, invalidPayload(err)
		}
	}
	var onToken func(string)
	var emitErr error
	if p.Stream {
		onToken = func(piece string) {
			if emitErr != nil {
				return
			}
			emitErr = emit(TokenEvent{ID: req.ID, Event: "token", Data: piece})
		}
	}
	resp, err := b.svc.ChatStream(ctx, p.ChatRequest, onToken)
	if emitErr != nil {
		return nil, writeError{emitErr}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (b *Bridge) preload(ctx context.Context, _ Request, _ func(any) error) (any, error) {
	resp, err := b.svc.Preload(ctx)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (b *Bridge) status(context.Context, Request, func(any) error) (any, error) {
	return b.svc.Status(), nil
}

func (b *Bridge) models(context.Context, Request, func(any) error) (any, error) {
	resp, err := b.svc.Models()
	if err != nil {
		return nil, err
	}
	return resp, nil
}
