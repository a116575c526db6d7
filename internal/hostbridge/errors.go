package hostbridge

import (
	"fmt"

	"llmcore/internal/llmerr"
)

// writeError marks a failure of the output stream itself; it ends Serve
// instead of being reported to the host.
type writeError struct{ err error }

func (e writeError) Error() string { return e.err.Error() }
func (e writeError) Unwrap() error { return e.err }

func invalidPayload(err error) error {
	return llmerr.New(llmerr.KindInvalidRequest, "decode payload", fmt.Errorf("invalid JSON payload: %w", err))
}

// errorResponse builds a consistent failure payload.
func errorResponse(id string, err error) Response {
	return Response{ID: id, OK: false, Error: err.Error(), Kind: string(llmerr.KindOf(err))}
}
