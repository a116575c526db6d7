package backend

import "fmt"

// decodeStatus maps a llama_decode return code to an error. 1 means no KV
// slot was free for the batch; negative codes are invalid batches or
// allocation failures.
func decodeStatus(rc int32) error {
	switch {
	case rc == 0:
		return nil
	case rc == 1:
		return fmt.Errorf("llama_decode returned %d: no KV cache slot for batch", rc)
	case rc == 2:
		return fmt.Errorf("llama_decode returned %d: aborted", rc)
	default:
		return fmt.Errorf("llama_decode returned %d", rc)
	}
}

// pieceBufSize is the first buffer offered to a token-to-piece call.
const pieceBufSize = 256

// renderPiece calls render with a pieceBufSize buffer. A negative result is
// the size the piece needs; render is retried once with exactly that much.
func renderPiece(tok Token, render func(buf []byte) int32) (string, error) {
	buf := make([]byte, pieceBufSize)
	n := render(buf)
	if n < 0 {
		buf = make([]byte, -n)
		n = render(buf)
	}
	if n < 0 || int(n) > len(buf) {
		return "", fmt.Errorf("token %d: piece does not fit in %d bytes", tok, len(buf))
	}
	return string(buf[:n]), nil
}
