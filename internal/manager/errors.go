package manager

import "errors"

// ErrClosed is returned once Close has released the model.
var ErrClosed = errors.New("model manager closed")

// IsClosed reports whether err indicates use after Close.
func IsClosed(err error) bool { return errors.Is(err, ErrClosed) }
