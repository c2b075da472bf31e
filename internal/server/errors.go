package server

import "errors"

// ErrServerClosed is returned by Start after Stop has been called.
var ErrServerClosed = errors.New("server closed")
