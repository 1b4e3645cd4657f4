package dispatch

import "errors"

var (
	ErrFDOutOfRange = errors.New("dispatch: fd out of range")
	ErrPollerClosed = errors.New("dispatch: poller closed")
)
