package errors

import "fmt"

var (
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrAliasTaken      = fmt.Errorf("alias already taken")
	ErrInvalidAlias    = fmt.Errorf("invalid alias")
	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrMalformedFrame  = fmt.Errorf("malformed frame")
	ErrUnknownFrame    = fmt.Errorf("unknown frame tag")
	ErrFrameTooLarge   = fmt.Errorf("frame exceeds maximum size")
	ErrQueueClosed     = fmt.Errorf("message queue closed")
	ErrNoOpenRecord    = fmt.Errorf("no open connection record")
	ErrConnClosed      = fmt.Errorf("connection closed")
)
