package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindServer  ErrorKind = "server"
	KindTimeout ErrorKind = "timeout"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Body)
}

func (e *StatusError) Kind() ErrorKind {
	if e.Status >= 500 {
		return KindServer
	}
	return KindNetwork
}

// KindOf classifies any error produced by the client. 4xx responses are
// network errors (non-retryable by this core), 5xx are server errors,
// exceeded deadlines are timeouts.
func KindOf(err error) ErrorKind {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
