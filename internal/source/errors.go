package source

import (
	"errors"
	"fmt"
)

var (
	ErrNoSource         = errors.New("no database connection")
	ErrAlreadyListening = errors.New("source is already listening")
	ErrClosed           = errors.New("source is closed")
	ErrUnknownDriver    = errors.New("unknown database driver")
)

// ConnectionError reports a failure to open or ping a database.
type ConnectionError struct {
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s database: %v", e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ExecutionError reports a failed client statement. Its message is the
// driver's message unchanged.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
