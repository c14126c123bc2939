package host

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyChain is returned when a chain is created without engines.
	ErrEmptyChain = errors.New("chain has no engines")
	// ErrNilEngine is returned when a chain is created with a nil engine.
	ErrNilEngine = errors.New("engine is nil")
	// ErrSampleRateMismatch is returned when chain stages run at different
	// sample rates.
	ErrSampleRateMismatch = errors.New("sample rate mismatch")
	// ErrBlockSize is returned when a block is empty or exceeds the
	// pre-allocated size.
	ErrBlockSize = errors.New("invalid block size")
	// ErrChannels is returned when buffers have more channels than views
	// were allocated for.
	ErrChannels = errors.New("too many channels")
	// ErrClosed is returned when a closed chain is used.
	ErrClosed = errors.New("chain is closed")
)

// StageError is returned when an engine of a chain fails.
type StageError struct {
	Stage int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d: %v", e.Stage, e.Err)
}

// Unwrap returns the engine error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// stageErrors wraps errors that might occur when multiple stages
// are failing.
type stageErrors []error

func (e stageErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of errors match provided sentinel error.
func (e stageErrors) Is(err error) bool {
	for _, se := range e {
		if errors.Is(se, err) {
			return true
		}
	}
	return false
}

// ret returns untyped nil if error list is empty.
func (e stageErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
