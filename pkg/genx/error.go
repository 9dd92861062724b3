package genx

import (
	"errors"
	"fmt"
)

// ErrBlocked is wrapped by the error of a Stream whose generation was refused.
var ErrBlocked = errors.New("genx: generate blocked")

// Blocked returns the terminal error of a refused generation.
func Blocked(stats Usage, refusal string) *State {
	return &State{
		usage:   stats,
		status:  StatusBlocked,
		refusal: refusal,
		err:     fmt.Errorf("%w: %s", ErrBlocked, refusal),
	}
}

// Error returns the terminal error of a generation that failed mid-stream.
func Error(stats Usage, err error) *State {
	return &State{
		usage:  stats,
		status: StatusError,
		err:    fmt.Errorf("genx: generate error: %w", err),
		cause:  err,
	}
}

// State is a terminal Stream error carrying usage and status. It unwraps to
// the underlying cause, so errors.Is works through it.
type State struct {
	usage   Usage
	status  Status
	refusal string
	err     error
	cause   error
}

func (ss *State) Usage() Usage {
	return ss.usage
}

func (ss *State) Status() Status {
	return ss.status
}

func (ss *State) Refusal() string {
	return ss.refusal
}

// Cause returns the error passed to Error, without the genx prefix. It is
// nil for other statuses.
func (ss *State) Cause() error {
	return ss.cause
}

func (ss *State) Unwrap() error {
	return ss.err
}

func (ss *State) Error() string {
	if ss.err == nil {
		return fmt.Sprintf("genx: unexpected stream status: %v", ss.status)
	}
	return ss.err.Error()
}
