package store

import (
	"errors"
	"fmt"
)

var (
	// ErrIOFailure indicates the backing file exists but could not be read.
	ErrIOFailure = errors.New("roster read failed")

	// ErrPersistFailure indicates the roster could not be written or published.
	// The in-memory roster that was being saved is not rolled back.
	ErrPersistFailure = errors.New("roster persist failed")

	// ErrLocked indicates another process holds the write lock.
	ErrLocked = errors.New("roster file is locked by another writer")

	// ErrConflict indicates the file was rewritten by another writer since
	// this gateway last read or wrote it. Nothing was written; reload and
	// apply the change again.
	ErrConflict = errors.New("roster file changed since it was last read")
)

// Error describes a failed gateway operation. It matches its Kind with
// errors.Is and unwraps to the underlying cause.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// PublishFailed reports whether err is a persist failure that happened after
// the file was fully written, i.e. only the publish hook failed.
func PublishFailed(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Op == opPublish
}

// Written reports whether the file reflects the saved roster despite err.
func Written(err error) bool {
	return err == nil || PublishFailed(err)
}
