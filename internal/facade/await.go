package facade

import (
	"errors"
	"time"
)

// DefaultInputTimeout bounds how long an interactive front end waits for a
// follow-up answer.
const DefaultInputTimeout = 60 * time.Second

// ErrTimeout is reported when a prompt expires before the operator answers.
var ErrTimeout = errors.New("timed out waiting for input")
