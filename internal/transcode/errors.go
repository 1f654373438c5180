package transcode

import (
	"errors"
	"fmt"
)

// ErrTranscode matches every *Error.
var ErrTranscode = errors.New("transcode failed")

// Error reports a failed decode or encode of one source image.
type Error struct {
	Source string
	Stage  string
	Err    error
}

func (e *Error) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("transcode %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("transcode %s %q: %v", e.Stage, e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTranscode }
