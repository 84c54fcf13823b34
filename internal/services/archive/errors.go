package archive

import "fmt"

// CodeInvalidArchive marks a container that is not a usable profile.
const CodeInvalidArchive = "INVALID_ARCHIVE"

// ErrInvalidArchive matches every invalid-archive failure with errors.Is.
var ErrInvalidArchive = &Error{Code: CodeInvalidArchive, Message: "invalid archive"}

// Error is a coded persistence failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func invalidArchive(err error, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArchive, Message: fmt.Sprintf(format, args...), Err: err}
}
