package errcodes

import (
	"net/http"
)

type Error struct {
	HTTPCode int
	Message  string
	Code     string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.HTTPCode = err.HTTPCode
	te.Message = err.Message
	te.Code = err.Code
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.HTTPCode == err.HTTPCode &&
		te.Message == err.Message &&
		te.Code == err.Code
}

// NotFound returns a 404 error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		http.StatusNotFound,
		resource + " not found.",
		"not_found",
	}
}

// RateLimited indicates the remote API answered with 429 and the caller
// should cool down before retrying.
func RateLimited() error {
	return &Error{
		http.StatusTooManyRequests,
		"Rate limit exceeded.",
		"rate_limited",
	}
}

// NotPublished marks a chart whose publish timestamp is null. It is never
// persisted and is not an error worth retrying.
func NotPublished(chartID string) error {
	return &Error{
		http.StatusConflict,
		"Chart " + chartID + " is not published.",
		"not_published",
	}
}
