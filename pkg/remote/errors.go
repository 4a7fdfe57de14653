package remote

import (
	"errors"
	"fmt"
)

// ErrTruncatedTree is returned when the host truncates a recursive tree
// listing. Importing from a partial listing would silently drop files and,
// worse, let cleanup delete their local copies.
var ErrTruncatedTree = errors.New("tree listing truncated by host")

// NotFoundError reports a path, ref, or repository that does not exist on
// the remote host.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("remote: %s not found", e.Path)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// RequestError reports a non-success response other than not-found.
type RequestError struct {
	Status int
	URL    string
	Detail string
}

func (e *RequestError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("remote: %s returned status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("remote: %s returned status %d: %s", e.URL, e.Status, e.Detail)
}

// Transient reports whether retrying the same request may succeed.
func (e *RequestError) Transient() bool {
	return e.Status == 429 || e.Status >= 500
}
