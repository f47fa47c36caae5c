package webdav

import (
	"fmt"
	"net/http"
)

// AuthError is returned when the server rejects the credentials.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %d %s",
		e.Status, http.StatusText(e.Status))
}

// StatusError is any other unexpected HTTP status.
type StatusError struct {
	Method string
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s",
		e.Method, e.URL, e.Status, http.StatusText(e.Status))
}
