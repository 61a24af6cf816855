package httpclient

import (
	"errors"
	"fmt"
)

// RequestError is the failure of a single attempt: a transport error, a non-2xx
// response or an undecodable 2xx body. StatusCode is 0 for transport errors.
type RequestError struct {
	StatusCode int
	Message    string
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Detail renders the status code alongside the message, for logs.
func (e *RequestError) Detail() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from err, 0 if there is none.
func StatusCode(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
