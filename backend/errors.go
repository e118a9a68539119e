package backend

import (
	"errors"
	"fmt"
)

// ErrJobNotFound is returned by JobStatus when the backend no longer knows the job.
var ErrJobNotFound = errors.New("job not found")

// GenericFailure is shown when the backend rejects a request without saying why.
const GenericFailure = "Request failed"

// ValidationError is an input problem caught before any network call.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RequestError is a response the backend delivered but that does not carry a
// usable result: a non-2xx status, an error field, ok:false, or a job start
// that was not acknowledged. ServerMessage holds the backend's own text.
type RequestError struct {
	Op            string
	StatusCode    int
	ServerMessage string
}

func (e *RequestError) Error() string {
	msg := e.ServerMessage
	if msg == "" {
		msg = GenericFailure
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, msg)
}

// TransportError covers an unreachable backend, a timeout, or a body that
// cannot be decoded.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Warning is a non-fatal note returned alongside a usable result.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// UserMessage picks the text shown for err: the validation message, the
// backend's own message, fallback for a silent backend rejection, or the
// underlying transport error.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}

	var re *RequestError
	if errors.As(err, &re) {
		if re.ServerMessage != "" {
			return re.ServerMessage
		}
		return fallback
	}

	var te *TransportError
	if errors.As(err, &te) && te.Err != nil {
		return te.Err.Error()
	}
	return err.Error()
}
