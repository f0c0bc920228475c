package proxy

import "fmt"

// Kind classifies a request failure into the HTTP status the vendor
// client receives.
type Kind int

const (
	// KindBadRequest covers malformed request lines and undecodable bodies.
	KindBadRequest Kind = iota
	// KindNotFound covers paths outside the vendor route table.
	KindNotFound
	// KindTranslation covers internal serialization failures.
	KindTranslation
	// KindUpstream covers connect failures and upstream contract violations.
	KindUpstream
)

// Status maps a failure kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return 400
	case KindNotFound:
		return 404
	case KindTranslation:
		return 500
	case KindUpstream:
		return 502
	}
	return 500
}

// Error is a classified request failure carrying the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func badRequest(msg string, cause error) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, Cause: cause}
}

func notFound(method, path string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("no route for %s %s", method, path)}
}

func translationError(msg string, cause error) *Error {
	return &Error{Kind: KindTranslation, Message: msg, Cause: cause}
}

func upstreamError(msg string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Cause: cause}
}
