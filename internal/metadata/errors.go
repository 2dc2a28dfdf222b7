package metadata

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorClass string

const (
	// ClassTransient covers timeouts, 5xx, 429 and connection failures. Retried.
	ClassTransient ErrorClass = "transient"
	// ClassNotFound means the document does not exist upstream.
	ClassNotFound ErrorClass = "not_found"
	// ClassForbidden means the credentials cannot read the document.
	ClassForbidden ErrorClass = "forbidden"
	// ClassInvalid means the token is malformed or names an unsupported type.
	ClassInvalid ErrorClass = "invalid"
)

// FetchError is returned by Client.Fetch for every upstream failure.
type FetchError struct {
	Token  string
	Class  ErrorClass
	Status int // upstream HTTP status when known
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching metadata for %q: %s (status %d): %v", e.Token, e.Class, e.Status, e.Err)
	}
	return fmt.Sprintf("fetching metadata for %q: %s: %v", e.Token, e.Class, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Permanent reports whether retrying the same request cannot succeed.
func (e *FetchError) Permanent() bool {
	return e.Class != ClassTransient
}

func NewTransientError(token string, err error) *FetchError {
	return &FetchError{Token: token, Class: ClassTransient, Err: err}
}

func NewNotFoundError(token string, err error) *FetchError {
	return &FetchError{Token: token, Class: ClassNotFound, Err: err}
}

func NewForbiddenError(token string, err error) *FetchError {
	return &FetchError{Token: token, Class: ClassForbidden, Err: err}
}

func NewInvalidError(token string, err error) *FetchError {
	return &FetchError{Token: token, Class: ClassInvalid, Err: err}
}

// NewStatusError classifies an upstream HTTP status.
func NewStatusError(token string, status int, err error) *FetchError {
	return &FetchError{Token: token, Class: ClassifyStatus(status), Status: status, Err: err}
}

// ClassifyStatus maps an upstream HTTP status to an error class. A 401 means
// the service credential was rejected, which says nothing about the
// document, so it stays transient.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusNotFound, status == http.StatusGone:
		return ClassNotFound
	case status == http.StatusForbidden:
		return ClassForbidden
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ClassInvalid
	default:
		return ClassTransient
	}
}

// classify converts any error from a source into a FetchError. Errors the
// source did not classify are treated as transient: a spurious retry is
// cheaper than auto-pausing a healthy document.
func classify(token string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		if fe.Token == "" {
			fe.Token = token
		}
		return fe
	}

	return NewTransientError(token, err)
}

func asFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func IsPermanent(err error) bool {
	fe, ok := asFetchError(err)
	return ok && fe.Permanent()
}

func IsNotFound(err error) bool {
	fe, ok := asFetchError(err)
	return ok && fe.Class == ClassNotFound
}

func IsForbidden(err error) bool {
	fe, ok := asFetchError(err)
	return ok && fe.Class == ClassForbidden
}

func IsInvalid(err error) bool {
	fe, ok := asFetchError(err)
	return ok && fe.Class == ClassInvalid
}
