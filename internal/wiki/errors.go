package wiki

import (
	"fmt"
	"net/http"
)

// DomainError is a request failure mapped to an HTTP status at the dispatch
// boundary.
type DomainError struct {
	Status  int
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func accessDenied(message string) *DomainError {
	return &DomainError{Status: http.StatusForbidden, Code: "ACCESS_DENIED", Message: message}
}

func conflict(message string) *DomainError {
	// 406 is the original wiki's stale-edit status and API clients rely on it.
	return &DomainError{Status: http.StatusNotAcceptable, Code: "CONFLICT", Message: message}
}

func notFound(message string) *DomainError {
	return &DomainError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

func badRequest(message string) *DomainError {
	return &DomainError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
}

func invalidState(message string) *DomainError {
	return &DomainError{Status: http.StatusInternalServerError, Code: "INVALID_STATE", Message: message}
}
