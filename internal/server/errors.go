package server

import (
	"errors"
	"net/http"

	"github.com/hyperjump/postlsh/internal/kv"
	"github.com/hyperjump/postlsh/internal/search"
)

// apiError is an error with the HTTP status it is reported with.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func badRequest(msg string) *apiError {
	return &apiError{status: http.StatusBadRequest, msg: "Bad request: " + msg}
}

// toAPIError maps domain errors to responses. A key missing on the query
// path means the index and the store disagree, which is a server error.
func toAPIError(err error) *apiError {
	var ae *apiError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, search.ErrEmptyQuery):
		return badRequest(err.Error())
	case errors.Is(err, search.ErrMissingEmbedding), errors.Is(err, search.ErrMissingPost):
		return &apiError{status: http.StatusInternalServerError, msg: "Internal server error: " + err.Error()}
	case errors.Is(err, kv.ErrNotFound):
		return &apiError{status: http.StatusNotFound, msg: "Key not found: " + err.Error()}
	default:
		return &apiError{status: http.StatusInternalServerError, msg: "Internal server error: " + err.Error()}
	}
}
