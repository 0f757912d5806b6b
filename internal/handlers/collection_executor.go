package handlers

import (
	"errors"
	"net/http"

	"github.com/nlstn/go-adminrest/internal/query"
	"github.com/nlstn/go-adminrest/internal/repository"
	"github.com/nlstn/go-adminrest/internal/scope"
	"github.com/nlstn/go-adminrest/internal/validation"
)

// errRequestHandled is used to signal that the request has already been handled
// and no further processing should occur.
var errRequestHandled = errors.New("request already handled")

// collectionRequestError represents an error that should be returned to the client
// with a specific HTTP status code and error message.
type collectionRequestError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *collectionRequestError) Error() string {
	return e.Message
}

// collectionExecutionContext provides the phases of a scoped search. Each phase can
// be replaced while the orchestration and error mapping stay shared.
type collectionExecutionContext struct {
	ResolveScope     func() (scope.Scope, error)
	ParsePageRequest func() (query.PageRequest, error)
	BuildFilter      func() (scope.Specification, error)
	FetchFunc        func(scope.Scope, scope.Specification, query.PageRequest) (*query.Page, error)
	WriteResponse    func(*query.Page) error
}

func (h *EntityHandler) executeCollectionQuery(w http.ResponseWriter, r *http.Request, ctx *collectionExecutionContext) {
	if ctx == nil || ctx.ResolveScope == nil || ctx.FetchFunc == nil || ctx.WriteResponse == nil {
		h.logger.Error("executeCollectionQuery: missing required callbacks - this is a programming error")
		h.writeError(w, r, http.StatusInternalServerError, ErrMsgInternalError, "executeCollectionQuery requires ResolveScope, FetchFunc, and WriteResponse callbacks")
		return
	}

	resolved, err := ctx.ResolveScope()
	if !h.handleCollectionError(w, r, err, http.StatusNotFound, ErrMsgScopeNotFound) {
		return
	}

	var pageRequest query.PageRequest
	if ctx.ParsePageRequest != nil {
		pageRequest, err = ctx.ParsePageRequest()
		if !h.handleCollectionError(w, r, err, http.StatusBadRequest, ErrMsgInvalidQueryOptions) {
			return
		}
	}

	var filter scope.Specification
	if ctx.BuildFilter != nil {
		filter, err = ctx.BuildFilter()
		if !h.handleCollectionError(w, r, err, http.StatusBadRequest, ErrMsgInvalidQueryOptions) {
			return
		}
	}

	page, err := ctx.FetchFunc(resolved, filter, pageRequest)
	if !h.handleCollectionError(w, r, err, http.StatusInternalServerError, ErrMsgDatabaseError) {
		return
	}

	h.handleCollectionError(w, r, ctx.WriteResponse(page), http.StatusInternalServerError, ErrMsgInternalError)
}

// handleCollectionError writes the response for err and reports whether processing
// may continue. It is the single place where request errors become status codes.
func (h *EntityHandler) handleCollectionError(w http.ResponseWriter, r *http.Request, err error, defaultStatus int, defaultCode string) bool {
	if err == nil {
		return true
	}

	if errors.Is(err, errRequestHandled) || isTransactionHandled(err) {
		return false
	}

	// Check for HookError first (public API error type)
	if isHookErr, status, message, details := extractHookErrorDetails(err, defaultStatus, defaultCode); isHookErr {
		h.writeError(w, r, status, message, details)
		return false
	}

	var violations *validation.ConstraintViolationError
	if errors.As(err, &violations) {
		h.writeValidationErrors(w, r, violations)
		return false
	}

	var reqErr *collectionRequestError
	if errors.As(err, &reqErr) {
		status := reqErr.StatusCode
		if status == 0 {
			status = defaultStatus
		}

		code := reqErr.ErrorCode
		if code == "" {
			code = defaultCode
		}

		h.writeError(w, r, status, code, reqErr.Message)
		return false
	}

	var filterErr *query.FilterError
	if errors.As(err, &filterErr) {
		h.writeError(w, r, http.StatusBadRequest, ErrMsgInvalidQueryOptions, err.Error())
		return false
	}

	switch {
	case errors.Is(err, scope.ErrScopeNotFound):
		h.writeError(w, r, http.StatusNotFound, ErrMsgScopeNotFound, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		h.writeError(w, r, http.StatusNotFound, ErrMsgEntityNotFound, err.Error())
	case defaultStatus >= http.StatusInternalServerError:
		h.logger.Error("Request failed", "entity", h.metadata.EntityName, "error", err)
		h.writeError(w, r, defaultStatus, defaultCode, msgInternalFailure)
	default:
		h.writeError(w, r, defaultStatus, defaultCode, err.Error())
	}
	return false
}
