package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nlstn/go-adminrest/internal/observability"
	"github.com/nlstn/go-adminrest/internal/query"
	"github.com/nlstn/go-adminrest/internal/response"
	"github.com/nlstn/go-adminrest/internal/scope"
	"go.opentelemetry.io/otel/trace"
)

// handleSearch runs a paged, filtered search over the named scope.
func (h *EntityHandler) handleSearch(w http.ResponseWriter, r *http.Request, scopeName string) {
	ctx := r.Context()

	// Start tracing span for the search
	var span trace.Span
	if h.observability != nil {
		tracer := h.observability.Tracer()
		ctx, span = tracer.StartCollectionSearch(ctx, h.metadata.EntityName, scopeName)
		defer span.End()
		r = r.WithContext(ctx)
	}

	w, done := h.instrument(w, r, "search", span)
	defer done()

	mediaType, ok := response.Negotiate(r)
	if !ok {
		h.writeError(w, r, http.StatusNotAcceptable, ErrMsgNotAcceptable,
			"Supported media types are application/json and application/hal+json")
		return
	}

	params := r.URL.Query()

	h.executeCollectionQuery(w, r, &collectionExecutionContext{
		ResolveScope: h.resolveScope(scopeName),
		ParsePageRequest: func() (query.PageRequest, error) {
			return query.ParsePageRequest(params, h.metadata, h.paging)
		},
		BuildFilter: func() (scope.Specification, error) {
			return h.specifications.ToSpecification(h.metadata, params)
		},
		FetchFunc: func(s scope.Scope, filter scope.Specification, pageRequest query.PageRequest) (*query.Page, error) {
			page, err := h.searchScope(ctx, s, filter, pageRequest)
			if span != nil {
				if err != nil {
					observability.RecordError(span, err)
				} else {
					observability.RecordResult(span, len(page.Content), page.TotalElements)
				}
			}
			return page, err
		},
		WriteResponse: func(page *query.Page) error {
			return response.WritePage(w, r, mediaType, page)
		},
	})
}

func (h *EntityHandler) resolveScope(scopeName string) func() (scope.Scope, error) {
	return func() (scope.Scope, error) {
		s, err := h.scopes.Get(scopeName)
		if errors.Is(err, scope.ErrScopeNotFound) {
			return nil, &collectionRequestError{
				StatusCode: http.StatusNotFound,
				ErrorCode:  ErrMsgScopeNotFound,
				Message:    fmt.Sprintf("Scope '%s' is not defined for %s", scopeName, h.metadata.RepositoryName),
			}
		}
		return s, err
	}
}

// searchScope fetches one page of the scope.
// Predicate scopes are evaluated in memory over every row that matches the filter,
// specification scopes are combined with the filter in the database query.
func (h *EntityHandler) searchScope(ctx context.Context, s scope.Scope, filter scope.Specification, pageRequest query.PageRequest) (*query.Page, error) {
	timing := observability.StartServerTimingWithDesc(ctx, "repository-search", s.Name())
	defer timing.Stop()

	if predicate, ok := scope.AsPredicate(s); ok {
		items, err := h.repository.FindAllSorted(ctx, filter, pageRequest.Sort)
		if err != nil {
			return nil, err
		}
		matching := make([]interface{}, 0, len(items))
		for _, item := range items {
			if predicate(item) {
				matching = append(matching, item)
			}
		}
		return query.SelectPage(matching, pageRequest), nil
	}

	if spec, ok := scope.AsSpecification(s); ok {
		return h.repository.FindAll(ctx, scope.And(spec, filter), pageRequest)
	}

	return h.repository.FindAll(ctx, filter, pageRequest)
}
