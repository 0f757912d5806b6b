package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nlstn/go-adminrest/internal/conv"
	"github.com/nlstn/go-adminrest/internal/observability"
	"github.com/nlstn/go-adminrest/internal/repository"
	"github.com/nlstn/go-adminrest/internal/response"
	"go.opentelemetry.io/otel/trace"
)

// HandleEntity handles GET, HEAD, PUT, DELETE and OPTIONS requests for individual entities
func (h *EntityHandler) HandleEntity(w http.ResponseWriter, r *http.Request, entityKey string) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.handleGetEntity(w, r, entityKey)
	case http.MethodPut:
		h.handlePutEntity(w, r, entityKey)
	case http.MethodDelete:
		h.handleDeleteEntity(w, r, entityKey)
	case http.MethodOptions:
		h.handleOptionsEntity(w)
	default:
		h.writeError(w, r, http.StatusMethodNotAllowed, ErrMsgMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported for individual entities", r.Method))
	}
}

// handleGetEntity handles GET requests for individual entities
func (h *EntityHandler) handleGetEntity(w http.ResponseWriter, r *http.Request, entityKey string) {
	ctx := r.Context()

	// Start tracing span for entity read
	var span trace.Span
	if h.observability != nil {
		tracer := h.observability.Tracer()
		ctx, span = tracer.StartEntityRead(ctx, h.metadata.EntityName, entityKey)
		defer span.End()
		r = r.WithContext(ctx)
	}

	w, done := h.instrument(w, r, "read", span)
	defer done()

	mediaType, ok := response.Negotiate(r)
	if !ok {
		h.writeError(w, r, http.StatusNotAcceptable, ErrMsgNotAcceptable,
			"Supported media types are application/json and application/hal+json")
		return
	}

	key, err := h.parseEntityKey(entityKey)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, ErrMsgInvalidKey, err.Error())
		return
	}

	timing := observability.StartServerTiming(ctx, "repository-find-one")
	entity, err := h.repository.FindOne(ctx, key)
	timing.Stop()
	if err != nil {
		h.handleFetchError(w, r, err, entityKey)
		if span != nil {
			observability.RecordError(span, err)
		}
		return
	}

	if err := response.WriteEntity(w, r, http.StatusOK, mediaType, entity, response.BuildEntityLink(r, h.collectionPath(), key)); err != nil {
		h.logger.Error("Error writing entity response", "error", err)
	}
}

// handleOptionsEntity handles OPTIONS requests for individual entities
func (h *EntityHandler) handleOptionsEntity(w http.ResponseWriter) {
	w.Header().Set(response.HeaderAllow, "GET, HEAD, PUT, DELETE, OPTIONS")
	w.WriteHeader(http.StatusOK)
}

// parseEntityKey converts the raw path segment to the key type of the entity.
func (h *EntityHandler) parseEntityKey(entityKey string) (interface{}, error) {
	if h.metadata.KeyProperty == nil {
		return nil, fmt.Errorf("entity %s has no key property", h.metadata.EntityName)
	}
	key, err := conv.Convert(entityKey, h.metadata.KeyProperty.Type)
	if err != nil {
		return nil, fmt.Errorf("invalid key '%s': %w", entityKey, err)
	}
	return key, nil
}

// handleFetchError writes the response for a failed single entity lookup.
func (h *EntityHandler) handleFetchError(w http.ResponseWriter, r *http.Request, err error, entityKey string) {
	if errors.Is(err, repository.ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, ErrMsgEntityNotFound,
			fmt.Sprintf("Entity with key '%s' not found", entityKey))
		return
	}
	h.logger.Error("Error fetching entity", "entity", h.metadata.EntityName, "key", entityKey, "error", err)
	h.writeError(w, r, http.StatusInternalServerError, ErrMsgDatabaseError, msgInternalFailure)
}

func (h *EntityHandler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if err := response.WriteError(w, r, status, code, message); err != nil {
		h.logger.Error("Error writing error response", "error", err)
	}
}
