package handlers

import (
	"context"
	"fmt"
	"net/http"
	"reflect"

	"github.com/nlstn/go-adminrest/internal/observability"
	"github.com/nlstn/go-adminrest/internal/response"
	"github.com/nlstn/go-adminrest/internal/validation"
	"go.opentelemetry.io/otel/trace"
)

// handlePostEntity handles POST requests creating a new entity
func (h *EntityHandler) handlePostEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Start tracing span for create operation
	var span trace.Span
	if h.observability != nil {
		tracer := h.observability.Tracer()
		ctx, span = tracer.StartEntityWrite(ctx, h.metadata.EntityName, "", "create")
		defer span.End()
		r = r.WithContext(ctx)
	}

	w, done := h.instrument(w, r, "create", span)
	defer done()

	mediaType, ok := response.Negotiate(r)
	if !ok {
		h.writeError(w, r, http.StatusNotAcceptable, ErrMsgNotAcceptable,
			"Supported media types are application/json and application/hal+json")
		return
	}

	entity, err := h.decodeEntity(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, ErrMsgInvalidRequestBody, err.Error())
		return
	}

	if err := validation.Validate(ctx, h.metadata, entity); err != nil {
		h.handleCollectionError(w, r, err, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	err = h.runInTransaction(ctx, r, func(txCtx context.Context, hookReq *http.Request) error {
		if key, ok := h.providedKey(entity); ok {
			exists, err := h.repository.Exists(txCtx, key)
			if err != nil {
				return err
			}
			if exists {
				h.writeError(w, r, http.StatusConflict, ErrMsgConflict,
					fmt.Sprintf("Entity with key '%v' already exists", key))
				return newTransactionHandledError(fmt.Errorf("entity %v already exists", key))
			}
		}

		return h.saveEntity(txCtx, w, r, hookReq, entity)
	})
	if err != nil {
		if span != nil {
			observability.RecordError(span, err)
		}
		if isTransactionHandled(err) {
			return
		}
		h.handleCollectionError(w, r, err, http.StatusInternalServerError, ErrMsgDatabaseError)
		return
	}

	key, _ := h.metadata.KeyValue(entity)
	location := response.BuildEntityLink(r, h.collectionPath(), key)
	w.Header().Set(response.HeaderLocation, location)

	if err := response.WriteEntity(w, r, http.StatusCreated, mediaType, entity, location); err != nil {
		h.logger.Error("Error writing entity response", "error", err)
	}
}

// providedKey returns the key of entity when the client set a non-zero one.
func (h *EntityHandler) providedKey(entity interface{}) (interface{}, bool) {
	key, ok := h.metadata.KeyValue(entity)
	if !ok || key == nil {
		return nil, false
	}
	if reflect.ValueOf(key).IsZero() {
		return nil, false
	}
	return key, true
}
