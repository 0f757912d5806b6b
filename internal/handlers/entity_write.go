package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nlstn/go-adminrest/internal/etag"
	"github.com/nlstn/go-adminrest/internal/messages"
	"github.com/nlstn/go-adminrest/internal/observability"
	"github.com/nlstn/go-adminrest/internal/repository"
	"github.com/nlstn/go-adminrest/internal/response"
	"github.com/nlstn/go-adminrest/internal/validation"
	"go.opentelemetry.io/otel/trace"
)

// handleDeleteEntity handles DELETE requests for individual entities
func (h *EntityHandler) handleDeleteEntity(w http.ResponseWriter, r *http.Request, entityKey string) {
	ctx := r.Context()

	// Start tracing span for delete operation
	var span trace.Span
	if h.observability != nil {
		tracer := h.observability.Tracer()
		ctx, span = tracer.StartEntityDelete(ctx, h.metadata.EntityName, entityKey)
		defer span.End()
		r = r.WithContext(ctx)
	}

	w, done := h.instrument(w, r, "delete", span)
	defer done()

	key, err := h.parseEntityKey(entityKey)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, ErrMsgInvalidKey, err.Error())
		return
	}

	err = h.runInTransaction(ctx, r, func(txCtx context.Context, hookReq *http.Request) error {
		entity, err := h.repository.FindOne(txCtx, key)
		if err != nil {
			h.handleFetchError(w, r, err, entityKey)
			return newTransactionHandledError(err)
		}

		if err := h.checkIfMatch(w, r, entity); err != nil {
			return err
		}

		if err := h.callBeforeDelete(entity, hookReq); err != nil {
			h.writeHookError(w, r, err, http.StatusForbidden, ErrMsgAuthorizationFailed)
			return newTransactionHandledError(err)
		}

		timing := observability.StartServerTiming(txCtx, "repository-delete")
		err = h.repository.Delete(txCtx, key)
		timing.Stop()
		if err != nil {
			return err
		}

		if err := h.callAfterDelete(entity, hookReq); err != nil {
			h.logger.Error("AfterDelete hook failed", "error", err)
		}
		return nil
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

	w.WriteHeader(http.StatusNoContent)
}

// handlePutEntity handles PUT requests. The body replaces the entity stored under entityKey.
func (h *EntityHandler) handlePutEntity(w http.ResponseWriter, r *http.Request, entityKey string) {
	ctx := r.Context()

	// Start tracing span for replace operation
	var span trace.Span
	if h.observability != nil {
		tracer := h.observability.Tracer()
		ctx, span = tracer.StartEntityWrite(ctx, h.metadata.EntityName, entityKey, "replace")
		defer span.End()
		r = r.WithContext(ctx)
	}

	w, done := h.instrument(w, r, "replace", span)
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

	entity, err := h.decodeEntity(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, ErrMsgInvalidRequestBody, err.Error())
		return
	}
	if err := h.metadata.SetKeyValue(entity, key); err != nil {
		h.writeError(w, r, http.StatusBadRequest, ErrMsgInvalidKey, err.Error())
		return
	}

	if err := validation.Validate(ctx, h.metadata, entity); err != nil {
		h.handleCollectionError(w, r, err, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	err = h.runInTransaction(ctx, r, func(txCtx context.Context, hookReq *http.Request) error {
		if r.Header.Get(response.HeaderIfMatch) != "" {
			current, err := h.repository.FindOne(txCtx, key)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					h.writeError(w, r, http.StatusPreconditionFailed, ErrMsgPreconditionFailed,
						fmt.Sprintf("Entity with key '%s' does not exist", entityKey))
					return newTransactionHandledError(err)
				}
				return err
			}
			if err := h.checkIfMatch(w, r, current); err != nil {
				return err
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

	if err := response.WriteEntity(w, r, http.StatusOK, mediaType, entity, response.BuildEntityLink(r, h.collectionPath(), key)); err != nil {
		h.logger.Error("Error writing entity response", "error", err)
	}
}

// saveEntity runs the save hooks around Repository.Save. It must be called inside a transaction.
func (h *EntityHandler) saveEntity(txCtx context.Context, w http.ResponseWriter, r *http.Request, hookReq *http.Request, entity interface{}) error {
	if err := h.callBeforeSave(entity, hookReq); err != nil {
		h.writeHookError(w, r, err, http.StatusForbidden, ErrMsgAuthorizationFailed)
		return newTransactionHandledError(err)
	}

	timing := observability.StartServerTiming(txCtx, "repository-save")
	err := h.repository.Save(txCtx, entity)
	timing.Stop()
	if err != nil {
		return err
	}

	if err := h.callAfterSave(entity, hookReq); err != nil {
		h.logger.Error("AfterSave hook failed", "error", err)
	}
	return nil
}

// checkIfMatch answers 412 when the If-Match header does not list the current ETag.
func (h *EntityHandler) checkIfMatch(w http.ResponseWriter, r *http.Request, current interface{}) error {
	ifMatch := r.Header.Get(response.HeaderIfMatch)
	if ifMatch == "" {
		return nil
	}
	tag, err := response.EntityTag(current)
	if err != nil {
		return err
	}
	if !etag.Match(ifMatch, tag) {
		h.writeError(w, r, http.StatusPreconditionFailed, ErrMsgPreconditionFailed,
			"The entity has been modified since it was read")
		return newTransactionHandledError(errors.New("if-match precondition failed"))
	}
	return nil
}

// decodeEntity reads the JSON request body into a new entity instance.
func (h *EntityHandler) decodeEntity(r *http.Request) (interface{}, error) {
	entity := h.metadata.NewEntity()
	if r.Body == nil {
		return nil, errors.New("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(entity); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is required")
		}
		return nil, fmt.Errorf("invalid JSON in request body: %w", err)
	}
	return entity, nil
}

// writeValidationErrors resolves every violation through the message source and writes 400.
// Codes are tried from the most specific (Code.object.field) to the plain constraint code.
func (h *EntityHandler) writeValidationErrors(w http.ResponseWriter, r *http.Request, violations *validation.ConstraintViolationError) {
	fieldMessages := make([]response.FieldMessage, 0, len(violations.Errors))
	for _, fe := range violations.Errors {
		field := fe.Field
		codes := []string{fe.Code + "." + fe.ObjectName + "." + fe.Field, fe.Code + "." + fe.Field, fe.Code}
		if field == "" {
			field = fe.ObjectName
			codes = []string{fe.Code + "." + fe.ObjectName, fe.Code}
		}
		fieldMessages = append(fieldMessages, response.FieldMessage{
			Field:   field,
			Message: messages.Resolve(h.messages, codes, fe.MessageArguments(), fe.DefaultMessage),
		})
	}
	if err := response.WriteValidationErrors(w, r, fieldMessages); err != nil {
		h.logger.Error("Error writing error response", "error", err)
	}
}
