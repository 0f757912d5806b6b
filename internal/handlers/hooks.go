package handlers

import (
	"errors"
	"net/http"
	"reflect"

	"github.com/nlstn/go-adminrest/internal/response"
)

// HookError lets a lifecycle hook choose the status and message of the error response.
type HookError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *HookError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "hook error"
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// extractHookErrorDetails reports whether err is a HookError and returns the status,
// error code and message to write. Unset fields fall back to the defaults.
func extractHookErrorDetails(err error, defaultStatus int, defaultCode string) (bool, int, string, string) {
	var hookErr *HookError
	if !errors.As(err, &hookErr) || hookErr == nil {
		return false, 0, "", ""
	}

	status := hookErr.StatusCode
	if status == 0 {
		status = defaultStatus
	}
	code := hookErr.Message
	if code == "" {
		code = defaultCode
	}
	details := code
	if hookErr.Err != nil {
		details = hookErr.Err.Error()
	}
	return true, status, code, details
}

// writeHookError writes the response for a failed before-hook.
func (h *EntityHandler) writeHookError(w http.ResponseWriter, r *http.Request, err error, defaultStatus int, defaultCode string) {
	status, code, details := defaultStatus, defaultCode, err.Error()
	if isHookErr, hookStatus, hookCode, hookDetails := extractHookErrorDetails(err, defaultStatus, defaultCode); isHookErr {
		status, code, details = hookStatus, hookCode, hookDetails
	}
	if writeErr := response.WriteError(w, r, status, code, details); writeErr != nil {
		h.logger.Error("Error writing error response", "error", writeErr)
	}
}

// callBeforeSave calls the AdminBeforeSave hook if it exists on the entity
func (h *EntityHandler) callBeforeSave(entity interface{}, r *http.Request) error {
	if !h.metadata.Hooks.HasAdminBeforeSave {
		return nil
	}

	return callHook(entity, "AdminBeforeSave", r)
}

// callAfterSave calls the AdminAfterSave hook if it exists on the entity
func (h *EntityHandler) callAfterSave(entity interface{}, r *http.Request) error {
	if !h.metadata.Hooks.HasAdminAfterSave {
		return nil
	}

	return callHook(entity, "AdminAfterSave", r)
}

// callBeforeDelete calls the AdminBeforeDelete hook if it exists on the entity
func (h *EntityHandler) callBeforeDelete(entity interface{}, r *http.Request) error {
	if !h.metadata.Hooks.HasAdminBeforeDelete {
		return nil
	}

	return callHook(entity, "AdminBeforeDelete", r)
}

// callAfterDelete calls the AdminAfterDelete hook if it exists on the entity
func (h *EntityHandler) callAfterDelete(entity interface{}, r *http.Request) error {
	if !h.metadata.Hooks.HasAdminAfterDelete {
		return nil
	}

	return callHook(entity, "AdminAfterDelete", r)
}

// callHook invokes a hook method on an entity using reflection.
// It tries both value and pointer receivers. Hooks receive the request context and
// can reach the active transaction through it when invoked from write handlers.
func callHook(entity interface{}, methodName string, r *http.Request) error {
	ctx := r.Context()

	entityValue := reflect.ValueOf(entity)
	if entityValue.Kind() == reflect.Ptr {
		if entityValue.IsNil() {
			return nil
		}
		entityValue = entityValue.Elem()
	}

	method := entityValue.MethodByName(methodName)
	if !method.IsValid() && entityValue.CanAddr() {
		method = entityValue.Addr().MethodByName(methodName)
	}

	if !method.IsValid() {
		return nil
	}

	results := method.Call([]reflect.Value{
		reflect.ValueOf(ctx),
		reflect.ValueOf(r),
	})

	if len(results) > 0 {
		if err, ok := results[0].Interface().(error); ok {
			return err
		}
	}

	return nil
}
