package handlers

import (
	"fmt"
	"net/http"

	"github.com/nlstn/go-adminrest/internal/response"
)

// HandleCollection handles GET, HEAD, POST, and OPTIONS requests for entity collections.
// GET searches the default scope.
func (h *EntityHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.handleSearch(w, r, h.scopes.Default().Name())
	case http.MethodPost:
		h.handlePostEntity(w, r)
	case http.MethodOptions:
		h.handleOptionsCollection(w)
	default:
		h.writeError(w, r, http.StatusMethodNotAllowed, ErrMsgMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported for entity collections", r.Method))
	}
}

// HandleScopeSearch handles GET and HEAD requests searching one named scope.
func (h *EntityHandler) HandleScopeSearch(w http.ResponseWriter, r *http.Request, scopeName string) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.handleSearch(w, r, scopeName)
	case http.MethodOptions:
		w.Header().Set(response.HeaderAllow, "GET, HEAD, OPTIONS")
		w.WriteHeader(http.StatusOK)
	default:
		h.writeError(w, r, http.StatusMethodNotAllowed, ErrMsgMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported for scope searches", r.Method))
	}
}

// handleOptionsCollection handles OPTIONS requests for entity collections
func (h *EntityHandler) handleOptionsCollection(w http.ResponseWriter) {
	w.Header().Set(response.HeaderAllow, "GET, HEAD, POST, OPTIONS")
	w.WriteHeader(http.StatusOK)
}
