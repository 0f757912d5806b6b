package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nlstn/go-adminrest/internal/messages"
	"github.com/nlstn/go-adminrest/internal/metadata"
	"github.com/nlstn/go-adminrest/internal/observability"
	"github.com/nlstn/go-adminrest/internal/query"
	"github.com/nlstn/go-adminrest/internal/repository"
	"github.com/nlstn/go-adminrest/internal/scope"
	"go.opentelemetry.io/otel/trace"
)

// Error codes written in the "code" member of error responses.
const (
	ErrMsgEntityNotFound      = "Entity not found"
	ErrMsgScopeNotFound       = "Scope not found"
	ErrMsgInvalidKey          = "Invalid key"
	ErrMsgInvalidQueryOptions = "Invalid query options"
	ErrMsgInvalidRequestBody  = "Invalid request body"
	ErrMsgNotAcceptable       = "Not acceptable"
	ErrMsgMethodNotAllowed    = "Method not allowed"
	ErrMsgPreconditionFailed  = "Precondition failed"
	ErrMsgConflict            = "Entity already exists"
	ErrMsgDatabaseError       = "Database error"
	ErrMsgInternalError       = "Internal error"
	ErrMsgAuthorizationFailed = "Authorization failed"
)

// msgInternalFailure replaces the details of server-side failures; the cause is logged.
const msgInternalFailure = "The request could not be processed"

// EntityHandler serves the REST resources of one registered entity.
type EntityHandler struct {
	metadata       *metadata.EntityMetadata
	repository     repository.Repository
	scopes         *scope.Registry
	specifications query.SpecificationCreator
	paging         query.PagingConfig
	messages       messages.Source
	basePath       string
	logger         *slog.Logger
	observability  *observability.Config
}

// NewEntityHandler creates a handler for an entity backed by repo.
func NewEntityHandler(repo repository.Repository, meta *metadata.EntityMetadata, logger *slog.Logger) *EntityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityHandler{
		metadata:   meta,
		repository: repo,
		scopes:     scope.NewRegistry(),
		messages:   messages.NewBundle(nil),
		basePath:   "/rest",
		logger:     logger,
	}
}

// SetLogger sets the logger used by the handler.
func (h *EntityHandler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	h.logger = logger
}

// SetObservability enables tracing and request metrics.
func (h *EntityHandler) SetObservability(cfg *observability.Config) {
	h.observability = cfg
}

// SetMessageSource sets the source validation messages are resolved from.
func (h *EntityHandler) SetMessageSource(source messages.Source) {
	if source == nil {
		source = messages.NewBundle(nil)
	}
	h.messages = source
}

// SetPagingConfig sets the default and maximum page sizes.
func (h *EntityHandler) SetPagingConfig(cfg query.PagingConfig) {
	h.paging = cfg
}

// SetMaxInClauseSize limits the number of values of a multi-valued filter parameter.
func (h *EntityHandler) SetMaxInClauseSize(size int) {
	h.specifications.MaxInClauseSize = size
}

// SetDialect sets the SQL dialect filter conditions are quoted for.
func (h *EntityHandler) SetDialect(dialect string) {
	h.specifications.Dialect = dialect
}

// SetBasePath sets the path prefix used for entity links.
func (h *EntityHandler) SetBasePath(basePath string) {
	h.basePath = "/" + strings.Trim(basePath, "/")
	if h.basePath == "/" {
		h.basePath = ""
	}
}

// Scopes returns the scope registry of the entity.
func (h *EntityHandler) Scopes() *scope.Registry {
	return h.scopes
}

// Metadata returns the entity metadata.
func (h *EntityHandler) Metadata() *metadata.EntityMetadata {
	return h.metadata
}

func (h *EntityHandler) collectionPath() string {
	return h.basePath + "/" + h.metadata.RepositoryName
}

// statusRecorder captures the status written by a handler for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// instrument wraps w so the request is counted once the handler returns.
// The final status is stored on span, which must still be open when done runs.
func (h *EntityHandler) instrument(w http.ResponseWriter, r *http.Request, operation string, span trace.Span) (http.ResponseWriter, func()) {
	if h.observability == nil || h.observability.Metrics() == nil {
		return w, func() {}
	}
	recorder := &statusRecorder{ResponseWriter: w}
	started := time.Now()
	return recorder, func() {
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		if span != nil {
			observability.RecordStatus(span, status)
		}
		h.observability.Metrics().RecordRequest(r.Context(), h.metadata.EntityName, operation, status, time.Since(started))
	}
}
