// Package adminrest serves runtime-registered Go structs over a paged REST surface.
// Each registered entity is exposed below the base path (default /rest) under its
// repository name:
//
//	GET    /rest/{repository}/{id}                      read one entity
//	PUT    /rest/{repository}/{id}                      replace one entity
//	DELETE /rest/{repository}/{id}                      delete one entity
//	GET    /rest/{repository}                           search the default scope
//	POST   /rest/{repository}                           create an entity
//	GET    /rest/{repository}/scope/{scope}/search      search a named scope
//
// Searches accept page (one-based), limit or size, sort=property[,asc|desc] and one
// filter parameter per filterable property.
//
// # Hooks
//
// Entity types can optionally implement hook methods that run inside the write
// transaction. All hook methods are optional and are discovered via reflection:
//
//	func (c *Customer) AdminBeforeSave(ctx context.Context, r *http.Request) error
//	func (c *Customer) AdminAfterSave(ctx context.Context, r *http.Request) error
//	func (c *Customer) AdminBeforeDelete(ctx context.Context, r *http.Request) error
//	func (c *Customer) AdminAfterDelete(ctx context.Context, r *http.Request) error
//
// Returning an error from a Before* hook aborts the operation and rolls the transaction
// back; the client receives 403 or the status of a returned *HookError. Errors from
// After* hooks are logged but don't affect the response. Use TransactionFromContext to
// issue statements in the same transaction.
//
// # Validation
//
// Properties tagged admin:"required" or admin:"maxlength=n" are checked before every
// write. An entity may add its own rules with a Validate(ctx) error method. Violations
// are answered with 400 and one message per field, resolved through the MessageSource.
package adminrest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/nlstn/go-adminrest/internal/handlers"
	"github.com/nlstn/go-adminrest/internal/messages"
	"github.com/nlstn/go-adminrest/internal/metadata"
	"github.com/nlstn/go-adminrest/internal/observability"
	"github.com/nlstn/go-adminrest/internal/query"
	"github.com/nlstn/go-adminrest/internal/repository"
	"github.com/nlstn/go-adminrest/internal/response"
	"github.com/nlstn/go-adminrest/internal/scope"
	"github.com/nlstn/go-adminrest/internal/validation"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	// DefaultBasePath is the path prefix entities are served under.
	DefaultBasePath = "/rest"
	// DefaultPageSize is used when neither the request nor the entity configure a page size.
	DefaultPageSize = query.DefaultPageSize
	// DefaultMaxPageSize caps the page size a client may request.
	DefaultMaxPageSize = query.DefaultMaxPageSize
	// DefaultMaxInClauseSize limits the values of one multi-valued filter parameter.
	DefaultMaxInClauseSize = query.DefaultMaxInClauseSize
	// DefaultScopeName names the unrestricted scope every entity has.
	DefaultScopeName = scope.DefaultScopeName
)

// Scope types. A scope restricts the collection searched by
// GET {base}/{repository}/scope/{name}/search.
type (
	// Scope is a named restriction of an entity collection.
	Scope = scope.Scope
	// AllScope is the unrestricted scope.
	AllScope = scope.AllScope
	// SpecificationScope restricts the collection with SQL conditions.
	SpecificationScope = scope.SpecificationScope
	// PredicateScope restricts the collection in memory after loading it.
	PredicateScope = scope.PredicateScope
	// Predicate receives a pointer to the entity struct.
	Predicate = scope.Predicate
	// Specification is a conjunction of QueryScope conditions.
	Specification = scope.Specification
	// QueryScope is one SQL condition with its bound arguments.
	QueryScope = scope.QueryScope
)

// HookError lets a Before* hook choose the status code and error code of the response.
type HookError = handlers.HookError

// Validation types returned by entity Validate methods.
type (
	FieldError               = validation.FieldError
	ConstraintViolationError = validation.ConstraintViolationError
)

// Constraint codes used as message keys.
const (
	CodeNotNull = validation.CodeNotNull
	CodeSize    = validation.CodeSize
	CodeInvalid = validation.CodeInvalid
)

// MessageSource resolves validation message codes. Codes are tried from
// Code.object.field over Code.field to Code; {0} is the object name, {1} the field,
// {2} the rejected value and {3...} the constraint arguments.
type MessageSource = messages.Source

// MessageBundle is an in-memory MessageSource.
type MessageBundle = messages.Bundle

// NewMessageBundle creates a bundle from code/pattern pairs.
func NewMessageBundle(patterns map[string]string) *MessageBundle {
	return messages.NewBundle(patterns)
}

// LoadMessageBundle reads a YAML message file. Nested keys are joined with dots.
func LoadMessageBundle(path string) (*MessageBundle, error) {
	return messages.LoadFile(path)
}

// NewSpecificationScope creates a scope restricted by SQL conditions.
func NewSpecificationScope(name string, conditions ...QueryScope) Scope {
	return SpecificationScope{ScopeName: name, Specification: Specification(conditions)}
}

// NewPredicateScope creates a scope evaluated in memory.
func NewPredicateScope(name string, predicate Predicate) Scope {
	return PredicateScope{ScopeName: name, Predicate: predicate}
}

// SQLAdapter wraps a database/sql connection with dialect information.
type SQLAdapter struct {
	// DB is the underlying database/sql connection
	DB *sql.DB
	// Dialect identifies the database type (sqlite, postgres or mysql)
	Dialect string
}

// NewSQLAdapter creates an SQLAdapter from a GORM database connection.
func NewSQLAdapter(db *gorm.DB) (*SQLAdapter, error) {
	if db == nil {
		return nil, fmt.Errorf("adminrest: database handle is required")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("adminrest: failed to get sql.DB from gorm: %w", err)
	}

	return &SQLAdapter{
		DB:      sqlDB,
		Dialect: db.Dialector.Name(),
	}, nil
}

// ServiceConfig controls optional service behaviours.
type ServiceConfig struct {
	// BasePath is the path prefix of every route. Default: /rest.
	BasePath string

	// DefaultPageSize is used when a request names no page size. Default: 10.
	DefaultPageSize int

	// MaxPageSize caps requested page sizes. Default: 1000.
	MaxPageSize int

	// MaxInClauseSize limits the number of values of one filter parameter. Default: 1000.
	MaxInClauseSize int
}

// EntityConfig customizes the registration of one entity.
type EntityConfig struct {
	// Name overrides the repository name used in URLs.
	Name string
	// DefaultPageSize overrides the service page size for this entity.
	DefaultPageSize int
	// Scopes are registered in addition to the default scope.
	Scopes []Scope
}

// Service serves every registered entity.
type Service struct {
	// gormDB backs the GORM repositories; nil when the service uses an SQLAdapter
	gormDB *gorm.DB
	// sqlDB and dialect back the database/sql repositories
	sqlDB   *sql.DB
	dialect string
	// entities holds registered entity metadata keyed by repository name
	entities map[string]*metadata.EntityMetadata
	// handlers holds entity handlers keyed by repository name
	handlers map[string]*handlers.EntityHandler
	// repositories holds the repository of every handler keyed by repository name
	repositories map[string]repository.Repository
	// logger is used for structured logging throughout the service
	logger *slog.Logger
	// messages resolves validation messages
	messages messages.Source
	// observability holds the observability configuration (tracing, metrics)
	observability *observability.Config
	paging        query.PagingConfig
	// maxInClauseSize limits the number of values of a multi-valued filter
	maxInClauseSize int
	basePath        string

	mu         sync.RWMutex
	httpRouter http.Handler
}

// NewService creates a service backed by GORM.
func NewService(db *gorm.DB) (*Service, error) {
	return NewServiceWithConfig(db, ServiceConfig{})
}

// NewServiceWithConfig creates a service backed by GORM with additional configuration.
func NewServiceWithConfig(db *gorm.DB, cfg ServiceConfig) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("adminrest: database handle is required")
	}
	s, err := newServiceInternal(cfg)
	if err != nil {
		return nil, err
	}
	s.gormDB = db
	return s, nil
}

// NewServiceWithAdapter creates a service whose repositories issue SQL through database/sql.
func NewServiceWithAdapter(adapter *SQLAdapter, cfg ServiceConfig) (*Service, error) {
	if adapter == nil || adapter.DB == nil {
		return nil, fmt.Errorf("adminrest: adapter is required")
	}
	s, err := newServiceInternal(cfg)
	if err != nil {
		return nil, err
	}
	s.sqlDB = adapter.DB
	s.dialect = adapter.Dialect
	return s, nil
}

// newServiceInternal is the internal service initialization function used by all constructors.
func newServiceInternal(cfg ServiceConfig) (*Service, error) {
	maxInClauseSize := cfg.MaxInClauseSize
	if maxInClauseSize <= 0 {
		maxInClauseSize = DefaultMaxInClauseSize
	}
	maxPageSize := cfg.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	defaultPageSize := cfg.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if defaultPageSize > maxPageSize {
		return nil, fmt.Errorf("adminrest: default page size %d exceeds max page size %d", defaultPageSize, maxPageSize)
	}

	s := &Service{
		entities:        make(map[string]*metadata.EntityMetadata),
		handlers:        make(map[string]*handlers.EntityHandler),
		repositories:    make(map[string]repository.Repository),
		logger:          slog.Default(),
		messages:        messages.NewBundle(nil),
		paging:          query.PagingConfig{DefaultSize: defaultPageSize, MaxSize: maxPageSize},
		maxInClauseSize: maxInClauseSize,
		basePath:        DefaultBasePath,
	}

	if cfg.BasePath != "" {
		if err := s.SetBasePath(cfg.BasePath); err != nil {
			return nil, err
		}
	} else {
		s.rebuildRouter()
	}
	return s, nil
}

// SetLogger sets a custom logger for the service.
// If logger is nil, slog.Default() is used.
func (s *Service) SetLogger(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger = logger
	for _, handler := range s.handlers {
		handler.SetLogger(logger)
	}
	for _, repo := range s.repositories {
		if sqlRepo, ok := repo.(*repository.SQLRepository); ok {
			sqlRepo.SetLogger(logger)
		}
	}
	return nil
}

// SetMessageSource sets the source validation messages are resolved from.
func (s *Service) SetMessageSource(source MessageSource) error {
	if source == nil {
		return fmt.Errorf("adminrest: message source is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = source
	for _, handler := range s.handlers {
		handler.SetMessageSource(source)
	}
	return nil
}

// ObservabilityConfig configures observability features (tracing, metrics) for the service.
// Nil providers fall back to the global OpenTelemetry providers.
type ObservabilityConfig struct {
	// TracerProvider provides the OpenTelemetry tracer for distributed tracing.
	TracerProvider trace.TracerProvider

	// MeterProvider provides the OpenTelemetry meter for metrics collection.
	MeterProvider metric.MeterProvider

	// ServiceName identifies this service in telemetry data.
	// Defaults to "adminrest-service" if not specified.
	ServiceName string

	// ServiceVersion is reported in telemetry attributes.
	ServiceVersion string

	// EnableDetailedDBTracing enables per-statement database spans for GORM backed services.
	EnableDetailedDBTracing bool

	// EnableServerTiming enables the Server-Timing HTTP response header.
	EnableServerTiming bool
}

// SetObservability configures OpenTelemetry-based observability for the service.
//
// When observability is configured:
//   - Entity reads, writes, deletes and scope searches create spans
//   - Every request is counted and timed by entity, operation and status
//   - Database statements can optionally be traced (EnableDetailedDBTracing)
//   - Repository calls and statements appear in Server-Timing (EnableServerTiming)
func (s *Service) SetObservability(cfg ObservabilityConfig) error {
	opts := []observability.Option{}

	if cfg.TracerProvider != nil {
		opts = append(opts, observability.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, observability.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.ServiceName != "" {
		opts = append(opts, observability.WithServiceName(cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		opts = append(opts, observability.WithServiceVersion(cfg.ServiceVersion))
	}
	if s.logger != nil {
		opts = append(opts, observability.WithLogger(s.logger))
	}
	if cfg.EnableDetailedDBTracing {
		opts = append(opts, observability.WithDetailedDBTracing())
	}
	if cfg.EnableServerTiming {
		opts = append(opts, observability.WithServerTiming())
	}

	obsCfg := observability.NewConfig(opts...)
	if err := obsCfg.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}

	// Register GORM callbacks for detailed DB tracing if enabled
	if obsCfg.DetailedDBTracing() && s.gormDB != nil {
		if err := observability.RegisterGORMCallbacks(s.gormDB, obsCfg); err != nil {
			return fmt.Errorf("failed to register GORM callbacks: %w", err)
		}
	}

	// Register GORM callbacks for server timing if enabled
	if cfg.EnableServerTiming && s.gormDB != nil {
		if err := observability.RegisterServerTimingCallbacks(s.gormDB); err != nil {
			return fmt.Errorf("failed to register server timing callbacks: %w", err)
		}
	}

	s.mu.Lock()
	s.observability = obsCfg
	for _, handler := range s.handlers {
		handler.SetObservability(obsCfg)
	}
	s.mu.Unlock()
	s.rebuildRouter()

	s.logger.Info("Observability configured",
		"tracing_enabled", cfg.TracerProvider != nil,
		"metrics_enabled", cfg.MeterProvider != nil,
		"server_timing_enabled", cfg.EnableServerTiming,
		"service_name", cfg.ServiceName,
	)

	return nil
}

// Observability returns the current observability configuration.
// Returns nil if observability is not configured.
func (s *Service) Observability() *observability.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.observability
}

// ServerTimingMetric tracks the duration of an operation for the Server-Timing header.
type ServerTimingMetric = observability.ServerTimingMetric

// StartServerTiming starts a Server-Timing metric with the given name.
// When server timing is not enabled the returned metric is a no-op that is safe to Stop.
//
// Example:
//
//	func (c *Customer) AdminBeforeSave(ctx context.Context, r *http.Request) error {
//	    metric := adminrest.StartServerTiming(ctx, "credit-check")
//	    defer metric.Stop()
//	    // call the credit service
//	}
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	return observability.StartServerTiming(ctx, name)
}

// StartServerTimingWithDesc starts a Server-Timing metric with a name and description.
func StartServerTimingWithDesc(ctx context.Context, name, description string) *ServerTimingMetric {
	return observability.StartServerTimingWithDesc(ctx, name, description)
}

// RegisterEntity registers an entity type under its default repository name
// (the struct name with a lower-case first letter).
func (s *Service) RegisterEntity(entity interface{}) error {
	return s.RegisterEntityWithConfig(entity, EntityConfig{})
}

// RegisterEntityWithConfig registers an entity type with a custom name, page size or scopes.
func (s *Service) RegisterEntityWithConfig(entity interface{}, cfg EntityConfig) error {
	// Analyze the entity structure
	entityMetadata, err := metadata.AnalyzeEntity(entity)
	if err != nil {
		return fmt.Errorf("failed to analyze entity: %w", err)
	}
	if name := strings.TrimSpace(cfg.Name); name != "" {
		if strings.ContainsAny(name, "/?#") {
			return fmt.Errorf("invalid repository name '%s'", name)
		}
		entityMetadata.RepositoryName = name
	}
	if cfg.DefaultPageSize < 0 {
		return fmt.Errorf("default page size of '%s' cannot be negative", entityMetadata.RepositoryName)
	}
	if cfg.DefaultPageSize > 0 {
		entityMetadata.DefaultPageSize = cfg.DefaultPageSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[entityMetadata.RepositoryName]; exists {
		return fmt.Errorf("repository '%s' is already registered", entityMetadata.RepositoryName)
	}

	repo := s.newRepository(entityMetadata)

	// Create the handler
	handler := handlers.NewEntityHandler(repo, entityMetadata, s.logger)
	handler.SetBasePath(s.basePath)
	handler.SetPagingConfig(s.paging)
	handler.SetMaxInClauseSize(s.maxInClauseSize)
	handler.SetDialect(s.dialectName())
	handler.SetMessageSource(s.messages)
	// Set observability configuration if enabled
	if s.observability != nil {
		handler.SetObservability(s.observability)
	}

	for _, sc := range cfg.Scopes {
		if err := handler.Scopes().Add(sc); err != nil {
			return fmt.Errorf("failed to register scope on '%s': %w", entityMetadata.RepositoryName, err)
		}
	}

	s.entities[entityMetadata.RepositoryName] = entityMetadata
	s.repositories[entityMetadata.RepositoryName] = repo
	s.handlers[entityMetadata.RepositoryName] = handler

	s.logger.Debug("Registered entity",
		"entity", entityMetadata.EntityName,
		"repository", entityMetadata.RepositoryName,
		"table", entityMetadata.TableName,
		"scopes", handler.Scopes().Names())
	return nil
}

func (s *Service) newRepository(meta *metadata.EntityMetadata) repository.Repository {
	if s.gormDB != nil {
		return repository.NewGormRepository(s.gormDB, meta)
	}
	repo := repository.NewSQLRepository(s.sqlDB, s.dialect, meta)
	repo.SetLogger(s.logger)
	return repo
}

func (s *Service) dialectName() string {
	if s.gormDB != nil {
		return s.gormDB.Dialector.Name()
	}
	return s.dialect
}

// RegisterScope adds a named scope to a registered entity.
func (s *Service) RegisterScope(repositoryName string, sc Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handler, ok := s.handlers[repositoryName]
	if !ok {
		return fmt.Errorf("repository '%s' is not registered", repositoryName)
	}
	if err := handler.Scopes().Add(sc); err != nil {
		return err
	}
	s.logger.Debug("Registered scope", "repository", repositoryName, "scope", sc.Name())
	return nil
}

// Scopes returns the scope names of a registered entity in registration order.
func (s *Service) Scopes(repositoryName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handler, ok := s.handlers[repositoryName]
	if !ok {
		return nil, fmt.Errorf("repository '%s' is not registered", repositoryName)
	}
	return handler.Scopes().Names(), nil
}

// Entities returns the registered repository names, sorted.
func (s *Service) Entities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entities))
	for name := range s.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetBasePath mounts the service under a different path prefix.
// The path must start with "/" and must not end with "/". An empty path mounts at the root.
func (s *Service) SetBasePath(basePath string) error {
	trimmed := strings.TrimSpace(basePath)

	if trimmed != "" {
		// MUST start with "/"
		if !strings.HasPrefix(trimmed, "/") {
			return fmt.Errorf("base path must start with '/': got %q", trimmed)
		}

		// MUST NOT end with "/"
		if strings.HasSuffix(trimmed, "/") {
			return fmt.Errorf("base path must not end with '/': got %q", trimmed)
		}

		// Reject path traversal attempts
		if strings.Contains(trimmed, "..") {
			return fmt.Errorf("base path cannot contain '..': got %q", trimmed)
		}
	}

	s.mu.Lock()
	s.basePath = trimmed
	for _, handler := range s.handlers {
		handler.SetBasePath(trimmed)
	}
	s.mu.Unlock()
	s.rebuildRouter()

	s.logger.Debug("Base path configured", "base_path", trimmed)
	return nil
}

// BasePath returns the configured base path.
func (s *Service) BasePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.basePath
}

// ServeHTTP implements http.Handler.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	router := s.httpRouter
	s.mu.RUnlock()
	router.ServeHTTP(w, r)
}

func (s *Service) rebuildRouter() {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := chi.NewRouter()
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, handlers.ErrMsgMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported", r.Method))
	})

	routes := func(rt chi.Router) {
		rt.HandleFunc("/{repository}", s.withHandler(func(h *handlers.EntityHandler, w http.ResponseWriter, r *http.Request) {
			h.HandleCollection(w, r)
		}))
		rt.HandleFunc("/{repository}/{id}", s.withHandler(func(h *handlers.EntityHandler, w http.ResponseWriter, r *http.Request) {
			h.HandleEntity(w, r, pathParam(r, "id"))
		}))
		rt.HandleFunc("/{repository}/scope/{scope}/search", s.withHandler(func(h *handlers.EntityHandler, w http.ResponseWriter, r *http.Request) {
			h.HandleScopeSearch(w, r, pathParam(r, "scope"))
		}))
	}
	if s.basePath == "" {
		routes(r)
	} else {
		r.Route(s.basePath, routes)
	}

	var h http.Handler = r
	if s.observability != nil && s.observability.ServerTimingEnabled() {
		h = observability.ServerTimingMiddleware(h)
	}
	s.httpRouter = h
}

// withHandler resolves the entity handler named by the repository path parameter.
func (s *Service) withHandler(fn func(*handlers.EntityHandler, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := pathParam(r, "repository")

		s.mu.RLock()
		handler, ok := s.handlers[name]
		s.mu.RUnlock()

		if !ok {
			s.writeError(w, r, http.StatusNotFound, handlers.ErrMsgEntityNotFound,
				fmt.Sprintf("No repository is registered under '%s'", name))
			return
		}
		fn(handler, w, r)
	}
}

func (s *Service) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "Not found",
		fmt.Sprintf("No resource matches '%s'", r.URL.Path))
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if err := response.WriteError(w, r, status, code, message); err != nil {
		s.logger.Error("Error writing error response", "error", err)
	}
}

// pathParam returns the unescaped value of a route parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if value, err := url.PathUnescape(raw); err == nil {
		return value
	}
	return raw
}
