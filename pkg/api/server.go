// Package api exposes the command surface over HTTP. Handlers only
// parse requests into typed commands and delegate to the dispatcher;
// every policy decision happens behind it.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/harborgate/orgd/pkg/command"
	"github.com/harborgate/orgd/pkg/httputil"
	"github.com/harborgate/orgd/pkg/middleware"
	"github.com/harborgate/orgd/pkg/observability"
	"github.com/harborgate/orgd/pkg/orgs"
)

// Dispatcher runs one parsed command end to end.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *command.Request) (interface{}, error)
}

// Fallback timeouts when Options leaves them unset.
const (
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// Options carries the optional server collaborators.
type Options struct {
	// Store backs the machine-credential routes.
	Store orgs.Storage
	// Limiter rate-limits the user-facing routes when set.
	Limiter *middleware.RedisRateLimiter
	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Timeouts for the underlying http.Server; zero values fall back
	// to the package defaults.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the HTTP front of the command dispatcher.
type Server struct {
	dispatcher Dispatcher
	store      orgs.Storage
	limiter    *middleware.RedisRateLimiter
	logger     *observability.Logger
	metrics    *observability.Metrics

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	httpServer *http.Server
}

// NewServer creates an API server around the given dispatcher.
func NewServer(dispatcher Dispatcher, opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	return &Server{
		dispatcher:   dispatcher,
		store:        opts.Store,
		limiter:      opts.Limiter,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		idleTimeout:  opts.IdleTimeout,
	}
}

// Router builds the full route table with the middleware chain applied.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	if s.logger != nil {
		router.Use(middleware.Recover(s.logger))
	}

	// The machine subrouter must come first: mux does not backtrack
	// once a prefix route matches, and the user subrouter matches
	// everything.
	if s.store != nil {
		machine := router.PathPrefix("/machine").Subrouter()
		machine.Use(middleware.RequestID)
		machine.Use(middleware.NewMachineAuth(s.store).Handler)
		machine.HandleFunc("/organizations/{orgID}/license", s.machineReadLicense).Methods(http.MethodGet)
	}

	user := router.PathPrefix("/").Subrouter()
	user.Use(middleware.RequestID)
	if s.metrics != nil {
		user.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}
	user.Use(middleware.Identity)
	if s.limiter != nil {
		user.Use(s.limiter.Handler)
	}
	s.registerOrgRoutes(user)
	s.registerBillingRoutes(user)
	s.registerLicenseRoutes(user)

	return router
}

// Start serves the API until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	if s.logger != nil {
		s.logger.WithField("addr", addr).Info("api server listening")
	}
	s.httpServer = s.newHTTPServer(addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) newHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(s.Router(), "orgd.api"),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// dispatch fills in the caller identity, runs the command, and writes
// the outcome. Commands returning no payload yield 204.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *command.Request) {
	req.UserID = middleware.UserID(r.Context())
	req.OrganizationID = mux.Vars(r)["orgID"]

	result, err := s.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if result == nil {
		httputil.WriteNoContent(w)
		return
	}
	httputil.WriteSuccess(w, result)
}

// machineReadLicense serves the current license document to a
// self-hosted installation authenticating with the org API credential.
// MachineAuth has already validated the credential against this org.
func (s *Server) machineReadLicense(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(mux.Vars(r)["orgID"])
	if err != nil {
		httputil.WriteNotFound(w, "organization not found")
		return
	}

	org, err := s.store.GetOrganization(r.Context(), orgID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if org.LicenseKey == "" {
		httputil.WriteNotFound(w, "no license has been generated")
		return
	}
	httputil.WriteSuccess(w, &command.LicenseDocument{Token: org.LicenseKey})
}
