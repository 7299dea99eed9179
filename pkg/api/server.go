package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kbase/groups-sub003/pkg/httputil"
	"github.com/kbase/groups-sub003/pkg/identity"
	"github.com/kbase/groups-sub003/pkg/observability"
)

// Version is the service version reported by the root endpoint.
const Version = "1.0.0"

// ServiceName is the service name reported by the root endpoint.
const ServiceName = "Groups"

// maxBodyBytes caps request bodies. The largest legal payload is a full set
// of custom fields, far below this.
const maxBodyBytes = 1 << 20

// Server is the HTTP front end of the groups service.
type Server struct {
	svc     Service
	ids     identity.Authority
	router  *mux.Router
	log     *observability.Logger
	metrics *observability.Metrics
}

// NewServer creates a server for the given service and identity authority.
// A nil metrics value disables request metrics.
func NewServer(svc Service, ids identity.Authority, log *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		svc:     svc,
		ids:     ids,
		router:  mux.NewRouter(),
		log:     log,
		metrics: metrics,
	}

	s.router.Use(mux.MiddlewareFunc(s.requestContextMiddleware))
	s.router.Use(mux.MiddlewareFunc(s.recoveryMiddleware))
	if metrics != nil {
		s.router.Use(mux.MiddlewareFunc(observability.HTTPMetricsMiddleware(metrics)))
	}
	s.router.Use(mux.MiddlewareFunc(httputil.ContentTypeMiddleware))
	s.router.Use(mux.MiddlewareFunc(httputil.MaxBytesMiddleware(maxBodyBytes)))

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.root).Methods("GET")

	// Group routes
	s.router.HandleFunc("/groups", s.listGroups).Methods("GET")
	s.router.HandleFunc("/groups/{id}", s.createGroup).Methods("POST")
	s.router.HandleFunc("/groups/{id}", s.getGroup).Methods("GET")
	s.router.HandleFunc("/groups/{id}", s.updateGroup).Methods("PUT")
	s.router.HandleFunc("/groups/{id}/exists", s.groupExists).Methods("GET")
	s.router.HandleFunc("/groups/{id}/visit", s.visitGroup).Methods("PUT")
	s.router.HandleFunc("/names/{ids}", s.groupNames).Methods("GET")
	s.router.HandleFunc("/member", s.memberGroups).Methods("GET")

	// Membership routes
	s.router.HandleFunc("/groups/{id}/membership", s.requestMembership).Methods("POST")
	s.router.HandleFunc("/groups/{id}/members/{user}", s.inviteUser).Methods("POST")
	s.router.HandleFunc("/groups/{id}/members/{user}", s.removeMember).Methods("DELETE")
	s.router.HandleFunc("/groups/{id}/members/{user}/admin", s.promoteMember).Methods("PUT")
	s.router.HandleFunc("/groups/{id}/members/{user}/admin", s.demoteAdmin).Methods("DELETE")
	s.router.HandleFunc("/groups/{id}/members/{user}/fields", s.updateUserFields).Methods("PUT")

	// Resource routes
	s.router.HandleFunc("/groups/{id}/resources/{type}/{resource}", s.addResource).Methods("POST")
	s.router.HandleFunc("/groups/{id}/resources/{type}/{resource}", s.removeResource).Methods("DELETE")

	// Request routes
	s.router.HandleFunc("/requests/created", s.listCreatedRequests).Methods("GET")
	s.router.HandleFunc("/requests/targeted", s.listTargetedRequests).Methods("GET")
	s.router.HandleFunc("/requests/administrated", s.listAdministratedRequests).Methods("GET")
	s.router.HandleFunc("/groups/{id}/requests", s.listGroupRequests).Methods("GET")
	s.router.HandleFunc("/groups/{id}/requests/new", s.groupHasRequests).Methods("GET")
	s.router.HandleFunc("/requests/id/{id}", s.getRequest).Methods("GET")
	s.router.HandleFunc("/requests/id/{id}/cancel", s.cancelRequest).Methods("PUT")
	s.router.HandleFunc("/requests/id/{id}/accept", s.acceptRequest).Methods("PUT")
	s.router.HandleFunc("/requests/id/{id}/deny", s.denyRequest).Methods("PUT")
	s.router.HandleFunc("/requests/id/{id}/perm", s.grantResourcePermission).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// root handles GET /
func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, serviceInfo{
		ServiceName: ServiceName,
		Version:     Version,
		ServerTime:  timeNow().UTC(),
	})
}
