package http

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"scholarships/pkg/utils"
)

// APIPrefix is the path prefix of every scholarship route
const APIPrefix = "/api/v1"

// Router handles HTTP routing
type Router struct {
	handler   *ScholarshipHandler
	requestID *utils.RequestIDGenerator
	logger    *zap.Logger
}

// NewRouter creates a new HTTP router
func NewRouter(handler *ScholarshipHandler, requestID *utils.RequestIDGenerator, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		handler:   handler,
		requestID: requestID,
		logger:    logger,
	}
}

// Setup sets up the HTTP routes
func (r *Router) Setup() http.Handler {
	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(notFound)
	root.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	root.HandleFunc("/healthz", health).Methods(http.MethodGet)

	api := root.PathPrefix(APIPrefix).Subrouter()
	api.HandleFunc("/scholarships", r.handler.List).Methods(http.MethodGet)
	api.HandleFunc("/scholarship", r.handler.Create).Methods(http.MethodPost)
	api.HandleFunc("/scholarship/{id}", r.handler.Get).Methods(http.MethodGet)
	api.HandleFunc("/scholarship/{id}", r.handler.Replace).Methods(http.MethodPut)
	api.HandleFunc("/scholarship/{id}", r.handler.Patch).Methods(http.MethodPatch)
	api.HandleFunc("/scholarship/{id}", r.handler.Delete).Methods(http.MethodDelete)

	// Outside the mux so that unmatched requests and preflights are covered too
	return ApplyMiddleware(root,
		CORSMiddleware,
		utils.ErrorHandlerMiddleware(r.logger),
		LoggingMiddleware(r.logger),
		utils.RequestIDMiddleware(r.requestID),
	)
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	r = utils.WithErrorAndCode(r, errors.New("resource not found"), http.StatusNotFound)
	utils.WriteError(w, r)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	r = utils.WithErrorAndCode(r, errors.New("method not allowed"), http.StatusMethodNotAllowed)
	utils.WriteError(w, r)
}
