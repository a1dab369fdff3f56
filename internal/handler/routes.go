package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jperram92/dograh/internal/pipeline"
	"github.com/jperram92/dograh/internal/repository"
	"github.com/jperram92/dograh/internal/services/call"
	"github.com/jperram92/dograh/internal/telephony"
	"github.com/jperram92/dograh/pkg/logger"
)

// HandlerManager wires the handlers to their services and registers routes.
type HandlerManager struct {
	callService   *call.Service
	providers     telephony.ProviderAcquirer
	runner        pipeline.Runner
	repoManager   repository.RepositoryManager
	sessionSecret string
}

// NewHandlerManager creates the handler manager.
func NewHandlerManager(
	callService *call.Service,
	providers telephony.ProviderAcquirer,
	runner pipeline.Runner,
	repoManager repository.RepositoryManager,
	sessionSecret string,
) *HandlerManager {
	return &HandlerManager{
		callService:   callService,
		providers:     providers,
		runner:        runner,
		repoManager:   repoManager,
		sessionSecret: sessionSecret,
	}
}

// SetupAllRoutes sets up all routes with global middleware.
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.Use(CORSMiddleware)
	router.Use(GlobalLoggingMiddleware)

	router.HandleFunc("/healthz", hm.handleHealth).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	telephonyHandler := NewTelephonyHandler(hm.callService, hm.providers)
	telephonyHandler.SetupTelephonyRoutes(apiRouter, hm.sessionSecret)

	streamHandler := NewStreamHandler(hm.runner)
	streamHandler.SetupStreamRoutes(apiRouter)

	logger.Base().Info("all application routes registered")
}

func (hm *HandlerManager) handleHealth(w http.ResponseWriter, r *http.Request) {
	if hm.repoManager != nil {
		if err := hm.repoManager.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
