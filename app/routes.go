package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	routeMetrics = "GET /metrics"
	routeStatus  = "GET /status"
	routeHealth  = "GET /healthz"
)

func (a *App) initRoutes() {
	a.registerRouteHandler(routeMetrics, chainMiddleware(a.Metrics.Handler().ServeHTTP, a.recoverMiddleware, a.loggingMiddleware))
	a.registerRouteFunc(routeStatus, chainMiddleware(a.statusHandler, a.recoverMiddleware, a.loggingMiddleware))
	a.registerRouteFunc(routeHealth, chainMiddleware(healthHandler, a.recoverMiddleware))
	a.logRoutes()
}

// Handler serves the local status and metrics endpoints.
func (a *App) Handler() http.Handler {
	return a.mux
}

func (a *App) registerRouteHandler(pattern string, handler http.Handler) {
	a.routes = append(a.routes, pattern)
	a.mux.Handle(pattern, handler)
}

func (a *App) registerRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	a.routes = append(a.routes, pattern)
	a.mux.HandleFunc(pattern, handler)
}

func (a *App) logRoutes() {
	if a.env != "DEV" {
		return
	}
	for _, route := range a.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		a.logger.Debug().Str("method", fmt.Sprintf("%-7s", method)).Str("path", path).Msg("route")
	}
}

func (a *App) statusHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.status()); err != nil {
		a.logger.Err(err).Msg("failed to encode status")
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
