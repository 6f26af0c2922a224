package http

import (
	"net/http"
)

// RouterConfig wires the API's collaborators.
type RouterConfig struct {
	Handlers *Handlers
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Observe is called with the route pattern and status of every request.
	Observe func(route string, status int)
	// Outer middleware runs before the default chain, e.g. shutdown tracking.
	Outer []func(http.Handler) http.Handler
}

// NewRouter builds the HTTP handler for the API.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h := cfg.Handlers

	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"POST /v1/analyze", h.Analyze},
		{"POST /v1/analyses", h.CreateAnalysis},
		{"GET /v1/analyses", h.ListAnalyses},
		{"GET /v1/analyses/{id}", h.GetAnalysis},
		{"PATCH /v1/analyses/{id}", h.RenameAnalysis},
		{"DELETE /v1/analyses/{id}", h.DeleteAnalysis},
		{"GET /v1/stats/behaviors", h.BehaviorStats},
		{"GET /health", h.Health},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, instrument(rt.pattern, cfg.Observe, rt.handler))
	}

	api := DefaultMiddleware(cfg.Outer...)(mux)
	if cfg.Metrics == nil {
		return api
	}

	root := http.NewServeMux()
	root.Handle("GET /metrics", cfg.Metrics)
	root.Handle("/", api)
	return root
}
