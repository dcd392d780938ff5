package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/justinas/alice"

	"github.com/dontdude/coderoom/internal/platform/web"
)

func (app *application) routes() http.Handler {
	router := httprouter.New()

	router.NotFound = http.HandlerFunc(web.NotFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(web.MethodNotAllowedResponse)
	router.HandleOPTIONS = false

	standard := alice.New(web.LogRequest, web.CORS(app.cfg.AllowedOrigins))
	limited := alice.New(app.limiter.Middleware)

	// collaboration
	router.HandlerFunc(http.MethodGet, "/ws", web.ServeWS(web.NewUpgrader(app.cfg.AllowedOrigins), app.handler))

	// execution
	if app.gateway != nil {
		router.Handler(http.MethodPost, "/api/v2/execute", limited.ThenFunc(app.gateway.HandleExecute))
		router.HandlerFunc(http.MethodGet, "/api/v2/runtimes", app.gateway.HandleRuntimes)
	} else {
		router.HandlerFunc(http.MethodPost, "/api/v2/execute", app.gatewayUnavailable)
		router.HandlerFunc(http.MethodGet, "/api/v2/runtimes", app.gatewayUnavailable)
	}

	// operations
	router.HandlerFunc(http.MethodGet, "/health", app.healthHandler)
	router.HandlerFunc(http.MethodGet, "/stats", app.statsHandler)

	return standard.Then(router)
}

func (app *application) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := web.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "gateway": app.gateway != nil}, nil); err != nil {
		web.ServerErrorResponse(w, r, err)
	}
}

func (app *application) statsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, members := app.registry.Stats()
	if err := web.WriteJSON(w, http.StatusOK, map[string]int{"rooms": rooms, "clients": members}, nil); err != nil {
		web.ServerErrorResponse(w, r, err)
	}
}

func (app *application) gatewayUnavailable(w http.ResponseWriter, r *http.Request) {
	web.ErrorResponse(w, r, http.StatusServiceUnavailable, "code execution is not available on this server")
}
