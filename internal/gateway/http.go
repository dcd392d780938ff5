package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dontdude/coderoom/internal/domain"
	"github.com/dontdude/coderoom/internal/platform/web"
)

// HandleExecute serves POST /api/v2/execute.
func (g *Gateway) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req domain.ServiceRequest
	if err := web.ReadJSON(w, r, &req); err != nil {
		web.BadRequestResponse(w, r, err.Error())
		return
	}
	if msg := validate(req); msg != "" {
		web.BadRequestResponse(w, r, msg)
		return
	}

	resp, err := g.Execute(r.Context(), req)
	if err != nil {
		var jobErr *JobError
		switch {
		case errors.Is(err, ErrUnknownRuntime):
			web.BadRequestResponse(w, r, err.Error())
		case errors.Is(err, ErrTimeout):
			web.ErrorResponse(w, r, http.StatusGatewayTimeout, err.Error())
		case errors.Is(err, ErrNotStarted):
			web.ErrorResponse(w, r, http.StatusServiceUnavailable, err.Error())
		case errors.As(err, &jobErr):
			slog.Error("Job failed", "jobID", jobErr.JobID, "error", jobErr.Message)
			web.ErrorResponse(w, r, http.StatusInternalServerError, jobErr.Message)
		case errors.Is(err, context.Canceled):
			slog.Debug("Client went away before the result arrived")
		default:
			web.ServerErrorResponse(w, r, err)
		}
		return
	}

	if err := web.WriteJSON(w, http.StatusOK, resp, nil); err != nil {
		web.ServerErrorResponse(w, r, err)
	}
}

// HandleRuntimes serves GET /api/v2/runtimes.
func (g *Gateway) HandleRuntimes(w http.ResponseWriter, r *http.Request) {
	if err := web.WriteJSON(w, http.StatusOK, g.Runtimes(), nil); err != nil {
		web.ServerErrorResponse(w, r, err)
	}
}

func validate(req domain.ServiceRequest) string {
	switch {
	case req.Language == "":
		return "language is required as a string"
	case len(req.Files) == 0:
		return "files is required as an array"
	case req.Files[0].Content == "":
		return "files[0].content is required as a non-empty string"
	}
	return ""
}
