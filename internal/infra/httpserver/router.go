package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bryanwahyu/sapiens-pipeline/internal/application/pipeline"
	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
	"github.com/bryanwahyu/sapiens-pipeline/internal/middleware"
)

// Router exposes the collaborator contract: submit, progress, result,
// cancel. The web front-end itself lives outside this service.
type Router struct {
	runner *pipeline.Runner
	log    *zap.Logger
}

func NewRouter(runner *pipeline.Runner, checkers map[string]middleware.HealthChecker, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{runner: runner, log: log}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	mux.Use(middleware.RequestLogger(log))

	mux.Get("/health", middleware.HealthHandler(checkers))

	mux.Route("/v1/analyses", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleSubmit))
		rt.Get("/{id}/progress", r.wrap(r.handleProgress))
		rt.Get("/{id}/result", r.wrap(r.handleResult))
		rt.Delete("/{id}", r.wrap(r.handleCancel))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			r.writeError(w, err)
		}
	}
}

func (r *Router) writeError(w http.ResponseWriter, err error) {
	var pe *analysis.PipelineError
	switch {
	case errors.Is(err, analysis.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]any{"status": string(analysis.ReasonBusy), "error": err.Error()})
	case errors.Is(err, analysis.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, pipeline.ErrNotReady):
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "IN_PROGRESS", "error": err.Error()})
	case errors.As(err, &pe):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":            pe.Detail,
			"reason":           pe.Reason,
			"phase_at_failure": pe.Phase,
		})
	default:
		r.log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

// POST /v1/analyses
// Body: {"question": "...", "types": ["descriptive", ...], "files": ["/path/a.csv"]}
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Question string          `json:"question"`
		Types    []analysis.Type `json:"types"`
		Files    []string        `json:"files"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return nil
	}

	id, err := r.runner.Submit(pipeline.SubmitRequest{
		Question:  body.Question,
		Types:     body.Types,
		FilePaths: body.Files,
	})
	if err != nil {
		if errors.Is(err, analysis.ErrBusy) {
			return err
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return nil
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"request_id": id,
		"status":     "queued",
	})
	return nil
}

// GET /v1/analyses/{id}/progress
func (r *Router) handleProgress(w http.ResponseWriter, req *http.Request) error {
	id := analysis.RequestID(chi.URLParam(req, "id"))
	prog, err := r.runner.Progress(id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, prog)
	return nil
}

// GET /v1/analyses/{id}/result
func (r *Router) handleResult(w http.ResponseWriter, req *http.Request) error {
	id := analysis.RequestID(chi.URLParam(req, "id"))
	report, err := r.runner.Result(id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, report)
	return nil
}

// DELETE /v1/analyses/{id}
func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) error {
	id := analysis.RequestID(chi.URLParam(req, "id"))
	if err := r.runner.Cancel(id); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "canceled"})
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
