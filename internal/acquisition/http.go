package acquisition

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HTTPHandler exposes the thin REST surface over the pipeline. Validation is
// limited to rejecting malformed input; all pipeline semantics live in the
// service.
type HTTPHandler struct {
	service *Service
	logger  *zap.Logger
	router  chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(service *Service, logger *zap.Logger) *HTTPHandler {
	h := &HTTPHandler{
		service: service,
		logger:  logger,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", h.handleHealth)
	r.Post("/api/v1/captures", h.handleCapture)
	r.Get("/api/v1/captures/{id}", h.handleGetManifest)
	r.Post("/api/v1/captures/{id}/verify", h.handleVerify)
	r.Get("/api/v1/captures/{id}/history", h.handleHistory)

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type captureRequest struct {
	URL string `json:"url"`
}

func (h *HTTPHandler) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url field is required")
		return
	}

	manifest, err := h.service.Capture(r.Context(), req.URL)
	if err != nil {
		h.logger.Error("capture failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, manifest)
}

func (h *HTTPHandler) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	manifest, err := h.service.Store().LoadManifest(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "acquisition not found")
			return
		}
		h.logger.Error("load manifest failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

func (h *HTTPHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hashes, ts, err := h.service.Verify(r.Context(), id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "acquisition not found")
			return
		}
		h.logger.Error("verification failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hashes":    hashes,
		"timestamp": ts,
	})
}

func (h *HTTPHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.service.Verifier().History(id)
	if err != nil {
		h.logger.Error("load history failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"acquisition_id": id,
		"entries":        entries,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
