package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/insight-tool/internal/redaction"
	"github.com/wolfman30/insight-tool/pkg/logging"
)

// DefaultMaxUploadBytes caps transcript uploads when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// Handler exposes projects and sessions over HTTP.
type Handler struct {
	svc            *Service
	logger         *logging.Logger
	maxUploadBytes int64
}

// NewHandler creates a new research handler
func NewHandler(svc *Service, logger *logging.Logger, maxUploadBytes int64) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{svc: svc, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Routes returns the router mounted at /projects. detectMW wraps only the
// scan endpoint, which calls out to the PII detectors.
func (h *Handler) Routes(detectMW ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateProject)
	r.Get("/", h.ListProjects)
	r.Route("/{projectID}", func(r chi.Router) {
		r.Get("/", h.GetProject)
		r.Delete("/", h.DeleteProject)
		r.Post("/sessions/upload", h.UploadTranscript)
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{sessionID}", h.GetSession)
		r.With(detectMW...).Post("/sessions/{sessionID}/scan-pii", h.ScanPII)
		r.Post("/sessions/{sessionID}/anonymise", h.Anonymise)
	})
	return r
}

// ListProjectsResponse is the response for listing projects
type ListProjectsResponse struct {
	Projects []*Project `json:"projects"`
	Count    int        `json:"count"`
}

// ListSessionsResponse is the response for listing a project's sessions
type ListSessionsResponse struct {
	Sessions []*Session `json:"sessions"`
	Count    int        `json:"count"`
}

// CreateProject handles POST /projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	project, err := h.svc.CreateProject(r.Context(), &req)
	if err != nil {
		h.fail(w, "create project", err)
		return
	}
	h.logger.Info("project created", "project_id", project.ID, "name", project.Name)
	writeJSON(w, http.StatusCreated, project)
}

// ListProjects handles GET /projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListProjects(r.Context())
	if err != nil {
		h.fail(w, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, ListProjectsResponse{Projects: projects, Count: len(projects)})
}

// GetProject handles GET /projects/{projectID}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.svc.GetProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.fail(w, "get project", err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// DeleteProject handles DELETE /projects/{projectID}
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if err := h.svc.DeleteProject(r.Context(), projectID); err != nil {
		h.fail(w, "delete project", err)
		return
	}
	h.logger.Info("project deleted", "project_id", projectID)
	w.WriteHeader(http.StatusNoContent)
}

// UploadTranscript handles POST /projects/{projectID}/sessions/upload.
// Accepts a multipart form with a "file" field or the markdown as the body.
func (h *Handler) UploadTranscript(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	raw, err := h.readTranscript(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("transcript exceeds %d bytes", h.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !utf8.ValidString(raw) {
		writeError(w, http.StatusBadRequest, "transcript must be UTF-8 text")
		return
	}

	session, err := h.svc.UploadTranscript(r.Context(), chi.URLParam(r, "projectID"), raw)
	if err != nil {
		h.fail(w, "upload transcript", err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) readTranscript(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			return "", err
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("missing file field: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ListSessions handles GET /projects/{projectID}/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListSessions(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.fail(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: sessions, Count: len(sessions)})
}

// GetSession handles GET /projects/{projectID}/sessions/{sessionID}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ScanPII handles POST /projects/{projectID}/sessions/{sessionID}/scan-pii.
// The body is optional and may carry the participant and interviewer names.
func (h *Handler) ScanPII(w http.ResponseWriter, r *http.Request) {
	var names redaction.Names
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&names); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	session, err := h.svc.ScanPII(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "sessionID"), names)
	if err != nil {
		h.fail(w, "scan pii", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Anonymise handles POST /projects/{projectID}/sessions/{sessionID}/anonymise
func (h *Handler) Anonymise(w http.ResponseWriter, r *http.Request) {
	var req AnonymiseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := h.svc.Anonymise(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "sessionID"), req.Detections)
	if err != nil {
		h.fail(w, "anonymise", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err)
		writeError(w, status, op+" failed")
		return
	}
	h.logger.Warn(op+" rejected", "error", err, "status", status)
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrProjectNotFound), errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrEmptyTranscript), errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest
	case redaction.IsContractViolation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
