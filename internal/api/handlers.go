package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"go.uber.org/zap"

	"treesync/internal/errors"
	"treesync/internal/logging"
	"treesync/internal/session"
)

// MaxBodyBytes bounds request bodies for commits and diffs.
const MaxBodyBytes = 32 << 20

type SyncHandler struct {
	session *session.Session
	logger  *logging.Logger
}

func NewSyncHandler(s *session.Session, logger *logging.Logger) *SyncHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SyncHandler{session: s, logger: logger}
}

// Register mounts every endpoint on mux.
func (h *SyncHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", Health)
	mux.HandleFunc("GET /api/branches", h.Branches)
	mux.HandleFunc("GET /api/files", h.ListFiles)
	mux.HandleFunc("GET /api/file", h.GetFile)
	mux.HandleFunc("DELETE /api/file", h.DeleteFile)
	mux.HandleFunc("DELETE /api/folders", h.DeleteFolder)
	mux.HandleFunc("POST /api/plans", h.Plan)
	mux.HandleFunc("POST /api/commits", h.Commit)
	mux.HandleFunc("POST /api/diffs", ParseDiff)
	mux.HandleFunc("GET /api/compare", h.Compare)
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *SyncHandler) Branches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BranchesResponse{
		Branches: h.session.Branches(),
		Default:  h.session.DefaultBranch(),
	})
}

func (h *SyncHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	branch, err := h.session.ValidateBranch(q.Get("branch"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	files, err := h.session.ListFiles(r.Context(), q.Get("path"), branch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FilesResponse{Branch: branch, Path: q.Get("path"), Files: files})
}

func (h *SyncHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	branch, err := h.session.ValidateBranch(q.Get("branch"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	content, found, err := h.session.GetFile(r.Context(), q.Get("path"), branch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !found {
		h.writeError(w, r, errors.NotFound("file not found: "+q.Get("path")))
		return
	}
	writeJSON(w, http.StatusOK, FileResponse{Branch: branch, Path: q.Get("path"), Content: content})
}

func (h *SyncHandler) Plan(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCommit(w, r)
	if !ok {
		return
	}
	branch, err := h.session.ValidateBranch(req.Branch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	actions, err := h.session.Plan(r.Context(), req.Files, branch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Branch: branch, Actions: actions})
}

func (h *SyncHandler) Commit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCommit(w, r)
	if !ok {
		return
	}
	result, err := h.session.CommitFiles(r.Context(), req.Files, req.Message, req.Branch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Submitted {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func (h *SyncHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.session.DeleteFile(r.Context(), q.Get("path"), q.Get("message"), q.Get("branch"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SyncHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.session.DeleteFolder(r.Context(), q.Get("path"), q.Get("message"), q.Get("branch"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SyncHandler) decodeCommit(w http.ResponseWriter, r *http.Request) (*CommitRequest, bool) {
	var req CommitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, r, errors.ValidationError("invalid request body", err.Error()))
		return nil, false
	}
	if len(req.Files) == 0 {
		h.writeError(w, r, errors.ValidationError("files are required", nil))
		return nil, false
	}
	return &req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as an errors.Error body. Errors outside the
// taxonomy are reported as internal.
func (h *SyncHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		e = errors.Internal("internal error", err)
	}
	if e.Code >= http.StatusInternalServerError {
		h.logger.WithRequestID(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, errors.StatusCode(e), e)
}
