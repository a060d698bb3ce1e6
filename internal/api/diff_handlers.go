package api

import (
	"net/http"

	"treesync/internal/diff"
	"treesync/internal/errors"
)

// ParseDiff turns a raw unified diff body into per-file records.
func ParseDiff(w http.ResponseWriter, r *http.Request) {
	records, err := diff.ParseReader(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		e := errors.ValidationError("reading diff", err.Error())
		writeJSON(w, e.Code, e)
		return
	}
	writeJSON(w, http.StatusOK, newDiffResponse(records))
}

// Compare diffs two revisions on the remote and returns the parsed records.
func (h *SyncHandler) Compare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := h.session.Compare(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDiffResponse(records))
}
