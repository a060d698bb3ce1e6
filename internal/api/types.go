package api

import (
	"treesync/internal/diff"
	"treesync/internal/reconcile"
	"treesync/internal/remote"
)

type BranchesResponse struct {
	Branches []string `json:"branches"`
	Default  string   `json:"default"`
}

type FilesResponse struct {
	Branch string   `json:"branch"`
	Path   string   `json:"path"`
	Files  []string `json:"files"`
}

type FileResponse struct {
	Branch  string `json:"branch"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// CommitRequest is the body of POST /api/plans and POST /api/commits.
// Message is ignored when planning.
type CommitRequest struct {
	Branch  string                 `json:"branch"`
	Message string                 `json:"message"`
	Files   []reconcile.FileRecord `json:"files"`
}

type PlanResponse struct {
	Branch  string          `json:"branch"`
	Actions []remote.Action `json:"actions"`
}

type DiffResponse struct {
	Records []diff.Record `json:"records"`
	Stats   diff.Stats    `json:"stats"`
}

func newDiffResponse(records []diff.Record) DiffResponse {
	resp := DiffResponse{Records: records}
	for _, r := range records {
		s := r.Stats()
		resp.Stats.Additions += s.Additions
		resp.Stats.Deletions += s.Deletions
		resp.Stats.Changes += s.Changes
	}
	return resp
}
