package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const gitlabPageSize = 100

// GitLabStore talks to the GitLab REST API (v4) of a single project.
type GitLabStore struct {
	baseURL    string
	project    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

type GitLabOptions struct {
	BaseURL   string
	ProjectID string
	Token     string
	Timeout   time.Duration
	Client    *http.Client
	Logger    *zap.Logger
}

func NewGitLabStore(opts GitLabOptions) (*GitLabStore, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("gitlab base url is required")
	}
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("gitlab project id is required")
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitLabStore{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		project:    opts.ProjectID,
		token:      opts.Token,
		httpClient: client,
		logger:     logger,
	}, nil
}

// escape encodes a path segment the way GitLab expects, including slashes.
func escape(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "/", "%2F")
}

func (s *GitLabStore) endpoint(suffix string, query url.Values) string {
	u := fmt.Sprintf("%s/api/v4/projects/%s/%s", s.baseURL, escape(s.project), suffix)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (s *GitLabStore) do(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("PRIVATE-TOKEN", s.token)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("gitlab request",
		zap.String("method", method),
		zap.String("url", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s %s: unexpected status: %s: %s",
			method, req.URL.Path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// getPaged follows X-Next-Page until every page has been decoded into out.
func getPaged[T any](ctx context.Context, s *GitLabStore, suffix string, query url.Values) ([]T, error) {
	var all []T
	page := "1"
	for page != "" {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("per_page", strconv.Itoa(gitlabPageSize))
		q.Set("page", page)

		resp, err := s.do(ctx, http.MethodGet, s.endpoint(suffix, q), nil)
		if err != nil {
			return nil, err
		}
		var items []T
		err = json.NewDecoder(resp.Body).Decode(&items)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", suffix, err)
		}
		all = append(all, items...)
		page = resp.Header.Get("X-Next-Page")
	}
	return all, nil
}

func (s *GitLabStore) ListBranches(ctx context.Context) ([]string, error) {
	type branch struct {
		Name string `json:"name"`
	}
	branches, err := getPaged[branch](ctx, s, "repository/branches", nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(branches))
	for _, b := range branches {
		names = append(names, b.Name)
	}
	return names, nil
}

func (s *GitLabStore) GetFile(ctx context.Context, path, ref string) (string, error) {
	q := url.Values{"ref": {ref}}
	resp, err := s.do(ctx, http.MethodGet, s.endpoint("repository/files/"+escape(CleanPath(path))+"/raw", q), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func (s *GitLabStore) ListTree(ctx context.Context, path, ref string, recursive bool) ([]TreeEntry, error) {
	type item struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}
	q := url.Values{"ref": {ref}}
	if !IsRoot(path) {
		q.Set("path", CleanPath(path))
	}
	if recursive {
		q.Set("recursive", "true")
	}
	items, err := getPaged[item](ctx, s, "repository/tree", q)
	if err != nil {
		return nil, err
	}

	entries := make([]TreeEntry, 0, len(items))
	for _, it := range items {
		kind, err := ParseEntryKind(it.Type)
		if err != nil {
			// submodules ("commit") are neither files nor folders here
			s.logger.Debug("skipping tree entry", zap.String("path", it.Path), zap.String("type", it.Type))
			continue
		}
		entries = append(entries, TreeEntry{Path: it.Path, Kind: kind})
	}
	return entries, nil
}

func (s *GitLabStore) SubmitCommit(ctx context.Context, actions []Action, branch, message string) (*Ack, error) {
	payload := map[string]any{
		"branch":         branch,
		"commit_message": message,
		"actions":        actions,
	}
	resp, err := s.do(ctx, http.MethodPost, s.endpoint("repository/commits", nil), payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var created struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decoding commit: %w", err)
	}
	return &Ack{
		ID:        created.ID,
		Branch:    branch,
		Message:   message,
		Actions:   len(actions),
		CreatedAt: created.CreatedAt,
	}, nil
}

// Compare renders the GitLab compare result as unified diff text with one
// "diff --git" section per file.
func (s *GitLabStore) Compare(ctx context.Context, from, to string) (string, error) {
	q := url.Values{"from": {from}, "to": {to}}
	resp, err := s.do(ctx, http.MethodGet, s.endpoint("repository/compare", q), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Diffs []struct {
			OldPath string `json:"old_path"`
			NewPath string `json:"new_path"`
			Diff    string `json:"diff"`
		} `json:"diffs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding compare: %w", err)
	}

	var b strings.Builder
	for _, d := range result.Diffs {
		fmt.Fprintf(&b, "diff --git a/%s b/%s\n", d.OldPath, d.NewPath)
		b.WriteString(d.Diff)
		if d.Diff != "" && !strings.HasSuffix(d.Diff, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
