// Package client talks to a treesync server over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"treesync/internal/api"
	"treesync/internal/commit"
	tserrors "treesync/internal/errors"
	"treesync/internal/reconcile"
	"treesync/internal/remote"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

func (c *Client) Branches(ctx context.Context) (*api.BranchesResponse, error) {
	var out api.BranchesResponse
	if err := c.do(ctx, http.MethodGet, "/api/branches", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListFiles(ctx context.Context, folder, branch string) ([]string, error) {
	var out api.FilesResponse
	q := url.Values{"path": {folder}, "branch": {branch}}
	if err := c.do(ctx, http.MethodGet, "/api/files", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// GetFile returns the file content. A missing file is reported as a
// NOT_FOUND *errors.Error.
func (c *Client) GetFile(ctx context.Context, path, branch string) (string, error) {
	var out api.FileResponse
	q := url.Values{"path": {path}, "branch": {branch}}
	if err := c.do(ctx, http.MethodGet, "/api/file", q, nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (c *Client) Plan(ctx context.Context, files []reconcile.FileRecord, branch string) ([]remote.Action, error) {
	var out api.PlanResponse
	body := api.CommitRequest{Branch: branch, Files: files}
	if err := c.do(ctx, http.MethodPost, "/api/plans", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

func (c *Client) Commit(ctx context.Context, files []reconcile.FileRecord, message, branch string) (*commit.Result, error) {
	var out commit.Result
	body := api.CommitRequest{Branch: branch, Message: message, Files: files}
	if err := c.do(ctx, http.MethodPost, "/api/commits", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteFile(ctx context.Context, path, message, branch string) (*commit.Result, error) {
	return c.delete(ctx, "/api/file", path, message, branch)
}

func (c *Client) DeleteFolder(ctx context.Context, folder, message, branch string) (*commit.Result, error) {
	return c.delete(ctx, "/api/folders", folder, message, branch)
}

func (c *Client) delete(ctx context.Context, endpoint, path, message, branch string) (*commit.Result, error) {
	var out commit.Result
	q := url.Values{"path": {path}, "message": {message}, "branch": {branch}}
	if err := c.do(ctx, http.MethodDelete, endpoint, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParseDiff sends raw unified diff text to the server for parsing.
func (c *Client) ParseDiff(ctx context.Context, text io.Reader) (*api.DiffResponse, error) {
	var out api.DiffResponse
	if err := c.do(ctx, http.MethodPost, "/api/diffs", nil, text, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Compare(ctx context.Context, from, to string) (*api.DiffResponse, error) {
	var out api.DiffResponse
	q := url.Values{"from": {from}, "to": {to}}
	if err := c.do(ctx, http.MethodGet, "/api/compare", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends one request. body is sent raw when it is an io.Reader and as JSON
// otherwise. Error responses are decoded into *errors.Error when possible.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
		contentType = "text/plain"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr tserrors.Error
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Type == "" {
			return fmt.Errorf("unexpected status: %s", resp.Status)
		}
		return &apiErr
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
