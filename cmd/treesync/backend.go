package main

import (
	"context"

	"treesync/client"
	"treesync/internal/commit"
	"treesync/internal/diff"
	tserrors "treesync/internal/errors"
	"treesync/internal/reconcile"
	"treesync/internal/remote"
	"treesync/internal/session"
)

// backend is what the commands need from either an in-process session or a
// treesync server.
type backend interface {
	Branches(ctx context.Context) (names []string, defaultBranch string, err error)
	ListFiles(ctx context.Context, folder, branch string) ([]string, error)
	GetFile(ctx context.Context, path, branch string) (string, error)
	Plan(ctx context.Context, files []reconcile.FileRecord, branch string) ([]remote.Action, error)
	Commit(ctx context.Context, files []reconcile.FileRecord, message, branch string) (*commit.Result, error)
	DeleteFile(ctx context.Context, path, message, branch string) (*commit.Result, error)
	DeleteFolder(ctx context.Context, folder, message, branch string) (*commit.Result, error)
	Compare(ctx context.Context, from, to string) ([]diff.Record, error)
}

type localBackend struct {
	*session.Session
}

func (b localBackend) Branches(ctx context.Context) ([]string, string, error) {
	return b.Session.Branches(), b.DefaultBranch(), nil
}

func (b localBackend) GetFile(ctx context.Context, path, branch string) (string, error) {
	content, found, err := b.Session.GetFile(ctx, path, branch)
	if err != nil {
		return "", err
	}
	if !found {
		return "", tserrors.NotFound("file not found: " + path)
	}
	return content, nil
}

func (b localBackend) Commit(ctx context.Context, files []reconcile.FileRecord, message, branch string) (*commit.Result, error) {
	return b.CommitFiles(ctx, files, message, branch)
}

type remoteBackend struct {
	*client.Client
}

func (b remoteBackend) Branches(ctx context.Context) ([]string, string, error) {
	resp, err := b.Client.Branches(ctx)
	if err != nil {
		return nil, "", err
	}
	return resp.Branches, resp.Default, nil
}

func (b remoteBackend) Compare(ctx context.Context, from, to string) ([]diff.Record, error) {
	resp, err := b.Client.Compare(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}
