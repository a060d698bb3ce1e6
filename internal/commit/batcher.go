// Package commit submits a planned action list to the remote store as one
// commit.
package commit

import (
	"context"

	"go.uber.org/zap"

	tserrors "treesync/internal/errors"
	"treesync/internal/remote"
)

// Result reports the outcome of Submit. Ack is nil when nothing was
// submitted.
type Result struct {
	Submitted bool        `json:"submitted"`
	Actions   int         `json:"actions"`
	Ack       *remote.Ack `json:"ack,omitempty"`
}

type Batcher struct {
	store  remote.Store
	logger *zap.Logger
}

func NewBatcher(store remote.Store, logger *zap.Logger) *Batcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{store: store, logger: logger}
}

// Submit sends actions in a single SubmitCommit call. An empty list succeeds
// without contacting the store. Failures are not retried.
func (b *Batcher) Submit(ctx context.Context, actions []remote.Action, branch, message string) (*Result, error) {
	if len(actions) == 0 {
		b.logger.Debug("nothing to commit", zap.String("branch", branch))
		return &Result{}, nil
	}

	seen := make(map[string]bool, len(actions))
	for _, a := range actions {
		if a.Path == "" {
			return nil, tserrors.PathInvalid(a.Path, "action without a file path")
		}
		if seen[a.Path] {
			return nil, tserrors.PathInvalid(a.Path, "path appears more than once in the batch")
		}
		seen[a.Path] = true
	}

	ack, err := b.store.SubmitCommit(ctx, actions, branch, message)
	if err != nil {
		return nil, tserrors.Commit(branch, err)
	}
	if ack == nil {
		// the store applied the commit but did not describe it
		b.logger.Warn("commit acknowledged without details", zap.String("branch", branch))
		ack = &remote.Ack{Branch: branch, Message: message, Actions: len(actions)}
	}

	b.logger.Info("commit submitted",
		zap.String("branch", branch),
		zap.String("id", ack.ID),
		zap.Int("actions", len(actions)))
	return &Result{Submitted: true, Actions: len(actions), Ack: ack}, nil
}
