// Package ledger persists dated outputs and sent-flags to the shared
// repository state, reconciling with concurrent writers by pull-rebase-push.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrPushFailed is returned when the push still fails after one rebase.
var ErrPushFailed = errors.New("push failed after rebase retry")

// Store is the repository state: a working copy plus the remote it pushes to.
// Names are relative to the working copy root.
type Store interface {
	Dir() string
	Path(name string) string
	Exists(name string) (bool, error)
	// Touch creates an empty file if it does not exist yet.
	Touch(name string) error
	// Commit stages exactly names and commits them. It reports false when
	// the staged content is identical to what is already committed.
	Commit(ctx context.Context, names []string, message string) (bool, error)
	Push(ctx context.Context) error
	// Rebase pulls the remote and replays local commits on top of it.
	Rebase(ctx context.Context) error
	// Uncommitted lists files matching any of patterns that differ from HEAD.
	Uncommitted(ctx context.Context, patterns ...string) ([]string, error)
	// Ahead counts local commits the remote does not have.
	Ahead(ctx context.Context) (int, error)
}

// Result describes what Sync did.
type Result struct {
	Files     []string
	Committed bool
	Pushed    bool
}

// Sync commits whichever of names exist and pushes with one rebase retry.
// Nothing to commit and nothing pending is a no-op.
func Sync(ctx context.Context, store Store, names []string, message string) (Result, error) {
	var res Result
	for _, name := range names {
		ok, err := store.Exists(name)
		if err != nil {
			return res, fmt.Errorf("check %s: %w", name, err)
		}
		if ok {
			res.Files = append(res.Files, name)
		}
	}
	if len(res.Files) == 0 {
		return res, nil
	}

	committed, err := store.Commit(ctx, res.Files, message)
	if err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	res.Committed = committed

	if !committed {
		ahead, err := store.Ahead(ctx)
		if err != nil {
			slog.Debug("count unpushed commits, pushing anyway", "error", err)
		} else if ahead == 0 {
			return res, nil
		}
	}

	if err := PushWithRebaseRetry(ctx, store); err != nil {
		return res, err
	}
	res.Pushed = true
	return res, nil
}

// PushWithRebaseRetry pushes; on rejection it rebases onto the remote and
// pushes exactly once more.
func PushWithRebaseRetry(ctx context.Context, store Store) error {
	firstErr := store.Push(ctx)
	if firstErr == nil {
		return nil
	}
	slog.Warn("push rejected, rebasing", "error", firstErr)

	if err := store.Rebase(ctx); err != nil {
		return fmt.Errorf("%w: rebase: %v", ErrPushFailed, err)
	}
	if err := store.Push(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPushFailed, err)
	}
	return nil
}

// CommitMessage embeds the timestamp in a commit subject. The timestamp is
// informational only.
func CommitMessage(subject string, now time.Time) string {
	return fmt.Sprintf("%s (%s)", subject, now.Format("2006-01-02 15:04:05 MST"))
}
