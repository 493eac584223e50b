package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/gitmem/pkg/git"
	"go.uber.org/zap"
)

// DefaultNotesRef is the notes ref records are written under.
const DefaultNotesRef = "refs/notes/memories"

// GitNotes stores each record as a JSON note on the HEAD commit.
//
// Notes are keyed by commit, so a second Save before the next commit replaces
// the first note. The replaced record stays in the index but is gone from the
// ledger; Save logs a warning when that happens.
type GitNotes struct {
	repoPath string
	ref      string
	logger   *zap.Logger

	mu sync.Mutex
}

// NewGitNotes returns a ledger for the repository containing repoPath. The
// repository is opened on each call, so a missing repository only fails the
// operations that need it.
func NewGitNotes(repoPath, ref string, logger *zap.Logger) *GitNotes {
	if ref == "" {
		ref = DefaultNotesRef
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitNotes{repoPath: repoPath, ref: ref, logger: logger}
}

// Ref returns the notes ref in use.
func (g *GitNotes) Ref() string {
	return g.ref
}

// Save implements Ledger. An empty GitNoteRef is filled with
// "<ref>@<commit>".
func (g *GitNotes) Save(ctx context.Context, id string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	repo, err := git.Open(g.repoPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	if rec.GitNoteRef == "" {
		rec.GitNoteRef = g.ref + "@" + head.String()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", ErrLedgerWriteFailed, id, err)
	}
	data = append(data, '\n')

	previous, err := repo.SetNote(g.ref, head, data, "gitmem: capture "+id+"\n")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	if previous != nil {
		var old Record
		if json.Unmarshal(previous, &old) == nil && old.ID != "" && old.ID != id {
			g.logger.Warn("ledger note replaced a different memory",
				zap.String("commit", head.String()),
				zap.String("replaced_id", old.ID),
				zap.String("id", id))
		}
	}

	g.logger.Debug("ledger note written",
		zap.String("id", id),
		zap.String("ref", g.ref),
		zap.String("commit", head.String()))
	return nil
}

// LoadAll implements Ledger. Notes that are not valid records are skipped. A
// record without git_note_ref, such as one written by another tool, gets the
// location it was read from.
func (g *GitNotes) LoadAll(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	repo, err := git.Open(g.repoPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	notes, err := repo.ListNotes(g.ref)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", g.ref, err)
	}

	records := make([]Record, 0, len(notes))
	for _, n := range notes {
		var rec Record
		if err := json.Unmarshal(n.Data, &rec); err != nil || rec.ID == "" {
			g.logger.Debug("skipping note that is not a memory record",
				zap.String("commit", n.Commit.String()))
			continue
		}
		if rec.GitNoteRef == "" {
			rec.GitNoteRef = g.ref + "@" + n.Commit.String()
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

var _ Ledger = (*GitNotes)(nil)
