package git

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Note is one entry of a notes ref.
type Note struct {
	// Commit is the annotated object.
	Commit plumbing.Hash

	// Data is the note body.
	Data []byte
}

// ListNotes returns every note under ref, ordered by annotated commit. A
// missing ref yields no notes.
func (r *Repository) ListNotes(ref string) ([]Note, error) {
	entries, _, err := r.readNotes(ref)
	if err != nil {
		return nil, err
	}

	notes := make([]Note, 0, len(entries))
	for commit, blob := range entries {
		data, err := r.readBlob(blob)
		if err != nil {
			return nil, fmt.Errorf("reading note for %s: %w", commit, err)
		}
		notes = append(notes, Note{Commit: commit, Data: data})
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].Commit.String() < notes[j].Commit.String()
	})
	return notes, nil
}

// ReadNote returns the note attached to commit under ref.
func (r *Repository) ReadNote(ref string, commit plumbing.Hash) ([]byte, bool, error) {
	entries, _, err := r.readNotes(ref)
	if err != nil {
		return nil, false, err
	}
	blob, ok := entries[commit]
	if !ok {
		return nil, false, nil
	}
	data, err := r.readBlob(blob)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SetNote attaches data to commit under ref, replacing any existing note for
// that commit, and returns the previous body if there was one. The notes ref
// gains one commit per call.
func (r *Repository) SetNote(ref string, commit plumbing.Hash, data []byte, message string) ([]byte, error) {
	entries, parent, err := r.readNotes(ref)
	if err != nil {
		return nil, err
	}

	var previous []byte
	if old, ok := entries[commit]; ok {
		if previous, err = r.readBlob(old); err != nil {
			return nil, fmt.Errorf("reading replaced note: %w", err)
		}
	}

	blob, err := r.writeBlob(data)
	if err != nil {
		return nil, err
	}
	entries[commit] = blob

	tree, err := r.writeFlatTree(entries)
	if err != nil {
		return nil, err
	}

	sig := r.signature()
	sig.When = time.Now()
	c := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   message,
		TreeHash:  tree,
	}
	if parent != nil {
		c.ParentHashes = []plumbing.Hash{parent.Hash()}
	}

	obj := r.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return nil, fmt.Errorf("encoding notes commit: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return nil, fmt.Errorf("storing notes commit: %w", err)
	}

	next := plumbing.NewHashReference(plumbing.ReferenceName(ref), hash)
	if err := r.repo.Storer.CheckAndSetReference(next, parent); err != nil {
		return nil, fmt.Errorf("updating %s: %w", ref, err)
	}
	return previous, nil
}

// NotesHead returns the commit ref points at, or the zero hash when ref does
// not exist yet.
func (r *Repository) NotesHead(ref string) (plumbing.Hash, error) {
	current, err := r.repo.Reference(plumbing.ReferenceName(ref), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving %s: %w", ref, err)
	}
	return current.Hash(), nil
}

// readNotes flattens the notes tree of ref into commit -> blob. The returned
// reference is nil when ref does not exist yet.
func (r *Repository) readNotes(ref string) (map[plumbing.Hash]plumbing.Hash, *plumbing.Reference, error) {
	entries := make(map[plumbing.Hash]plumbing.Hash)

	current, err := r.repo.Reference(plumbing.ReferenceName(ref), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return entries, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolving %s: %w", ref, err)
	}

	commit, err := r.repo.CommitObject(current.Hash())
	if err != nil {
		return nil, nil, fmt.Errorf("reading notes commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, nil, fmt.Errorf("reading notes tree: %w", err)
	}
	if err := r.walkNotes(tree, "", entries); err != nil {
		return nil, nil, err
	}
	return entries, current, nil
}

// walkNotes handles both flat and fan-out (ab/cdef...) layouts.
func (r *Repository) walkNotes(tree *object.Tree, prefix string, out map[plumbing.Hash]plumbing.Hash) error {
	for _, e := range tree.Entries {
		name := prefix + e.Name
		if e.Mode == filemode.Dir {
			sub, err := r.repo.TreeObject(e.Hash)
			if err != nil {
				return fmt.Errorf("reading notes subtree %s: %w", name, err)
			}
			if err := r.walkNotes(sub, name, out); err != nil {
				return err
			}
			continue
		}
		if !plumbing.IsHash(name) {
			continue
		}
		out[plumbing.NewHash(name)] = e.Hash
	}
	return nil
}

func (r *Repository) writeFlatTree(entries map[plumbing.Hash]plumbing.Hash) (plumbing.Hash, error) {
	tree := &object.Tree{Entries: make([]object.TreeEntry, 0, len(entries))}
	for commit, blob := range entries {
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: commit.String(),
			Mode: filemode.Regular,
			Hash: blob,
		})
	}
	sort.Slice(tree.Entries, func(i, j int) bool {
		return tree.Entries[i].Name < tree.Entries[j].Name
	})

	obj := r.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encoding notes tree: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing notes tree: %w", err)
	}
	return hash, nil
}

func (r *Repository) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("writing note blob: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return plumbing.ZeroHash, fmt.Errorf("writing note blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("writing note blob: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing note blob: %w", err)
	}
	return hash, nil
}

func (r *Repository) readBlob(hash plumbing.Hash) ([]byte, error) {
	blob, err := r.repo.BlobObject(hash)
	if err != nil {
		return nil, err
	}
	rd, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return io.ReadAll(rd)
}
