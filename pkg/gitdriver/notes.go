package gitdriver

import (
	"context"
	"errors"
	"strings"
)

// NotesShow returns the raw note body attached to commit under notesRef, or
// ErrNotFound if commit has no note there.
func (d *Driver) NotesShow(ctx context.Context, notesRef, commit string) (string, error) {
	out, err := d.run(ctx, "notes", "--ref="+notesRef, "show", commit)
	if err != nil {
		if errors.Is(err, ErrFatal) && strings.Contains(err.Error(), "no note found") {
			return "", ErrNotFound
		}

		return "", err
	}

	return out, nil
}

// NotesAppend appends line as a new line of the note attached to commit
// under notesRef, preserving any existing note content. Because this is a
// read-modify-write over the notes tree, callers append-writing to the
// same process-owned write-ref retry the whole operation under backoff;
// the per-process write-ref already guarantees no other process shares it.
func (d *Driver) NotesAppend(ctx context.Context, notesRef, commit, line string) error {
	existing, err := d.NotesShow(ctx, notesRef, commit)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	body := line
	if existing != "" {
		body = strings.TrimRight(existing, "\n") + "\n" + line
	}

	cmd := append([]string{"notes", "--ref=" + notesRef, "add", "-f", "-F", "-"}, commit)

	return d.runStdin(ctx, body+"\n", cmd...)
}

// NotesSet overwrites (or removes, if body is empty) the note attached to
// commit under notesRef, unlike NotesAppend which preserves existing
// content. Used by the rewrite path (removing measurements by name).
func (d *Driver) NotesSet(ctx context.Context, notesRef, commit, body string) error {
	if body == "" {
		_, err := d.run(ctx, "notes", "--ref="+notesRef, "remove", "--ignore-missing", commit)

		return err
	}

	cmd := append([]string{"notes", "--ref=" + notesRef, "add", "-f", "-F", "-"}, commit)

	return d.runStdin(ctx, body, cmd...)
}

// NotesMerge merges fromRef's notes into intoRef using the cat_sort_uniq
// strategy (concatenate, sort, drop duplicate lines per commit), the
// strategy the note bodies' line-oriented, order-insensitive encoding was
// designed to be safe under (§4.3).
func (d *Driver) NotesMerge(ctx context.Context, intoRef, fromRef string) error {
	_, err := d.run(ctx, "notes", "--ref="+shortNotesRef(intoRef), "merge", "-s", "cat_sort_uniq", fromRef)

	return err
}

// shortNotesRef strips the refs/notes/ prefix git notes --ref also accepts
// bare, since both forms resolve identically but the bare form is what the
// examples in git's own documentation use.
func shortNotesRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/notes/")
}
