package submission

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Entry is one submission directory under the collection root. The id
// is the directory name; the path is host-side and absolute enough to
// hand to the sandbox as a mount source.
type Entry struct {
	ID   string
	Path string
}

// List returns the submission entries under root in lexical order.
// Non-directory entries are skipped silently. Re-listing the directory
// restarts the sequence; there is no long-lived iterator state.
func List(root string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions root %s: %w", root, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		entries = append(entries, Entry{
			ID:   de.Name(),
			Path: filepath.Join(root, de.Name()),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}
