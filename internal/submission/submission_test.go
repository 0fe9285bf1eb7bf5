package submission_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/programme-lv/autograder/internal/submission"
	"github.com/stretchr/testify/require"
)

func TestListSkipsNonDirectories(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(root, "alice"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "bob"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("stray"), 0644))

	entries, err := submission.List(root)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	require.Equal(t, "alice", entries[0].ID)
	require.Equal(t, "bob", entries[1].ID)
	require.Equal(t, filepath.Join(root, "alice"), entries[0].Path)
}

func TestListEmptyRoot(t *testing.T) {
	entries, err := submission.List(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestListMissingRoot(t *testing.T) {
	_, err := submission.List(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestListIsRestartable(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "alice"), 0755))

	first, err := submission.List(root)
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.NoError(t, os.Mkdir(filepath.Join(root, "bob"), 0755))

	second, err := submission.List(root)
	require.NoError(t, err)
	require.Len(t, second, 2)
}
