package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureParentDir_CreatesMissingAncestors(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "nested", "dir", "vault.db")

	require.NoError(t, EnsureParentDir(target))

	fi, err := os.Stat(filepath.Join(tmp, "nested", "dir"))
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestEnsureParentDir_Idempotent(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "sub", "vault.db")

	require.NoError(t, EnsureParentDir(target))
	require.NoError(t, EnsureParentDir(target))
}

func TestEnsureParentDir_RelativeFilenameIsNoop(t *testing.T) {
	require.NoError(t, EnsureParentDir("vault.db"))
}

func TestEnsureParentDir_FailsIfParentIsAFile(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o660))

	target := filepath.Join(blocker, "vault.db")
	require.Error(t, EnsureParentDir(target))
}
