package builder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/esp-release/internal/domain/release"
)

// initRepo creates a git repository with one commit and returns it.
func initRepo(t *testing.T, dir string) (*git.Repository, string) {
	t.Helper()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"), []byte("int app_main;\n"), 0o644))

	_, err = wt.Add("main.c")
	require.NoError(t, err)

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return repo, hash.String()
}

// TestResolveNameExplicitWins: an explicit name short-circuits git entirely.
func TestResolveNameExplicitWins(t *testing.T) {
	t.Parallel()

	name, err := resolveName(t.TempDir(), "v9.9.9")
	require.NoError(t, err)
	require.Equal(t, "v9.9.9", name)
}

// TestResolveNameExactTag: a tag on the current commit wins over the hash.
func TestResolveNameExactTag(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, _ := initRepo(t, dir)

	head, err := repo.Head()
	require.NoError(t, err)

	_, err = repo.CreateTag("v1.2.3", head.Hash(), nil)
	require.NoError(t, err)

	name, err := resolveName(dir, "")
	require.NoError(t, err)
	require.Equal(t, "v1.2.3", name)
}

// TestResolveNameAnnotatedTag resolves annotated tags to their target commit.
func TestResolveNameAnnotatedTag(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, _ := initRepo(t, dir)

	head, err := repo.Head()
	require.NoError(t, err)

	_, err = repo.CreateTag("v2.0.0", head.Hash(), &git.CreateTagOptions{
		Message: "release v2.0.0",
		Tagger:  &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	name, err := resolveName(dir, "")
	require.NoError(t, err)
	require.Equal(t, "v2.0.0", name)
}

// TestResolveNameShortHash falls back to a short commit identifier.
func TestResolveNameShortHash(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, hash := initRepo(t, dir)

	name, err := resolveName(dir, "")
	require.NoError(t, err)
	require.Equal(t, hash[:shortHashLen], name)
}

// TestResolveNameNoRepo yields a configuration error naming the field.
func TestResolveNameNoRepo(t *testing.T) {
	t.Parallel()

	_, err := resolveName(t.TempDir(), "")
	require.Error(t, err)

	var cfgErr *release.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "release name", cfgErr.Field)
}
