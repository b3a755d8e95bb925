package repository_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolpa/bakare/internal/fs"
	"github.com/kolpa/bakare/internal/repository"
)

func Test_Init_Creates_Empty_Repository(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()

	repo, err := repository.Init(fsys, "/repo", repository.Options{})
	require.NoError(t, err)
	require.Empty(t, repo.NewestItems())

	exists, err := fsys.Exists("/repo/data")
	require.NoError(t, err)
	require.True(t, exists)
}

func Test_Store_Then_NewestBySourcePath_Finds_Item(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()
	require.NoError(t, fsys.WriteFileAtomic("/source/report.txt", []byte("v1 content"), 0o640))

	repo, err := repository.Init(fsys, "/repo", repository.Options{})
	require.NoError(t, err)

	item, err := repo.Store("/source/report.txt")
	require.NoError(t, err)
	require.Equal(t, "/source/report.txt", item.OriginalSourcePath)
	require.Equal(t, uint64(1), uint64(item.Version))

	found, ok := repo.NewestBySourcePath("/source/report.txt")
	require.True(t, ok)

	// ScanChecksum is only carried on the fresh Store result; items read
	// back from the index have it zeroed.
	want := item
	want.ScanChecksum = 0
	require.Equal(t, want, found)
}

func Test_Store_Same_Source_Path_Twice_Bumps_Version(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()
	require.NoError(t, fsys.WriteFileAtomic("/source/report.txt", []byte("v1"), 0o640))

	repo, err := repository.Init(fsys, "/repo", repository.Options{})
	require.NoError(t, err)

	first, err := repo.Store("/source/report.txt")
	require.NoError(t, err)

	require.NoError(t, fsys.WriteFileAtomic("/source/report.txt", []byte("v2, different content"), 0o640))

	second, err := repo.Store("/source/report.txt")
	require.NoError(t, err)

	require.Equal(t, first.Version.Next(), second.Version)
	require.False(t, first.ID.Equal(second.ID))
}

func Test_Store_Rejects_Source_Path_Inside_Repository(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()

	repo, err := repository.Init(fsys, "/repo", repository.Options{})
	require.NoError(t, err)

	_, err = repo.Store("/repo/data/something")
	require.ErrorIs(t, err, repository.ErrSourceInsideRepository)
}

func Test_Store_Dedupes_Identical_Content_Across_Source_Paths(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()
	require.NoError(t, fsys.WriteFileAtomic("/source/a.txt", []byte("shared"), 0o640))
	require.NoError(t, fsys.WriteFileAtomic("/source/b.txt", []byte("shared"), 0o640))

	repo, err := repository.Init(fsys, "/repo", repository.Options{})
	require.NoError(t, err)

	itemA, err := repo.Store("/source/a.txt")
	require.NoError(t, err)

	itemB, err := repo.Store("/source/b.txt")
	require.NoError(t, err)

	require.True(t, itemA.ID.Equal(itemB.ID))
	require.Equal(t, itemA.AbsolutePath, itemB.AbsolutePath)

	weight, err := repo.DataWeight()
	require.NoError(t, err)
	require.Equal(t, uint64(len("shared")), weight)
}

func Test_Open_Reopens_Repository_With_Saved_Items(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()
	require.NoError(t, fsys.WriteFileAtomic("/source/report.txt", []byte("content"), 0o640))

	repo, err := repository.Init(fsys, "/repo", repository.Options{})
	require.NoError(t, err)

	_, err = repo.Store("/source/report.txt")
	require.NoError(t, err)
	require.NoError(t, repo.SaveIndex())

	reopened, err := repository.Open(fsys, "/repo", repository.Options{})
	require.NoError(t, err)

	item, ok := reopened.NewestBySourcePath("/source/report.txt")
	require.True(t, ok)
	require.Equal(t, "/source/report.txt", item.OriginalSourcePath)
}

func Test_Verify_Reports_Missing_Objects(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()
	require.NoError(t, fsys.WriteFileAtomic("/source/report.txt", []byte("content"), 0o640))

	repo, err := repository.Init(fsys, "/repo", repository.Options{})
	require.NoError(t, err)

	item, err := repo.Store("/source/report.txt")
	require.NoError(t, err)

	require.NoError(t, fsys.Remove(item.AbsolutePath))

	problems := repo.Verify()
	require.Len(t, problems, 1)
	require.ErrorIs(t, problems[0], repository.ErrCorrupted)
}

func Test_Store_Rejects_Symlinks(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()
	fsys.PutSpecial("/source/link", os.ModeSymlink)

	repo, err := repository.Init(fsys, "/repo", repository.Options{})
	require.NoError(t, err)

	_, err = repo.Store("/source/link")
	require.ErrorIs(t, err, repository.ErrNotRegularFile)
}

func Test_Store_Rejects_Sockets_And_Devices(t *testing.T) {
	t.Parallel()

	for _, typeBits := range []os.FileMode{os.ModeSocket, os.ModeDevice} {
		fsys := fs.NewFake()
		fsys.PutSpecial("/source/special", typeBits)

		repo, err := repository.Init(fsys, "/repo", repository.Options{})
		require.NoError(t, err)

		_, err = repo.Store("/source/special")
		require.ErrorIs(t, err, repository.ErrNotRegularFile)
	}
}

func Test_Verify_Reports_Nothing_For_Healthy_Repository(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()
	require.NoError(t, fsys.WriteFileAtomic("/source/report.txt", []byte("content"), 0o640))

	repo, err := repository.Init(fsys, "/repo", repository.Options{})
	require.NoError(t, err)

	_, err = repo.Store("/source/report.txt")
	require.NoError(t, err)

	require.Empty(t, repo.Verify())
}
