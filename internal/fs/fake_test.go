package fs_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolpa/bakare/internal/fs"
)

func Test_Fake_WriteFileAtomic_Then_ReadFile_Roundtrips(t *testing.T) {
	t.Parallel()

	fk := fs.NewFake()

	err := fk.WriteFileAtomic("/repo/index", []byte("hello"), 0o640)
	require.NoError(t, err)

	got, err := fk.ReadFile("/repo/index")
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func Test_Fake_Create_And_Write_Then_Open_Reads_Back(t *testing.T) {
	t.Parallel()

	fk := fs.NewFake()

	require.NoError(t, fk.MkdirAll("/repo/data", 0o750))

	f, err := fk.Create("/repo/data/abc")
	require.NoError(t, err)

	_, err = f.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := fk.Open("/repo/data/abc")
	require.NoError(t, err)

	defer func() { _ = f2.Close() }()

	buf := make([]byte, 7)
	n, err := f2.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "content", string(buf[:n]))
}

func Test_Fake_OpenFile_O_EXCL_Fails_When_File_Exists(t *testing.T) {
	t.Parallel()

	fk := fs.NewFake()
	require.NoError(t, fk.MkdirAll("/repo", 0o750))
	require.NoError(t, fk.WriteFileAtomic("/repo/lock", []byte("x"), 0o640))

	_, err := fk.OpenFile("/repo/lock", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	require.Error(t, err)
	require.True(t, os.IsExist(err))
}

func Test_Fake_ReadDir_Lists_Only_Direct_Children(t *testing.T) {
	t.Parallel()

	fk := fs.NewFake()
	require.NoError(t, fk.MkdirAll("/repo/data", 0o750))
	require.NoError(t, fk.WriteFileAtomic("/repo/index", []byte("x"), 0o640))
	require.NoError(t, fk.WriteFileAtomic("/repo/data/deep", []byte("y"), 0o640))

	entries, err := fk.ReadDir("/repo")
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}

	require.ElementsMatch(t, []string{"data", "index"}, names)
}

func Test_Fake_Exists_Reports_False_For_Missing_Path(t *testing.T) {
	t.Parallel()

	fk := fs.NewFake()

	exists, err := fk.Exists("/nope")
	require.NoError(t, err)
	require.False(t, exists)
}

func Test_Fake_Rename_Moves_File(t *testing.T) {
	t.Parallel()

	fk := fs.NewFake()
	require.NoError(t, fk.MkdirAll("/repo", 0o750))
	require.NoError(t, fk.WriteFileAtomic("/repo/a", []byte("x"), 0o640))

	require.NoError(t, fk.Rename("/repo/a", "/repo/b"))

	exists, err := fk.Exists("/repo/a")
	require.NoError(t, err)
	require.False(t, exists)

	got, err := fk.ReadFile("/repo/b")
	require.NoError(t, err)
	require.Equal(t, "x", string(got))
}
