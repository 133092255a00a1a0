package archive

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestBuilder(t *testing.T) {
	t.Run("should add flat and foldered entries", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "bundle.zip")
		b, err := NewBuilder(dest)
		require.NoError(t, err)

		require.NoError(t, b.Add("000512345.tif", strings.NewReader("image-bytes")))
		require.NoError(t, b.AddInFolder("INV_20240115_ABCDE1234F", "Text_ABCDE1234F.dbf", strings.NewReader("dbf-bytes")))
		require.NoError(t, b.Close())

		assert.Equal(t, []string{
			"000512345.tif",
			"INV_20240115_ABCDE1234F/Text_ABCDE1234F.dbf",
		}, entryNames(t, dest))
	})

	t.Run("should round-trip entry contents", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "bundle.zip")
		b, err := NewBuilder(dest)
		require.NoError(t, err)
		require.NoError(t, b.Add("a.txt", strings.NewReader("hello")))
		require.NoError(t, b.Close())

		zr, err := zip.OpenReader(dest)
		require.NoError(t, err)
		defer zr.Close()

		rc, err := zr.File[0].Open()
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(got))
	})

	t.Run("should stream local files into the archive", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "src.tif")
		require.NoError(t, os.WriteFile(src, []byte("tif-bytes"), 0o644))

		dest := filepath.Join(dir, "bundle.zip")
		b, err := NewBuilder(dest)
		require.NoError(t, err)
		require.NoError(t, b.AddLocalFile("doc.tif", src))
		require.NoError(t, b.AddLocalFileInFolder("INV_20240115_X", "doc.tif", src))
		require.NoError(t, b.Close())

		assert.Equal(t, []string{
			"INV_20240115_X/doc.tif",
			"doc.tif",
		}, entryNames(t, dest))
	})

	t.Run("should refuse adds after close", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "bundle.zip")
		b, err := NewBuilder(dest)
		require.NoError(t, err)
		require.NoError(t, b.Close())
		assert.Error(t, b.Add("late.txt", strings.NewReader("nope")))
	})

	t.Run("abort should remove the partial archive", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "bundle.zip")
		b, err := NewBuilder(dest)
		require.NoError(t, err)
		require.NoError(t, b.Add("a.txt", strings.NewReader("hello")))
		b.Abort()

		_, err = os.Stat(dest)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("abort after close keeps the finished archive", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "bundle.zip")
		b, err := NewBuilder(dest)
		require.NoError(t, err)
		require.NoError(t, b.Add("a.txt", strings.NewReader("hello")))
		require.NoError(t, b.Close())
		b.Abort()

		_, err = os.Stat(dest)
		assert.NoError(t, err)
	})
}
