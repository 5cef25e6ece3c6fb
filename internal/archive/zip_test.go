package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

func TestPack_SingleEntryUnderGivenName(t *testing.T) {
	data, err := Pack("OrderFlowers_Export.json", []byte(`{"resource":{}}`))
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	require.Equal(t, "OrderFlowers_Export.json", zr.File[0].Name)
}

func TestPack_EmptyName(t *testing.T) {
	_, err := Pack(" ", []byte("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestExtract_WritesEveryEntry(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"BookTrip_Export.json": `{"a":1}`,
		"nested/readme.txt":    "hello",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	dir := t.TempDir()
	paths, err := Extract(buf.Bytes(), dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	got, err := os.ReadFile(filepath.Join(dir, "nested", "readme.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../evil.json")
	require.NoError(t, err)
	_, err = w.Write([]byte("{}"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Extract(buf.Bytes(), t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "escapes")
}

func TestExtract_NotAZip(t *testing.T) {
	_, err := Extract([]byte("not a zip"), t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "archive: open")
}
