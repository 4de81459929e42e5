package feed_test

import (
	"archive/tar"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cpedb/cpedb-backend/feed"
)

// buildArchive produces a tar.gz with the given name to content mapping.
func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestDownloader(t *testing.T) {
	t.Parallel()

	t.Run("downloads, extracts and lists chunks in order", func(t *testing.T) {
		t.Parallel()

		archive := buildArchive(t, map[string]string{
			"nvdcpe-2.0-chunks/nvdcpe-2.0-chunk-2.json": `{"format":"NVD_CPE","products":[]}`,
			"nvdcpe-2.0-chunks/nvdcpe-2.0-chunk-1.json": `{"format":"NVD_CPE","products":[]}`,
			"nvdcpe-2.0-chunks/README.txt":              "not a chunk",
		})

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(archive)
		}))
		defer srv.Close()

		dir := t.TempDir()
		dl := feed.NewDownloader(srv.URL, dir, zap.NewNop())
		require.NoError(t, dl.DownloadAndExtract(false, true))

		files, err := dl.ChunkFiles()
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "nvdcpe-2.0-chunk-1.json", filepath.Base(files[0]))
		assert.Equal(t, "nvdcpe-2.0-chunk-2.json", filepath.Base(files[1]))

		// Archive cleaned up after extraction.
		_, err = os.Stat(filepath.Join(dir, "nvdcpe-2.0.tar.gz"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("keeps an existing archive unless forced", func(t *testing.T) {
		t.Parallel()

		requests := 0
		archive := buildArchive(t, map[string]string{
			"nvdcpe-2.0-chunks/nvdcpe-2.0-chunk-1.json": `{}`,
		})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests++
			_, _ = w.Write(archive)
		}))
		defer srv.Close()

		dir := t.TempDir()
		dl := feed.NewDownloader(srv.URL, dir, zap.NewNop())

		require.NoError(t, dl.DownloadFeed(false))
		require.NoError(t, dl.DownloadFeed(false))
		assert.Equal(t, 1, requests)

		require.NoError(t, dl.DownloadFeed(true))
		assert.Equal(t, 2, requests)
	})

	t.Run("fails on non-200 responses", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		dl := feed.NewDownloader(srv.URL, t.TempDir(), zap.NewNop())
		err := dl.DownloadFeed(false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status")
	})

	t.Run("rejects archive entries escaping the extract dir", func(t *testing.T) {
		t.Parallel()

		archive := buildArchive(t, map[string]string{
			"../escape.json": `{}`,
		})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(archive)
		}))
		defer srv.Close()

		dl := feed.NewDownloader(srv.URL, t.TempDir(), zap.NewNop())
		err := dl.DownloadAndExtract(false, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escapes extract dir")
	})
}
