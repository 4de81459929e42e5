package feed

import (
	"archive/tar"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const (
	archiveName = "nvdcpe-2.0.tar.gz"
	chunkDir    = "nvdcpe-2.0-chunks"
	chunkGlob   = "nvdcpe-2.0-chunk-*.json"
)

// Downloader fetches and extracts the NVD CPE feed archive. Feed transport
// is deliberately plain: one GET, no retry policy beyond the HTTP client
// timeout.
type Downloader struct {
	FeedURL    string
	ExtractDir string

	Client *http.Client
	logger *zap.SugaredLogger
}

// NewDownloader creates a downloader writing under extractDir.
func NewDownloader(feedURL, extractDir string, logger *zap.Logger) *Downloader {
	return &Downloader{
		FeedURL:    feedURL,
		ExtractDir: extractDir,
		Client:     &http.Client{Timeout: 10 * time.Minute},
		logger:     logger.Sugar(),
	}
}

func (d *Downloader) archivePath() string {
	return filepath.Join(d.ExtractDir, archiveName)
}

// DownloadFeed fetches the feed archive unless it is already present.
func (d *Downloader) DownloadFeed(force bool) error {
	if _, err := os.Stat(d.archivePath()); err == nil && !force {
		d.logger.Infof("Feed file already exists: %s", d.archivePath())
		return nil
	}

	if err := os.MkdirAll(d.ExtractDir, 0o755); err != nil {
		return fmt.Errorf("failed to create extract dir: %w", err)
	}

	d.logger.Infof("Downloading NVD CPE feed from %s", d.FeedURL)
	resp, err := d.Client.Get(d.FeedURL)
	if err != nil {
		return fmt.Errorf("failed to download feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download feed: unexpected status %s", resp.Status)
	}

	f, err := os.Create(d.archivePath())
	if err != nil {
		return fmt.Errorf("failed to create feed file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write feed file: %w", err)
	}

	d.logger.Infof("Downloaded %d bytes to %s", written, d.archivePath())
	return nil
}

// ExtractFeed unpacks the downloaded tar.gz archive into ExtractDir.
func (d *Downloader) ExtractFeed() error {
	f, err := os.Open(d.archivePath())
	if err != nil {
		return fmt.Errorf("feed archive not found: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		// Reject entries escaping the extract dir.
		name := filepath.Clean(hdr.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("archive entry escapes extract dir: %s", hdr.Name)
		}
		target := filepath.Join(d.ExtractDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("failed to create dir for %s: %w", target, err)
			}
			out, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil { // #nosec G110 -- trusted NVD feed
				out.Close()
				return fmt.Errorf("failed to extract %s: %w", target, err)
			}
			out.Close()
		}
	}

	d.logger.Infof("Extracted feed to %s", d.ExtractDir)
	return nil
}

// ChunkFiles lists the extracted JSON chunk files in stable order.
func (d *Downloader) ChunkFiles() ([]string, error) {
	pattern := filepath.Join(d.ExtractDir, chunkDir, chunkGlob)
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob chunk files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// CleanupArchive removes the downloaded tarball to save space.
func (d *Downloader) CleanupArchive() {
	if err := os.Remove(d.archivePath()); err == nil {
		d.logger.Infof("Cleaned up download file: %s", d.archivePath())
	}
}

// DownloadAndExtract runs the complete download and extraction process.
func (d *Downloader) DownloadAndExtract(force, cleanup bool) error {
	if err := d.DownloadFeed(force); err != nil {
		return err
	}
	if err := d.ExtractFeed(); err != nil {
		return err
	}
	if cleanup {
		d.CleanupArchive()
	}
	return nil
}
