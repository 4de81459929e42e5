// Package admin implements the REST API handlers for catalog maintenance.
// It provides endpoints for triggering feed updates, recreating the index
// and monitoring the progress of a running update.
package admin

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/cpedb/cpedb-backend/feed"
	"github.com/cpedb/cpedb-backend/updater"
)

var (
	mu             sync.Mutex
	updateRunning  bool
	updateProgress string
)

// UpdateRequest is the body accepted by PostUpdate.
type UpdateRequest struct {
	ForceDownload bool `json:"force_download"`
	SkipDiff      bool `json:"skip_diff"`
}

// RecreateRequest is the body accepted by PostRecreateIndex. The confirm
// flag must be set, recreating drops every indexed document.
type RecreateRequest struct {
	Confirm bool `json:"confirm"`
}

// StatusResponse reports whether an update is in flight.
type StatusResponse struct {
	Running bool   `json:"running"`
	Status  string `json:"status"`
}

func setProgress(format string, args ...interface{}) {
	mu.Lock()
	updateProgress = fmt.Sprintf(format, args...)
	mu.Unlock()
}

// PostUpdate triggers a full catalog update in the background. Diff
// reports are written to diffDir unless the request skips diffing.
func PostUpdate(u *updater.Updater, dl *feed.Downloader, diffDir string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mu.Lock()
		if updateRunning {
			status := updateProgress
			mu.Unlock()
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Update already in progress",
				"status":  status,
			})
		}
		updateRunning = true
		updateProgress = "Starting update..."
		mu.Unlock()

		var req UpdateRequest
		if err := c.BodyParser(&req); err != nil {
			req = UpdateRequest{}
		}

		go runUpdate(u, dl, req, diffDir)

		return c.JSON(fiber.Map{
			"success": true,
			"message": "Update started",
			"status":  "processing",
		})
	}
}

// GetStatus returns the current status of any running update.
func GetStatus() fiber.Handler {
	return func(c *fiber.Ctx) error {
		mu.Lock()
		resp := StatusResponse{Running: updateRunning, Status: updateProgress}
		mu.Unlock()
		return c.JSON(resp)
	}
}

// PostRecreateIndex drops and recreates the index from the already
// downloaded feed chunks. Refused unless the request confirms.
func PostRecreateIndex(u *updater.Updater, dl *feed.Downloader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RecreateRequest
		if err := c.BodyParser(&req); err != nil || !req.Confirm {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Recreating the index deletes all indexed documents; set confirm=true to proceed",
			})
		}

		files, err := dl.ChunkFiles()
		if err != nil || len(files) == 0 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "No feed chunks available; run an update first",
			})
		}

		if err := u.RecreateIndex(c.Context()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Recreate failed: " + err.Error(),
			})
		}

		report, _, err := u.IndexFromFiles(c.Context(), files)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Reindex failed: " + err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"success": true,
			"indexed": report.Succeeded,
			"failed":  report.Failed,
		})
	}
}

func runUpdate(u *updater.Updater, dl *feed.Downloader, req UpdateRequest, diffDir string) {
	ctx := context.Background()

	setProgress("Downloading feed...")
	if err := dl.DownloadAndExtract(req.ForceDownload, true); err != nil {
		setProgress("Failed: %v", err)
		mu.Lock()
		updateRunning = false
		mu.Unlock()
		return
	}

	files, err := dl.ChunkFiles()
	if err != nil {
		setProgress("Failed: %v", err)
		mu.Lock()
		updateRunning = false
		mu.Unlock()
		return
	}

	setProgress("Indexing %d chunk files...", len(files))
	result, err := u.Run(ctx, files, updater.Options{SkipDiff: req.SkipDiff, DiffDir: diffDir})
	mu.Lock()
	if err != nil {
		updateProgress = fmt.Sprintf("Failed: %v", err)
	} else {
		updateProgress = fmt.Sprintf("Complete! Indexed: %d, Failed: %d",
			result.Index.Succeeded, result.Index.Failed)
	}
	updateRunning = false
	mu.Unlock()
}
