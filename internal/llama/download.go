package llama

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// EnsureModel downloads the model file if it is missing. A missing file with
// no download URL is an error; an existing file is left untouched.
func EnsureModel(modelPath, modelURL string) error {
	if _, err := os.Stat(modelPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if modelURL == "" {
		return fmt.Errorf("model not found at %s and no download URL provided", modelPath)
	}

	slog.Info("Model not found, downloading...", "url", modelURL, "path", modelPath)

	if err := os.MkdirAll(filepath.Dir(modelPath), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	if err := downloadFile(modelURL, modelPath); err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}

	slog.Info("Model downloaded successfully", "path", modelPath)
	return nil
}

// downloadFile downloads a file from URL to local path with progress logging
func downloadFile(url, filepath string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer out.Close()

	size := resp.ContentLength
	sizeMB := float64(size) / 1024 / 1024

	if size > 0 {
		slog.Info("Starting download",
			"size_mb", fmt.Sprintf("%.1f", sizeMB),
			"file", filepath)
	} else {
		slog.Info("Starting download (unknown size)", "file", filepath)
	}

	start := time.Now()
	var downloaded int64

	reportProgress := func() {
		elapsed := time.Since(start)
		downloadedMB := float64(downloaded) / 1024 / 1024
		speed := downloadedMB / elapsed.Seconds()

		if size > 0 {
			progress := float64(downloaded) / float64(size) * 100
			slog.Info("Download progress",
				"progress_percent", fmt.Sprintf("%.1f", progress),
				"downloaded_mb", fmt.Sprintf("%.1f", downloadedMB),
				"total_mb", fmt.Sprintf("%.1f", sizeMB),
				"speed_mbps", fmt.Sprintf("%.2f", speed),
				"file", filepath)
		} else {
			slog.Info("Download progress",
				"downloaded_mb", fmt.Sprintf("%.1f", downloadedMB),
				"speed_mbps", fmt.Sprintf("%.2f", speed),
				"file", filepath)
		}
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	done := make(chan bool)
	go func() {
		for {
			select {
			case <-ticker.C:
				reportProgress()
			case <-done:
				return
			}
		}
	}()

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			downloaded += int64(n)
			_, writeErr := out.Write(buf[:n])
			if writeErr != nil {
				done <- true
				return writeErr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			done <- true
			return err
		}
	}

	done <- true

	elapsed := time.Since(start)
	downloadedMB := float64(downloaded) / 1024 / 1024

	slog.Info("Download completed",
		"final_size_mb", fmt.Sprintf("%.1f", downloadedMB),
		"duration", elapsed.Round(time.Second).String(),
		"file", filepath)

	return nil
}
