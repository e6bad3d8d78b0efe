package portal

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ago-backup/internal/backup"
)

// discardTimeout bounds the best-effort removal of a failed export item
const discardTimeout = 30 * time.Second

var fileNameReplacer = strings.NewReplacer("/", "_", `\`, "_", " ", "_", ":", "_")

type exportResponse struct {
	Type          string `json:"type"`
	Size          int64  `json:"size"`
	JobID         string `json:"jobId"`
	ExportItemID  string `json:"exportItemId"`
	ServiceItemID string `json:"serviceItemId"`
}

type jobStatus struct {
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage"`
}

// Export starts an export of item into the signed-in user's content and
// waits for the export job to finish.
func (c *Client) Export(ctx context.Context, item *backup.CatalogItem, targetName, format string) (*backup.RemoteArtifact, error) {
	user := c.Username()
	if user == "" {
		return nil, fmt.Errorf("portal client is not signed in")
	}

	params := url.Values{}
	params.Set("itemId", item.ID)
	params.Set("exportFormat", format)
	params.Set("title", targetName)

	var resp exportResponse
	endpoint := fmt.Sprintf("%s/content/users/%s/export", c.baseURL, url.PathEscape(user))
	if err := c.call(ctx, "export", http.MethodPost, endpoint, params, &resp); err != nil {
		return nil, err
	}
	if resp.ExportItemID == "" {
		return nil, fmt.Errorf("portal export of %s returned no export item", item.ID)
	}

	artifact := &backup.RemoteArtifact{
		ID:     resp.ExportItemID,
		Name:   targetName,
		ItemID: item.ID,
		Owner:  user,
		JobID:  resp.JobID,
		Format: format,
	}

	if err := c.waitForJob(ctx, artifact); err != nil {
		c.discard(ctx, artifact)
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"item_id":   item.ID,
		"export_id": artifact.ID,
		"job_id":    artifact.JobID,
	}).Debug("Export job completed")
	return artifact, nil
}

// waitForJob polls the export item's job status until it completes, fails or
// ctx expires.
func (c *Client) waitForJob(ctx context.Context, artifact *backup.RemoteArtifact) error {
	if artifact.JobID == "" {
		return nil
	}

	params := url.Values{}
	params.Set("jobId", artifact.JobID)
	params.Set("jobType", "export")
	endpoint := fmt.Sprintf("%s/content/users/%s/items/%s/status",
		c.baseURL, url.PathEscape(artifact.Owner), url.PathEscape(artifact.ID))

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var status jobStatus
		if err := c.read(ctx, "status", endpoint, params, &status); err != nil {
			return err
		}

		switch strings.ToLower(status.Status) {
		case "completed":
			return nil
		case "failed":
			return fmt.Errorf("export job %s failed: %s", artifact.JobID, status.StatusMessage)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("export job %s did not finish: %w", artifact.JobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// discard removes an export item whose job did not complete. Failures are
// logged only; the caller already reports the export as failed.
func (c *Client) discard(ctx context.Context, artifact *backup.RemoteArtifact) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()

	if err := c.Delete(cleanupCtx, artifact); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"export_id": artifact.ID,
			"error":     err.Error(),
		}).Warn("Failed to remove incomplete export item")
	}
}

// Download streams the export item's data into dir and returns the file path
func (c *Client) Download(ctx context.Context, artifact *backup.RemoteArtifact, dir string) (_ string, err error) {
	done := c.logger.LogOperationStart("download", map[string]interface{}{
		"export_id": artifact.ID,
		"item_id":   artifact.ItemID,
	})
	defer func() { done(err) }()

	params := url.Values{}
	if token := c.currentToken(); token != "" {
		params.Set("token", token)
	}
	endpoint := fmt.Sprintf("%s/content/items/%s/data?%s", c.baseURL, url.PathEscape(artifact.ID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Referer", c.config.Referer)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("portal download: %w", err)
	}
	defer resp.Body.Close()

	// The data endpoint answers errors with a JSON envelope instead of the archive
	if resp.StatusCode >= 400 || isJSON(resp.Header.Get("Content-Type")) {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return "", fmt.Errorf("portal download: read error response: %w", readErr)
		}
		if err := decodeResponse("download", resp.StatusCode, body, nil); err != nil {
			return "", err
		}
		return "", fmt.Errorf("portal download of %s returned JSON instead of an archive", artifact.ID)
	}

	path := filepath.Join(dir, archiveFileName(artifact.Name))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}

	written, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("portal download of %s: %w", artifact.ID, err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		os.Remove(path)
		return "", fmt.Errorf("portal download of %s: got %d of %d bytes", artifact.ID, written, resp.ContentLength)
	}

	c.logger.WithFields(map[string]interface{}{
		"export_id": artifact.ID,
		"bytes":     written,
	}).Debug("Export downloaded")
	return path, nil
}

// Delete removes the export item from the owner's content
func (c *Client) Delete(ctx context.Context, artifact *backup.RemoteArtifact) error {
	owner := artifact.Owner
	if owner == "" {
		owner = c.Username()
	}

	var resp struct {
		Success bool   `json:"success"`
		ItemID  string `json:"itemId"`
	}
	endpoint := fmt.Sprintf("%s/content/users/%s/items/%s/delete",
		c.baseURL, url.PathEscape(owner), url.PathEscape(artifact.ID))
	if err := c.call(ctx, "delete", http.MethodPost, endpoint, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("portal did not delete export item %s", artifact.ID)
	}
	return nil
}

func archiveFileName(name string) string {
	name = fileNameReplacer.Replace(name)
	if name == "" || name == "." || name == ".." {
		name = "export"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		name += ".zip"
	}
	return name
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || mediaType == "text/plain"
}
