package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Client wraps the Drive v3 API for listing and downloading photos.
type Client struct {
	svc      *gdrive.Service
	folderID string
}

// NewClient authenticates with a service account credentials file and
// returns a read-only Drive client. folderID may be empty to search all
// folders the service account can see.
func NewClient(ctx context.Context, credentialsFile, folderID string) (*Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, gdrive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}

	svc, err := gdrive.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	return &Client{svc: svc, folderID: folderID}, nil
}

// ListRecentPhotos returns image files modified within the last hoursBack
// hours, newest first, capped at maxResults.
func (c *Client) ListRecentPhotos(ctx context.Context, hoursBack, maxResults int) ([]Photo, error) {
	threshold := time.Now().UTC().Add(-time.Duration(hoursBack) * time.Hour)

	queryParts := []string{
		"trashed = false",
		fmt.Sprintf("modifiedTime > '%s'", threshold.Format("2006-01-02T15:04:05")),
		"mimeType contains 'image/'",
	}
	if c.folderID != "" {
		queryParts = append([]string{fmt.Sprintf("'%s' in parents", c.folderID)}, queryParts...)
	}
	query := strings.Join(queryParts, " and ")

	result, err := c.svc.Files.List().
		Q(query).
		Fields("files(id, name, mimeType, webViewLink, modifiedTime)").
		OrderBy("modifiedTime desc").
		PageSize(int64(maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	photos := make([]Photo, 0, len(result.Files))
	for _, f := range result.Files {
		modified, err := time.Parse(time.RFC3339, f.ModifiedTime)
		if err != nil {
			slog.Warn("Unparseable modifiedTime", "file", f.Name, "value", f.ModifiedTime)
		}
		photos = append(photos, Photo{
			ID:           f.Id,
			Name:         f.Name,
			MimeType:     f.MimeType,
			ViewURL:      f.WebViewLink,
			ModifiedTime: modified,
		})
	}

	return photos, nil
}

// Download fetches the raw bytes of a Drive file.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}

	return data, nil
}
