package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bobarin/reelmaker/internal/assets"
)

const (
	DefaultDriveAPIBase      = "https://www.googleapis.com/drive/v3"
	DefaultDriveDownloadBase = "https://drive.usercontent.google.com/download"

	driveFolderMime = "application/vnd.google-apps.folder"
	driveNativeMime = "application/vnd.google-apps."
)

var (
	driveFolderPattern = regexp.MustCompile(`/folders/([A-Za-z0-9_-]+)`)
	driveFilePattern   = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)
)

// Fetcher downloads shared folders: Google Drive folders (listed through the
// Drive v3 API), single Drive files, and plain archive links.
type Fetcher struct {
	client            *http.Client
	driveAPIKey       string
	driveAPIBase      string
	driveDownloadBase string
}

var _ assets.Fetcher = (*Fetcher)(nil)

func NewFetcher(driveAPIKey string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		driveAPIKey:       driveAPIKey,
		driveAPIBase:      DefaultDriveAPIBase,
		driveDownloadBase: DefaultDriveDownloadBase,
	}
}

// WithDriveEndpoints points the fetcher at alternative Drive endpoints.
func (f *Fetcher) WithDriveEndpoints(apiBase, downloadBase string) *Fetcher {
	f.driveAPIBase = strings.TrimRight(apiBase, "/")
	f.driveDownloadBase = strings.TrimRight(downloadBase, "/")
	return f
}

// List enumerates the files behind a folder link.
func (f *Fetcher) List(ctx context.Context, link string) ([]assets.RemoteFile, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid folder link %q", link)
	}

	if isDriveHost(u.Host) {
		if m := driveFolderPattern.FindStringSubmatch(u.Path); m != nil {
			if f.driveAPIKey == "" {
				return nil, fmt.Errorf("drive folder links require GOOGLE_API_KEY")
			}
			log.Printf("[Storage] Listing drive folder %s", m[1])
			return f.listDriveFolder(ctx, m[1], "")
		}
		if id := driveFileID(u); id != "" {
			return []assets.RemoteFile{{
				ID:   id,
				Path: id,
				URL:  fmt.Sprintf("%s?id=%s&export=download&confirm=t", f.driveDownloadBase, url.QueryEscape(id)),
			}}, nil
		}
	}

	name := SecureFilename(path.Base(u.Path))
	if name == "" {
		name = "folder"
	}
	return []assets.RemoteFile{{ID: link, Path: name, URL: u.String()}}, nil
}

type driveFileList struct {
	NextPageToken string `json:"nextPageToken"`
	Files         []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		MimeType string `json:"mimeType"`
		Size     string `json:"size"`
	} `json:"files"`
}

func (f *Fetcher) listDriveFolder(ctx context.Context, folderID, prefix string) ([]assets.RemoteFile, error) {
	var out []assets.RemoteFile
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", folderID))
		q.Set("fields", "nextPageToken,files(id,name,mimeType,size)")
		q.Set("pageSize", "1000")
		q.Set("key", f.driveAPIKey)
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page driveFileList
		err := f.getWithRetry(ctx, f.driveAPIBase+"/files?"+q.Encode(), func(resp *http.Response) error {
			return json.NewDecoder(resp.Body).Decode(&page)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list drive folder %s: %w", folderID, err)
		}

		for _, file := range page.Files {
			name := SecureFilename(file.Name)
			if name == "" {
				name = file.ID
			}
			rel := path.Join(prefix, name)
			switch {
			case file.MimeType == driveFolderMime:
				children, err := f.listDriveFolder(ctx, file.ID, rel)
				if err != nil {
					return nil, err
				}
				out = append(out, children...)
			case strings.HasPrefix(file.MimeType, driveNativeMime):
				log.Printf("[Storage] Skipping native drive document %s", rel)
			default:
				var size int64
				fmt.Sscanf(file.Size, "%d", &size)
				out = append(out, assets.RemoteFile{
					ID:   file.ID,
					Path: rel,
					Size: size,
					URL:  fmt.Sprintf("%s/files/%s?alt=media&key=%s", f.driveAPIBase, url.PathEscape(file.ID), url.QueryEscape(f.driveAPIKey)),
				})
			}
		}

		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// Download writes a remote file to dest. When dest has no extension one is
// taken from the response (Content-Disposition, then content sniffing).
func (f *Fetcher) Download(ctx context.Context, rf assets.RemoteFile, dest string) error {
	tmp := dest + ".part"
	var ext string

	err := f.getWithRetry(ctx, rf.URL, func(resp *http.Response) error {
		out, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", tmp, err)
		}
		defer out.Close()

		head := make([]byte, 512)
		n, _ := io.ReadFull(resp.Body, head)
		head = head[:n]
		if _, err := out.Write(head); err != nil {
			return err
		}
		if _, err := io.Copy(out, resp.Body); err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		ext = responseExtension(resp, head)
		return nil
	})
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if filepath.Ext(dest) == "" {
		dest += ext
	}
	return os.Rename(tmp, dest)
}

// getWithRetry issues a GET and hands a 200 response to read. Transient
// failures are retried with the same backoff as uploads.
func (f *Fetcher) getWithRetry(ctx context.Context, target string, read func(*http.Response) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[Storage] Download retry %d/%d (waiting %v)...", attempt, maxRetries, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("download cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		retry, err := f.getOnce(ctx, target, read)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return lastErr
		}
		log.Printf("[Storage] Download attempt %d failed (retryable): %s", attempt+1, truncate(err.Error(), 200))
	}
	return fmt.Errorf("download failed after %d attempts: %w", maxRetries+1, lastErr)
}

func (f *Fetcher) getOnce(ctx context.Context, target string, read func(*http.Response) error) (bool, error) {
	dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return isRetryableError(err), fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return isRetryableStatus(resp.StatusCode), fmt.Errorf("download failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := read(resp); err != nil {
		return isRetryableError(err), err
	}
	return false, nil
}

func responseExtension(resp *http.Response, head []byte) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if ext := strings.ToLower(filepath.Ext(params["filename"])); ext != "" {
			return ext
		}
	}
	switch http.DetectContentType(head) {
	case "application/zip":
		return ".zip"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/mpeg":
		return ".mp3"
	}
	return ""
}

func isDriveHost(host string) bool {
	host = strings.ToLower(host)
	return host == "drive.google.com" || host == "docs.google.com"
}

func driveFileID(u *url.URL) string {
	if m := driveFilePattern.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return u.Query().Get("id")
}
