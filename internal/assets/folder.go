package assets

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bobarin/reelmaker/internal/models"
)

// RemoteFile is one file of a shared folder. Path is slash-separated and
// relative to the folder root.
type RemoteFile struct {
	ID   string
	Path string
	Size int64
	URL  string
}

// Fetcher lists and downloads the contents of a shared folder link.
type Fetcher interface {
	List(ctx context.Context, link string) ([]RemoteFile, error)
	Download(ctx context.Context, f RemoteFile, dest string) error
}

// Folder intake stages, reported in order.
const (
	StageFetch     = models.StepKeyFetch
	StageStructure = models.StepKeyStructure
	StageDownload  = models.StepKeyDownload
)

// StageObserver is told when an intake stage starts and finishes.
type StageObserver interface {
	StageStarted(stage string)
	StageFinished(stage string, err error)
}

// ResolveFromFolder mirrors a shared folder under dest, unpacks archives and
// resolves the assets found there.
func ResolveFromFolder(ctx context.Context, f Fetcher, link, dest string, obs StageObserver) (Resolved, error) {
	if obs == nil {
		obs = nopObserver{}
	}

	obs.StageStarted(StageFetch)
	files, err := f.List(ctx, link)
	if err == nil && len(files) == 0 {
		err = fmt.Errorf("folder is empty")
	}
	if err != nil {
		err = fmt.Errorf("%w: failed to list folder: %v", models.ErrInput, err)
		obs.StageFinished(StageFetch, err)
		return Resolved{}, err
	}
	obs.StageFinished(StageFetch, nil)

	obs.StageStarted(StageStructure)
	targets, err := layout(files, dest)
	obs.StageFinished(StageStructure, err)
	if err != nil {
		return Resolved{}, err
	}

	obs.StageStarted(StageDownload)
	res, err := download(ctx, f, files, targets, dest)
	obs.StageFinished(StageDownload, err)
	return res, err
}

// layout creates the directory tree and returns the local path per file.
func layout(files []RemoteFile, dest string) ([]string, error) {
	root, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	targets := make([]string, len(files))
	for i, rf := range files {
		clean := path.Clean("/" + rf.Path)
		if clean == "/" {
			return nil, fmt.Errorf("%w: remote file %q has no name", models.ErrInput, rf.Path)
		}
		target := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
		}
		targets[i] = target
	}
	return targets, nil
}

func download(ctx context.Context, f Fetcher, files []RemoteFile, targets []string, dest string) (Resolved, error) {
	for i, rf := range files {
		if err := f.Download(ctx, rf, targets[i]); err != nil {
			return Resolved{}, fmt.Errorf("%w: failed to download %s: %v", models.ErrInput, rf.Path, err)
		}
	}
	log.Printf("[Assets] Downloaded %d file(s) into %s", len(files), dest)

	n, err := ExtractZips(dest)
	if err != nil {
		return Resolved{}, err
	}
	if n > 0 {
		log.Printf("[Assets] Extracted %d archive(s) under %s", n, dest)
	}
	return ResolveTree(dest)
}

type nopObserver struct{}

func (nopObserver) StageStarted(string)         {}
func (nopObserver) StageFinished(string, error) {}
