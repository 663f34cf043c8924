// Package assets resolves raw uploads or a downloaded folder tree into one
// narration track and an ordered list of scene images.
package assets

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bobarin/reelmaker/internal/models"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// Resolved is the scene input for one job.
type Resolved struct {
	AudioPath  string
	ImagePaths []string
}

// ResolveInputs picks the narration track and orders the images of a direct
// upload.
func ResolveInputs(audioPaths, imagePaths []string) (Resolved, error) {
	images := OrderImages(dedupe(imagePaths))
	if len(images) == 0 {
		return Resolved{}, fmt.Errorf("%w: no images provided", models.ErrInput)
	}
	audio, err := PickAudio(audioPaths)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{AudioPath: audio, ImagePaths: images}, nil
}

// OrderImages sorts by integer basename when every basename is a plain
// non-negative integer ("0.jpg", "10.jpg"), otherwise by full path.
func OrderImages(paths []string) []string {
	out := append([]string(nil), paths...)

	keys := make(map[string]int, len(out))
	numeric := len(out) > 0
	for _, p := range out {
		n, ok := numericStem(p)
		if !ok {
			numeric = false
			break
		}
		keys[p] = n
	}

	if numeric {
		sort.SliceStable(out, func(i, j int) bool {
			if keys[out[i]] != keys[out[j]] {
				return keys[out[i]] < keys[out[j]]
			}
			return out[i] < out[j]
		})
	} else {
		sort.Strings(out)
	}
	return out
}

func numericStem(path string) (int, bool) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return 0, false
	}
	for _, r := range stem {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(stem)
	if err != nil {
		return 0, false
	}
	return n, true
}

// PickAudio returns the largest candidate by size. Unreadable candidates are
// ignored.
func PickAudio(candidates []string) (string, error) {
	best := ""
	var bestSize int64 = -1
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = p, info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: no audio track found", models.ErrInput)
	}
	return best, nil
}

// CollectAssets walks root for .mp3 narration candidates and images.
// Files with an unknown extension are kept as images when their content
// sniffs as one.
func CollectAssets(root string) (audio []string, images []string, err error) {
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		switch {
		case ext == ".mp3":
			audio = append(audio, path)
		case imageExts[ext]:
			images = append(images, path)
		case ext == ".zip":
		default:
			if sniffImage(path) {
				images = append(images, path)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return audio, images, nil
}

// ResolveTree collects and resolves the assets under root.
func ResolveTree(root string) (Resolved, error) {
	audio, images, err := CollectAssets(root)
	if err != nil {
		return Resolved{}, err
	}
	if len(images) == 0 {
		return Resolved{}, fmt.Errorf("%w: no images found in folder", models.ErrInput)
	}
	if len(audio) == 0 {
		return Resolved{}, fmt.Errorf("%w: no .mp3 audio found in folder", models.ErrInput)
	}
	return ResolveInputs(audio, images)
}

func sniffImage(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n == 0 {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(buf[:n]), "image/")
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
