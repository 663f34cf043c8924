package storage

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind is the role of an uploaded file.
type Kind string

const (
	KindAudio    Kind = "audio"
	KindImage    Kind = "image"
	KindSubtitle Kind = "subtitle"
)

var allowedExtensions = map[Kind]map[string]bool{
	KindAudio:    {".mp3": true, ".wav": true, ".m4a": true, ".aac": true, ".ogg": true},
	KindImage:    {".jpg": true, ".jpeg": true, ".png": true, ".webp": true},
	KindSubtitle: {".srt": true},
}

var mimeExtensions = map[string]string{
	"audio/mpeg": ".mp3",
	"audio/mp3":  ".mp3",
	"audio/wav":  ".wav",
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// Uploader stores job uploads on disk, one directory per job.
type Uploader struct {
	baseDir string
}

func NewUploader(baseDir string) *Uploader {
	return &Uploader{baseDir: baseDir}
}

// Dir returns (and creates) the upload directory of a job.
func (u *Uploader) Dir(jobID string) (string, error) {
	dir := filepath.Join(u.baseDir, SecureFilename(jobID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure uploads dir: %w", err)
	}
	return dir, nil
}

// Save validates and stores an uploaded file under dir. The sanitized
// original name is kept so numeric image ordering survives the upload.
func (u *Uploader) Save(fileHeader *multipart.FileHeader, dir string, kind Kind, maxBytes int64) (string, error) {
	if fileHeader == nil {
		return "", fmt.Errorf("no file provided")
	}

	ext, err := pickExtension(fileHeader, kind)
	if err != nil {
		return "", err
	}

	name := SecureFilename(fileHeader.Filename)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == "" {
		stem = string(kind)
	}
	dstPath := filepath.Join(dir, stem+ext)

	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	n, err := io.Copy(dst, io.LimitReader(src, maxBytes+1))
	if err != nil {
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("copy upload: %w", err)
	}
	if n > maxBytes {
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("%s exceeds %d bytes", fileHeader.Filename, maxBytes)
	}
	return dstPath, nil
}

func pickExtension(fileHeader *multipart.FileHeader, kind Kind) (string, error) {
	allowed, ok := allowedExtensions[kind]
	if !ok {
		return "", fmt.Errorf("unknown upload kind %q", kind)
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if allowed[ext] {
		return ext, nil
	}

	// Some clients strip the extension; fall back to the declared type.
	mimeType := strings.TrimSpace(fileHeader.Header.Get("Content-Type"))
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		if e, ok := mimeExtensions[strings.ToLower(mt)]; ok && allowed[e] {
			return e, nil
		}
	}
	return "", fmt.Errorf("unsupported %s file: %s", kind, fileHeader.Filename)
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SecureFilename reduces a client supplied name to a safe base name.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.FromSlash(name))
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	if name == "" || name == "." {
		return ""
	}
	return name
}
