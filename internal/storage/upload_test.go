package storage

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func makeMultipartFile(t *testing.T, filename string, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, "http://example/upload", &b)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	if err := req.ParseMultipartForm(int64(len(b.Bytes())) + 1024); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}
	fhs := req.MultipartForm.File["file"]
	if len(fhs) == 0 {
		t.Fatalf("no fileheaders parsed")
	}
	if contentType != "" {
		fhs[0].Header.Set("Content-Type", contentType)
	}
	return fhs[0]
}

func TestUploader_SaveKeepsName(t *testing.T) {
	up := NewUploader(t.TempDir())
	dir, err := up.Dir("job-1")
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}

	fh := makeMultipartFile(t, "10.png", "image/png", []byte("pngdata"))
	path, err := up.Save(fh, dir, KindImage, 1024)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "10.png" {
		t.Fatalf("expected original name to survive, got %s", path)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("file not stored under job dir: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "pngdata" {
		t.Fatalf("unexpected content %q (%v)", data, err)
	}
}

func TestUploader_SaveByContentType(t *testing.T) {
	up := NewUploader(t.TempDir())
	dir, _ := up.Dir("job-2")

	fh := makeMultipartFile(t, "narration", "audio/mpeg", []byte("mp3"))
	path, err := up.Save(fh, dir, KindAudio, 1024)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Ext(path) != ".mp3" {
		t.Fatalf("expected .mp3 extension, got %s", path)
	}
}

func TestUploader_RejectsWrongKind(t *testing.T) {
	up := NewUploader(t.TempDir())
	dir, _ := up.Dir("job-3")

	fh := makeMultipartFile(t, "notes.txt", "text/plain", []byte("hello"))
	if _, err := up.Save(fh, dir, KindSubtitle, 1024); err == nil {
		t.Fatalf("expected error for .txt subtitle")
	}
	fh = makeMultipartFile(t, "0.png", "image/png", []byte("png"))
	if _, err := up.Save(fh, dir, KindAudio, 1024); err == nil {
		t.Fatalf("expected error for image uploaded as audio")
	}
}

func TestUploader_SizeLimit(t *testing.T) {
	up := NewUploader(t.TempDir())
	dir, _ := up.Dir("job-4")

	fh := makeMultipartFile(t, "big.srt", "", bytes.Repeat([]byte("x"), 64))
	if _, err := up.Save(fh, dir, KindSubtitle, 16); err == nil {
		t.Fatalf("expected size limit error")
	}
	if _, err := os.Stat(filepath.Join(dir, "big.srt")); !os.IsNotExist(err) {
		t.Fatalf("oversized upload should be removed, stat err=%v", err)
	}
}

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.png", "0.png"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\1.jpg`, "1.jpg"},
		{"my photo (1).png", "my_photo_1.png"},
		{"...", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SecureFilename(tt.in); got != tt.want {
			t.Errorf("SecureFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
