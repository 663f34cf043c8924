package storage

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/bobarin/reelmaker/internal/assets"
)

func TestFetcher_ListPlainLink(t *testing.T) {
	f := NewFetcher("")
	files, err := f.List(context.Background(), "https://example.com/share/My%20Assets.zip")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 || files[0].Path != "My_Assets.zip" {
		t.Fatalf("unexpected listing %+v", files)
	}

	if _, err := f.List(context.Background(), "ftp://example.com/x"); err == nil {
		t.Error("expected error for non-http link")
	}
	if _, err := f.List(context.Background(), "https://drive.google.com/drive/folders/abc"); err == nil {
		t.Error("expected error for drive folder without api key")
	}
}

func TestFetcher_ListDriveFile(t *testing.T) {
	f := NewFetcher("").WithDriveEndpoints("http://api", "http://dl")
	files, err := f.List(context.Background(), "https://drive.google.com/file/d/FILE_1/view?usp=sharing")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 || files[0].ID != "FILE_1" {
		t.Fatalf("unexpected listing %+v", files)
	}
	if files[0].URL != "http://dl?id=FILE_1&export=download&confirm=t" {
		t.Errorf("unexpected download url %s", files[0].URL)
	}
}

func driveServer(t *testing.T) *httptest.Server {
	t.Helper()
	listing := map[string]string{
		"ROOT": `{"files":[
			{"id":"SUB","name":"images","mimeType":"application/vnd.google-apps.folder"},
			{"id":"DOC","name":"notes","mimeType":"application/vnd.google-apps.document"},
			{"id":"VOICE","name":"voice.mp3","mimeType":"audio/mpeg","size":"5"}]}`,
		"SUB": `{"files":[{"id":"IMG","name":"0.png","mimeType":"image/png","size":"3"}]}`,
	}
	content := map[string]string{"VOICE": "audio", "IMG": "png"}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k" {
			http.Error(w, "no key", http.StatusForbidden)
			return
		}
		if r.URL.Path == "/files" {
			for id, body := range listing {
				if strings.Contains(r.URL.Query().Get("q"), "'"+id+"'") {
					w.Write([]byte(body))
					return
				}
			}
			json.NewEncoder(w).Encode(map[string]any{"files": []any{}})
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/files/")
		if body, ok := content[id]; ok && r.URL.Query().Get("alt") == "media" {
			w.Write([]byte(body))
			return
		}
		http.NotFound(w, r)
	}))
}

func TestFetcher_DriveFolder(t *testing.T) {
	srv := driveServer(t)
	defer srv.Close()

	f := NewFetcher("k").WithDriveEndpoints(srv.URL, srv.URL+"/download")
	files, err := f.List(context.Background(), "https://drive.google.com/drive/folders/ROOT?usp=sharing")
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	var paths []string
	for _, rf := range files {
		paths = append(paths, rf.Path)
	}
	sort.Strings(paths)
	if strings.Join(paths, ",") != "images/0.png,voice.mp3" {
		t.Fatalf("unexpected paths %v", paths)
	}

	dest := t.TempDir()
	for _, rf := range files {
		target := filepath.Join(dest, filepath.FromSlash(rf.Path))
		os.MkdirAll(filepath.Dir(target), 0755)
		if err := f.Download(context.Background(), rf, target); err != nil {
			t.Fatalf("Download %s: %v", rf.Path, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(dest, "images", "0.png"))
	if err != nil || string(data) != "png" {
		t.Fatalf("unexpected downloaded image %q (%v)", data, err)
	}
}

func TestFetcher_DownloadNamesArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("0.png")
	w.Write([]byte("png"))
	zw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "FILE_1")
	f := NewFetcher("")
	if err := f.Download(context.Background(), assets.RemoteFile{ID: "FILE_1", URL: srv.URL}, dest); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if _, err := os.Stat(dest + ".zip"); err != nil {
		t.Fatalf("expected sniffed .zip extension: %v", err)
	}
}

func TestFetcher_DownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "x.zip")
	err := NewFetcher("").Download(context.Background(), assets.RemoteFile{URL: srv.URL}, dest)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, statErr := os.Stat(dest + ".part"); !os.IsNotExist(statErr) {
		t.Error("partial file should be removed")
	}
}
