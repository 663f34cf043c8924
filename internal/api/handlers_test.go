package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bobarin/reelmaker/internal/models"
	"github.com/bobarin/reelmaker/internal/storage"
)

type fakeJobs struct {
	submitted []models.JobOptions
	submitErr error
	tasks     map[string]*models.Task
	results   map[string]string
}

func (f *fakeJobs) Submit(_ context.Context, o models.JobOptions) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, o)
	return "task-1", nil
}

func (f *fakeJobs) Status(_ context.Context, id string) (*models.Task, error) {
	if t, ok := f.tasks[id]; ok {
		return t, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeJobs) FetchResult(_ context.Context, id string) (string, error) {
	t, ok := f.tasks[id]
	if !ok {
		return "", models.ErrNotFound
	}
	if t.Status != models.TaskStatusCompleted {
		return "", models.ErrNotReady
	}
	return f.results[id], nil
}

func (f *fakeJobs) List(context.Context) ([]*models.Task, error) {
	var out []*models.Task
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out, nil
}

func newTestRouter(t *testing.T, jobs *fakeJobs, apiKey string) (http.Handler, string) {
	t.Helper()
	uploads := t.TempDir()
	h := NewHandler(jobs, storage.NewUploader(uploads), HandlerOptions{
		MaxUploadBytes:   1 << 20,
		TranscriptionKey: "sk-default",
	})
	return NewRouter(h, RouterConfig{BackendAPIKey: apiKey}), uploads
}

type part struct {
	field, filename string
	content         []byte
}

func multipartBody(t *testing.T, fields map[string]string, files []part) (*bytes.Buffer, string) {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for _, p := range files {
		fw, err := w.CreateFormFile(p.field, p.filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(p.content)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &b, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, &fakeJobs{}, "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	jobs := &fakeJobs{tasks: map[string]*models.Task{"a": {ID: "a", Status: models.TaskStatusStarting}}}
	router, _ := newTestRouter(t, jobs, "secret")

	tests := []struct {
		name   string
		header map[string]string
		query  string
		want   int
	}{
		{"missing", nil, "", http.StatusUnauthorized},
		{"wrong", map[string]string{"X-API-Key": "nope"}, "", http.StatusForbidden},
		{"header", map[string]string{"X-API-Key": "secret"}, "", http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, "", http.StatusOK},
		{"query", nil, "?api_key=secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/jobs/a"+tt.query, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestCreateJob(t *testing.T) {
	jobs := &fakeJobs{}
	router, uploads := newTestRouter(t, jobs, "")

	body, ct := multipartBody(t, map[string]string{
		"project_title":          "Launch",
		"position":               "15",
		"caption_auto":           "on",
		"font_size":              "60",
		"aspect_ratio":           "16:9",
		"background_music_level": "8",
	}, []part{
		{"audio", "voice.mp3", []byte("mp3")},
		{"images", "1.png", []byte("png")},
		{"images", "0.png", []byte("png")},
		{"srt", "captions.srt", []byte("1\n00:00:00,000 --> 00:00:01,000\nHi\n")},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.SubmitResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TaskID != "task-1" || resp.Status != "success" {
		t.Errorf("unexpected response %+v", resp)
	}

	if len(jobs.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(jobs.submitted))
	}
	o := jobs.submitted[0]
	if o.Title != "Launch" || o.AspectRatio != "16:9" {
		t.Errorf("unexpected options %+v", o)
	}
	if o.CaptionPercent == nil || *o.CaptionPercent != 0.15 {
		t.Errorf("expected caption percent 0.15, got %v", o.CaptionPercent)
	}
	if o.FontSize == nil || *o.FontSize != 60 || o.BackgroundMusicLevel == nil || *o.BackgroundMusicLevel != 8 {
		t.Errorf("numeric fields not parsed: %+v", o)
	}
	if !o.AutoCaptions || o.TranscriptionKey != "sk-default" {
		t.Errorf("auto captions should carry the default key: %+v", o)
	}
	if o.BackgroundMusicEnabled != nil {
		t.Errorf("absent checkbox should keep the default")
	}
	if len(o.TempDirs) != 1 || !strings.HasPrefix(o.TempDirs[0], uploads) {
		t.Errorf("expected upload dir registered for cleanup, got %v", o.TempDirs)
	}
	for _, p := range append([]string{o.AudioPath, o.SubtitlePath}, o.ImagePaths...) {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected saved upload %s: %v", p, err)
		}
	}
	if len(o.ImagePaths) != 2 || filepath.Base(o.ImagePaths[0]) != "1.png" {
		t.Errorf("unexpected image paths %v", o.ImagePaths)
	}
}

func TestCreateJobValidation(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		files  []part
		err    error
	}{
		{"no images", nil, []part{{"audio", "a.mp3", []byte("x")}}, nil},
		{"bad font size", map[string]string{"font_size": "big"}, []part{{"audio", "a.mp3", []byte("x")}, {"images", "0.png", []byte("x")}}, nil},
		{"wrong audio type", nil, []part{{"audio", "a.txt", []byte("x")}, {"images", "0.png", []byte("x")}}, nil},
		{"rejected by worker", nil, []part{{"audio", "a.mp3", []byte("x")}, {"images", "0.png", []byte("x")}}, fmt.Errorf("%w: nope", models.ErrInput)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &fakeJobs{submitErr: tt.err}
			router, uploads := newTestRouter(t, jobs, "")
			body, ct := multipartBody(t, tt.fields, tt.files)
			req := httptest.NewRequest(http.MethodPost, "/v1/jobs", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if tt.err == nil {
				entries, _ := os.ReadDir(uploads)
				if len(entries) != 0 {
					t.Errorf("expected no leftover upload dirs, found %d", len(entries))
				}
			}
		})
	}
}

func TestCreateFolderJob(t *testing.T) {
	jobs := &fakeJobs{}
	router, _ := newTestRouter(t, jobs, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/folder",
		strings.NewReader(`{"folder_url":"https://drive.google.com/drive/folders/abc","project_title":"Drive","position_vertical":20}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	o := jobs.submitted[0]
	if o.FolderURL == "" || o.Title != "Drive" || *o.CaptionPercent != 0.2 {
		t.Errorf("unexpected options %+v", o)
	}
	if o.TranscriptionKey != "" {
		t.Errorf("key should only be attached when captions are requested")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/folder", strings.NewReader(`{"project_title":"x"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without folder_url, got %d", rec.Code)
	}
}

func TestGetJob(t *testing.T) {
	loc := "/v1/jobs/done/download"
	jobs := &fakeJobs{tasks: map[string]*models.Task{
		"done": {ID: "done", Status: models.TaskStatusCompleted, Progress: 100, Logs: []string{"ok"}, ResultLocation: &loc},
	}}
	router, _ := newTestRouter(t, jobs, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/done", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["status"] != "completed" || resp["video_url"] != loc {
		t.Errorf("unexpected body %v", resp)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDownloadJob(t *testing.T) {
	video := filepath.Join(t.TempDir(), "launch-abcd1234.mp4")
	os.WriteFile(video, []byte("mp4data"), 0644)

	jobs := &fakeJobs{
		tasks: map[string]*models.Task{
			"done":    {ID: "done", Status: models.TaskStatusCompleted},
			"running": {ID: "running", Status: models.TaskStatusProcessing},
		},
		results: map[string]string{"done": video},
	}
	router, _ := newTestRouter(t, jobs, "")

	tests := []struct {
		id   string
		want int
	}{
		{"done", http.StatusOK},
		{"running", http.StatusBadRequest},
		{"missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+tt.id+"/download", nil))
		if rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.id, tt.want, rec.Code)
		}
		if tt.want == http.StatusOK {
			if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "launch-abcd1234.mp4") {
				t.Errorf("unexpected Content-Disposition %q", cd)
			}
			if rec.Body.String() != "mp4data" {
				t.Errorf("unexpected body %q", rec.Body.String())
			}
		}
	}
}

func TestListJobs(t *testing.T) {
	now := time.Now()
	jobs := &fakeJobs{tasks: map[string]*models.Task{
		"a": {ID: "a", Status: models.TaskStatusCompleted, CreatedAt: now},
		"b": {ID: "b", Status: models.TaskStatusProcessing, CreatedAt: now},
		"c": {ID: "c", Status: models.TaskStatusCompleted, CreatedAt: now},
	}}
	router, _ := newTestRouter(t, jobs, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs?status=completed&limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp models.ListJobsResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Total != 2 || len(resp.Jobs) != 1 || resp.Limit != 1 {
		t.Errorf("unexpected page %+v", resp)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs?status=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad filter, got %d", rec.Code)
	}
}

var _ JobService = (*fakeJobs)(nil)
