package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bobarin/reelmaker/internal/models"
	"github.com/bobarin/reelmaker/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// JobService is the job surface the handlers drive.
type JobService interface {
	Submit(ctx context.Context, o models.JobOptions) (string, error)
	Status(ctx context.Context, id string) (*models.Task, error)
	FetchResult(ctx context.Context, id string) (string, error)
	List(ctx context.Context) ([]*models.Task, error)
}

// HandlerOptions are request limits and per-job defaults.
type HandlerOptions struct {
	MaxUploadBytes   int64
	TranscriptionKey string
}

type Handler struct {
	jobs     JobService
	uploader *storage.Uploader
	opts     HandlerOptions
}

func NewHandler(jobs JobService, uploader *storage.Uploader, opts HandlerOptions) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 512 << 20
	}
	return &Handler{jobs: jobs, uploader: uploader, opts: opts}
}

// CreateJob handles POST /v1/jobs (multipart: audio, images[], optional srt)
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Upload is too large")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := parseJobForm(r.MultipartForm.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	audio := r.MultipartForm.File["audio"]
	images := r.MultipartForm.File["images"]
	if len(audio) == 0 || len(images) == 0 {
		respondError(w, http.StatusBadRequest, "Audio and image files are required.")
		return
	}

	dir, err := h.uploader.Dir(uuid.NewString())
	if err != nil {
		log.Printf("[API] Failed to create upload dir: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to store uploads")
		return
	}

	opts := req.Options()
	opts.TempDirs = []string{dir}
	if opts.AutoCaptions {
		opts.TranscriptionKey = h.opts.TranscriptionKey
	}

	if err := h.saveUploads(&opts, dir, audio[0], images, r.MultipartForm.File["srt"]); err != nil {
		os.RemoveAll(dir)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.submit(w, r, opts)
}

func (h *Handler) saveUploads(opts *models.JobOptions, dir string, audio *multipart.FileHeader, images, srt []*multipart.FileHeader) error {
	var err error
	opts.AudioPath, err = h.uploader.Save(audio, dir, storage.KindAudio, h.opts.MaxUploadBytes)
	if err != nil {
		return err
	}

	for _, fh := range images {
		if fh.Filename == "" {
			continue
		}
		p, err := h.uploader.Save(fh, dir, storage.KindImage, h.opts.MaxUploadBytes)
		if err != nil {
			return err
		}
		opts.ImagePaths = append(opts.ImagePaths, p)
	}

	if len(srt) > 0 && srt[0].Filename != "" {
		opts.SubtitlePath, err = h.uploader.Save(srt[0], dir, storage.KindSubtitle, h.opts.MaxUploadBytes)
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateFolderJob handles POST /v1/jobs/folder
func (h *Handler) CreateFolderJob(w http.ResponseWriter, r *http.Request) {
	var req models.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.FolderURL) == "" {
		respondError(w, http.StatusBadRequest, "folder_url is required")
		return
	}

	opts := req.Options()
	if opts.AutoCaptions {
		opts.TranscriptionKey = h.opts.TranscriptionKey
	}
	h.submit(w, r, opts)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, opts models.JobOptions) {
	id, err := h.jobs.Submit(r.Context(), opts)
	if err != nil {
		if errors.Is(err, models.ErrInput) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[API] Failed to submit job: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to start job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.SubmitResponse{
		Status:  "success",
		Message: "Video generation started!",
		TaskID:  id,
	})
}

// ListJobs handles GET /v1/jobs
// Query params:
//   - status: filter by task status (starting, processing, completed, error)
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	statusFilter := models.TaskStatus(r.URL.Query().Get("status"))
	switch statusFilter {
	case "", models.TaskStatusStarting, models.TaskStatusProcessing,
		models.TaskStatusCompleted, models.TaskStatusError:
	default:
		respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: starting, processing, completed, error")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	all, err := h.jobs.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	var matched []*models.Task
	for _, t := range all {
		if statusFilter == "" || t.Status == statusFilter {
			matched = append(matched, t)
		}
	}

	summaries := make([]models.JobSummary, 0, limit)
	for i := offset; i < len(matched) && len(summaries) < limit; i++ {
		t := matched[i]
		summaries = append(summaries, models.JobSummary{
			ID:             t.ID,
			Title:          t.Title,
			Status:         t.Status,
			Progress:       t.Progress,
			ResultLocation: t.ResultLocation,
			CreatedAt:      t.CreatedAt,
			UpdatedAt:      t.UpdatedAt,
		})
	}

	respondJSON(w, http.StatusOK, models.ListJobsResponse{
		Jobs:   summaries,
		Total:  len(matched),
		Limit:  limit,
		Offset: offset,
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	task, err := h.jobs.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Task not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to get task")
		return
	}

	respondJSON(w, http.StatusOK, models.NewStatusResponse(task))
}

// DownloadJob handles GET /v1/jobs/{id}/download
func (h *Handler) DownloadJob(w http.ResponseWriter, r *http.Request) {
	path, err := h.jobs.FetchResult(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, models.ErrNotReady):
		respondError(w, http.StatusBadRequest, "Video not ready for download")
		return
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, "Task not found")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "Failed to get video")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, path)
}

// parseJobForm reads the job options from multipart form fields.
func parseJobForm(values map[string][]string) (models.JobRequest, error) {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := values[k]; len(v) > 0 && strings.TrimSpace(v[0]) != "" {
				return strings.TrimSpace(v[0])
			}
		}
		return ""
	}

	req := models.JobRequest{
		ProjectTitle: get("project_title"),
		Font:         get("font"),
		FontColor:    get("font_color"),
		AspectRatio:  get("aspect_ratio"),
		CaptionAuto:  models.ParseCheckbox(get("caption_auto")),
	}

	if v := get("font_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("font_size must be an integer")
		}
		req.FontSize = &n
	}
	// "position" is the older name of the vertical slider
	if v := get("position_vertical", "position"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("position_vertical must be a number")
		}
		req.PositionVertical = &f
	}
	if v := get("transition_duration"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("transition_duration must be a number")
		}
		req.TransitionDuration = &f
	}
	if v := get("background_music_enabled"); v != "" {
		b := models.ParseCheckbox(v)
		req.BackgroundMusicEnabled = &b
	}
	if v := get("background_music_level"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("background_music_level must be an integer")
		}
		req.BackgroundMusicLevel = &n
	}
	return req, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
