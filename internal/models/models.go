package models

import (
	"fmt"
	"strings"
	"time"
)

// Enums
type TaskStatus string

const (
	TaskStatusStarting   TaskStatus = "starting"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

type StepState string

const (
	StepPending    StepState = "pending"
	StepInProgress StepState = "in_progress"
	StepDone       StepState = "done"
	StepError      StepState = "error"
)

type AspectRatio string

const (
	AspectVertical   AspectRatio = "9:16"
	AspectWidescreen AspectRatio = "16:9"
)

// Dimensions returns the output pixel size for the aspect ratio.
func (a AspectRatio) Dimensions() (width, height int) {
	if a == AspectWidescreen {
		return 1920, 1080
	}
	return 1080, 1920
}

// Tag is a filesystem-safe form of the ratio, e.g. "9x16".
func (a AspectRatio) Tag() string {
	return strings.ReplaceAll(string(a), ":", "x")
}

// CaptionSource selects where caption timing comes from.
type CaptionSource string

const (
	CaptionSourceNone       CaptionSource = "none"
	CaptionSourceSubtitle   CaptionSource = "subtitle"
	CaptionSourceTranscribe CaptionSource = "transcribe"
)

// Step keys, in declaration order.
const (
	StepKeyFetch     = "fetch"
	StepKeyStructure = "structure"
	StepKeyDownload  = "download"
	StepKeyInit      = "init"
	StepKeyDurations = "durations"
	StepKeyImages    = "images"
	StepKeyAssemble  = "assemble"
	StepKeySubtitles = "subtitles"
	StepKeyExport    = "export"
	StepKeyCleanup   = "cleanup"
)

// Models

type Step struct {
	Key   string    `json:"key"`
	Label string    `json:"label"`
	State StepState `json:"state"`
}

// PipelineSteps is the fixed step list every job declares at start.
func PipelineSteps() []Step {
	return []Step{
		{Key: StepKeyInit, Label: "Initialize", State: StepInProgress},
		{Key: StepKeyDurations, Label: "Calculate Durations", State: StepPending},
		{Key: StepKeyImages, Label: "Process Images", State: StepPending},
		{Key: StepKeyAssemble, Label: "Assemble Clips", State: StepPending},
		{Key: StepKeySubtitles, Label: "Generate Subtitles", State: StepPending},
		{Key: StepKeyExport, Label: "Export Video", State: StepPending},
		{Key: StepKeyCleanup, Label: "Cleanup", State: StepPending},
	}
}

// FolderIntakeSteps precede PipelineSteps for folder-based jobs.
func FolderIntakeSteps() []Step {
	return []Step{
		{Key: StepKeyFetch, Label: "Retrieving folder contents", State: StepPending},
		{Key: StepKeyStructure, Label: "Building directory structure", State: StepPending},
		{Key: StepKeyDownload, Label: "Downloading", State: StepPending},
	}
}

type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Status         TaskStatus `json:"status"`
	Logs           []string   `json:"logs"`
	Progress       int        `json:"progress"`
	Steps          []Step     `json:"steps"`
	ExportProgress *int       `json:"export_progress,omitempty"`
	ResultLocation *string    `json:"result_location,omitempty"`
	ResultURL      *string    `json:"result_url,omitempty"` // remote mirror, when configured
	OutputPath     string     `json:"output_path,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Logs = append([]string(nil), t.Logs...)
	c.Steps = append([]Step(nil), t.Steps...)
	if t.ExportProgress != nil {
		v := *t.ExportProgress
		c.ExportProgress = &v
	}
	if t.ResultLocation != nil {
		v := *t.ResultLocation
		c.ResultLocation = &v
	}
	if t.ResultURL != nil {
		v := *t.ResultURL
		c.ResultURL = &v
	}
	return &c
}

// Step returns the step with the given key, if declared.
func (t *Task) Step(key string) (Step, bool) {
	for _, s := range t.Steps {
		if s.Key == key {
			return s, true
		}
	}
	return Step{}, false
}

// IsTerminal reports whether the task finished, successfully or not.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusError
}

// DTOs for API responses

type StatusResponse struct {
	Status         TaskStatus `json:"status"`
	Logs           []string   `json:"logs"`
	Progress       int        `json:"progress"`
	Steps          []Step     `json:"steps"`
	ExportProgress *int       `json:"export_progress,omitempty"`
	ResultLocation *string    `json:"video_url,omitempty"`
	ResultURL      *string    `json:"mirror_url,omitempty"`
}

// NewStatusResponse projects a task snapshot onto the public status shape.
func NewStatusResponse(t *Task) StatusResponse {
	return StatusResponse{
		Status:         t.Status,
		Logs:           t.Logs,
		Progress:       t.Progress,
		Steps:          t.Steps,
		ExportProgress: t.ExportProgress,
		ResultLocation: t.ResultLocation,
		ResultURL:      t.ResultURL,
	}
}

type SubmitResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// JobRequest carries the user facing job options, from form fields or JSON.
type JobRequest struct {
	FolderURL              string   `json:"folder_url,omitempty"`
	ProjectTitle           string   `json:"project_title"`
	Font                   string   `json:"font,omitempty"`
	FontColor              string   `json:"font_color,omitempty"`
	FontSize               *int     `json:"font_size,omitempty"`
	PositionVertical       *float64 `json:"position_vertical,omitempty"` // percent from bottom, 0..100
	CaptionAuto            bool     `json:"caption_auto"`
	AspectRatio            string   `json:"aspect_ratio,omitempty"`
	TransitionDuration     *float64 `json:"transition_duration,omitempty"`
	BackgroundMusicEnabled *bool    `json:"background_music_enabled,omitempty"`
	BackgroundMusicLevel   *int     `json:"background_music_level,omitempty"`
}

// Options maps the request onto job options. Assets and paths are filled in
// by the caller.
func (r JobRequest) Options() JobOptions {
	o := JobOptions{
		Title:                  r.ProjectTitle,
		FolderURL:              r.FolderURL,
		Font:                   r.Font,
		FontColor:              r.FontColor,
		FontSize:               r.FontSize,
		AutoCaptions:           r.CaptionAuto,
		AspectRatio:            r.AspectRatio,
		TransitionDuration:     r.TransitionDuration,
		BackgroundMusicEnabled: r.BackgroundMusicEnabled,
		BackgroundMusicLevel:   r.BackgroundMusicLevel,
	}
	if r.PositionVertical != nil {
		p := *r.PositionVertical / 100.0
		o.CaptionPercent = &p
	}
	return o
}

type JobSummary struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Status         TaskStatus `json:"status"`
	Progress       int        `json:"progress"`
	ResultLocation *string    `json:"video_url,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type ListJobsResponse struct {
	Jobs   []JobSummary `json:"jobs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s StepState) String() string { return string(s) }

func (s TaskStatus) String() string { return string(s) }

// ParseAspectRatio accepts "9:16" and "16:9"; anything else is vertical.
func ParseAspectRatio(s string) AspectRatio {
	switch strings.TrimSpace(s) {
	case string(AspectWidescreen), "16x9":
		return AspectWidescreen
	default:
		return AspectVertical
	}
}

func (c CaptionSource) Validate() error {
	switch c {
	case CaptionSourceNone, CaptionSourceSubtitle, CaptionSourceTranscribe:
		return nil
	}
	return fmt.Errorf("%w: unknown caption source %q", ErrInput, string(c))
}
