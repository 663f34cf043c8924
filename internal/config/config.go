package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Task store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	MaxUploadMB        int

	// Filesystem
	UploadDir  string
	OutputDir  string
	ScratchDir string

	// Task registry
	TaskStore   string // memory | redis | postgres
	RedisURL    string
	DatabaseURL string

	// OpenAI (Whisper word timestamps for auto captions)
	OpenAIKey string

	// Google Drive folder intake
	GoogleAPIKey string

	// Supabase result mirror, optional
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Shared assets
	BackgroundMusicPath   string
	ClosingClipVertical   string
	ClosingClipWidescreen string

	// Rendering
	RenderProfilePath string
	Profile           RenderProfile
	CropConcurrency   int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		MaxUploadMB:           getEnvInt("MAX_UPLOAD_MB", 512),
		UploadDir:             getEnv("UPLOAD_DIR", "uploads"),
		OutputDir:             getEnv("OUTPUT_DIR", "outputs"),
		ScratchDir:            getEnv("SCRATCH_DIR", "/tmp/reelmaker"),
		TaskStore:             strings.ToLower(getEnv("TASK_STORE", StoreMemory)),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		GoogleAPIKey:          getEnv("GOOGLE_API_KEY", ""),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "reelmaker-videos"),
		BackgroundMusicPath:   getEnv("BACKGROUND_MUSIC_PATH", "assets/music/music.mp3"),
		ClosingClipVertical:   getEnv("CLOSING_CLIP_VERTICAL", "resource/Thankyou 916.mp4"),
		ClosingClipWidescreen: getEnv("CLOSING_CLIP_WIDESCREEN", "resource/Thankyou169.mp4"),
		RenderProfilePath:     getEnv("RENDER_PROFILE_PATH", ""),
		CropConcurrency:       getEnvInt("CROP_CONCURRENCY", 4),
	}

	profile, err := LoadRenderProfile(cfg.RenderProfilePath)
	if err != nil {
		return nil, err
	}
	cfg.Profile = profile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.TaskStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when TASK_STORE=redis")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when TASK_STORE=postgres")
		}
	default:
		return fmt.Errorf("TASK_STORE must be one of memory, redis, postgres (got %q)", c.TaskStore)
	}

	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}
	return nil
}

// MirrorEnabled reports whether finished videos are copied to Supabase.
func (c *Config) MirrorEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// MaxUploadBytes is the multipart request limit.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
