package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/reelmaker/internal/api"
	"github.com/bobarin/reelmaker/internal/composition"
	"github.com/bobarin/reelmaker/internal/config"
	"github.com/bobarin/reelmaker/internal/models"
	"github.com/bobarin/reelmaker/internal/services"
	"github.com/bobarin/reelmaker/internal/storage"
	"github.com/bobarin/reelmaker/internal/tasks"
	"github.com/bobarin/reelmaker/internal/worker"
)

// Redis keeps finished task records this long.
const redisTaskTTL = 7 * 24 * time.Hour

func main() {
	log.Println("Starting Reelmaker API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open task store: %v", err)
	}
	defer store.Close()

	ffmpegSvc, err := services.NewFFmpegService(cfg.ScratchDir)
	if err != nil {
		log.Fatalf("Failed to initialize ffmpeg: %v", err)
	}

	profile := cfg.Profile
	if len(profile.MusicLevels) > 0 {
		models.MusicLevels = profile.MusicLevels
	}

	deps := worker.Deps{
		Store:       store,
		Prober:      ffmpegSvc,
		Cropper:     ffmpegSvc,
		Encoder:     ffmpegSvc,
		Transcriber: services.NewWhisperTranscriber(),
		Fetcher:     storage.NewFetcher(cfg.GoogleAPIKey),
	}
	if cfg.MirrorEnabled() {
		deps.Mirror = storage.NewRemote(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		log.Printf("Mirroring results to Supabase bucket %s", cfg.SupabaseStorageBucket)
	}
	if cfg.OpenAIKey == "" {
		log.Println("WARNING: No OPENAI_API_KEY set, auto captions will be skipped")
	}

	w := worker.New(deps, worker.Options{
		OutputDir:  cfg.OutputDir,
		ScratchDir: cfg.ScratchDir,
		Encode: services.EncodeOptions{
			VideoCodec: profile.VideoCodec,
			AudioCodec: profile.AudioCodec,
			FPS:        profile.FPS,
			Threads:    profile.Threads,
		},
		Render: composition.Settings{
			FPS:                profile.FPS,
			ZoomFactor:         profile.ZoomFactor,
			WidescreenFontSize: profile.WidescreenFontSize,
		},
		DefaultTransition:   profile.DefaultTransition,
		BackgroundMusicPath: cfg.BackgroundMusicPath,
		ClosingClips: map[models.AspectRatio]string{
			models.AspectVertical:   cfg.ClosingClipVertical,
			models.AspectWidescreen: cfg.ClosingClipWidescreen,
		},
		CropConcurrency: cfg.CropConcurrency,
	})

	handler := api.NewHandler(w, storage.NewUploader(cfg.UploadDir), api.HandlerOptions{
		MaxUploadBytes:   cfg.MaxUploadBytes(),
		TranscriptionKey: cfg.OpenAIKey,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Running jobs cannot be cancelled; let them finish.
	log.Println("Waiting for running jobs...")
	w.Wait()

	log.Println("Server exited")
}

func openStore(cfg *config.Config) (tasks.Store, error) {
	switch cfg.TaskStore {
	case config.StoreRedis:
		s, err := tasks.NewRedisStore(cfg.RedisURL, redisTaskTTL)
		if err != nil {
			return nil, err
		}
		log.Println("Task store: redis")
		return s, nil
	case config.StorePostgres:
		s, err := tasks.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Println("Task store: postgres")
		return s, nil
	default:
		log.Println("Task store: memory")
		return tasks.NewMemoryStore(), nil
	}
}
