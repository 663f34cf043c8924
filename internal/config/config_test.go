package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TASK_STORE", "")
	t.Setenv("RENDER_PROFILE_PATH", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_SERVICE_KEY", "")
	t.Setenv("MAX_UPLOAD_MB", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TaskStore != StoreMemory {
		t.Errorf("expected memory store, got %s", cfg.TaskStore)
	}
	if cfg.MaxUploadBytes() != 512<<20 {
		t.Errorf("unexpected upload limit %d", cfg.MaxUploadBytes())
	}
	if cfg.MirrorEnabled() {
		t.Errorf("mirror should be off without Supabase settings")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{TaskStore: StoreMemory, MaxUploadMB: 1}, false},
		{"postgres without url", Config{TaskStore: StorePostgres, MaxUploadMB: 1}, true},
		{"postgres", Config{TaskStore: StorePostgres, DatabaseURL: "postgres://x", MaxUploadMB: 1}, false},
		{"unknown store", Config{TaskStore: "sqlite", MaxUploadMB: 1}, true},
		{"half supabase", Config{TaskStore: StoreMemory, MaxUploadMB: 1, SupabaseURL: "https://x"}, true},
		{"zero upload", Config{TaskStore: StoreMemory}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRenderProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	content := `fps: 30
videoCodec: libx265
threads: 8
defaultTransition: 0.5
zoomFactor: 0.15
widescreenFontSize: 64
musicLevels: [2, 4, 6]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadRenderProfile(path)
	if err != nil {
		t.Fatalf("LoadRenderProfile: %v", err)
	}
	if p.FPS != 30 || p.VideoCodec != "libx265" || p.Threads != 8 {
		t.Errorf("unexpected encoder settings %+v", p)
	}
	if p.ZoomFactor != 0.15 || p.WidescreenFontSize != 64 || p.DefaultTransition != 0.5 {
		t.Errorf("unexpected render settings %+v", p)
	}
	if len(p.MusicLevels) != 3 || p.MusicLevels[2] != 6 {
		t.Errorf("unexpected music levels %v", p.MusicLevels)
	}
}

func TestLoadRenderProfileErrors(t *testing.T) {
	if p, err := LoadRenderProfile(""); err != nil || p.FPS != 0 {
		t.Errorf("empty path should give zero profile, got %+v, %v", p, err)
	}
	if _, err := LoadRenderProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("zoomFactor: 3\n"), 0644)
	if _, err := LoadRenderProfile(path); err == nil {
		t.Error("expected validation error for zoomFactor")
	}
}
