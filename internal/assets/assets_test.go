package assets

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bobarin/reelmaker/internal/models"
)

// minimal PNG header, enough for content sniffing
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestOrderImagesNumeric(t *testing.T) {
	got := OrderImages([]string{"/u/0.png", "/u/10.png", "/u/2.png"})
	want := []string{"/u/0.png", "/u/2.png", "/u/10.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOrderImagesLexicographic(t *testing.T) {
	got := OrderImages([]string{"/u/b.png", "/u/a.png"})
	want := []string{"/u/a.png", "/u/b.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// one non-numeric name switches the whole set to path order
	got = OrderImages([]string{"/u/10.png", "/u/2.png", "/u/cover.png"})
	want = []string{"/u/10.png", "/u/2.png", "/u/cover.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOrderImagesDoesNotMutateInput(t *testing.T) {
	in := []string{"3.png", "1.png"}
	OrderImages(in)
	if in[0] != "3.png" {
		t.Errorf("input slice was reordered")
	}
}

func TestPickAudioLargest(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "intro.mp3")
	big := filepath.Join(dir, "narration.mp3")
	writeFile(t, small, make([]byte, 10))
	writeFile(t, big, make([]byte, 100))

	got, err := PickAudio([]string{small, big, filepath.Join(dir, "missing.mp3")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != big {
		t.Errorf("expected %s, got %s", big, got)
	}
}

func TestResolveInputsErrors(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "a.mp3")
	writeFile(t, audio, []byte("x"))

	if _, err := ResolveInputs([]string{audio}, nil); !errors.Is(err, models.ErrInput) {
		t.Errorf("expected ErrInput for no images, got %v", err)
	}
	if _, err := ResolveInputs(nil, []string{"0.png"}); !errors.Is(err, models.ErrInput) {
		t.Errorf("expected ErrInput for no audio, got %v", err)
	}

	res, err := ResolveInputs([]string{audio}, []string{"1.png", "0.png", "1.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(res.ImagePaths, []string{"0.png", "1.png"}) {
		t.Errorf("expected deduplicated ordered images, got %v", res.ImagePaths)
	}
}

func TestCollectAssets(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "voice.mp3"), []byte("audio"))
	writeFile(t, filepath.Join(root, "sub", "1.JPG"), []byte("jpg"))
	writeFile(t, filepath.Join(root, "sub", "0.webp"), []byte("webp"))
	writeFile(t, filepath.Join(root, "noext"), pngHeader)
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("plain text"))

	audio, images, err := CollectAssets(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audio) != 1 {
		t.Errorf("expected 1 audio file, got %v", audio)
	}
	if len(images) != 3 {
		t.Errorf("expected 3 images, got %v", images)
	}
}

func TestExtractZipsIgnoresBadArchives(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "broken.zip"), []byte("not a zip"))

	archive := filepath.Join(root, "good.zip")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("pics/0.png")
	w.Write(pngHeader)
	zw.Close()
	f.Close()

	n, err := ExtractZips(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 extracted archive, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(root, "pics", "0.png")); err != nil {
		t.Errorf("expected extracted file: %v", err)
	}
}

type mapFetcher struct {
	files   map[string][]byte
	listErr error
}

func (f *mapFetcher) List(_ context.Context, _ string) ([]RemoteFile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []RemoteFile
	for name, data := range f.files {
		out = append(out, RemoteFile{ID: name, Path: name, Size: int64(len(data))})
	}
	return out, nil
}

func (f *mapFetcher) Download(_ context.Context, rf RemoteFile, dest string) error {
	return os.WriteFile(dest, f.files[rf.Path], 0644)
}

type recordingObserver struct{ events []string }

func (r *recordingObserver) StageStarted(s string) { r.events = append(r.events, "start:"+s) }
func (r *recordingObserver) StageFinished(s string, err error) {
	if err != nil {
		r.events = append(r.events, "fail:"+s)
		return
	}
	r.events = append(r.events, "done:"+s)
}

func TestResolveFromFolder(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "drive")
	f := &mapFetcher{files: map[string][]byte{
		"a/short.mp3": make([]byte, 5),
		"a/long.mp3":  make([]byte, 50),
		"img/2.png":   pngHeader,
		"img/10.png":  pngHeader,
		"img/1.jpeg":  pngHeader,
	}}
	obs := &recordingObserver{}

	res, err := ResolveFromFolder(context.Background(), f, "https://example.com/folder", dest, obs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(res.AudioPath) != "long.mp3" {
		t.Errorf("expected largest mp3, got %s", res.AudioPath)
	}
	var names []string
	for _, p := range res.ImagePaths {
		names = append(names, filepath.Base(p))
	}
	if !reflect.DeepEqual(names, []string{"1.jpeg", "2.png", "10.png"}) {
		t.Errorf("unexpected image order: %v", names)
	}

	want := []string{"start:fetch", "done:fetch", "start:structure", "done:structure", "start:download", "done:download"}
	if !reflect.DeepEqual(obs.events, want) {
		t.Errorf("expected stages %v, got %v", want, obs.events)
	}
}

func TestResolveFromFolderFetchError(t *testing.T) {
	f := &mapFetcher{listErr: errors.New("403")}
	_, err := ResolveFromFolder(context.Background(), f, "x", t.TempDir(), nil)
	if !errors.Is(err, models.ErrInput) {
		t.Errorf("expected ErrInput, got %v", err)
	}
}

func TestResolveFromFolderConfinesPaths(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "drive")
	f := &mapFetcher{files: map[string][]byte{
		"../../voice.mp3": make([]byte, 5),
		"0.png":           pngHeader,
	}}

	res, err := ResolveFromFolder(context.Background(), f, "x", dest, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(res.AudioPath) != dest {
		t.Errorf("expected audio inside %s, got %s", dest, res.AudioPath)
	}
}
