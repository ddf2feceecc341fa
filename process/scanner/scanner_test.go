package scanner

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"formscan/pkg/form"
)

type fakeExtractor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) (*form.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filepath.Base(path)
	f.calls = append(f.calls, name)
	if f.fail[name] {
		return nil, errors.New("anchor not found")
	}
	return &form.Result{Source: path, Columns: []string{"Meter Date"}, Values: map[string]string{"Meter Date": "2020-03-15"}}, nil
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestIsSupportedExt(t *testing.T) {
	cases := map[string]bool{
		"Image_1.jpg":      true,
		"scan.PNG":         true,
		"page.tiff":        true,
		"notes.txt":        false,
		"Image_1.prep.png": false,
		"meter.crop.png":   false,
		".hidden.jpg":      false,
	}
	for name, want := range cases {
		if got := IsSupportedExt(name); got != want {
			t.Fatalf("IsSupportedExt(%q): expected %v got %v", name, want, got)
		}
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.jpg", "a.png", "readme.md")
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !slices.Equal(got, []string{"a.png", "b.jpg"}) {
		t.Fatalf("unexpected files %v", got)
	}
	if _, err := ListImageFiles(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestDryRun(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "form_1.jpg", "form_2.jpg", "form_3.jpg")
	ex := &fakeExtractor{fail: map[string]bool{"form_2.jpg": true}}
	s := New(dir, ex, nil)
	s.DryRun = true
	s.Workers = 2
	var mu sync.Mutex
	var seen []string
	s.OnResult = func(name string, res *form.Result) {
		mu.Lock()
		seen = append(seen, name)
		mu.Unlock()
	}
	if err := s.Preload(context.Background()); err != nil {
		t.Fatalf("preload: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.Stats.Processed.Load() != 2 || s.Stats.Failed.Load() != 1 {
		t.Fatalf("unexpected stats processed=%d failed=%d", s.Stats.Processed.Load(), s.Stats.Failed.Load())
	}
	slices.Sort(seen)
	if !slices.Equal(seen, []string{"form_1.jpg", "form_3.jpg"}) {
		t.Fatalf("unexpected results %v", seen)
	}
	// dry run leaves the inputs where they are
	if left, _ := ListImageFiles(dir); len(left) != 3 {
		t.Fatalf("expected inputs untouched, got %v", left)
	}
}

func TestSkipsKnownFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "form_1.jpg", "form_2.jpg")
	ex := &fakeExtractor{}
	s := New(dir, ex, nil)
	s.DryRun = true
	s.state.put("form_1.jpg")
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(ex.calls, []string{"form_2.jpg"}) || s.Stats.Skipped.Load() != 1 {
		t.Fatalf("expected only form_2 extracted, calls=%v skipped=%d", ex.calls, s.Stats.Skipped.Load())
	}
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "form_1.jpg")
	ex := &fakeExtractor{}
	s := New(dir, ex, nil)
	s.DryRun = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled got %v", err)
	}
	if len(ex.calls) != 0 {
		t.Fatalf("no file should be extracted after cancel, got %v", ex.calls)
	}
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, &fakeExtractor{}, nil)
	s.DryRun = true
	got := make(chan string, 8)
	s.OnResult = func(name string, res *form.Result) { got <- name }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Watch(ctx) }()

	// give the watcher time to register
	time.Sleep(200 * time.Millisecond)
	touch(t, dir, "late.jpg", "ignored.txt")

	select {
	case name := <-got:
		if name != "late.jpg" {
			t.Fatalf("unexpected file %s", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not pick up new file")
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("watch: %v", err)
	}
}

func TestNewProcessedDir(t *testing.T) {
	s := New(filepath.Join("public", "forms"), nil, nil)
	if s.ProcessedDir != filepath.Join("public", "processed") {
		t.Fatalf("unexpected processed dir %s", s.ProcessedDir)
	}
}

func TestMoveToProcessed(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "processed")
	touch(t, src, "a.jpg")
	if err := MoveToProcessed(filepath.Join(src, "a.jpg"), dst, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "a.jpg")); err != nil {
		t.Fatalf("expected moved file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(src, "a.jpg")); !os.IsNotExist(err) {
		t.Fatalf("expected source removed, got %v", err)
	}
}

func TestMoveToProcessedDownsizes(t *testing.T) {
	src := filepath.Join(t.TempDir(), "noise.png")
	img := image.NewNRGBA(image.Rect(0, 0, 300, 200))
	rng := rand.New(rand.NewSource(1))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			img.Pix[img.PixOffset(x, y)+3] = 255
		}
	}
	if err := imaging.Save(img, src); err != nil {
		t.Fatalf("save: %v", err)
	}
	dst := t.TempDir()
	if err := MoveToProcessed(src, dst, 20_000); err != nil {
		t.Fatalf("move: %v", err)
	}
	out, err := imaging.Open(filepath.Join(dst, "noise.png"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if out.Bounds().Dx() >= 300 {
		t.Fatalf("expected downsized image, got %v", out.Bounds())
	}
}
