package scanner

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"gorm.io/gorm"

	"formscan/models"
	"formscan/pkg/form"
)

// Extractor reads one form image.
type Extractor interface {
	Extract(ctx context.Context, path string) (*form.Result, error)
}

// Stats counts what a scan did with each file.
type Stats struct {
	Processed atomic.Int64
	Skipped   atomic.Int64
	Failed    atomic.Int64
}

// Scanner extracts every form image in Dir, stores one models.Extraction per
// file name and moves finished files to ProcessedDir. With DryRun it only
// extracts and logs; DB may then be nil.
type Scanner struct {
	Dir          string
	ProcessedDir string
	Workers      int
	DryRun       bool
	Verbose      bool
	UserID       *uint
	// ArchiveMaxBytes downsizes archived images larger than this; 0 keeps them as is.
	ArchiveMaxBytes int64

	Extractor Extractor
	DB        *gorm.DB
	// OnResult, when set, receives every successful extraction. It may be
	// called from several workers at once.
	OnResult func(name string, res *form.Result)

	Stats Stats
	state *preloadState
}

// New returns a Scanner for dir that archives into dir's sibling "processed".
func New(dir string, ex Extractor, db *gorm.DB) *Scanner {
	return &Scanner{
		Dir:          dir,
		ProcessedDir: filepath.Join(filepath.Dir(filepath.Clean(dir)), "processed"),
		Extractor:    ex,
		DB:           db,
		state:        newPreloadState(),
	}
}

// preloadState caches stored extractions by file name.
type preloadState struct {
	byFile map[string]bool
	mu     sync.RWMutex
}

func newPreloadState() *preloadState {
	return &preloadState{byFile: make(map[string]bool, 1024)}
}

func (ps *preloadState) has(name string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.byFile[name]
}

func (ps *preloadState) put(name string) {
	ps.mu.Lock()
	ps.byFile[name] = true
	ps.mu.Unlock()
}

func (ps *preloadState) len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.byFile)
}

func (s *Scanner) logV(format string, args ...any) {
	if s.Verbose {
		log.Printf(format, args...)
	}
}

func (s *Scanner) workers() int {
	if s.Workers <= 0 {
		return runtime.NumCPU()
	}
	return s.Workers
}

// Preload fetches the file names already extracted so they are skipped
// without a query per file.
func (s *Scanner) Preload(ctx context.Context) error {
	if s.DryRun || s.DB == nil {
		return nil
	}
	var names []string
	if err := s.DB.WithContext(ctx).Model(&models.Extraction{}).Pluck("file_name", &names).Error; err != nil {
		return err
	}
	for _, n := range names {
		s.state.put(n)
	}
	log.Printf("Preloaded: extractions=%d", s.state.len())
	return nil
}

// Run processes the images currently in Dir and returns when all are done.
func (s *Scanner) Run(ctx context.Context) error {
	files, err := ListImageFiles(s.Dir)
	if err != nil {
		return err
	}
	log.Printf("Scanning %d files in %s (workers=%d dry_run=%v)", len(files), s.Dir, s.workers(), s.DryRun)
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, f := range files {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	s.runWorkerPool(ctx, ch)
	return ctx.Err()
}

// Watch processes images as they appear in Dir until ctx is cancelled. A file
// is picked up once no new create event arrived for it for 300ms.
func (s *Scanner) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(s.Dir); err != nil {
		return err
	}
	log.Printf("Watching %s (debounced) ...", s.Dir)

	fileCh := make(chan string, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runWorkerPool(ctx, fileCh)
	}()
	defer func() {
		close(fileCh)
		<-done
	}()

	pending := map[string]time.Time{}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !IsSupportedExt(name) {
				continue
			}
			pending[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) > 300*time.Millisecond {
					select {
					case fileCh <- name:
						delete(pending, name)
					case <-ctx.Done():
						return nil
					}
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		}
	}
}

func (s *Scanner) runWorkerPool(ctx context.Context, files <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < s.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range files {
				if ctx.Err() != nil {
					continue
				}
				s.processFile(ctx, name)
			}
		}()
	}
	wg.Wait()
}

// processFile extracts, stores and archives one file. It is idempotent per
// file name.
func (s *Scanner) processFile(ctx context.Context, name string) {
	if s.state.has(name) {
		s.Stats.Skipped.Add(1)
		s.logV("SKIP extraction exists %s", name)
		return
	}
	path := filepath.Join(s.Dir, name)
	res, err := s.Extractor.Extract(ctx, path)
	if err != nil {
		s.Stats.Failed.Add(1)
		log.Printf("WARN extract %s: %v", name, err)
		return
	}
	if s.OnResult != nil {
		s.OnResult(name, res)
	}
	if s.DryRun {
		s.Stats.Processed.Add(1)
		log.Printf("OCR %s %q", name, res.Row())
		return
	}

	ex := models.FromResult(name, res)
	ex.UserID = s.UserID
	if err := s.DB.WithContext(ctx).Create(&ex).Error; err != nil {
		if IsUniqueConstraintError(err) {
			s.state.put(name)
			s.Stats.Skipped.Add(1)
			s.logV("SKIP stored concurrently %s", name)
			return
		}
		s.Stats.Failed.Add(1)
		log.Printf("ERROR create extraction %s: %v", name, err)
		return
	}
	s.state.put(name)
	s.Stats.Processed.Add(1)
	log.Printf("NEW extraction id=%s file=%s unresolved=%d", ex.ID, name, ex.Unresolved)

	if err := MoveToProcessed(path, s.ProcessedDir, s.ArchiveMaxBytes); err != nil {
		log.Printf("WARN failed to move processed file %s: %v", name, err)
	} else {
		s.logV("moved processed %s to %s", name, s.ProcessedDir)
	}
}

// ListImageFiles returns the supported image names in dir, sorted.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// IsSupportedExt reports whether name is an image the scanner reads. Crops and
// preprocessed pages written next to the inputs are ignored.
func IsSupportedExt(name string) bool {
	if strings.HasPrefix(name, ".") || strings.Contains(name, ".prep.") || strings.Contains(name, ".crop.") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// IsUniqueConstraintError matches duplicate key errors from Postgres.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}

// MoveToProcessed moves src into dir. Images over maxBytes are downsized on
// the way; maxBytes 0 disables that. Rename is tried first with copy+remove
// as fallback.
func MoveToProcessed(src, dir string, maxBytes int64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dir, filepath.Base(src))

	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if maxBytes <= 0 || fi.Size() <= maxBytes {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
		return copyRemove(src, dst)
	}
	img, err := imaging.Open(src)
	if err != nil {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
		return copyRemove(src, dst)
	}
	// file size scales roughly with area
	scale := math.Sqrt(float64(maxBytes) / float64(fi.Size()))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	h := int(math.Max(1, math.Round(float64(img.Bounds().Dy())*scale)))
	if err := imaging.Save(imaging.Resize(img, w, h, imaging.Lanczos), dst); err != nil {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
		return copyRemove(src, dst)
	}
	return os.Remove(src)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
