package thumbnail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/streamvault/streamvault/internal/models"
)

func newMediaID() models.MediaID { return models.MediaID(uuid.New()) }

type fakeSources struct {
	path string
	err  error
	hits int
}

func (f *fakeSources) SourcePath(ctx context.Context, mediaID models.MediaID) (string, error) {
	f.hits++
	return f.path, f.err
}

func TestPathLayout(t *testing.T) {
	s := NewService("/cache", "ffmpeg", "ffprobe", &fakeSources{})
	id := newMediaID()
	got := s.Path(id)
	want := filepath.Join("/cache", "thumbnails", id.String()+"_thumb.jpg")
	if got != want {
		t.Fatalf("Path() = %q, want %q", got, want)
	}
}

func TestEnsureThumbnailReturnsCachedPathWithoutExtracting(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSources{path: "/does/not/matter.mkv"}
	s := NewService(dir, "ffmpeg", "ffprobe", src)

	id := newMediaID()
	cachedPath := s.Path(id)
	if err := os.MkdirAll(filepath.Dir(cachedPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(cachedPath, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	path, ready := s.EnsureThumbnail(id)
	if !ready {
		t.Fatalf("expected ready=true for an already-cached thumbnail")
	}
	if path != cachedPath {
		t.Fatalf("path = %q, want %q", path, cachedPath)
	}
	if src.hits != 0 {
		t.Fatalf("expected no SourcePath lookups for a cache hit, got %d", src.hits)
	}
}

func TestEnsureThumbnailTriggersBackgroundExtractionOnMiss(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSources{path: "/does/not/exist.mkv"}
	// A nonexistent ffmpeg binary makes extraction fail fast (cmd.Start
	// errors immediately) without requiring a real ffmpeg install or a
	// real media file; this test only asserts the non-blocking 202 path
	// and that extraction was attempted, not that extraction succeeds.
	s := NewService(dir, filepath.Join(dir, "no-such-ffmpeg-binary"), "ffprobe", src)

	id := newMediaID()
	path, ready := s.EnsureThumbnail(id)
	if ready {
		t.Fatalf("expected ready=false on first request for an uncached thumbnail")
	}
	if path != s.Path(id) {
		t.Fatalf("path = %q, want %q", path, s.Path(id))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, stillPending := s.pending[id]
		s.mu.Unlock()
		if !stillPending {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if src.hits == 0 {
		t.Fatalf("expected background extraction to resolve the source path at least once")
	}
	if s.HasCached(id) {
		t.Fatalf("expected no cached thumbnail when ffmpeg can't even start")
	}
}
