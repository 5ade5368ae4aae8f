package render

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Surface is a drawing target. The renderer sizes its image to Size and
// hands the finished raster to Present exactly once per draw call.
type Surface interface {
	Size() (w, h int)
	Present(img image.Image) error
}

// MemorySurface keeps the last presented image in memory.
type MemorySurface struct {
	w, h int

	mu       sync.Mutex
	img      image.Image
	presents int
}

// NewMemorySurface creates a w×h in-memory surface.
func NewMemorySurface(w, h int) *MemorySurface {
	return &MemorySurface{w: w, h: h}
}

// Size implements Surface.
func (m *MemorySurface) Size() (int, int) {
	return m.w, m.h
}

// Present implements Surface.
func (m *MemorySurface) Present(img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.img = img
	m.presents++
	return nil
}

// Image returns the last presented image, or nil.
func (m *MemorySurface) Image() image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.img
}

// Presents returns how many images have been presented.
func (m *MemorySurface) Presents() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.presents
}

// FileSurface writes each presented image to Path as PNG.
type FileSurface struct {
	Path          string
	Width, Height int
}

// Size implements Surface.
func (f *FileSurface) Size() (int, int) {
	return f.Width, f.Height
}

// Present implements Surface. The file is written next to its final
// name and renamed into place.
func (f *FileSurface) Present(img image.Image) error {
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".render-*.png")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Surfaces maps opaque host IDs (canvas element IDs, output names) to
// surfaces.
type Surfaces struct {
	mu   sync.RWMutex
	byID map[string]Surface
}

// NewSurfaces creates an empty registry.
func NewSurfaces() *Surfaces {
	return &Surfaces{byID: make(map[string]Surface)}
}

// Register binds id to s, replacing any earlier binding.
func (r *Surfaces) Register(id string, s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = s
}

// Remove drops the binding for id.
func (r *Surfaces) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Lookup returns the surface bound to id.
func (r *Surfaces) Lookup(id string) (Surface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, &RenderError{
			Code:    CodeUnknownSurface,
			Message: fmt.Sprintf("no surface registered as %q", id),
		}
	}
	return s, nil
}

// IDs returns the registered IDs, sorted.
func (r *Surfaces) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// checkSurface validates s and returns its size.
func checkSurface(s Surface) (int, int, error) {
	if s == nil {
		return 0, 0, &RenderError{Code: CodeBadSurface, Message: "nil surface"}
	}
	w, h := s.Size()
	if w <= 0 || h <= 0 {
		return 0, 0, &RenderError{
			Code:    CodeBadSurface,
			Message: fmt.Sprintf("surface size %dx%d", w, h),
		}
	}
	return w, h, nil
}

// present hands img to s, wrapping failures.
func present(s Surface, img image.Image) error {
	if err := s.Present(img); err != nil {
		return &RenderError{Code: CodePresentFailed, Message: "surface rejected image", Err: err}
	}
	return nil
}
