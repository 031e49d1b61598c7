package charts

import (
	"errors"
	"sync"
)

var (
	ErrEmptySurface = errors.New("charts: empty surface")
	ErrStaleSurface = errors.New("charts: surface generation is stale")
)

// Surface is a chart painted to PNG.
type Surface struct {
	Name       string
	Width      int
	Height     int
	PNG        []byte
	Generation uint64
}

// SurfaceRegistry holds the surfaces of the current dataset generation.
type SurfaceRegistry struct {
	mu         sync.RWMutex
	generation uint64
	surfaces   map[string]Surface
}

func NewSurfaceRegistry() *SurfaceRegistry {
	return &SurfaceRegistry{surfaces: make(map[string]Surface)}
}

// Generation returns the current dataset generation.
func (r *SurfaceRegistry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Advance starts a new generation; surfaces of older generations become stale.
func (r *SurfaceRegistry) Advance() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.surfaces = make(map[string]Surface)
	return r.generation
}

// Invalidate drops every surface.
func (r *SurfaceRegistry) Invalidate() {
	r.Advance()
}

// Register lends a surface to the registry.
func (r *SurfaceRegistry) Register(s Surface) error {
	if s.Name == "" || len(s.PNG) == 0 {
		return ErrEmptySurface
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Generation != r.generation {
		return ErrStaleSurface
	}
	r.surfaces[s.Name] = s
	return nil
}

// Lookup returns a current, non-empty surface.
func (r *SurfaceRegistry) Lookup(name string) (Surface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.surfaces[name]
	if !ok || s.Generation != r.generation || len(s.PNG) == 0 {
		return Surface{}, false
	}
	return s, true
}

// Collect returns the surfaces for names in order and the names that are missing.
func (r *SurfaceRegistry) Collect(names []string) ([]Surface, []string) {
	var (
		found   []Surface
		missing []string
	)
	for _, name := range names {
		s, ok := r.Lookup(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		found = append(found, s)
	}
	return found, missing
}

// SurfaceSet is a fixed list of surfaces captured from one generation.
type SurfaceSet []Surface

// Collect returns the surfaces for names in order and the names that are missing.
func (s SurfaceSet) Collect(names []string) ([]Surface, []string) {
	var (
		found   []Surface
		missing []string
	)
	for _, name := range names {
		ok := false
		for _, surface := range s {
			if surface.Name == name && len(surface.PNG) > 0 {
				found = append(found, surface)
				ok = true
				break
			}
		}
		if !ok {
			missing = append(missing, name)
		}
	}
	return found, missing
}
