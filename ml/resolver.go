package ml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrModelNotFound means no candidate path resolved and no upload was
// supplied. Recoverable by uploading a model.
var ErrModelNotFound = errors.New("model file not found in any candidate location")

// ModelCorruptError wraps a deserialization failure so the underlying
// error text can be surfaced to the user.
type ModelCorruptError struct {
	Path string
	Err  error
}

func (e *ModelCorruptError) Error() string {
	return fmt.Sprintf("model file %s is not loadable: %v", e.Path, e.Err)
}

func (e *ModelCorruptError) Unwrap() error { return e.Err }

// Candidate model locations, probed in priority order.
var defaultCandidatePaths = []string{
	filepath.Join("models", "my_model.pkl"),
	"my_model.pkl",
	filepath.Join("app", "models", "my_model.pkl"),
	filepath.Join("pneumonia_app", "my_model.pkl"),
	filepath.Join("resources", "my_model.pkl"),
}

// UploadPath is where an uploaded model blob is persisted before loading.
const UploadPath = "uploaded_model.pkl"

// Resolver locates and deserializes a trained model.
type Resolver struct {
	candidates []string
	uploadPath string
}

// NewResolver probes the default candidate locations.
func NewResolver() *Resolver {
	return &Resolver{
		candidates: defaultCandidatePaths,
		uploadPath: UploadPath,
	}
}

// NewResolverWithPaths overrides the probe list, e.g. from config.
func NewResolverWithPaths(candidates []string, uploadPath string) *Resolver {
	if len(candidates) == 0 {
		candidates = defaultCandidatePaths
	}
	if uploadPath == "" {
		uploadPath = UploadPath
	}
	return &Resolver{candidates: candidates, uploadPath: uploadPath}
}

// Resolve probes candidate locations in order and returns the first
// model that exists and deserializes. Returns ErrModelNotFound when no
// candidate resolves.
func (r *Resolver) Resolve() (*Model, error) {
	for _, path := range r.candidates {
		if _, err := os.Stat(path); err != nil {
			zap.S().Debugw("model candidate missing", "path", path)
			continue
		}
		model, err := LoadArtifact(path)
		if err != nil {
			zap.S().Warnw("model candidate exists but failed to load", "path", path, "error", err)
			continue
		}
		model.Info.Source = "preset"
		model.Info.LoadedAt = time.Now()
		zap.S().Infow("model loaded", "path", path, "kind", model.Info.Kind, "fingerprint", model.Info.Fingerprint)
		return model, nil
	}
	zap.S().Errorw("no model found", "candidates", r.candidates)
	return nil, ErrModelNotFound
}

// ResolveUpload persists an uploaded blob and loads it. A failure to
// deserialize surfaces as ModelCorruptError.
func (r *Resolver) ResolveUpload(blob []byte) (*Model, error) {
	if err := os.WriteFile(r.uploadPath, blob, 0o600); err != nil {
		return nil, fmt.Errorf("persist uploaded model: %w", err)
	}
	model, err := DecodeArtifact(blob)
	if err != nil {
		zap.S().Errorw("uploaded model failed to load", "path", r.uploadPath, "error", err)
		return nil, &ModelCorruptError{Path: r.uploadPath, Err: err}
	}
	model.Info.Path = r.uploadPath
	model.Info.Source = "upload"
	model.Info.LoadedAt = time.Now()
	zap.S().Infow("uploaded model loaded", "kind", model.Info.Kind, "fingerprint", model.Info.Fingerprint)
	return model, nil
}

// Session caches the resolved model for the process lifetime. The cache
// is invalidated only by an explicit re-upload or, when watching is
// enabled, by the resolved file changing on disk.
type Session struct {
	mu       sync.RWMutex
	resolver *Resolver
	model    *Model

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSession wraps a resolver. The session starts empty; call Resolve
// or Upload to populate it.
func NewSession(resolver *Resolver) *Session {
	return &Session{resolver: resolver}
}

// Resolve loads the preset model if the session is empty. Repeated
// calls reuse the cached handle.
func (s *Session) Resolve() (*Model, error) {
	s.mu.RLock()
	if s.model != nil {
		model := s.model
		s.mu.RUnlock()
		return model, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model != nil {
		return s.model, nil
	}
	model, err := s.resolver.Resolve()
	if err != nil {
		return nil, err
	}
	s.model = model
	return model, nil
}

// Upload replaces the cached model with an uploaded blob.
func (s *Session) Upload(blob []byte) (*Model, error) {
	model, err := s.resolver.ResolveUpload(blob)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
	return model, nil
}

// Current returns the cached model without triggering resolution.
func (s *Session) Current() (*Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model, s.model != nil
}

// Invalidate drops the cached handle; the next Resolve re-probes.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.model = nil
	s.mu.Unlock()
}

// Watch invalidates the session when the resolved model file changes on
// disk. Safe to call once; Close stops the watcher.
func (s *Session) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher
	s.done = make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if !s.shouldInvalidate(event.Name) {
					continue
				}
				zap.S().Infow("model file changed, invalidating cached handle", "path", event.Name, "op", event.Op.String())
				s.Invalidate()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zap.S().Warnw("model watcher error", "error", err)
			case <-s.done:
				return
			}
		}
	}()

	// Watch directories: candidate files may not exist yet.
	dirs := map[string]bool{}
	for _, path := range s.resolver.candidates {
		dirs[filepath.Dir(path)] = true
	}
	dirs[filepath.Dir(s.resolver.uploadPath)] = true
	for dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			zap.S().Warnw("cannot watch model dir", "dir", dir, "error", err)
		}
	}
	return nil
}

// shouldInvalidate reports whether a filesystem change to name affects
// the cached model. Only the resolved preset file matters: uploaded
// models are replaced through Upload and never re-read from disk, and
// the watched directories see unrelated writes (the upload blob, the
// history database) that must not drop the handle.
func (s *Session) shouldInvalidate(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil || s.model.Info.Source == "upload" {
		return false
	}
	return filepath.Clean(name) == filepath.Clean(s.model.Info.Path)
}

// Close stops the file watcher if one is running.
func (s *Session) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}
