// Package output persists the artifacts of a completed job under a
// deterministic, collision-free directory layout and writes per-generation
// metadata next to them.
//
// Layout: {root}/{model_type}/{prefix}_{timestamp}/ with one file per
// artifact plus metadata.json. Metadata is written even for failed attempts
// so failures stay diagnosable; a directory never claims success with a
// partially written artifact set.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skyreel/vidgen/jobs"
)

// MetadataFileName is the per-attempt metadata document written into every
// attempt directory.
const MetadataFileName = "metadata.json"

// timestampLayout names attempt directories; seconds granularity, with a
// uuid suffix on collision.
const timestampLayout = "20060102_150405"

// Artifact is one persisted output file.
type Artifact struct {
	Source string `json:"source"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
}

// Metadata captures everything needed to diagnose or reproduce an attempt.
type Metadata struct {
	AttemptID   string         `json:"attempt_id"`
	ModelType   string         `json:"model_type"`
	ConfigName  string         `json:"config_name"`
	Prompt      string         `json:"prompt"`
	Params      map[string]any `json:"params,omitempty"`
	JobID       string         `json:"job_id,omitempty"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	OutputFiles []string       `json:"output_files,omitempty"`
}

// PersistenceError indicates that artifact or metadata persistence failed.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("output: persisting %s failed: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Fetcher resolves an output reference into its bytes and content type.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (io.ReadCloser, string, error)
}

// Manager writes artifacts and metadata under a destination root.
type Manager struct {
	root    string
	fetcher Fetcher
	logger  zerolog.Logger
	now     func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFetcher overrides the artifact fetcher (default: HTTP).
func WithFetcher(f Fetcher) ManagerOption {
	return func(m *Manager) { m.fetcher = f }
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a Manager rooted at root.
func NewManager(root string, opts ...ManagerOption) *Manager {
	m := &Manager{
		root:    root,
		fetcher: NewHTTPFetcher(nil),
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the destination root directory.
func (m *Manager) Root() string { return m.root }

// Save persists every output reference of a completed job into a fresh
// attempt directory, then writes metadata.json. If any artifact write
// fails, already written artifacts are removed, metadata is written with a
// failed status and the error detail, and Save fails with
// *PersistenceError. The directory never reports a partial set as success.
// fallbackExt is used when neither content type nor URL reveal an extension.
func (m *Manager) Save(ctx context.Context, job *jobs.Job, meta Metadata, fallbackExt string) ([]Artifact, string, error) {
	dir, base, err := m.attemptDir(meta.ModelType, meta.ConfigName)
	if err != nil {
		return nil, "", err
	}

	var artifacts []Artifact
	for i, source := range job.Outputs {
		artifact, err := m.saveOne(ctx, dir, base, i, len(job.Outputs), source, fallbackExt)
		if err != nil {
			m.cleanupArtifacts(artifacts)
			meta.Status = string(jobs.StatusFailed)
			meta.Error = err.Error()
			meta.OutputFiles = nil
			if werr := m.writeMetadata(dir, meta); werr != nil {
				m.logger.Error().Err(werr).Str("dir", dir).Msg("failed to write failure metadata")
			}
			return nil, dir, err
		}
		artifacts = append(artifacts, artifact)
	}

	meta.OutputFiles = make([]string, len(artifacts))
	for i, a := range artifacts {
		meta.OutputFiles[i] = a.Path
	}
	if err := m.writeMetadata(dir, meta); err != nil {
		m.cleanupArtifacts(artifacts)
		return nil, dir, err
	}

	m.logger.Info().Str("dir", dir).Int("artifacts", len(artifacts)).Msg("attempt persisted")
	return artifacts, dir, nil
}

// WriteFailure records a failed attempt: a fresh attempt directory holding
// only metadata.json, so failures remain auditable alongside successes.
func (m *Manager) WriteFailure(meta Metadata) (string, error) {
	dir, _, err := m.attemptDir(meta.ModelType, meta.ConfigName)
	if err != nil {
		return "", err
	}
	if meta.Status == "" {
		meta.Status = string(jobs.StatusFailed)
	}
	if err := m.writeMetadata(dir, meta); err != nil {
		return dir, err
	}
	return dir, nil
}

func (m *Manager) saveOne(ctx context.Context, dir, base string, index, total int, source, fallbackExt string) (Artifact, error) {
	rc, contentType, err := m.fetcher.Fetch(ctx, source)
	if err != nil {
		return Artifact{}, &PersistenceError{Path: source, Err: err}
	}
	defer rc.Close()

	name := base
	if total > 1 {
		name = fmt.Sprintf("%s_%d", base, index)
	}
	path := filepath.Join(dir, name+extensionFor(contentType, source, fallbackExt))

	file, err := os.Create(path)
	if err != nil {
		return Artifact{}, &PersistenceError{Path: path, Err: err}
	}
	size, err := io.Copy(file, rc)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return Artifact{}, &PersistenceError{Path: path, Err: err}
	}

	m.logger.Debug().Str("path", path).Int64("bytes", size).Msg("artifact written")
	return Artifact{Source: source, Path: path, Size: size}, nil
}

// attemptDir creates a unique directory for one generation attempt.
// Uniqueness comes from the prefix plus timestamp; a same-second collision
// gets a uuid suffix.
func (m *Manager) attemptDir(modelType, prefix string) (string, string, error) {
	if prefix == "" {
		prefix = "output"
	}
	base := fmt.Sprintf("%s_%s", prefix, m.now().UTC().Format(timestampLayout))
	dir := filepath.Join(m.root, modelType, base)
	if _, err := os.Stat(dir); err == nil {
		base = fmt.Sprintf("%s_%s", base, uuid.NewString()[:8])
		dir = filepath.Join(m.root, modelType, base)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", &PersistenceError{Path: dir, Err: err}
	}
	return dir, base, nil
}

func (m *Manager) writeMetadata(dir string, meta Metadata) error {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = m.now().UTC()
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return &PersistenceError{Path: dir, Err: err}
	}
	path := filepath.Join(dir, MetadataFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

func (m *Manager) cleanupArtifacts(artifacts []Artifact) {
	for _, a := range artifacts {
		if err := os.Remove(a.Path); err != nil {
			m.logger.Warn().Err(err).Str("path", a.Path).Msg("failed to remove partial artifact")
		}
	}
}

// knownExtensions are accepted straight from a URL suffix.
var knownExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".mov": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true,
	".txt": true, ".json": true, ".wav": true, ".mp3": true,
}

var contentTypeExtensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"text/plain":      ".txt",
	"application/json": ".json",
	"audio/wav":       ".wav",
	"audio/mpeg":      ".mp3",
}

// extensionFor picks the artifact extension: content type first, then URL
// suffix, then the caller's fallback, then a safe generic default.
func extensionFor(contentType, source, fallback string) string {
	if contentType != "" {
		base := strings.TrimSpace(strings.Split(contentType, ";")[0])
		if ext, ok := contentTypeExtensions[base]; ok {
			return ext
		}
	}
	if u, err := url.Parse(source); err == nil {
		if ext := strings.ToLower(filepath.Ext(u.Path)); knownExtensions[ext] {
			return ext
		}
	}
	if fallback != "" {
		return fallback
	}
	return ".bin"
}
