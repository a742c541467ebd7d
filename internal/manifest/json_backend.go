package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	coreerrors "github.com/codesearch-core/codesearch/internal/errors"
)

// onDisk is the exact JSON shape of the manifest file described in
// SPEC_FULL.md §6: {version, project_root, created_at, modified_at, files}.
type onDisk struct {
	Version     string                       `json:"version"`
	ProjectRoot string                       `json:"project_root"`
	CreatedAt   time.Time                    `json:"created_at"`
	ModifiedAt  time.Time                    `json:"modified_at"`
	Files       map[string]FileManifestEntry `json:"files"`
}

// JSONManifest is the flat-JSON Manifest backend: a single structured file
// at <state_dir>/manifest.json, written atomically via temp-then-rename and
// cross-process-locked the same way internal/embed.FileLock guards the
// embedding-model download directory.
type JSONManifest struct {
	path string
	lock *flock.Flock

	mu   sync.RWMutex
	data onDisk
}

// NewJSONManifest builds a manifest backend rooted at projectRoot, persisted
// to path (typically <state_dir>/manifest.json).
func NewJSONManifest(path, projectRoot string) *JSONManifest {
	return &JSONManifest{
		path: path,
		lock: flock.New(path + ".lock"),
		data: onDisk{
			Version:     SchemaVersion,
			ProjectRoot: projectRoot,
			Files:       make(map[string]FileManifestEntry),
		},
	}
}

// Load reads the manifest file if it exists. A missing file is not an
// error: a fresh project has no manifest yet. Versions older than current
// are accepted, treating missing optional fields as unknown (the Go zero
// value for every optional field already means "unknown", so no migration
// step is needed beyond a plain json.Unmarshal). An unrecognized future
// version fails with Configuration.
func (m *JSONManifest) Load(_ context.Context) error {
	if err := m.lock.Lock(); err != nil {
		return coreerrors.PersistenceError("acquiring manifest lock", err)
	}
	defer m.lock.Unlock()

	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return coreerrors.PersistenceError("reading manifest file", err)
	}

	var d onDisk
	if err := json.Unmarshal(raw, &d); err != nil {
		return coreerrors.PersistenceError("parsing manifest file", err)
	}

	if !isSupportedVersion(d.Version) {
		return coreerrors.New(coreerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("manifest version %q is newer than this binary supports (%q)", d.Version, SchemaVersion), nil)
	}
	if d.Files == nil {
		d.Files = make(map[string]FileManifestEntry)
	}

	m.mu.Lock()
	m.data = d
	m.mu.Unlock()
	return nil
}

// isSupportedVersion accepts the current version and any older
// dotted-pair version (forward-readable from older versions); it rejects
// anything newer than SchemaVersion, which this binary cannot interpret
// safely.
func isSupportedVersion(v string) bool {
	if v == "" || v == SchemaVersion {
		return true
	}
	var major, minor, curMajor, curMinor int
	if _, err := fmt.Sscanf(v, "%d.%d", &major, &minor); err != nil {
		return false
	}
	fmt.Sscanf(SchemaVersion, "%d.%d", &curMajor, &curMinor)
	return major < curMajor || (major == curMajor && minor <= curMinor)
}

// Save writes the manifest atomically: write to a sibling temp file, fsync,
// then rename over the target. modified_at is refreshed on every save, even
// a no-op reindex run, per the spec's round-trip law.
func (m *JSONManifest) Save(_ context.Context) error {
	if err := m.lock.Lock(); err != nil {
		return coreerrors.PersistenceError("acquiring manifest lock", err)
	}
	defer m.lock.Unlock()

	m.mu.Lock()
	m.data.ModifiedAt = time.Now()
	if m.data.CreatedAt.IsZero() {
		m.data.CreatedAt = m.data.ModifiedAt
	}
	m.data.Version = SchemaVersion
	snapshot := m.data
	m.mu.Unlock()

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return coreerrors.PersistenceError("marshaling manifest", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return coreerrors.PersistenceError("creating manifest directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return coreerrors.PersistenceError("creating manifest temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return coreerrors.PersistenceError("writing manifest temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return coreerrors.PersistenceError("fsyncing manifest temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return coreerrors.PersistenceError("closing manifest temp file", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return coreerrors.PersistenceError("renaming manifest temp file into place", err)
	}
	return nil
}

func (m *JSONManifest) UpsertFile(_ context.Context, entry FileManifestEntry) error {
	if entry.Path == "" {
		return coreerrors.New(coreerrors.ErrCodeInvalidInput, "manifest entry requires a non-empty path", nil)
	}
	if entry.IndexedAt.IsZero() {
		entry.IndexedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Files[entry.Path] = entry
	return nil
}

func (m *JSONManifest) RemoveFile(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data.Files, path)
	return nil
}

func (m *JSONManifest) NeedsReindex(_ context.Context, path, contentHash string, models CurrentModels) (bool, Reason, error) {
	m.mu.RLock()
	entry, exists := m.data.Files[path]
	m.mu.RUnlock()
	reindex, reason := needsReindex(entry, exists, contentHash, models)
	return reindex, reason, nil
}

func (m *JSONManifest) AllChunkIDs(_ context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make(map[string]struct{})
	for _, entry := range m.data.Files {
		for _, id := range entry.ChunkIDs {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

func (m *JSONManifest) FilesNeedingEmbedding(_ context.Context, kind EmbeddingKind) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var paths []string
	for path, entry := range m.data.Files {
		if needsEmbedding(entry, kind) {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (m *JSONManifest) Get(_ context.Context, path string) (FileManifestEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.data.Files[path]
	return entry, ok, nil
}

func (m *JSONManifest) ProjectRoot() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ProjectRoot
}

func (m *JSONManifest) ModifiedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ModifiedAt
}

var _ Manifest = (*JSONManifest)(nil)
