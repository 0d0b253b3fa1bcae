package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"pawluxe/internal/services"
)

// Manifest is the persisted description of one export.
type Manifest struct {
	GlobalTrackID string    `json:"global_track_id"`
	Summary       Summary   `json:"summary"`
	Excerpts      []Excerpt `json:"excerpts"`
}

// ManifestStore reads and writes manifests under the export directory.
type ManifestStore struct {
	dir   string
	newID func() string
}

// NewManifestStore returns a store rooted at dir.
func NewManifestStore(dir string) *ManifestStore {
	return &ManifestStore{dir: dir, newID: uuid.NewString}
}

// Dir returns the export directory.
func (m *ManifestStore) Dir() string {
	return m.dir
}

// Save allocates a new export id and writes the manifest for it.
func (m *ManifestStore) Save(globalID string, summary Summary, excerpts []Excerpt) (string, string, error) {
	if strings.TrimSpace(m.dir) == "" {
		return "", "", services.Wrap(services.ErrConfiguration, "export", "save manifest", "export directory not configured", nil)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create export dir: %w", err)
	}
	if excerpts == nil {
		excerpts = []Excerpt{}
	}
	data, err := json.MarshalIndent(Manifest{
		GlobalTrackID: globalID,
		Summary:       summary,
		Excerpts:      excerpts,
	}, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')

	exportID := m.newID()
	path, _ := m.PathsFor(exportID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", "", fmt.Errorf("finalize manifest: %w", err)
	}
	return exportID, path, nil
}

// Load reads the manifest of an export.
func (m *ManifestStore) Load(exportID string) (*Manifest, error) {
	if err := validateExportID(exportID); err != nil {
		return nil, err
	}
	path, _ := m.PathsFor(exportID)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, services.Wrap(services.ErrNotFound, "export", "load manifest",
			fmt.Sprintf("manifest %s not found", exportID), err)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", exportID, err)
	}
	return &manifest, nil
}

// PathsFor returns the deterministic manifest and video paths of an export.
func (m *ManifestStore) PathsFor(exportID string) (manifest, video string) {
	base := filepath.Join(m.dir, exportID)
	return base + ".json", base + ".mp4"
}

func validateExportID(exportID string) error {
	exportID = strings.TrimSpace(exportID)
	if exportID == "" || strings.ContainsAny(exportID, `/\`) || exportID == "." || exportID == ".." {
		return services.Wrap(services.ErrValidation, "export", "export id", fmt.Sprintf("invalid export id %q", exportID), nil)
	}
	return nil
}
