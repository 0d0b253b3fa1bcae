package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pawluxe/internal/services"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	ms := NewManifestStore(dir)
	excerpts := excerptsOf(4, 2)
	summary := Summary{GlobalTrackID: "animal:Luna", ExcerptCount: 2, CameraIDs: []string{"cam1"}}

	id, path, err := ms.Save("animal:Luna", summary, excerpts)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	wantManifest, wantVideo := ms.PathsFor(id)
	if path != wantManifest || filepath.Base(wantVideo) != id+".mp4" {
		t.Fatalf("unexpected paths %s %s", path, wantVideo)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}

	loaded, err := ms.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.GlobalTrackID != "animal:Luna" || len(loaded.Excerpts) != 2 || loaded.Summary.ExcerptCount != 2 {
		t.Fatalf("unexpected manifest %+v", loaded)
	}
	if !loaded.Excerpts[0].ClipStart.Equal(excerpts[0].ClipStart) {
		t.Fatalf("clip start not preserved")
	}
}

func TestManifestTopLevelKeys(t *testing.T) {
	ms := NewManifestStore(t.TempDir())
	_, path, err := ms.Save("camera:cam1:7", Summary{}, nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 3 {
		t.Fatalf("expected 3 keys, got %v", raw)
	}
	for _, key := range []string{"global_track_id", "summary", "excerpts"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing key %s", key)
		}
	}
	if string(raw["excerpts"]) != "[]" {
		t.Fatalf("expected empty excerpt array, got %s", raw["excerpts"])
	}
}

func TestManifestLoadErrors(t *testing.T) {
	ms := NewManifestStore(t.TempDir())
	if _, err := ms.Load("missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := ms.Load("../etc/passwd"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
