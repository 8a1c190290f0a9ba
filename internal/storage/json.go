package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// JSONFile keeps the snapshot in a single JSON document keyed by reminder id,
// the same layout the bot has always used for reminders.json.
type JSONFile struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewJSONFile(path string) *JSONFile {
	return NewJSONFileFs(afero.NewOsFs(), path)
}

// NewJSONFileFs is used by tests to run against an in-memory filesystem.
func NewJSONFileFs(fs afero.Fs, path string) *JSONFile {
	return &JSONFile{fs: fs, path: path}
}

func (f *JSONFile) Load() (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := make(Snapshot)
	data, err := afero.ReadFile(f.fs, f.path)
	if os.IsNotExist(err) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	// id живёт только в ключе
	for id, r := range snap {
		r.ID = id
		snap[id] = r
	}
	return snap, nil
}

// Save writes to a temp file next to the target and renames it over.
func (f *JSONFile) Save(snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		_ = f.fs.Remove(tmp)
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

func (f *JSONFile) Close() error {
	return nil
}
