package fridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// snapshotSchemaVersion is written into every persisted fridge record so
// future format changes can be detected on load.
const snapshotSchemaVersion = 1

// Snapshot is the persisted wire form of one fridge.
type Snapshot struct {
	SchemaVersion int          `json:"schema_version"`
	UserID        string       `json:"user_id"`
	Mode          Mode         `json:"mode"`
	Ingredients   []Ingredient `json:"ingredients"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Registry holds every user's fridge, keyed by user id. Creation on first
// access is a single insert-if-absent under the registry lock, never a
// check-then-insert.
type Registry struct {
	mu          sync.RWMutex
	fridges     map[string]*Fridge
	defaultMode Mode
}

// NewRegistry creates an empty registry; new fridges start in defaultMode.
func NewRegistry(defaultMode Mode) *Registry {
	if defaultMode != ModeStrict && defaultMode != ModeFlexible {
		defaultMode = ModeFlexible
	}
	return &Registry{
		fridges:     make(map[string]*Fridge),
		defaultMode: defaultMode,
	}
}

// GetOrCreate returns the user's fridge, creating it lazily.
func (r *Registry) GetOrCreate(userID string) *Fridge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fridges[userID]; ok {
		return f
	}
	f := New(userID, r.defaultMode)
	r.fridges[userID] = f
	return f
}

// Get returns the user's fridge without creating one.
func (r *Registry) Get(userID string) (*Fridge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fridges[userID]
	return f, ok
}

// Remove deletes a user's fridge entirely.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fridges, userID)
}

// UserIDs lists registered users, sorted.
func (r *Registry) UserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.fridges))
	for id := range r.fridges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Export builds the snapshot of one fridge.
func (f *Fridge) Export() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	ingredients := make([]Ingredient, 0, len(f.ingredients))
	for _, ing := range f.ingredients {
		ingredients = append(ingredients, ing)
	}
	sort.Slice(ingredients, func(i, j int) bool { return ingredients[i].Name < ingredients[j].Name })
	return Snapshot{
		SchemaVersion: snapshotSchemaVersion,
		UserID:        f.userID,
		Mode:          f.mode,
		Ingredients:   ingredients,
		UpdatedAt:     f.updatedAt,
	}
}

func fromSnapshot(snap Snapshot) (*Fridge, error) {
	if snap.SchemaVersion > snapshotSchemaVersion {
		return nil, fmt.Errorf("fridge snapshot for %q: unsupported schema version %d", snap.UserID, snap.SchemaVersion)
	}
	mode, err := ParseMode(string(snap.Mode))
	if err != nil {
		// Absent/unknown mode in old snapshots falls back to flexible,
		// matching the lazy-creation default.
		mode = ModeFlexible
	}
	f := New(snap.UserID, mode)
	for _, ing := range snap.Ingredients {
		if ing.Name == "" {
			continue
		}
		f.ingredients[ing.Name] = ing
	}
	if !snap.UpdatedAt.IsZero() {
		f.updatedAt = snap.UpdatedAt
	}
	return f, nil
}

// SaveFile persists every fridge as a userId -> snapshot JSON mapping.
// The file is written atomically via a temp-file rename.
func (r *Registry) SaveFile(path string) error {
	r.mu.RLock()
	snapshots := make(map[string]Snapshot, len(r.fridges))
	for id, f := range r.fridges {
		snapshots[id] = f.Export()
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fridge snapshots: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write fridge snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace fridge snapshot: %w", err)
	}
	return nil
}

// LoadFile replaces registry contents from a snapshot file. A missing
// file yields an empty registry; malformed content fails only this load.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read fridge snapshot: %w", err)
	}

	var snapshots map[string]Snapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return fmt.Errorf("decode fridge snapshot: %w", err)
	}

	loaded := make(map[string]*Fridge, len(snapshots))
	for id, snap := range snapshots {
		if snap.UserID == "" {
			snap.UserID = id
		}
		f, err := fromSnapshot(snap)
		if err != nil {
			return err
		}
		loaded[id] = f
	}

	r.mu.Lock()
	r.fridges = loaded
	r.mu.Unlock()
	return nil
}
