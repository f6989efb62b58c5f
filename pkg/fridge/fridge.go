package fridge

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Mode controls how strictly recommendations are bound to inventory.
type Mode string

const (
	// ModeStrict limits recommendations to recipes fully covered by the
	// current inventory.
	ModeStrict Mode = "strict"
	// ModeFlexible allows recipes missing a minority of ingredients.
	ModeFlexible Mode = "flexible"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStrict:
		return ModeStrict, nil
	case ModeFlexible:
		return ModeFlexible, nil
	default:
		return "", fmt.Errorf("unknown fridge mode %q", s)
	}
}

// Ingredient is one named item in a fridge. Name is the unique key;
// re-adding a name overwrites quantity/unit in place.
type Ingredient struct {
	Name     string    `json:"name"`
	Quantity string    `json:"quantity,omitempty"`
	Unit     string    `json:"unit,omitempty"`
	AddedAt  time.Time `json:"added_at"`
}

// CompatibilityResult is derived per (fridge, recipe) pair and never cached.
type CompatibilityResult struct {
	Compatible bool     `json:"compatible"`
	MatchRate  float64  `json:"match_rate"`
	Available  []string `json:"available_ingredients"`
	Missing    []string `json:"missing_ingredients"`
	Mode       Mode     `json:"mode"`
}

// Fridge is one user's virtual ingredient inventory. Read-modify-write
// sequences are serialized by the per-user lock in the engine; the
// internal mutex only keeps background snapshot export race-free.
type Fridge struct {
	mu          sync.Mutex
	userID      string
	mode        Mode
	ingredients map[string]Ingredient
	updatedAt   time.Time
}

// New creates an empty fridge in the given mode (flexible by default).
func New(userID string, mode Mode) *Fridge {
	if mode != ModeStrict && mode != ModeFlexible {
		mode = ModeFlexible
	}
	return &Fridge{
		userID:      userID,
		mode:        mode,
		ingredients: make(map[string]Ingredient),
		updatedAt:   time.Now(),
	}
}

// UserID returns the owning user id.
func (f *Fridge) UserID() string { return f.userID }

// Mode returns the current operating mode.
func (f *Fridge) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// SetMode switches between strict and flexible.
func (f *Fridge) SetMode(mode Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
	f.updatedAt = time.Now()
}

// AddIngredient upserts by name, refreshing quantity/unit in place.
// The ingredient count never grows for an existing name.
func (f *Fridge) AddIngredient(name, quantity, unit string) Ingredient {
	f.mu.Lock()
	defer f.mu.Unlock()
	ing := Ingredient{Name: name, Quantity: quantity, Unit: unit, AddedAt: time.Now()}
	f.ingredients[name] = ing
	f.updatedAt = time.Now()
	return ing
}

// AddIngredients batch-upserts names without quantity/unit.
func (f *Fridge) AddIngredients(names []string) []Ingredient {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	added := make([]Ingredient, 0, len(names))
	for _, name := range names {
		ing := Ingredient{Name: name, AddedAt: now}
		f.ingredients[name] = ing
		added = append(added, ing)
	}
	f.updatedAt = now
	return added
}

// RemoveIngredient deletes by name, reporting whether it was present.
func (f *Fridge) RemoveIngredient(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ingredients[name]; !ok {
		return false
	}
	delete(f.ingredients, name)
	f.updatedAt = time.Now()
	return true
}

// RemoveIngredients deletes a batch, returning how many were present.
func (f *Fridge) RemoveIngredients(names []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, name := range names {
		if _, ok := f.ingredients[name]; ok {
			delete(f.ingredients, name)
			count++
		}
	}
	if count > 0 {
		f.updatedAt = time.Now()
	}
	return count
}

// Clear empties the fridge.
func (f *Fridge) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingredients = make(map[string]Ingredient)
	f.updatedAt = time.Now()
}

// Has reports whether name is present.
func (f *Fridge) Has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ingredients[name]
	return ok
}

// Len reports the ingredient count.
func (f *Fridge) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ingredients)
}

// Names returns all ingredient names, sorted for deterministic output.
func (f *Fridge) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.ingredients))
	for name := range f.ingredients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckCompatibility scores a recipe's ordered required-ingredient list
// against the inventory.
//
// match_rate is |available|/|required|, defined as 0 when required is
// empty. In strict mode compatible means missing is empty, which makes an
// empty required list trivially compatible despite the 0 match rate. In
// flexible mode compatible means match_rate strictly above 0.5.
func (f *Fridge) CheckCompatibility(required []string) CompatibilityResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	available := []string{}
	missing := []string{}
	for _, name := range required {
		if _, ok := f.ingredients[name]; ok {
			available = append(available, name)
		} else {
			missing = append(missing, name)
		}
	}

	matchRate := 0.0
	if len(required) > 0 {
		matchRate = float64(len(available)) / float64(len(required))
	}

	compatible := false
	if f.mode == ModeStrict {
		compatible = len(missing) == 0
	} else {
		compatible = matchRate > 0.5
	}

	return CompatibilityResult{
		Compatible: compatible,
		MatchRate:  matchRate,
		Available:  available,
		Missing:    missing,
		Mode:       f.mode,
	}
}
