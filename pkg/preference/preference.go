package preference

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Spice levels. SpiceLevel is last-write-wins, unlike the set fields.
const (
	SpiceMild   = "mild"
	SpiceMedium = "medium"
	SpiceHot    = "hot"
)

// ParseSpiceLevel validates a spice level string.
func ParseSpiceLevel(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SpiceMild:
		return SpiceMild, nil
	case SpiceMedium:
		return SpiceMedium, nil
	case SpiceHot:
		return SpiceHot, nil
	default:
		return "", fmt.Errorf("unknown spice level %q", s)
	}
}

// Preference is a user's accumulated taste profile. Every list field is a
// deduplicated set: updates union into it and never drop earlier values.
type Preference struct {
	UserID              string    `json:"user_id"`
	Cuisines            []string  `json:"cuisines"`
	Allergies           []string  `json:"allergies"`
	Dislikes            []string  `json:"dislikes"`
	FavoriteIngredients []string  `json:"favorite_ingredients"`
	FavoriteDishes      []string  `json:"favorite_dishes"`
	DietaryRestrictions []string  `json:"dietary_restrictions"`
	SpiceLevel          string    `json:"spice_level"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Update carries the partial fields of one preference update. Nil slices
// mean "field not present"; empty SpiceLevel means unchanged.
type Update struct {
	Cuisines            []string `json:"cuisines,omitempty"`
	Allergies           []string `json:"allergies,omitempty"`
	Dislikes            []string `json:"dislikes,omitempty"`
	FavoriteIngredients []string `json:"favorite_ingredients,omitempty"`
	FavoriteDishes      []string `json:"favorite_dishes,omitempty"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	SpiceLevel          string   `json:"spice_level,omitempty"`
}

// Validate rejects malformed updates before any mutation happens.
func (u Update) Validate() error {
	if u.SpiceLevel == "" {
		return nil
	}
	_, err := ParseSpiceLevel(u.SpiceLevel)
	return err
}

// Merge applies u to p: set fields union (dedup, sorted for deterministic
// comparisons), spice level last-write-wins. Per field the operation is
// idempotent and commutative across repeated applications.
func (p Preference) Merge(u Update) Preference {
	p.Cuisines = unionSet(p.Cuisines, u.Cuisines)
	p.Allergies = unionSet(p.Allergies, u.Allergies)
	p.Dislikes = unionSet(p.Dislikes, u.Dislikes)
	p.FavoriteIngredients = unionSet(p.FavoriteIngredients, u.FavoriteIngredients)
	p.FavoriteDishes = unionSet(p.FavoriteDishes, u.FavoriteDishes)
	p.DietaryRestrictions = unionSet(p.DietaryRestrictions, u.DietaryRestrictions)
	if u.SpiceLevel != "" {
		if level, err := ParseSpiceLevel(u.SpiceLevel); err == nil {
			p.SpiceLevel = level
		}
	}
	p.UpdatedAt = time.Now()
	return p
}

func unionSet(current, incoming []string) []string {
	if len(incoming) == 0 {
		return current
	}
	seen := make(map[string]struct{}, len(current)+len(incoming))
	out := make([]string, 0, len(current)+len(incoming))
	for _, lists := range [][]string{current, incoming} {
		for _, v := range lists {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Text renders the profile as the descriptor fed to the embedder and to
// prompt construction.
func (p Preference) Text() string {
	parts := []string{}
	if len(p.Cuisines) > 0 {
		parts = append(parts, "喜欢的菜系: "+strings.Join(p.Cuisines, ", "))
	}
	if len(p.Allergies) > 0 {
		parts = append(parts, "过敏: "+strings.Join(p.Allergies, ", "))
	}
	if len(p.Dislikes) > 0 {
		parts = append(parts, "不喜欢: "+strings.Join(p.Dislikes, ", "))
	}
	if len(p.FavoriteIngredients) > 0 {
		parts = append(parts, "喜欢的食材: "+strings.Join(p.FavoriteIngredients, ", "))
	}
	if len(p.FavoriteDishes) > 0 {
		parts = append(parts, "喜欢的菜品: "+strings.Join(p.FavoriteDishes, ", "))
	}
	if len(p.DietaryRestrictions) > 0 {
		parts = append(parts, "饮食限制: "+strings.Join(p.DietaryRestrictions, ", "))
	}
	level := p.SpiceLevel
	if level == "" {
		level = SpiceMedium
	}
	parts = append(parts, "辣度偏好: "+level)
	return strings.Join(parts, " | ")
}
