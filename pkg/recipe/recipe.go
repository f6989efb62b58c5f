package recipe

import (
	"fmt"
	"strconv"
	"strings"
)

// Difficulty levels recognized by the corpus loader.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Recipe is an immutable corpus entry. Ingredients keep their authored
// order (duplicates allowed, order matters for display); Tags are a set.
type Recipe struct {
	Name        string            `json:"name"`
	Cuisine     string            `json:"cuisine"`
	Ingredients []string          `json:"ingredients"`
	Steps       []string          `json:"steps"`
	Difficulty  string            `json:"difficulty"`
	CookingTime int               `json:"cooking_time"`
	Tags        []string          `json:"tags,omitempty"`
	Nutrition   map[string]string `json:"nutrition,omitempty"`
}

// Validate reports why a record cannot enter the corpus.
func (r Recipe) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("recipe name is required")
	}
	if strings.TrimSpace(r.Cuisine) == "" {
		return fmt.Errorf("recipe %q: cuisine is required", r.Name)
	}
	if len(r.Ingredients) == 0 {
		return fmt.Errorf("recipe %q: at least one ingredient is required", r.Name)
	}
	if r.CookingTime <= 0 {
		return fmt.Errorf("recipe %q: cooking_time must be positive, got %d", r.Name, r.CookingTime)
	}
	switch strings.ToLower(strings.TrimSpace(r.Difficulty)) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("recipe %q: unknown difficulty %q", r.Name, r.Difficulty)
	}
	return nil
}

func (r Recipe) normalized() Recipe {
	r.Difficulty = strings.ToLower(strings.TrimSpace(r.Difficulty))
	r.Tags = dedupTags(r.Tags)
	return r
}

func dedupTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// HasTag reports set membership in Tags.
func (r Recipe) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Text renders the recipe as the descriptor fed to the embedder.
func (r Recipe) Text() string {
	var b strings.Builder
	b.WriteString("菜名: " + r.Name)
	b.WriteString("\n菜系: " + r.Cuisine)
	b.WriteString("\n食材: " + strings.Join(r.Ingredients, ", "))
	b.WriteString("\n难度: " + r.Difficulty)
	b.WriteString("\n时间: " + strconv.Itoa(r.CookingTime) + "分钟")
	if len(r.Tags) > 0 {
		b.WriteString("\n标签: " + strings.Join(r.Tags, ", "))
	}
	if len(r.Steps) > 0 {
		b.WriteString("\n做法: " + strings.Join(r.Steps, " "))
	}
	return b.String()
}
