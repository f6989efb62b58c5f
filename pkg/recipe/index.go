package recipe

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/linqiu/chefmate/pkg/embedding"
)

const searchCacheSize = 256

// Filter narrows search results by exact attribute match, applied in
// conjunction with similarity ranking.
type Filter struct {
	Cuisine    string
	Difficulty string
	Tag        string
}

func (f Filter) empty() bool {
	return f.Cuisine == "" && f.Difficulty == "" && f.Tag == ""
}

func (f Filter) matches(r Recipe) bool {
	if f.Cuisine != "" && r.Cuisine != f.Cuisine {
		return false
	}
	if f.Difficulty != "" && r.Difficulty != f.Difficulty {
		return false
	}
	if f.Tag != "" && !r.HasTag(f.Tag) {
		return false
	}
	return true
}

type entry struct {
	recipe Recipe
	vector []float32
}

// Index is the shared read-mostly semantic recipe corpus. Appends swap in
// a fresh slice under the write lock so concurrent readers never observe
// a partially loaded corpus; queries take only the read lock.
type Index struct {
	mu         sync.RWMutex
	entries    []entry
	generation uint64

	embedder embedding.Embedder
	cache    *lru.Cache[string, []Recipe]
}

// NewIndex builds an empty corpus over the given embedder.
func NewIndex(embedder embedding.Embedder) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	cache, err := lru.New[string, []Recipe](searchCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create search cache: %w", err)
	}
	return &Index{embedder: embedder, cache: cache}, nil
}

// Add validates and appends a single recipe.
func (ix *Index) Add(r Recipe) error {
	if err := r.Validate(); err != nil {
		return err
	}
	ix.append([]Recipe{r.normalized()})
	return nil
}

// AddAll validates and appends recipes; the batch is rejected whole on the
// first invalid entry. Use LoadRecords for skip-on-malformed semantics.
func (ix *Index) AddAll(recipes []Recipe) error {
	normalized := make([]Recipe, 0, len(recipes))
	for _, r := range recipes {
		if err := r.Validate(); err != nil {
			return err
		}
		normalized = append(normalized, r.normalized())
	}
	ix.append(normalized)
	return nil
}

// LoadRecords bulk-loads structured records, skipping malformed entries
// rather than aborting the batch. Returns the count loaded.
func (ix *Index) LoadRecords(records []json.RawMessage) (int, []error) {
	var errs []error
	accepted := make([]Recipe, 0, len(records))
	for i, raw := range records {
		var r Recipe
		if err := json.Unmarshal(raw, &r); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		accepted = append(accepted, r.normalized())
	}
	ix.append(accepted)
	return len(accepted), errs
}

// LoadJSON reads a JSON array of recipe records from r.
func (ix *Index) LoadJSON(r io.Reader) (int, error) {
	var records []json.RawMessage
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return 0, fmt.Errorf("decode recipe records: %w", err)
	}
	n, _ := ix.LoadRecords(records)
	return n, nil
}

// LoadFile loads recipes from a JSON file on disk.
func (ix *Index) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open recipe file: %w", err)
	}
	defer f.Close()
	return ix.LoadJSON(f)
}

func (ix *Index) append(recipes []Recipe) {
	if len(recipes) == 0 {
		return
	}
	added := make([]entry, 0, len(recipes))
	for _, r := range recipes {
		added = append(added, entry{recipe: r, vector: ix.embedder.Embed(r.Text())})
	}

	ix.mu.Lock()
	next := make([]entry, 0, len(ix.entries)+len(added))
	next = append(next, ix.entries...)
	next = append(next, added...)
	ix.entries = next
	ix.generation++
	ix.mu.Unlock()

	ix.cache.Purge()
}

// Len reports corpus size.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Search returns up to k recipes ordered by descending cosine relevance
// to query, after applying the exact-match filter. Ties keep corpus
// insertion order, so identical inputs give identical output.
func (ix *Index) Search(query string, k int, filter Filter) ([]Recipe, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	entries := ix.entries
	gen := ix.generation
	ix.mu.RUnlock()
	if len(entries) == 0 {
		return nil, nil
	}

	key := ix.cacheKey(query, k, filter, gen)
	if cached, ok := ix.cache.Get(key); ok {
		return cached, nil
	}

	queryVec := ix.embedder.Embed(query)

	type scored struct {
		recipe Recipe
		score  float64
	}
	candidates := make([]scored, 0, len(entries))
	for _, e := range entries {
		if !filter.empty() && !filter.matches(e.recipe) {
			continue
		}
		candidates = append(candidates, scored{
			recipe: e.recipe,
			score:  embedding.Cosine(queryVec, e.vector),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Recipe, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.recipe)
	}

	ix.cache.Add(key, out)
	return out, nil
}

func (ix *Index) cacheKey(query string, k int, filter Filter, generation uint64) string {
	payload := fmt.Sprintf("%s|%d|%s|%s|%s|%d|%s",
		strings.ToLower(query), k, filter.Cuisine, filter.Difficulty, filter.Tag,
		generation, ix.embedder.ModelID())
	h := sha1.Sum([]byte(payload))
	return "search:" + hex.EncodeToString(h[:])
}
