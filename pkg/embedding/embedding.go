package embedding

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder turns text into a fixed-size normalized vector. Relevance
// ordering downstream is whatever cosine similarity over these vectors
// produces; callers treat it as opaque.
type Embedder interface {
	ModelID() string
	Embed(text string) []float32
}

const (
	defaultModel = "chefmate-chargram-384-v1"
	hashModel    = "chefmate-hash-256-v1"
)

// New returns the embedder registered under name, falling back to the
// default chargram model for unknown names.
func New(name string) Embedder {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", defaultModel, "chargram", "chargram-384":
		return &chargramEmbedder{dims: 384, modelID: defaultModel}
	case hashModel, "hash", "hash-256":
		return &hashEmbedder{dims: 256, modelID: hashModel}
	default:
		return &chargramEmbedder{dims: 384, modelID: defaultModel}
	}
}

type hashEmbedder struct {
	dims    int
	modelID string
}

func (e *hashEmbedder) ModelID() string { return e.modelID }

func (e *hashEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, token := range Tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		weight := float32(1 + (len(token) / 8))
		vec[idx] += sign * weight
	}
	Normalize(vec)
	return vec
}

type chargramEmbedder struct {
	dims    int
	modelID string
}

func (e *chargramEmbedder) ModelID() string { return e.modelID }

func (e *chargramEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dims)
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return vec
	}
	// Byte trigrams over the padded text. Works for CJK input too since
	// each han rune spans three UTF-8 bytes.
	window := "#" + normalized + "#"
	for i := 0; i+3 <= len(window); i++ {
		gram := window[i : i+3]
		h := fnv.New64a()
		_, _ = h.Write([]byte(gram))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		vec[idx] += 1
	}
	for _, token := range Tokenize(normalized) {
		h := fnv.New64a()
		_, _ = h.Write([]byte("tok:" + token))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		vec[idx] += 1.25
	}
	Normalize(vec)
	return vec
}

// Tokenize splits text into lowercase word tokens. Runs of latin
// letters/digits form one token; each han rune is its own token so
// Chinese ingredient names still contribute discrete terms.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := []string{}
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			current.WriteRune(r)
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		default:
			flush()
		}
	}
	flush()
	if len(tokens) == 0 && strings.TrimSpace(text) != "" {
		return []string{strings.TrimSpace(text)}
	}
	return tokens
}

func norm(vec []float32) float64 {
	if len(vec) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

// Normalize scales vec to unit length in place. Zero vectors stay zero.
func Normalize(vec []float32) {
	n := norm(vec)
	if n == 0 {
		return
	}
	inv := float32(1.0 / n)
	for i := range vec {
		vec[i] *= inv
	}
}

// Cosine returns the dot product of two normalized vectors.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i] * b[i])
	}
	return dot
}
