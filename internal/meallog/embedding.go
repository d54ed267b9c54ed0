package meallog

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/foodlens/framelink/internal/domain"
)

// EmbeddingDim matches the sentence-embedding width used for meal vectors.
const EmbeddingDim = 384

// Embed maps text to a unit vector by hashing word and character-trigram
// features into EmbeddingDim buckets. Equal text yields equal vectors.
func Embed(text string) []float32 {
	vec := make([]float64, EmbeddingDim)
	for _, word := range tokenize(text) {
		addFeature(vec, "w:"+word, 1)
		padded := " " + word + " "
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			addFeature(vec, "t:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, EmbeddingDim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// MealText is the text a meal is embedded from.
func MealText(foodName, context string, verdict domain.Verdict) string {
	return strings.TrimSpace(strings.Join([]string{foodName, context, string(verdict)}, " "))
}

// Cosine returns the cosine similarity of a and b, 0 when either is empty or
// their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func addFeature(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := sum % EmbeddingDim
	// Signed feature hashing: the top bit picks the sign.
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
