package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerlink/ledgerlink/internal/normalize"
)

func TestVendorSimilarity(t *testing.T) {
	tokens := func(s string) []string {
		_, toks := normalize.Vendor(s)
		return toks
	}

	t.Run("identical names", func(t *testing.T) {
		assert.Equal(t, 1.0, VendorSimilarity(tokens("Blue Bottle Coffee"), tokens("Blue Bottle Coffee")))
	})

	t.Run("token order ignored", func(t *testing.T) {
		assert.Equal(t, 1.0, VendorSimilarity(tokens("Coffee Blue Bottle"), tokens("Blue Bottle Coffee")))
	})

	t.Run("abbreviation scores as prefix", func(t *testing.T) {
		// corp vs corporation pairs at 0.9, acme at 1.0
		got := VendorSimilarity(tokens("ACME Corp."), tokens("Acme Corporation"))
		assert.InDelta(t, 0.95, got, 1e-9)
	})

	t.Run("unrelated names score low", func(t *testing.T) {
		got := VendorSimilarity(tokens("Blue Bottle Coffee"), tokens("Globex Industrial"))
		assert.Less(t, got, 0.4)
	})

	t.Run("unmatched tokens drag symmetrically", func(t *testing.T) {
		ab := VendorSimilarity(tokens("Acme"), tokens("Acme Logistics Group"))
		ba := VendorSimilarity(tokens("Acme Logistics Group"), tokens("Acme"))
		assert.Equal(t, ab, ba)
		assert.Less(t, ab, 1.0)
	})

	t.Run("empty side scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, VendorSimilarity(nil, tokens("Acme")))
		assert.Equal(t, 0.0, VendorSimilarity(tokens("Acme"), nil))
	})
}

func TestTokenSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, tokenSimilarity("acme", "acme"))
	assert.Equal(t, prefixTokenScore, tokenSimilarity("corp", "corporation"))
	assert.Equal(t, prefixTokenScore, tokenSimilarity("corporation", "corp"))

	// Short tokens never get prefix credit.
	assert.NotEqual(t, prefixTokenScore, tokenSimilarity("ab", "about"))

	// Levenshtein fallback, one substitution in five runes.
	assert.InDelta(t, 0.8, tokenSimilarity("acmes", "acmed"), 1e-9)
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"acme", "acme", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein([]rune(tt.a), []rune(tt.b)), "%s vs %s", tt.a, tt.b)
	}
}
